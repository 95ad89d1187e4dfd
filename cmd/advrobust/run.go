package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/config"
	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/experiment"
	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/ledger"
	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/metrics"
	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/report"
	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/telemetry"
)

type runOptions struct {
	seed         uint64
	device       string
	results      string
	metricsAddr  string
	otlpEndpoint string
	only         []string
}

func newRunCmd(root *rootOptions) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the configured experiments",
		Long: `Run every configured experiment in order: hyperparameter search over
training, FGSM and PGD search against the trained network, measurement on the
test set and checkpointing. Experiments with load_checkpoint set reuse a
matching checkpoint instead of training.

SIGINT stops the run between search cells.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			if err := opts.apply(cmd, cfg); err != nil {
				return err
			}
			return runExperiments(cmd, cfg, opts.only)
		},
	}

	flags := cmd.Flags()
	flags.Uint64Var(&opts.seed, "seed", 0, "Override the configured seed")
	flags.StringVar(&opts.device, "device", "", "Override the configured device (cpu, webgpu, auto)")
	flags.StringVar(&opts.results, "results", "", "Root all output paths under this folder")
	flags.StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	flags.StringVar(&opts.otlpEndpoint, "otlp-endpoint", "", "Export traces to this OTLP/HTTP endpoint")
	flags.StringSliceVar(&opts.only, "only", nil, "Run only these experiments (expanded names)")
	return cmd
}

// apply writes flag overrides into cfg and revalidates it.
func (o *runOptions) apply(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("seed") {
		cfg.Seed = o.seed
	}
	if flags.Changed("device") {
		cfg.Device = o.device
	}
	if o.results != "" {
		cfg.Paths = config.Paths{
			Results:     o.results,
			Checkpoints: filepath.Join(o.results, "checkpoints"),
			Plots:       filepath.Join(o.results, "plots"),
			Ledger:      filepath.Join(o.results, "ledger.db"),
		}
	}
	if o.metricsAddr != "" {
		cfg.Telemetry.MetricsAddr = o.metricsAddr
	}
	if o.otlpEndpoint != "" {
		cfg.Telemetry.OTLPEndpoint = o.otlpEndpoint
	}
	return cfg.Validate()
}

func runExperiments(cmd *cobra.Command, cfg *config.Config, only []string) (err error) {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	experiments := cfg.Expand()
	if len(only) > 0 {
		experiments = slices.DeleteFunc(experiments, func(e config.Experiment) bool {
			return !slices.Contains(only, e.Name)
		})
		if len(experiments) == 0 {
			return fmt.Errorf("no experiment matches %v", only)
		}
	}

	shutdown, err := telemetry.Setup(ctx, telemetry.Options{
		ServiceName: cfg.Telemetry.ServiceName,
		Version:     version,
		Endpoint:    cfg.Telemetry.OTLPEndpoint,
		Insecure:    true,
	})
	if err != nil {
		return err
	}
	defer func() {
		if serr := shutdown(context.Background()); serr != nil {
			slog.Warn("tracer shutdown", "err", serr)
		}
	}()

	rec, err := metrics.New()
	if err != nil {
		return err
	}
	if cfg.Telemetry.MetricsAddr != "" {
		if _, err := rec.Serve(ctx, cfg.Telemetry.MetricsAddr); err != nil {
			return err
		}
	}

	if err := experiment.Prepare(cfg.Paths); err != nil {
		return err
	}
	led, err := ledger.Open(cfg.Paths.Ledger)
	if err != nil {
		return err
	}
	defer led.Close()

	runID, err := led.StartRun(cfg.Seed, cfg)
	if err != nil {
		return err
	}
	defer func() {
		status := ledger.StatusDone
		switch {
		case errors.Is(err, context.Canceled):
			status = ledger.StatusCanceled
		case err != nil:
			status = ledger.StatusFailed
		}
		if ferr := led.FinishRun(runID, status); ferr != nil {
			slog.Warn("ledger run not finished", "run_id", runID, "err", ferr)
		}
	}()

	data, err := experiment.LoadData(cfg.Dataset)
	if err != nil {
		return err
	}
	ec, err := experiment.NewContext(cfg, experiment.Options{
		Ledger:  led,
		Metrics: rec,
		RunID:   runID,
		Out:     cmd.OutOrStdout(),
		Logger:  slog.Default(),
	})
	if err != nil {
		return err
	}

	slog.Info("run started", "run_id", runID, "experiments", len(experiments),
		"train_samples", data.Train.Len(), "test_samples", data.Test.Len())
	outcomes, err := experiment.RunAll(ctx, ec, experiments, data)

	rows := make([]report.Row, len(outcomes))
	for i, o := range outcomes {
		rows[i] = report.Row{Experiment: o.Name, Report: o.Report, Loaded: o.State == experiment.Loaded}
	}
	if len(rows) > 0 {
		fmt.Fprintln(cmd.OutOrStdout())
		if serr := report.Summary(cmd.OutOrStdout(), rows); serr != nil && err == nil {
			err = serr
		}
	}
	return err
}
