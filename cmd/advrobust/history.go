package main

import (
	"fmt"
	"math"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/ledger"
	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/report"
)

func newHistoryCmd(root *rootOptions) *cobra.Command {
	var (
		path       string
		runID      string
		experiment string
		limit      int
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded runs, trials and results",
		Long: `Show the run ledger. Without flags it lists recent runs. --run lists
every search trial of one run and --experiment lists the stored resistance
reports of one experiment, newest first.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if path == "" {
				cfg, err := root.loadConfig()
				if err != nil {
					return err
				}
				path = cfg.Paths.Ledger
			}
			led, err := ledger.Open(path)
			if err != nil {
				return err
			}
			defer led.Close()

			out := cmd.OutOrStdout()
			switch {
			case runID != "":
				trials, err := led.Trials(runID)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "EXPERIMENT\tPHASE\tINDEX\tPARAMS\tSCORE\tEPOCHS\tERROR")
				for _, t := range trials {
					fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%d\t%s\n",
						t.Experiment, t.Phase, t.Index, t.Params.String(), formatScore(t.Score), t.Epochs, t.Err)
				}
				return w.Flush()

			case experiment != "":
				results, err := led.Results(experiment)
				if err != nil {
					return err
				}
				if len(results) == 0 {
					fmt.Fprintf(out, "No results for %s.\n", experiment)
					return nil
				}
				rows := make([]report.Row, len(results))
				for i, r := range results {
					rows[i] = report.Row{
						Experiment: r.CreatedAt.Format("2006-01-02 15:04:05") + " " + shortID(r.RunID),
						Report:     r.Report,
						Loaded:     r.Loaded,
					}
				}
				return report.Summary(out, rows)

			default:
				runs, err := led.Runs(limit)
				if err != nil {
					return err
				}
				if len(runs) == 0 {
					fmt.Fprintln(out, "No runs recorded.")
					return nil
				}
				w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "RUN\tSTATUS\tSEED\tSTARTED\tDURATION")
				for _, r := range runs {
					duration := "-"
					if !r.FinishedAt.IsZero() {
						duration = r.FinishedAt.Sub(r.StartedAt).Round(1e6).String()
					}
					fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
						r.ID, r.Status, r.Seed, r.StartedAt.Format("2006-01-02 15:04:05"), duration)
				}
				return w.Flush()
			}
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&path, "ledger", "", "Ledger database (default: paths.ledger from the config)")
	flags.StringVar(&runID, "run", "", "List the trials of this run")
	flags.StringVar(&experiment, "experiment", "", "List the results of this experiment")
	flags.IntVar(&limit, "limit", 20, "Maximum number of runs to list")
	cmd.MarkFlagsMutuallyExclusive("run", "experiment")
	return cmd
}

func formatScore(v float64) string {
	if math.IsNaN(v) {
		return "-"
	}
	return fmt.Sprintf("%.4f", v)
}
