// Package experiment drives named experiments end to end: hyperparameter
// search over training, attack search against the trained network,
// measurement on held-out data, checkpointing and reporting.
package experiment

import (
	"hash/fnv"
	"io"
	"log/slog"
	"math/rand/v2"

	"go.opentelemetry.io/otel"

	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/attack"
	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/checkpoint"
	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/config"
	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/device"
	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/engine"
	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/evaluate"
	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/hyper"
	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/ledger"
	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/metrics"
	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/schedule"
	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/tensor"
)

var tracer = otel.Tracer("github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/experiment")

// Search phases as recorded in the ledger and metrics.
const (
	PhaseTrain = "train"
)

// AttackPhase names the search phase of an attack.
func AttackPhase(name string) string { return "attack:" + name }

// Context is everything an experiment needs besides its own entry. It is
// built once per run and not modified afterwards.
//
// Ledger, Metrics and Out are optional.
type Context struct {
	Backend *engine.Backend
	Loss    engine.LossFunc
	Device  tensor.Device
	Seed    uint64

	Paths       config.Paths
	Search      config.Search
	Spaces      config.Spaces
	Stopping    schedule.Config
	ValFraction float64
	SearchLimit int

	Eval    evaluate.Options
	Range   attack.Range
	Attacks *attack.Registry
	Store   checkpoint.Store

	Logger  *slog.Logger
	Ledger  *ledger.Ledger
	Metrics *metrics.Recorder
	RunID   string
	Out     io.Writer
}

// Options are the collaborators NewContext does not build itself.
type Options struct {
	Store   checkpoint.Store // defaults to an FSStore at paths.checkpoints
	Ledger  *ledger.Ledger
	Metrics *metrics.Recorder
	RunID   string
	Out     io.Writer
	Logger  *slog.Logger
}

// NewContext resolves the device and builds the engine for cfg.
func NewContext(cfg *config.Config, opts Options) (*Context, error) {
	dev, err := device.Resolve(cfg.Device)
	if err != nil {
		return nil, err
	}
	crit, err := evaluate.ParseCriterion(cfg.Evaluation.Criterion)
	if err != nil {
		return nil, err
	}
	store := opts.Store
	if store == nil {
		if store, err = checkpoint.NewFSStore(cfg.Paths.Checkpoints); err != nil {
			return nil, err
		}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	b := engine.New()
	return &Context{
		Backend:     b,
		Loss:        engine.CrossEntropy(b),
		Device:      dev,
		Seed:        cfg.Seed,
		Paths:       cfg.Paths,
		Search:      cfg.Search,
		Spaces:      cfg.Spaces,
		Stopping:    cfg.Stopping,
		ValFraction: cfg.Dataset.ValFraction,
		SearchLimit: cfg.Dataset.SearchLimit,
		Eval: evaluate.Options{
			BatchSize: cfg.Evaluation.BatchSize,
			Criterion: crit,
			Record:    cfg.Evaluation.RecordExamples,
		},
		Range:   attack.Range{Min: cfg.Evaluation.ValidRange[0], Max: cfg.Evaluation.ValidRange[1]},
		Attacks: attack.DefaultRegistry(),
		Store:   store,
		Logger:  logger,
		Ledger:  opts.Ledger,
		Metrics: opts.Metrics,
		RunID:   opts.RunID,
		Out:     opts.Out,
	}, nil
}

func (ec *Context) logger() *slog.Logger {
	if ec.Logger == nil {
		return slog.Default()
	}
	return ec.Logger
}

// rng returns the generator of one experiment. Every experiment gets its
// own stream so results do not depend on which experiments ran before.
func (ec *Context) rng(name string) *rand.Rand {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	return rand.New(rand.NewPCG(ec.Seed, h.Sum64()))
}

func (ec *Context) tuner(space hyper.Space, seed uint64) (hyper.Tuner, error) {
	return hyper.NewTuner(ec.Search.Strategy, space, ec.Search.Iterations, ec.Search.Population, int64(seed))
}

func (ec *Context) newAttack(name string, rng *rand.Rand) (attack.Attack, error) {
	reg := ec.Attacks
	if reg == nil {
		reg = attack.DefaultRegistry()
	}
	r := ec.Range
	if r == (attack.Range{}) {
		r = attack.DefaultRange
	}
	return reg.New(name, rng, attack.WithRange(r))
}

func (ec *Context) recordTrial(exp, phase string, index int, set hyper.Set, score float64, epochs int, err error) {
	ec.Metrics.Trial(exp, phase, err)
	if ec.Ledger == nil || ec.RunID == "" {
		return
	}
	t := ledger.Trial{
		RunID:      ec.RunID,
		Experiment: exp,
		Phase:      phase,
		Index:      index,
		Params:     set,
		Score:      score,
		Epochs:     epochs,
	}
	if err != nil {
		t.Err = err.Error()
	}
	if lerr := ec.Ledger.RecordTrial(t); lerr != nil {
		ec.logger().Warn("ledger trial not recorded", "experiment", exp, "err", lerr)
	}
}

func (ec *Context) recordResult(o Outcome) {
	for _, m := range o.Report.Metrics() {
		ec.Metrics.ReportValue(o.Name, m.Name, m.Value)
	}
	if ec.Ledger == nil || ec.RunID == "" {
		return
	}
	r := ledger.Result{RunID: ec.RunID, Experiment: o.Name, Report: o.Report, Loaded: o.State == Loaded}
	if err := ec.Ledger.RecordResult(r); err != nil {
		ec.logger().Warn("ledger result not recorded", "experiment", o.Name, "err", err)
	}
}
