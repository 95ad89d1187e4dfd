package experiment

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/checkpoint"
	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/config"
	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/dataset"
	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/engine"
	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/errdefs"
	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/evaluate"
	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/hyper"
	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/models"
	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/nn"
	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/report"
	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/schedule"
	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/train"
)

// State is decided once per experiment, before any work.
type State int

const (
	// NeedsCompute trains, searches and measures from scratch.
	NeedsCompute State = iota
	// Loaded takes weights, sets and report from a checkpoint.
	Loaded
)

func (s State) String() string {
	if s == Loaded {
		return "loaded"
	}
	return "needs_compute"
}

// Data is the training and test data shared by every experiment of a run.
type Data struct {
	Train dataset.Dataset
	Test  dataset.Dataset
}

// Outcome is the result of one experiment.
type Outcome struct {
	Name       string
	State      State
	Model      engine.Model
	TrainSet   hyper.Set
	AttackSets map[string]hyper.Set
	Report     evaluate.Report
	Epochs     int
	Score      float64
}

// RunAll runs experiments in order. The context is checked between
// experiments; outcomes finished before an error are returned with it.
func RunAll(ctx context.Context, ec *Context, experiments []config.Experiment, data Data) ([]Outcome, error) {
	outcomes := make([]Outcome, 0, len(experiments))
	for _, e := range experiments {
		if err := ctx.Err(); err != nil {
			return outcomes, err
		}
		o, err := Run(ctx, ec, e, data)
		if err != nil {
			return outcomes, fmt.Errorf("experiment %s: %w", e.Name, err)
		}
		outcomes = append(outcomes, o)
	}
	return outcomes, nil
}

// Run executes one experiment. With load_checkpoint set and a readable
// checkpoint matching the model, everything comes from the checkpoint;
// otherwise the experiment is computed and, unless disabled, saved.
func Run(ctx context.Context, ec *Context, e config.Experiment, data Data) (Outcome, error) {
	ctx, span := tracer.Start(ctx, "experiment", trace.WithAttributes(attribute.String("experiment", e.Name)))
	defer span.End()
	logger := ec.logger().With("experiment", e.Name)

	rng := ec.rng(e.Name)
	model, err := models.Build(e.Model, rng, ec.Backend)
	if err != nil {
		return Outcome{}, err
	}
	logger.Info("model built", "arch", models.Describe(model))

	state, ckpt := ec.decide(e, model)
	span.SetAttributes(attribute.String("state", state.String()))

	var out Outcome
	switch state {
	case Loaded:
		ec.Metrics.Checkpoint("load")
		out = Outcome{
			Name:       e.Name,
			State:      Loaded,
			Model:      model,
			TrainSet:   ckpt.TrainParams,
			AttackSets: ckpt.AttackParams,
			Report:     ckpt.Report,
			Epochs:     ckpt.Epochs,
			Score:      ckpt.Score,
		}
		logger.Info("loaded checkpoint", "run_id", ckpt.RunID, "created_at", ckpt.CreatedAt)
	default:
		if out, err = compute(ctx, ec, e, model, data, rng); err != nil {
			span.RecordError(err)
			return Outcome{}, err
		}
		if e.ShouldSave() {
			if err := ec.save(e, out); err != nil {
				return Outcome{}, err
			}
		}
	}

	logger.Info("test scores", "report", out.Report.String())
	if ec.Out != nil {
		if err := report.Scores(ec.Out, e.Name, out.Report); err != nil {
			return Outcome{}, err
		}
	}
	ec.recordResult(out)
	return out, nil
}

// decide picks the experiment state. A failed load falls back to
// NeedsCompute with the model's initial weights intact.
func (ec *Context) decide(e config.Experiment, model engine.Model) (State, *checkpoint.Checkpoint) {
	if !e.LoadCheckpoint {
		return NeedsCompute, nil
	}
	logger := ec.logger().With("experiment", e.Name)
	ckpt, err := ec.Store.Load(e.Name)
	if err != nil {
		if errors.Is(err, errdefs.ErrCheckpointNotFound) {
			logger.Info("no checkpoint, computing")
		} else {
			logger.Warn("checkpoint unusable, computing", "err", err)
		}
		return NeedsCompute, nil
	}
	initial := nn.Snapshot(model)
	if err := ckpt.Apply(model); err != nil {
		logger.Warn("checkpoint does not match model, computing", "err", err)
		if rerr := nn.Restore(model, initial); rerr != nil {
			logger.Error("restoring initial weights", "err", rerr)
		}
		return NeedsCompute, nil
	}
	return Loaded, ckpt
}

func compute(ctx context.Context, ec *Context, e config.Experiment, model engine.Model, data Data, rng *rand.Rand) (Outcome, error) {
	trainSet, valSet, err := dataset.Split(data.Train, ec.ValFraction, rng)
	if err != nil {
		return Outcome{}, err
	}
	stopping := ec.Stopping
	if e.Stopping != nil {
		stopping = *e.Stopping
	}
	crit, err := schedule.FromConfig(stopping)
	if err != nil {
		return Outcome{}, err
	}
	adv, err := ec.trainAttack(e, rng)
	if err != nil {
		return Outcome{}, err
	}

	tr, err := FullTrain(ctx, ec, e.Name, model, train.Split{Train: trainSet, Val: valSet},
		ec.Spaces.Training, schedule.NewEpochs(crit), adv, rng)
	if err != nil {
		return Outcome{}, err
	}

	var search dataset.Dataset = data.Train
	if ec.SearchLimit > 0 && ec.SearchLimit < data.Train.Len() {
		if search, err = dataset.Take(data.Train, ec.SearchLimit); err != nil {
			return Outcome{}, err
		}
	}

	sets := make(map[string]hyper.Set)
	var settings []AttackSetting
	for _, name := range e.AttackNames() {
		space, ok := ec.Spaces.ForAttack(name)
		if !ok {
			return Outcome{}, fmt.Errorf("%w: no hyperparameter space for attack %q", errdefs.ErrInvalidConfiguration, name)
		}
		atk, err := ec.newAttack(name, rng)
		if err != nil {
			return Outcome{}, err
		}
		ar, err := FullAttack(ctx, ec, e.Name, model, search, space, tr.Set, atk)
		if err != nil {
			return Outcome{}, err
		}
		sets[name] = ar.Set
		settings = append(settings, AttackSetting{Attack: atk, Set: ar.Set})
	}

	rep, err := MeasureResistance(ctx, ec, e.Name, model, data.Test, settings)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{
		Name:       e.Name,
		State:      NeedsCompute,
		Model:      model,
		TrainSet:   tr.Set,
		AttackSets: sets,
		Report:     rep,
		Epochs:     tr.Epochs,
		Score:      tr.Score,
	}, nil
}

// trainAttack builds the adversarial training setup of e, if any. Params
// named by params_from come from the attack sets stored in that
// experiment's checkpoint.
func (ec *Context) trainAttack(e config.Experiment, rng *rand.Rand) (*train.Adversarial, error) {
	ta := e.TrainAttack
	if ta == nil {
		return nil, nil
	}
	mode, err := train.ParseMode(ta.Mode)
	if err != nil {
		return nil, err
	}

	var set hyper.Set
	if ta.ParamsFrom != "" {
		src, err := ec.Store.Load(ta.ParamsFrom)
		if err != nil {
			return nil, fmt.Errorf("train attack params from %s: %w", ta.ParamsFrom, err)
		}
		var ok bool
		if set, ok = src.AttackParams[ta.Attack]; !ok {
			return nil, fmt.Errorf("%w: checkpoint %s has no %s parameters",
				errdefs.ErrInvalidConfiguration, ta.ParamsFrom, ta.Attack)
		}
	} else {
		set = ta.Params.First()
	}

	atk, err := ec.newAttack(ta.Attack, rng)
	if err != nil {
		return nil, err
	}
	ec.logger().Info("adversarial training", "experiment", e.Name, "attack", ta.Attack, "set", set.String(), "mode", mode.String())
	return &train.Adversarial{Attack: atk, Params: set, Mode: mode}, nil
}

func (ec *Context) save(e config.Experiment, o Outcome) error {
	kind := e.Model.Kind
	if kind == "" {
		kind = models.KindConv
	}
	err := ec.Store.Save(&checkpoint.Checkpoint{
		Name:         e.Name,
		RunID:        ec.RunID,
		CreatedAt:    time.Now().UTC(),
		ModelType:    kind,
		Weights:      nn.Snapshot(o.Model),
		TrainParams:  o.TrainSet,
		AttackParams: o.AttackSets,
		Report:       o.Report,
		Epochs:       o.Epochs,
		Score:        o.Score,
	})
	if err != nil {
		return fmt.Errorf("saving checkpoint: %w", err)
	}
	ec.Metrics.Checkpoint("save")
	return nil
}
