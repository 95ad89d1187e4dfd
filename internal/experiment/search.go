package experiment

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/attack"
	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/dataset"
	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/engine"
	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/evaluate"
	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/hyper"
	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/nn"
	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/report"
	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/schedule"
	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/tensor"
	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/train"
)

// TrainResult is the outcome of a training search.
type TrainResult struct {
	Model  engine.Model // the searched model, holding the best weights
	Set    hyper.Set
	Score  float64
	Epochs int
}

// FullTrain trains model once per set of space and keeps the weights of the
// highest scoring set. Every set starts from the weights model had on entry
// and from a restarted criterion. Ties keep the first set.
func FullTrain(
	ctx context.Context,
	ec *Context,
	exp string,
	model engine.Model,
	data train.Split,
	space hyper.Space,
	epochs *schedule.Epochs,
	adv *train.Adversarial,
	rng *rand.Rand,
) (TrainResult, error) {
	ctx, span := tracer.Start(ctx, "full_train", trace.WithAttributes(attribute.String("experiment", exp)))
	defer span.End()

	tuner, err := ec.tuner(space, ec.Seed)
	if err != nil {
		return TrainResult{}, err
	}
	logger := ec.logger().With("experiment", exp, "phase", PhaseTrain)

	initial := nn.Snapshot(model)
	var (
		best       map[string]*tensor.RawTensor
		bestScore  = math.NaN()
		bestEpochs int
		n          int
	)
	objective := func(ctx context.Context, set hyper.Set) (float64, error) {
		index := n
		n++
		epochs.Restart()
		if err := nn.Restore(model, initial); err != nil {
			return 0, err
		}
		res, err := train.Train(ctx, ec.Backend, model, ec.Loss, data, set, epochs, adv, train.Options{
			Rng:           rng,
			EvalBatchSize: ec.Eval.BatchSize,
			Logger:        logger,
			OnEpoch:       func(s train.EpochStats) { ec.Metrics.Epoch(exp, s.Duration) },
		})
		ec.recordTrial(exp, PhaseTrain, index, set, res.Score, res.Epochs, err)
		if err != nil {
			logger.Error("training failed", "set", set.String(), "err", err)
			return 0, err
		}
		logger.Info("trained", "set", set.String(), "val_acc", res.Score, "epochs", res.Epochs)
		if best == nil || improves(res.Score, bestScore) {
			best, bestScore, bestEpochs = nn.Snapshot(model), res.Score, res.Epochs
		}
		return res.Score, nil
	}

	trial, err := tuner.Tune(ctx, objective)
	if err != nil {
		span.RecordError(err)
		return TrainResult{}, fmt.Errorf("training search: %w", err)
	}
	if err := nn.Restore(model, best); err != nil {
		return TrainResult{}, fmt.Errorf("restoring best weights: %w", err)
	}
	ec.Metrics.BestScore(exp, PhaseTrain, trial.Score)
	span.SetAttributes(attribute.String("set", trial.Set.String()), attribute.Float64("score", trial.Score))
	return TrainResult{Model: model, Set: trial.Set, Score: trial.Score, Epochs: bestEpochs}, nil
}

// AttackResult is the strongest attack set found for a model.
type AttackResult struct {
	Attack string
	Set    hyper.Set
	Score  float64 // success rate
}

// FullAttack searches space for the attack set with the highest success
// rate against model on data. The batch size of the trained set is reused
// when it has one.
func FullAttack(
	ctx context.Context,
	ec *Context,
	exp string,
	model engine.Model,
	data dataset.Dataset,
	space hyper.Space,
	trained hyper.Set,
	atk attack.Attack,
) (AttackResult, error) {
	phase := AttackPhase(atk.Name())
	ctx, span := tracer.Start(ctx, "full_attack", trace.WithAttributes(
		attribute.String("experiment", exp), attribute.String("attack", atk.Name())))
	defer span.End()

	tuner, err := ec.tuner(space, ec.Seed+1)
	if err != nil {
		return AttackResult{}, err
	}
	logger := ec.logger().With("experiment", exp, "phase", phase)

	opts := evaluate.Options{BatchSize: ec.Eval.BatchSize, Criterion: ec.Eval.Criterion}
	if p, err := hyper.ParseTraining(trained); err == nil {
		opts.BatchSize = p.BatchSize
	}

	n := 0
	objective := func(_ context.Context, set hyper.Set) (float64, error) {
		index := n
		n++
		res, err := evaluate.SuccessRate(ec.Backend, model, ec.Loss, data, atk, set, opts)
		ec.recordTrial(exp, phase, index, set, res.Rate, 0, err)
		if err != nil {
			logger.Error("attack failed", "set", set.String(), "err", err)
			return 0, err
		}
		logger.Info("attacked", "set", set.String(), "success_rate", res.Rate)
		return res.Rate, nil
	}

	trial, err := tuner.Tune(ctx, objective)
	if err != nil {
		span.RecordError(err)
		return AttackResult{}, fmt.Errorf("%s search: %w", atk.Name(), err)
	}
	ec.Metrics.BestScore(exp, phase, trial.Score)
	return AttackResult{Attack: atk.Name(), Set: trial.Set, Score: trial.Score}, nil
}

// AttackSetting is an attack with the set it is measured at.
type AttackSetting struct {
	Attack attack.Attack
	Set    hyper.Set
}

// MeasureResistance reports clean accuracy on test followed by the success
// rate of every setting, in order. Successful examples are written as a
// PDF gallery per attack when recording is enabled and a plots folder is
// configured.
func MeasureResistance(
	ctx context.Context,
	ec *Context,
	exp string,
	model engine.Model,
	test dataset.Dataset,
	settings []AttackSetting,
) (evaluate.Report, error) {
	_, span := tracer.Start(ctx, "measure_resistance", trace.WithAttributes(attribute.String("experiment", exp)))
	defer span.End()

	metrics := []evaluate.Metric{{
		Name:  evaluate.KeyTestAccuracy,
		Value: evaluate.Accuracy(ec.Backend, model, test, ec.Eval.BatchSize),
	}}
	for _, s := range settings {
		res, err := evaluate.SuccessRate(ec.Backend, model, ec.Loss, test, s.Attack, s.Set, ec.Eval)
		if err != nil {
			span.RecordError(err)
			return evaluate.Report{}, err
		}
		metrics = append(metrics, evaluate.Metric{Name: evaluate.AttackKey(s.Attack.Name()), Value: res.Rate})
		if ec.Eval.Record > 0 && ec.Paths.Plots != "" {
			if err := ec.writeGallery(exp, s.Attack.Name(), res.Examples); err != nil {
				ec.logger().Warn("gallery not written", "experiment", exp, "attack", s.Attack.Name(), "err", err)
			}
		}
	}
	return evaluate.NewReport(metrics...)
}

func (ec *Context) writeGallery(exp, attackName string, examples []evaluate.Example) error {
	if err := os.MkdirAll(ec.Paths.Plots, 0o750); err != nil {
		return err
	}
	path := filepath.Join(ec.Paths.Plots, fmt.Sprintf("%s_%s.pdf", exp, attackName))
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	r := ec.Range
	if r == (attack.Range{}) {
		r = attack.DefaultRange
	}
	title := fmt.Sprintf("%s: successful %s attacks", exp, attackName)
	if err := report.Gallery(f, title, examples, r.Min, r.Max); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return err
	}
	return f.Close()
}

// improves mirrors the tuners' rule: NaN never wins, anything beats NaN.
func improves(score, best float64) bool {
	if math.IsNaN(score) {
		return false
	}
	return math.IsNaN(best) || score > best
}
