// Package train fits a classifier for one hyperparameter set, optionally
// on adversarial examples.
package train

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/attack"
	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/dataset"
	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/engine"
	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/errdefs"
	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/evaluate"
	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/hyper"
	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/optim"
	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/schedule"
)

var tracer = otel.Tracer("github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/train")

// Mode selects how adversarial examples enter a batch.
type Mode int

const (
	// Replace trains on the adversarial batch instead of the clean one.
	Replace Mode = iota
	// Augment trains on the clean and adversarial batches together.
	Augment
)

func (m Mode) String() string {
	if m == Augment {
		return "augment"
	}
	return "replace"
}

// ParseMode maps a config name to a Mode. Empty means Replace.
func ParseMode(name string) (Mode, error) {
	switch name {
	case "replace", "":
		return Replace, nil
	case "augment":
		return Augment, nil
	default:
		return 0, fmt.Errorf("%w: unknown adversarial mode %q", errdefs.ErrInvalidConfiguration, name)
	}
}

// Adversarial enables adversarial training. The attack runs against the
// model being trained, so examples follow the current weights.
type Adversarial struct {
	Attack attack.Attack
	Params hyper.Set
	Mode   Mode
}

// Split is training data with its held-out validation part.
type Split struct {
	Train dataset.Dataset
	Val   dataset.Dataset
}

// Result is the outcome of one training run.
type Result struct {
	Model  engine.Model
	Score  float64 // final validation accuracy; NaN when no epoch ran
	Epochs int
	Loss   float64 // mean loss of the last epoch
}

// EpochStats is reported after every epoch.
type EpochStats struct {
	Epoch       int
	Loss        float64
	ValAccuracy float64
	Duration    time.Duration
}

// Options are the optional collaborators of Train.
type Options struct {
	// Rng shuffles batches; nil keeps dataset order.
	Rng *rand.Rand
	// EvalBatchSize is the validation batch size; zero uses the default.
	EvalBatchSize int
	Logger        *slog.Logger
	OnEpoch       func(EpochStats)
}

// Train fits model on data.Train with the training set hp until epochs
// says stop. An already stopped criterion runs zero epochs and leaves the
// model untouched.
func Train(
	ctx context.Context,
	b *engine.Backend,
	model engine.Model,
	loss engine.LossFunc,
	data Split,
	hp hyper.Set,
	epochs *schedule.Epochs,
	adv *Adversarial,
	opts Options,
) (Result, error) {
	res := Result{Model: model, Score: math.NaN(), Loss: math.NaN()}
	if epochs.Stopped() {
		return res, nil
	}

	p, err := hyper.ParseTraining(hp)
	if err != nil {
		return res, err
	}
	if adv != nil {
		if err := attack.Validate(adv.Attack, adv.Params); err != nil {
			return res, fmt.Errorf("train attack %s: %w", adv.Attack.Name(), err)
		}
	}
	opt, err := optim.New(model.Parameters(), optim.Config{
		Kind:     optim.Kind(p.Optimizer),
		LR:       float32(p.LR),
		Momentum: float32(p.Momentum),
	})
	if err != nil {
		return res, fmt.Errorf("%w: %v", errdefs.ErrInvalidHyperparameter, err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, span := tracer.Start(ctx, "train")
	span.SetAttributes(attribute.String("hp", hp.String()))
	defer span.End()

	for {
		start := time.Now()
		meanLoss, err := runEpoch(b, model, loss, opt, data.Train, p.BatchSize, adv, opts.Rng)
		if err != nil {
			span.RecordError(err)
			return res, fmt.Errorf("epoch %d: %w", res.Epochs+1, err)
		}
		res.Epochs++
		res.Loss = meanLoss
		res.Score = evaluate.Accuracy(b, model, data.Val, opts.EvalBatchSize)

		stats := EpochStats{Epoch: res.Epochs, Loss: meanLoss, ValAccuracy: res.Score, Duration: time.Since(start)}
		logger.DebugContext(ctx, "epoch done",
			"epoch", stats.Epoch, "loss", stats.Loss, "val_acc", stats.ValAccuracy, "duration", stats.Duration)
		if opts.OnEpoch != nil {
			opts.OnEpoch(stats)
		}
		if !epochs.Step(res.Score) {
			break
		}
	}
	span.SetAttributes(attribute.Int("epochs", res.Epochs), attribute.Float64("score", res.Score))
	return res, nil
}

func runEpoch(
	b *engine.Backend,
	model engine.Model,
	loss engine.LossFunc,
	opt optim.Optimizer,
	data dataset.Dataset,
	batchSize int,
	adv *Adversarial,
	rng *rand.Rand,
) (float64, error) {
	var total float64
	var n int
	for batch := range dataset.Batches(b, data, batchSize, rng) {
		x, labels := batch.X, batch.Labels
		if adv != nil {
			var err error
			if x, labels, err = adversarialBatch(b, model, loss, x, labels, adv); err != nil {
				return math.NaN(), err
			}
		}
		l := float64(engine.TrainStep(b, model, loss, opt, x, labels))
		if math.IsNaN(l) || math.IsInf(l, 0) {
			return l, fmt.Errorf("%w: loss %v at batch %d", errdefs.ErrDiverged, l, n)
		}
		total += l
		n++
	}
	if n == 0 {
		return math.NaN(), fmt.Errorf("%w: empty training set", errdefs.ErrDataExhausted)
	}
	return total / float64(n), nil
}

func adversarialBatch(
	b *engine.Backend,
	model engine.Model,
	loss engine.LossFunc,
	x *engine.Tensor,
	labels *engine.Labels,
	adv *Adversarial,
) (*engine.Tensor, *engine.Labels, error) {
	ab, err := adv.Attack.Generate(model, loss, x, labels, adv.Params)
	if err != nil {
		return nil, nil, err
	}
	if adv.Mode == Replace {
		return ab.X, labels, nil
	}

	shape := x.Shape().Clone()
	shape[0] *= 2
	joined, err := engine.FromSlice(b, append(append([]float32(nil), x.Data()...), ab.X.Data()...), shape)
	if err != nil {
		return nil, nil, err
	}
	l := labels.Data()
	return joined, engine.LabelsFromSlice(b, append(append([]int32(nil), l...), l...)), nil
}
