// Package evaluate measures clean accuracy and attack success rates.
//
// Models run in inference mode: the tape records only while an attack
// computes its input gradients, and weights are never updated.
package evaluate

import (
	"fmt"
	"math"

	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/attack"
	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/dataset"
	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/engine"
	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/errdefs"
	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/hyper"
	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/tensor"
)

// DefaultBatchSize is used when Options.BatchSize is zero.
const DefaultBatchSize = 256

// Criterion decides whether an attacked input counts as a success.
type Criterion int

const (
	// LabelFlip counts inputs whose adversarial prediction differs from
	// the clean prediction.
	LabelFlip Criterion = iota
	// BecameIncorrect counts inputs predicted correctly when clean and
	// incorrectly after the attack.
	BecameIncorrect
)

func (c Criterion) String() string {
	if c == BecameIncorrect {
		return "became_incorrect"
	}
	return "label_flip"
}

// ParseCriterion maps a config name to a Criterion. Empty means LabelFlip.
func ParseCriterion(name string) (Criterion, error) {
	switch name {
	case "label_flip", "":
		return LabelFlip, nil
	case "became_incorrect":
		return BecameIncorrect, nil
	default:
		return 0, fmt.Errorf("%w: unknown success criterion %q", errdefs.ErrInvalidConfiguration, name)
	}
}

func (c Criterion) success(label, clean, adv int32) bool {
	if c == BecameIncorrect {
		return clean == label && adv != label
	}
	return clean != adv
}

// Options configures SuccessRate.
type Options struct {
	BatchSize int
	Criterion Criterion
	// Record keeps up to this many successful examples in the result.
	Record int
}

// Example is a successfully attacked input.
type Example struct {
	Shape       tensor.Shape // per-sample shape
	Clean       []float32
	Adversarial []float32
	Label       int32
	CleanPred   int32
	AdvPred     int32
}

// Result is the outcome of one attack evaluation.
type Result struct {
	Rate      float64 // Successes / Total
	Successes int
	Total     int
	Examples  []Example
}

// Accuracy returns the fraction of samples the model classifies correctly,
// or NaN for an empty dataset.
func Accuracy(b *engine.Backend, model engine.Model, data dataset.Dataset, batchSize int) float64 {
	if batchSize < 1 {
		batchSize = DefaultBatchSize
	}
	correct, total := 0, 0
	for batch := range dataset.Batches(b, data, batchSize, nil) {
		preds := engine.Predict(b, model, batch.X)
		for i, l := range batch.Labels.Data() {
			if preds[i] == l {
				correct++
			}
		}
		total += batch.Len()
	}
	if total == 0 {
		return math.NaN()
	}
	return float64(correct) / float64(total)
}

// SuccessRate attacks every sample of data and returns the fraction of
// successes under opts.Criterion. The denominator is every evaluated input.
func SuccessRate(
	b *engine.Backend,
	model engine.Model,
	loss engine.LossFunc,
	data dataset.Dataset,
	atk attack.Attack,
	set hyper.Set,
	opts Options,
) (Result, error) {
	if data.Len() == 0 {
		return Result{}, fmt.Errorf("%w: nothing to attack", errdefs.ErrDataExhausted)
	}
	if err := attack.Validate(atk, set); err != nil {
		return Result{}, fmt.Errorf("%s %s: %w", atk.Name(), set, err)
	}
	batchSize := opts.BatchSize
	if batchSize < 1 {
		batchSize = DefaultBatchSize
	}

	var res Result
	stride := data.SampleShape().NumElements()
	for batch := range dataset.Batches(b, data, batchSize, nil) {
		clean := engine.Predict(b, model, batch.X)
		adv, err := atk.Generate(model, loss, batch.X, batch.Labels, set)
		if err != nil {
			return Result{}, fmt.Errorf("%s %s: %w", atk.Name(), set, err)
		}
		attacked := engine.Predict(b, model, adv.X)

		labels := batch.Labels.Data()
		for i, l := range labels {
			res.Total++
			if !opts.Criterion.success(l, clean[i], attacked[i]) {
				continue
			}
			res.Successes++
			if len(res.Examples) < opts.Record {
				res.Examples = append(res.Examples, Example{
					Shape:       data.SampleShape(),
					Clean:       append([]float32(nil), batch.X.Data()[i*stride:(i+1)*stride]...),
					Adversarial: append([]float32(nil), adv.X.Data()[i*stride:(i+1)*stride]...),
					Label:       l,
					CleanPred:   clean[i],
					AdvPred:     attacked[i],
				})
			}
		}
	}
	res.Rate = float64(res.Successes) / float64(res.Total)
	return res, nil
}
