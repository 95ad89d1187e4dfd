package hyper

import (
	"math"

	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/errdefs"
)

// Parameter names understood by the training loop and the attacks.
const (
	KeyOptimizer   = "optimizer"
	KeyLR          = "lr"
	KeyMomentum    = "momentum"
	KeyBatchSize   = "batch_size"
	KeyEpsilon     = "epsilon"
	KeyStepSize    = "step_size"
	KeyNumSteps    = "num_steps"
	KeyRandomStart = "random_start"
)

// Training defaults for keys a set may omit.
const (
	DefaultOptimizer = "adam"
	DefaultBatchSize = 64
)

// TrainingParams is the validated form of a training set.
type TrainingParams struct {
	Optimizer string
	LR        float64
	Momentum  float64
	BatchSize int
}

// ParseTraining validates a training set. lr is required; optimizer,
// momentum and batch_size fall back to defaults.
func ParseTraining(s Set) (TrainingParams, error) {
	p := TrainingParams{Optimizer: DefaultOptimizer, BatchSize: DefaultBatchSize}

	var err error
	if p.LR, err = s.Float(KeyLR); err != nil {
		return TrainingParams{}, err
	}
	if s.Has(KeyOptimizer) {
		if p.Optimizer, err = s.Text(KeyOptimizer); err != nil {
			return TrainingParams{}, err
		}
	}
	if s.Has(KeyMomentum) {
		if p.Momentum, err = s.Float(KeyMomentum); err != nil {
			return TrainingParams{}, err
		}
	}
	if s.Has(KeyBatchSize) {
		if p.BatchSize, err = s.Int(KeyBatchSize); err != nil {
			return TrainingParams{}, err
		}
	}
	return p, p.Validate()
}

// Validate checks every field's domain.
func (p TrainingParams) Validate() error {
	switch {
	case p.Optimizer != "sgd" && p.Optimizer != "adam":
		return errdefs.InvalidParam(KeyOptimizer, p.Optimizer, `must be "sgd" or "adam"`)
	case !(p.LR > 0) || math.IsInf(p.LR, 0):
		return errdefs.InvalidParam(KeyLR, p.LR, "must be > 0")
	case p.Momentum < 0 || p.Momentum >= 1:
		return errdefs.InvalidParam(KeyMomentum, p.Momentum, "must be in [0, 1)")
	case p.BatchSize < 1:
		return errdefs.InvalidParam(KeyBatchSize, p.BatchSize, "must be >= 1")
	}
	return nil
}

// FGSMParams is the validated form of an FGSM set.
type FGSMParams struct {
	Epsilon float64
}

// ParseFGSM validates an FGSM set.
func ParseFGSM(s Set) (FGSMParams, error) {
	eps, err := s.Float(KeyEpsilon)
	if err != nil {
		return FGSMParams{}, err
	}
	p := FGSMParams{Epsilon: eps}
	return p, p.Validate()
}

// Validate requires epsilon > 0.
func (p FGSMParams) Validate() error {
	return checkEpsilon(p.Epsilon)
}

// PGDParams is the validated form of a PGD set.
type PGDParams struct {
	Epsilon     float64
	StepSize    float64
	NumSteps    int
	RandomStart bool
}

// ParsePGD validates a PGD set. random_start defaults to false.
func ParsePGD(s Set) (PGDParams, error) {
	var (
		p   PGDParams
		err error
	)
	if p.Epsilon, err = s.Float(KeyEpsilon); err != nil {
		return PGDParams{}, err
	}
	if p.StepSize, err = s.Float(KeyStepSize); err != nil {
		return PGDParams{}, err
	}
	if p.NumSteps, err = s.Int(KeyNumSteps); err != nil {
		return PGDParams{}, err
	}
	if s.Has(KeyRandomStart) {
		if p.RandomStart, err = s.Bool(KeyRandomStart); err != nil {
			return PGDParams{}, err
		}
	}
	return p, p.Validate()
}

// Validate requires epsilon > 0, step_size > 0 and num_steps >= 1.
func (p PGDParams) Validate() error {
	if err := checkEpsilon(p.Epsilon); err != nil {
		return err
	}
	if !(p.StepSize > 0) || math.IsInf(p.StepSize, 0) {
		return errdefs.InvalidParam(KeyStepSize, p.StepSize, "must be > 0")
	}
	if p.NumSteps < 1 {
		return errdefs.InvalidParam(KeyNumSteps, p.NumSteps, "must be >= 1")
	}
	return nil
}

func checkEpsilon(eps float64) error {
	if !(eps > 0) || math.IsInf(eps, 0) {
		return errdefs.InvalidParam(KeyEpsilon, eps, "must be > 0")
	}
	return nil
}
