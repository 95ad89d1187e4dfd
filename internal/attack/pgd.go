package attack

import (
	"fmt"
	"math/rand/v2"

	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/engine"
	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/hyper"
)

// NamePGD is the registry name of PGD.
const NamePGD = "pgd"

// PGD is the projected gradient descent attack with an L∞ budget.
//
// It runs exactly num_steps iterations with no early exit. With
// random_start the initial point is drawn uniformly from the ε-ball using
// the attack's own RNG, so a fixed seed reproduces the same batch.
type PGD struct {
	rng  *rand.Rand
	opts options
}

// NewPGD creates a PGD attack. rng may be nil when random starts are not used.
func NewPGD(rng *rand.Rand, opts ...Option) *PGD {
	return &PGD{rng: rng, opts: buildOptions(opts)}
}

// Name implements Attack.
func (*PGD) Name() string { return NamePGD }

// RequiredParams implements Attack.
func (*PGD) RequiredParams() []string {
	return []string{hyper.KeyEpsilon, hyper.KeyStepSize, hyper.KeyNumSteps}
}

// Generate implements Attack.
func (a *PGD) Generate(model engine.Model, loss engine.LossFunc, x *engine.Tensor, labels *engine.Labels, set hyper.Set) (*Batch, error) {
	p, err := hyper.ParsePGD(set)
	if err != nil {
		return nil, fmt.Errorf("pgd: %w", err)
	}
	if p.RandomStart && a.rng == nil {
		return nil, fmt.Errorf("pgd: random_start requires a seeded attack")
	}

	b := x.Backend()
	orig := x.Data()
	eps := float32(p.Epsilon)
	step := float32(p.StepSize)
	valid := a.opts.valid

	cur := make([]float32, len(orig))
	copy(cur, orig)
	if p.RandomStart {
		for i := range cur {
			cur[i] += (a.rng.Float32()*2 - 1) * eps
		}
		Project(cur, orig, eps, valid)
	}

	for range p.NumSteps {
		xt, err := engine.FromSlice(b, cur, x.Shape())
		if err != nil {
			return nil, fmt.Errorf("pgd: %w", err)
		}
		grad, _, err := engine.InputGradient(b, model, loss, xt, labels)
		if err != nil {
			return nil, fmt.Errorf("pgd: %w", err)
		}
		cur = signStep(cur, grad.Data(), step, valid)
		Project(cur, orig, eps, valid)
	}

	adv, err := engine.FromSlice(b, cur, x.Shape())
	if err != nil {
		return nil, fmt.Errorf("pgd: %w", err)
	}
	return &Batch{X: adv, Labels: labels, Epsilon: p.Epsilon}, nil
}
