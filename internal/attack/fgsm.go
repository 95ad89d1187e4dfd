package attack

import (
	"fmt"

	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/engine"
	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/hyper"
)

// NameFGSM is the registry name of FGSM.
const NameFGSM = "fgsm"

// FGSM is the fast gradient sign method. It takes exactly one gradient
// evaluation per call.
type FGSM struct {
	opts options
}

// NewFGSM creates an FGSM attack.
func NewFGSM(opts ...Option) *FGSM {
	return &FGSM{opts: buildOptions(opts)}
}

// Name implements Attack.
func (*FGSM) Name() string { return NameFGSM }

// RequiredParams implements Attack.
func (*FGSM) RequiredParams() []string { return []string{hyper.KeyEpsilon} }

// Generate implements Attack.
func (f *FGSM) Generate(model engine.Model, loss engine.LossFunc, x *engine.Tensor, labels *engine.Labels, set hyper.Set) (*Batch, error) {
	p, err := hyper.ParseFGSM(set)
	if err != nil {
		return nil, fmt.Errorf("fgsm: %w", err)
	}

	b := x.Backend()
	grad, _, err := engine.InputGradient(b, model, loss, x, labels)
	if err != nil {
		return nil, fmt.Errorf("fgsm: %w", err)
	}

	adv, err := engine.FromSlice(b, signStep(x.Data(), grad.Data(), float32(p.Epsilon), f.opts.valid), x.Shape())
	if err != nil {
		return nil, fmt.Errorf("fgsm: %w", err)
	}
	return &Batch{X: adv, Labels: labels, Epsilon: p.Epsilon}, nil
}
