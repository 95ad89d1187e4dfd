// Package attack generates adversarial examples against white-box classifiers.
//
// Both attacks differentiate the loss with respect to the input batch while
// holding the model fixed:
//
//	FGSM: x' = clip(x + ε·sign(∇ₓL))
//	PGD:  x'ₜ₊₁ = clip(Π_{‖x'−x‖∞≤ε}(x'ₜ + α·sign(∇ₓL(x'ₜ))))
//
// The returned batch always owns fresh storage; the source batch and the
// model weights are never modified.
package attack

import (
	"fmt"
	"math/rand/v2"
	"sort"

	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/engine"
	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/errdefs"
	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/hyper"
)

// Attack is a white-box perturbation method.
type Attack interface {
	// Name returns the registry name, e.g. "fgsm".
	Name() string
	// RequiredParams lists the set keys Generate needs.
	RequiredParams() []string
	// Generate returns a perturbed copy of x.
	Generate(model engine.Model, loss engine.LossFunc, x *engine.Tensor, labels *engine.Labels, set hyper.Set) (*Batch, error)
}

// Batch is an adversarial copy of an input batch.
type Batch struct {
	X       *engine.Tensor // perturbed inputs, same shape as the source
	Labels  *engine.Labels // labels of the source batch
	Epsilon float64        // L∞ budget the batch was generated under
}

// Range is the valid input interval, e.g. [0, 1] for normalized pixels.
type Range struct {
	Min, Max float32
}

// DefaultRange is the pixel domain of the datasets.
var DefaultRange = Range{Min: 0, Max: 1}

// Clip clamps v into the range.
func (r Range) Clip(v float32) float32 {
	return min(max(v, r.Min), r.Max)
}

// Option configures an attack.
type Option func(*options)

type options struct {
	valid Range
}

// WithRange sets the valid input range. Defaults to DefaultRange.
func WithRange(r Range) Option {
	return func(o *options) { o.valid = r }
}

func buildOptions(opts []Option) options {
	o := options{valid: DefaultRange}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Factory builds an attack. rng seeds any randomness the attack uses.
type Factory func(rng *rand.Rand, opts ...Option) Attack

// Registry maps attack names to factories.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// DefaultRegistry returns a registry holding "fgsm" and "pgd".
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(NameFGSM, func(_ *rand.Rand, opts ...Option) Attack { return NewFGSM(opts...) })
	r.Register(NamePGD, func(rng *rand.Rand, opts ...Option) Attack { return NewPGD(rng, opts...) })
	return r
}

// Register adds or replaces a factory.
func (r *Registry) Register(name string, f Factory) {
	r.factories[name] = f
}

// New builds the named attack.
func (r *Registry) New(name string, rng *rand.Rand, opts ...Option) (Attack, error) {
	f, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown attack %q (known: %v)", errdefs.ErrInvalidConfiguration, name, r.Names())
	}
	return f(rng, opts...), nil
}

// Names returns registered names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate parses set with the attack's typed record without generating.
func Validate(a Attack, set hyper.Set) error {
	switch a.Name() {
	case NameFGSM:
		_, err := hyper.ParseFGSM(set)
		return err
	case NamePGD:
		_, err := hyper.ParsePGD(set)
		return err
	}
	for _, key := range a.RequiredParams() {
		if !set.Has(key) {
			return errdefs.InvalidParam(key, nil, "missing")
		}
	}
	return nil
}

// signStep returns x + step·sign(g), clipped to r, in fresh storage.
func signStep(x, g []float32, step float32, r Range) []float32 {
	out := make([]float32, len(x))
	for i, v := range x {
		switch {
		case g[i] > 0:
			v += step
		case g[i] < 0:
			v -= step
		}
		out[i] = r.Clip(v)
	}
	return out
}

// Project clamps adv in place onto the L∞ ball of radius eps around orig,
// then into r.
func Project(adv, orig []float32, eps float32, r Range) {
	for i, o := range orig {
		adv[i] = r.Clip(min(max(adv[i], o-eps), o+eps))
	}
}

// MaxPerturbation returns ‖a − b‖∞.
func MaxPerturbation(a, b *engine.Tensor) float32 {
	var m float32
	bd := b.Data()
	for i, v := range a.Data() {
		d := v - bd[i]
		if d < 0 {
			d = -d
		}
		m = max(m, d)
	}
	return m
}
