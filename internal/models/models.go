// Package models builds the classifier architectures used by experiments.
package models

import (
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/engine"
	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/errdefs"
	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/nn"
)

// Activation names.
const (
	ActivationReLU      = "relu"
	ActivationLeakyReLU = "leaky_relu"
)

// Model kinds accepted by Build.
const (
	KindConv = "conv"
	KindMLP  = "mlp"
)

// ConvConfig describes a convolutional classifier.
//
// Each consecutive pair of Channels adds a 3×3 convolution (same padding),
// the activation and a 2×2 max-pool. A positive CNNOutChannels appends a
// 1×1 convolution to that many channels. FCLayers linear layers then shrink
// the flattened features linearly down to OutSize.
type ConvConfig struct {
	Channels       []int  `yaml:"channels" json:"channels"` // first element is the input channel count
	Activation     string `yaml:"activation" json:"activation"`
	OutSize        int    `yaml:"out_size" json:"out_size"`
	InWH           int    `yaml:"in_wh" json:"in_wh"`
	FCLayers       int    `yaml:"fc_layers" json:"fc_layers"`
	CNNOutChannels int    `yaml:"cnn_out_channels" json:"cnn_out_channels"`
}

// DefaultConvConfig is the base traffic-sign network.
func DefaultConvConfig() ConvConfig {
	return ConvConfig{
		Channels:       []int{3, 20, 40},
		Activation:     ActivationLeakyReLU,
		OutSize:        43,
		InWH:           32,
		FCLayers:       2,
		CNNOutChannels: 30,
	}
}

// CapacitySweep returns the i-th network of the increasing-capacity series.
func CapacitySweep(i int) ConvConfig {
	cfg := DefaultConvConfig()
	cfg.Channels = []int{3, 1 << (i + 1), 1 << (i + 2)}
	cfg.FCLayers = 1 + i/2
	cfg.CNNOutChannels = (i + 1) * 5
	return cfg
}

// Validate checks the config and that the image survives every pooling stage.
func (c ConvConfig) Validate() error {
	if len(c.Channels) < 2 {
		return fmt.Errorf("%w: conv net needs at least two channel entries, got %v", errdefs.ErrInvalidConfiguration, c.Channels)
	}
	for _, ch := range c.Channels {
		if ch < 1 {
			return fmt.Errorf("%w: conv channels must be positive, got %v", errdefs.ErrInvalidConfiguration, c.Channels)
		}
	}
	if _, err := activation(c.Activation); err != nil {
		return err
	}
	switch {
	case c.OutSize < 1:
		return fmt.Errorf("%w: out_size must be >= 1", errdefs.ErrInvalidConfiguration)
	case c.FCLayers < 1:
		return fmt.Errorf("%w: fc_layers must be >= 1", errdefs.ErrInvalidConfiguration)
	case c.CNNOutChannels < 0:
		return fmt.Errorf("%w: cnn_out_channels must be >= 0", errdefs.ErrInvalidConfiguration)
	}
	if c.featureWH() < 1 {
		return fmt.Errorf("%w: input %dx%d is too small for %d pooling stages",
			errdefs.ErrInvalidConfiguration, c.InWH, c.InWH, len(c.Channels)-1)
	}
	return nil
}

func (c ConvConfig) featureWH() int {
	wh := c.InWH
	for range len(c.Channels) - 1 {
		wh /= 2
	}
	return wh
}

// FlatFeatures returns the width of the flattened convolutional output.
func (c ConvConfig) FlatFeatures() int {
	ch := c.Channels[len(c.Channels)-1]
	if c.CNNOutChannels > 0 {
		ch = c.CNNOutChannels
	}
	wh := c.featureWH()
	return ch * wh * wh
}

// fcSizes interpolates layer widths from in to out over n layers.
func fcSizes(in, out, n int) []int {
	sizes := make([]int, n+1)
	for j := range sizes {
		sizes[j] = in + (out-in)*j/n
	}
	return sizes
}

// ConvNet builds the network described by cfg.
func ConvNet(cfg ConvConfig, rng *rand.Rand, b *engine.Backend) (*nn.Sequential[*engine.Backend], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	act, _ := activation(cfg.Activation)

	var layers []nn.Module[*engine.Backend]
	for i := range len(cfg.Channels) - 1 {
		layers = append(layers,
			nn.NewConv2D(cfg.Channels[i], cfg.Channels[i+1], 3, 1, 1, rng, b),
			act(),
			nn.NewMaxPool2D(2, 2, b),
		)
	}
	if cfg.CNNOutChannels > 0 {
		layers = append(layers,
			nn.NewConv2D(cfg.Channels[len(cfg.Channels)-1], cfg.CNNOutChannels, 1, 1, 0, rng, b),
			act(),
		)
	}
	layers = append(layers, nn.NewFlatten[*engine.Backend]())

	sizes := fcSizes(cfg.FlatFeatures(), cfg.OutSize, cfg.FCLayers)
	for j := range cfg.FCLayers {
		layers = append(layers, nn.NewLinear(sizes[j], sizes[j+1], rng, b))
		if j < cfg.FCLayers-1 {
			layers = append(layers, act())
		}
	}
	return nn.NewSequential(layers...), nil
}

// MLPConfig describes a fully connected classifier over flattened images.
type MLPConfig struct {
	In         int    `yaml:"in" json:"in"`
	Hidden     []int  `yaml:"hidden" json:"hidden"`
	OutSize    int    `yaml:"out_size" json:"out_size"`
	Activation string `yaml:"activation" json:"activation"`
}

// MLP builds a multilayer perceptron.
func MLP(cfg MLPConfig, rng *rand.Rand, b *engine.Backend) (*nn.Sequential[*engine.Backend], error) {
	if cfg.In < 1 || cfg.OutSize < 1 {
		return nil, fmt.Errorf("%w: mlp sizes in=%d out=%d", errdefs.ErrInvalidConfiguration, cfg.In, cfg.OutSize)
	}
	act, err := activation(cfg.Activation)
	if err != nil {
		return nil, err
	}
	layers := []nn.Module[*engine.Backend]{nn.NewFlatten[*engine.Backend]()}
	in := cfg.In
	for _, h := range cfg.Hidden {
		if h < 1 {
			return nil, fmt.Errorf("%w: mlp hidden width %d", errdefs.ErrInvalidConfiguration, h)
		}
		layers = append(layers, nn.NewLinear(in, h, rng, b), act())
		in = h
	}
	layers = append(layers, nn.NewLinear(in, cfg.OutSize, rng, b))
	return nn.NewSequential(layers...), nil
}

// Spec selects and configures an architecture.
type Spec struct {
	Kind string     `yaml:"kind" json:"kind"`
	Conv ConvConfig `yaml:"conv,omitempty" json:"conv,omitempty"`
	MLP  MLPConfig  `yaml:"mlp,omitempty" json:"mlp,omitempty"`
	// CapacityIndex selects CapacitySweep(i) when Kind is "capacity".
	CapacityIndex int `yaml:"capacity_index,omitempty" json:"capacity_index,omitempty"`
}

// KindCapacity selects a network of the capacity sweep.
const KindCapacity = "capacity"

// Build constructs the model a spec describes.
func Build(spec Spec, rng *rand.Rand, b *engine.Backend) (engine.Model, error) {
	var (
		seq *nn.Sequential[*engine.Backend]
		err error
	)
	switch spec.Kind {
	case KindConv, "":
		seq, err = ConvNet(spec.Conv, rng, b)
	case KindCapacity:
		seq, err = ConvNet(CapacitySweep(spec.CapacityIndex), rng, b)
	case KindMLP:
		seq, err = MLP(spec.MLP, rng, b)
	default:
		err = fmt.Errorf("%w: unknown model kind %q", errdefs.ErrInvalidConfiguration, spec.Kind)
	}
	if err != nil {
		return nil, err
	}
	return seq, nil
}

// Describe renders a one-line architecture summary for logs.
func Describe(m engine.Model) string {
	seq, ok := m.(*nn.Sequential[*engine.Backend])
	if !ok {
		return fmt.Sprintf("%T(params=%d)", m, nn.NumParameters(m))
	}
	parts := make([]string, 0, seq.Len())
	for i := range seq.Len() {
		if s, ok := seq.Module(i).(fmt.Stringer); ok {
			parts = append(parts, s.String())
		}
	}
	return fmt.Sprintf("%s params=%d", strings.Join(parts, " → "), nn.NumParameters(m))
}

func activation(name string) (func() nn.Module[*engine.Backend], error) {
	switch name {
	case ActivationReLU, "":
		return func() nn.Module[*engine.Backend] { return nn.NewReLU[*engine.Backend]() }, nil
	case ActivationLeakyReLU:
		return func() nn.Module[*engine.Backend] { return nn.NewLeakyReLU[*engine.Backend](nn.DefaultLeakySlope) }, nil
	default:
		return nil, fmt.Errorf("%w: unknown activation %q", errdefs.ErrInvalidConfiguration, name)
	}
}
