package dataset

import (
	"fmt"
	"math/rand/v2"

	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/errdefs"
	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/tensor"
)

// SyntheticConfig describes a generated traffic-sign-like dataset.
type SyntheticConfig struct {
	Samples  int     `yaml:"samples"`
	Classes  int     `yaml:"classes"`
	Channels int     `yaml:"channels"`
	Size     int     `yaml:"size"`  // image height and width
	Noise    float64 `yaml:"noise"` // standard deviation of per-pixel noise
	Seed     uint64  `yaml:"seed"`
}

// DefaultSynthetic matches the shape of the traffic-sign benchmark.
func DefaultSynthetic() SyntheticConfig {
	return SyntheticConfig{Samples: 2048, Classes: 43, Channels: 3, Size: 32, Noise: 0.15, Seed: 1}
}

// Validate checks every field.
func (c SyntheticConfig) Validate() error {
	switch {
	case c.Samples < 1:
		return fmt.Errorf("%w: synthetic samples must be >= 1", errdefs.ErrInvalidConfiguration)
	case c.Classes < 2:
		return fmt.Errorf("%w: synthetic classes must be >= 2", errdefs.ErrInvalidConfiguration)
	case c.Channels < 1 || c.Size < 1:
		return fmt.Errorf("%w: synthetic image %dx%dx%d", errdefs.ErrInvalidConfiguration, c.Channels, c.Size, c.Size)
	case c.Noise < 0:
		return fmt.Errorf("%w: synthetic noise must be >= 0", errdefs.ErrInvalidConfiguration)
	}
	return nil
}

// NewSynthetic generates a dataset: one random prototype image per class,
// and samples drawn as the prototype of class i%Classes plus Gaussian noise,
// clipped to [0, 1]. The same config always yields the same dataset.
func NewSynthetic(cfg SyntheticConfig) (*InMemory, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewPCG(cfg.Seed, 0x5eed))
	shape := tensor.Shape{cfg.Channels, cfg.Size, cfg.Size}
	stride := shape.NumElements()

	prototypes := make([]float32, cfg.Classes*stride)
	for i := range prototypes {
		prototypes[i] = rng.Float32()
	}

	images := make([]float32, cfg.Samples*stride)
	labels := make([]int32, cfg.Samples)
	for s := range labels {
		class := s % cfg.Classes
		labels[s] = int32(class)
		proto := prototypes[class*stride : (class+1)*stride]
		out := images[s*stride : (s+1)*stride]
		for i, p := range proto {
			v := float64(p) + rng.NormFloat64()*cfg.Noise
			out[i] = float32(min(max(v, 0), 1))
		}
	}
	return NewInMemory(images, labels, shape, cfg.Classes)
}
