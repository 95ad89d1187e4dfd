package schedule

import (
	"fmt"

	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/errdefs"
)

// Criterion kinds accepted by FromConfig.
const (
	KindConstant = "constant"
	KindPatience = "patience"
)

// Config describes a criterion in configuration files.
type Config struct {
	Kind      string  `yaml:"kind" json:"kind"`
	Epochs    int     `yaml:"epochs,omitempty" json:"epochs,omitempty"`
	Patience  int     `yaml:"patience,omitempty" json:"patience,omitempty"`
	MinDelta  float64 `yaml:"min_delta,omitempty" json:"min_delta,omitempty"`
	MaxEpochs int     `yaml:"max_epochs,omitempty" json:"max_epochs,omitempty"`
}

// FromConfig builds the criterion cfg describes.
func FromConfig(cfg Config) (Criterion, error) {
	switch cfg.Kind {
	case KindConstant, "":
		return NewConstant(cfg.Epochs)
	case KindPatience:
		return NewPatience(cfg.Patience, cfg.MinDelta, cfg.MaxEpochs)
	default:
		return nil, fmt.Errorf("%w: unknown stopping kind %q", errdefs.ErrInvalidConfiguration, cfg.Kind)
	}
}

// Validate checks cfg by building it.
func (cfg Config) Validate() error {
	_, err := FromConfig(cfg)
	return err
}
