// Package config loads the experiment configuration file.
//
// Defaults are applied first, then the YAML file overrides them, then the
// result is validated. Validation failures wrap ErrInvalidConfiguration and
// are fatal at startup.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/attack"
	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/checkpoint"
	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/dataset"
	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/errdefs"
	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/evaluate"
	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/hyper"
	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/models"
	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/schedule"
	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/train"
)

// Config is the full experiment configuration.
type Config struct {
	Seed        uint64          `yaml:"seed"`
	Device      string          `yaml:"device"` // "cpu", "webgpu" or "auto"
	Paths       Paths           `yaml:"paths"`
	Dataset     Dataset         `yaml:"dataset"`
	Evaluation  Evaluation      `yaml:"evaluation"`
	Search      Search          `yaml:"search"`
	Stopping    schedule.Config `yaml:"stopping"`
	Spaces      Spaces          `yaml:"hyperparameters"`
	Telemetry   Telemetry       `yaml:"telemetry"`
	Experiments []Experiment    `yaml:"experiments"`
}

// Paths are the output locations of a run.
type Paths struct {
	Results     string `yaml:"results"`
	Checkpoints string `yaml:"checkpoints"`
	Plots       string `yaml:"plots"`
	Ledger      string `yaml:"ledger"`
}

// Dataset sources.
const (
	SourceSynthetic = "synthetic"
	SourceFile      = "file"
)

// Dataset selects the training and test data.
type Dataset struct {
	Source      string                  `yaml:"source"`
	Synthetic   dataset.SyntheticConfig `yaml:"synthetic"`
	TestSamples int                     `yaml:"test_samples"` // synthetic test set size
	TrainFile   string                  `yaml:"train_file"`
	TestFile    string                  `yaml:"test_file"`
	ValFraction float64                 `yaml:"val_fraction"` // share of training data held out for validation
	// SearchLimit caps the training samples attacked during attack search; 0 means all.
	SearchLimit int `yaml:"search_limit"`
}

// Evaluation configures attack evaluation.
type Evaluation struct {
	BatchSize      int        `yaml:"batch_size"`
	Criterion      string     `yaml:"success_criterion"` // label_flip | became_incorrect
	RecordExamples int        `yaml:"record_examples"`
	ValidRange     [2]float32 `yaml:"valid_range"`
}

// Search selects the hyperparameter search strategy.
type Search struct {
	Strategy   string `yaml:"strategy"` // grid | mayfly
	Iterations int    `yaml:"iterations"`
	Population int    `yaml:"population"`
}

// Spaces are the hyperparameter spaces searched per phase.
type Spaces struct {
	Training hyper.Space `yaml:"nets_training"`
	FGSM     hyper.Space `yaml:"fgsm"`
	PGD      hyper.Space `yaml:"pgd"`
}

// ForAttack returns the space of the named attack.
func (s Spaces) ForAttack(name string) (hyper.Space, bool) {
	switch name {
	case attack.NameFGSM:
		return s.FGSM, true
	case attack.NamePGD:
		return s.PGD, true
	}
	return nil, false
}

// Telemetry configures tracing and metrics export. Empty values disable them.
type Telemetry struct {
	ServiceName  string `yaml:"service_name"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	MetricsAddr  string `yaml:"metrics_addr"`
}

// Experiment is one named training + attack + measurement run.
type Experiment struct {
	Name  string      `yaml:"name"`
	Model models.Spec `yaml:"model"`
	// TrainAttack enables adversarial training.
	TrainAttack *TrainAttack `yaml:"train_attack,omitempty"`
	// LoadCheckpoint reuses a saved checkpoint when one is readable.
	LoadCheckpoint bool `yaml:"load_checkpoint"`
	// SaveCheckpoint defaults to true.
	SaveCheckpoint *bool `yaml:"save_checkpoint,omitempty"`
	// Stopping overrides the global stopping criterion.
	Stopping *schedule.Config `yaml:"stopping,omitempty"`
	// Attacks lists the attacks searched and measured; defaults to fgsm and pgd.
	Attacks []string `yaml:"attacks,omitempty"`
	// CapacitySweep > 0 expands the entry into that many capacity networks
	// named <name>_<i>.
	CapacitySweep int `yaml:"capacity_sweep,omitempty"`
}

// TrainAttack configures adversarial training. Parameters come either from
// the attack parameters stored in another experiment's checkpoint or from an
// inline single-valued block.
type TrainAttack struct {
	Attack     string      `yaml:"attack"`
	ParamsFrom string      `yaml:"params_from,omitempty"`
	Params     hyper.Space `yaml:"params,omitempty"`
	Mode       string      `yaml:"mode,omitempty"` // replace | augment
}

// ShouldSave reports whether the experiment writes a checkpoint.
func (e Experiment) ShouldSave() bool {
	return e.SaveCheckpoint == nil || *e.SaveCheckpoint
}

// AttackNames returns the configured attacks or the default pair.
func (e Experiment) AttackNames() []string {
	if len(e.Attacks) == 0 {
		return []string{attack.NameFGSM, attack.NamePGD}
	}
	return e.Attacks
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Seed:   1,
		Device: "cpu",
		Paths: Paths{
			Results:     "results",
			Checkpoints: filepath.Join("results", "checkpoints"),
			Plots:       filepath.Join("results", "plots"),
			Ledger:      filepath.Join("results", "ledger.db"),
		},
		Dataset: Dataset{
			Source:      SourceSynthetic,
			Synthetic:   dataset.DefaultSynthetic(),
			TestSamples: 512,
			ValFraction: 0.2,
		},
		Evaluation: Evaluation{
			BatchSize:      evaluate.DefaultBatchSize,
			Criterion:      evaluate.LabelFlip.String(),
			RecordExamples: 16,
			ValidRange:     [2]float32{attack.DefaultRange.Min, attack.DefaultRange.Max},
		},
		Search:   Search{Strategy: "grid", Iterations: 10, Population: 8},
		Stopping: schedule.Config{Kind: schedule.KindConstant, Epochs: 10},
		Spaces: Spaces{
			Training: hyper.Space{
				{Name: hyper.KeyOptimizer, Values: []any{"adam"}},
				{Name: hyper.KeyLR, Values: []any{0.001, 0.0005}},
				{Name: hyper.KeyBatchSize, Values: []any{64}},
			},
			FGSM: hyper.Space{
				{Name: hyper.KeyEpsilon, Values: []any{0.01, 0.03, 0.06, 0.1}},
			},
			PGD: hyper.Space{
				{Name: hyper.KeyEpsilon, Values: []any{0.03, 0.06}},
				{Name: hyper.KeyStepSize, Values: []any{0.01}},
				{Name: hyper.KeyNumSteps, Values: []any{10}},
				{Name: hyper.KeyRandomStart, Values: []any{true}},
			},
		},
		Telemetry: Telemetry{ServiceName: "advrobust"},
		Experiments: []Experiment{
			{Name: "natural", Model: models.Spec{Kind: models.KindConv, Conv: models.DefaultConvConfig()}},
		},
	}
}

// Load reads path over the defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: config file not found: %s", errdefs.ErrInvalidConfiguration, path)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", errdefs.ErrInvalidConfiguration, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every section.
func (c *Config) Validate() error {
	switch c.Device {
	case "cpu", "webgpu", "auto":
	default:
		return invalid("device must be cpu, webgpu or auto, got %q", c.Device)
	}
	if c.Paths.Checkpoints == "" || c.Paths.Plots == "" {
		return invalid("paths.checkpoints and paths.plots are required")
	}
	if err := c.Dataset.validate(); err != nil {
		return err
	}
	if c.Evaluation.BatchSize < 1 {
		return invalid("evaluation.batch_size must be >= 1")
	}
	if _, err := evaluate.ParseCriterion(c.Evaluation.Criterion); err != nil {
		return err
	}
	if c.Evaluation.RecordExamples < 0 {
		return invalid("evaluation.record_examples must be >= 0")
	}
	if r := c.Evaluation.ValidRange; !(r[0] < r[1]) {
		return invalid("evaluation.valid_range must have min < max, got %v", r)
	}
	switch c.Search.Strategy {
	case "grid", "":
	case "mayfly":
		if c.Search.Iterations < 1 || c.Search.Population < 1 {
			return invalid("mayfly search needs iterations and population >= 1")
		}
	default:
		return invalid("unknown search strategy %q", c.Search.Strategy)
	}
	if err := c.Stopping.Validate(); err != nil {
		return fmt.Errorf("stopping: %w", err)
	}
	for name, space := range map[string]hyper.Space{
		"nets_training": c.Spaces.Training, "fgsm": c.Spaces.FGSM, "pgd": c.Spaces.PGD,
	} {
		if err := space.Validate(); err != nil {
			return fmt.Errorf("hyperparameters.%s: %w", name, err)
		}
	}

	if len(c.Experiments) == 0 {
		return invalid("no experiments configured")
	}
	seen := map[string]bool{}
	for _, e := range c.Expand() {
		if seen[e.Name] {
			return invalid("duplicate experiment name %q", e.Name)
		}
		seen[e.Name] = true
		if err := e.validate(); err != nil {
			return fmt.Errorf("experiment %q: %w", e.Name, err)
		}
	}
	return nil
}

func (d Dataset) validate() error {
	switch d.Source {
	case SourceSynthetic:
		if err := d.Synthetic.Validate(); err != nil {
			return err
		}
		if d.TestSamples < 1 {
			return invalid("dataset.test_samples must be >= 1")
		}
	case SourceFile:
		if d.TrainFile == "" || d.TestFile == "" {
			return invalid("dataset.train_file and dataset.test_file are required for file datasets")
		}
	default:
		return invalid("unknown dataset source %q", d.Source)
	}
	if !(d.ValFraction > 0 && d.ValFraction < 1) {
		return invalid("dataset.val_fraction must be in (0, 1), got %v", d.ValFraction)
	}
	if d.SearchLimit < 0 {
		return invalid("dataset.search_limit must be >= 0")
	}
	return nil
}

func (e Experiment) validate() error {
	if err := checkpoint.ValidateName(e.Name); err != nil {
		return err
	}
	if e.Model.Kind == models.KindConv || e.Model.Kind == "" {
		if err := e.Model.Conv.Validate(); err != nil {
			return err
		}
	}
	for _, name := range e.AttackNames() {
		if name != attack.NameFGSM && name != attack.NamePGD {
			return invalid("unknown attack %q", name)
		}
	}
	if e.Stopping != nil {
		if err := e.Stopping.Validate(); err != nil {
			return fmt.Errorf("stopping: %w", err)
		}
	}
	if ta := e.TrainAttack; ta != nil {
		if ta.Attack != attack.NameFGSM && ta.Attack != attack.NamePGD {
			return invalid("unknown train attack %q", ta.Attack)
		}
		if _, err := train.ParseMode(ta.Mode); err != nil {
			return err
		}
		if (ta.ParamsFrom == "") == (len(ta.Params) == 0) {
			return invalid("train_attack needs exactly one of params_from and params")
		}
		if len(ta.Params) > 0 {
			if err := ta.Params.Validate(); err != nil {
				return err
			}
		}
	}
	return nil
}

// Expand returns the experiments with capacity sweeps unrolled and
// unconfigured conv models set to the default architecture.
func (c *Config) Expand() []Experiment {
	var out []Experiment
	for _, e := range c.Experiments {
		if (e.Model.Kind == models.KindConv || e.Model.Kind == "") && len(e.Model.Conv.Channels) == 0 {
			e.Model.Conv = models.DefaultConvConfig()
		}
		if e.CapacitySweep <= 0 {
			out = append(out, e)
			continue
		}
		for i := range e.CapacitySweep {
			x := e
			x.Name = fmt.Sprintf("%s_%d", e.Name, i)
			x.Model = models.Spec{Kind: models.KindCapacity, CapacityIndex: i}
			x.CapacitySweep = 0
			out = append(out, x)
		}
	}
	return out
}

// StoppingFor returns the criterion config an experiment uses.
func (c *Config) StoppingFor(e Experiment) schedule.Config {
	if e.Stopping != nil {
		return *e.Stopping
	}
	return c.Stopping
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{errdefs.ErrInvalidConfiguration}, args...)...)
}
