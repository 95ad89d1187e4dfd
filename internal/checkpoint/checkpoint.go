// Package checkpoint persists trained experiments so later runs can skip
// training and searching.
//
// A checkpoint is one .born file per experiment name holding the weights,
// the chosen training and attack hyperparameters and the resistance report.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/engine"
	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/errdefs"
	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/evaluate"
	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/hyper"
	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/nn"
	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/serialization"
	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/tensor"
)

// Extension is the checkpoint file extension.
const Extension = ".born"

// Checkpoint is the persisted outcome of one experiment.
type Checkpoint struct {
	Name         string
	RunID        string
	CreatedAt    time.Time
	ModelType    string
	Weights      map[string]*tensor.RawTensor
	TrainParams  hyper.Set
	AttackParams map[string]hyper.Set // keyed by attack name
	Report       evaluate.Report
	Epochs       int
	Score        float64 // validation score of the chosen training set
}

// Info is the listing view of a checkpoint.
type Info struct {
	Name      string
	RunID     string
	CreatedAt time.Time
	ModelType string
	Report    evaluate.Report
	Path      string
	Size      int64
}

// Apply copies the checkpoint weights into model. A model whose
// parameters do not match the stored ones yields ErrCheckpointCorrupt.
func (c *Checkpoint) Apply(model engine.Model) error {
	if err := nn.Restore(model, c.Weights); err != nil {
		return fmt.Errorf("%w: %s: %v", errdefs.ErrCheckpointCorrupt, c.Name, err)
	}
	return nil
}

// ValidateName rejects names that cannot be used as a file name.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: empty checkpoint name", errdefs.ErrInvalidConfiguration)
	}
	if strings.ContainsAny(name, `/\`+"\x00") || strings.Contains(name, "..") {
		return fmt.Errorf("%w: checkpoint name %q must not contain path elements", errdefs.ErrInvalidConfiguration, name)
	}
	return nil
}

func (c *Checkpoint) header() (serialization.Header, error) {
	train, err := json.Marshal(c.TrainParams)
	if err != nil {
		return serialization.Header{}, fmt.Errorf("train params: %w", err)
	}
	attacks, err := json.Marshal(c.AttackParams)
	if err != nil {
		return serialization.Header{}, fmt.Errorf("attack params: %w", err)
	}
	report, err := json.Marshal(c.Report)
	if err != nil {
		return serialization.Header{}, fmt.Errorf("report: %w", err)
	}
	return serialization.Header{
		ModelType: c.ModelType,
		CreatedAt: c.CreatedAt,
		Metadata:  map[string]string{"kind": "checkpoint"},
		CheckpointMeta: &serialization.CheckpointMeta{
			Name:         c.Name,
			RunID:        c.RunID,
			Epochs:       c.Epochs,
			Score:        c.Score,
			TrainParams:  train,
			AttackParams: attacks,
			Report:       report,
		},
	}, nil
}

func fromHeader(h serialization.Header, weights map[string]*tensor.RawTensor) (*Checkpoint, error) {
	meta := h.CheckpointMeta
	if meta == nil {
		return nil, fmt.Errorf("no checkpoint record")
	}
	c := &Checkpoint{
		Name:      meta.Name,
		RunID:     meta.RunID,
		CreatedAt: h.CreatedAt,
		ModelType: h.ModelType,
		Weights:   weights,
		Epochs:    meta.Epochs,
		Score:     meta.Score,
	}
	if err := json.Unmarshal(meta.TrainParams, &c.TrainParams); err != nil {
		return nil, fmt.Errorf("train params: %w", err)
	}
	if err := json.Unmarshal(meta.AttackParams, &c.AttackParams); err != nil {
		return nil, fmt.Errorf("attack params: %w", err)
	}
	if err := json.Unmarshal(meta.Report, &c.Report); err != nil {
		return nil, fmt.Errorf("report: %w", err)
	}
	return c, nil
}
