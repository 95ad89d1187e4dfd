package experiment

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/config"
	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/dataset"
)

// Prepare creates the output folders of a run. The plots folder is emptied
// so it only ever holds the current run's galleries.
func Prepare(paths config.Paths) error {
	for _, dir := range []string{paths.Results, paths.Checkpoints} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	if paths.Plots != "" {
		if err := os.RemoveAll(paths.Plots); err != nil {
			return fmt.Errorf("failed to reset plots folder: %w", err)
		}
		if err := os.MkdirAll(paths.Plots, 0o750); err != nil {
			return fmt.Errorf("failed to create %s: %w", paths.Plots, err)
		}
	}
	if paths.Ledger != "" {
		if err := os.MkdirAll(filepath.Dir(paths.Ledger), 0o750); err != nil {
			return fmt.Errorf("failed to create ledger folder: %w", err)
		}
	}
	return nil
}

// LoadData builds the training and test sets of cfg.
//
// Synthetic data is generated once with room for both sets, so the test
// samples share the training classes' prototypes.
func LoadData(cfg config.Dataset) (Data, error) {
	switch cfg.Source {
	case config.SourceFile:
		tr, err := dataset.LoadTensorFile(cfg.TrainFile)
		if err != nil {
			return Data{}, fmt.Errorf("train file: %w", err)
		}
		te, err := dataset.LoadTensorFile(cfg.TestFile)
		if err != nil {
			return Data{}, fmt.Errorf("test file: %w", err)
		}
		if !tr.SampleShape().Equal(te.SampleShape()) {
			return Data{}, fmt.Errorf("train samples %v and test samples %v differ in shape", tr.SampleShape(), te.SampleShape())
		}
		return Data{Train: tr, Test: te}, nil
	default:
		syn := cfg.Synthetic
		syn.Samples += cfg.TestSamples
		all, err := dataset.NewSynthetic(syn)
		if err != nil {
			return Data{}, err
		}
		n := cfg.Synthetic.Samples
		trainIdx := make([]int, n)
		for i := range trainIdx {
			trainIdx[i] = i
		}
		testIdx := make([]int, cfg.TestSamples)
		for i := range testIdx {
			testIdx[i] = n + i
		}
		tr, err := dataset.NewSubset(all, trainIdx)
		if err != nil {
			return Data{}, err
		}
		te, err := dataset.NewSubset(all, testIdx)
		if err != nil {
			return Data{}, err
		}
		return Data{Train: tr, Test: te}, nil
	}
}
