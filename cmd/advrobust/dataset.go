package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/config"
	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/dataset"
	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/experiment"
)

func newDatasetCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dataset",
		Short: "Prepare datasets",
	}
	cmd.AddCommand(newDatasetSynthCmd(root))
	return cmd
}

func newDatasetSynthCmd(root *rootOptions) *cobra.Command {
	var (
		out         string
		testOut     string
		samples     int
		testSamples int
		seed        uint64
	)
	cmd := &cobra.Command{
		Use:   "synth",
		Short: "Write the synthetic dataset to tensor files",
		Long: `Generate the configured synthetic traffic-sign dataset and write the
training and test parts as tensor files, ready for dataset.source: file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			dc := cfg.Dataset
			dc.Source = config.SourceSynthetic
			flags := cmd.Flags()
			if flags.Changed("samples") {
				dc.Synthetic.Samples = samples
			}
			if flags.Changed("test-samples") {
				dc.TestSamples = testSamples
			}
			if flags.Changed("seed") {
				dc.Synthetic.Seed = seed
			}

			data, err := experiment.LoadData(dc)
			if err != nil {
				return err
			}
			if err := dataset.SaveTensorFile(out, data.Train); err != nil {
				return fmt.Errorf("write training set: %w", err)
			}
			if err := dataset.SaveTensorFile(testOut, data.Test); err != nil {
				return fmt.Errorf("write test set: %w", err)
			}
			slog.Info("dataset written", "train", out, "train_samples", data.Train.Len(),
				"test", testOut, "test_samples", data.Test.Len())
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d training and %d test samples.\n", data.Train.Len(), data.Test.Len())
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&out, "out", "o", "data/train.born", "Training set output file")
	flags.StringVar(&testOut, "test-out", "data/test.born", "Test set output file")
	flags.IntVar(&samples, "samples", 0, "Override the number of training samples")
	flags.IntVar(&testSamples, "test-samples", 0, "Override the number of test samples")
	flags.Uint64Var(&seed, "seed", 0, "Override the generator seed")
	return cmd
}
