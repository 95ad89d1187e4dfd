package hyper_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/errdefs"
	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/hyper"
)

func TestParseTraining_Defaults(t *testing.T) {
	p, err := hyper.ParseTraining(hyper.MustSet("lr", 0.01))
	require.NoError(t, err)
	assert.Equal(t, hyper.TrainingParams{Optimizer: "adam", LR: 0.01, BatchSize: 64}, p)
}

func TestParseTraining_Full(t *testing.T) {
	p, err := hyper.ParseTraining(hyper.MustSet("optimizer", "sgd", "lr", 0.1, "momentum", 0.9, "batch_size", 16))
	require.NoError(t, err)
	assert.Equal(t, hyper.TrainingParams{Optimizer: "sgd", LR: 0.1, Momentum: 0.9, BatchSize: 16}, p)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		parse func() error
		param string
	}{
		{"lr zero", func() error { _, err := hyper.ParseTraining(hyper.MustSet("lr", 0)); return err }, "lr"},
		{"lr missing", func() error { _, err := hyper.ParseTraining(hyper.MustSet("momentum", 0.5)); return err }, "lr"},
		{"bad optimizer", func() error {
			_, err := hyper.ParseTraining(hyper.MustSet("lr", 0.1, "optimizer", "rmsprop"))
			return err
		}, "optimizer"},
		{"momentum one", func() error { _, err := hyper.ParseTraining(hyper.MustSet("lr", 0.1, "momentum", 1)); return err }, "momentum"},
		{"batch zero", func() error { _, err := hyper.ParseTraining(hyper.MustSet("lr", 0.1, "batch_size", 0)); return err }, "batch_size"},
		{"fgsm eps zero", func() error { _, err := hyper.ParseFGSM(hyper.MustSet("epsilon", 0)); return err }, "epsilon"},
		{"fgsm eps negative", func() error { _, err := hyper.ParseFGSM(hyper.MustSet("epsilon", -0.1)); return err }, "epsilon"},
		{"pgd step zero", func() error {
			_, err := hyper.ParsePGD(hyper.MustSet("epsilon", 0.1, "step_size", 0, "num_steps", 3))
			return err
		}, "step_size"},
		{"pgd no steps", func() error {
			_, err := hyper.ParsePGD(hyper.MustSet("epsilon", 0.1, "step_size", 0.01, "num_steps", 0))
			return err
		}, "num_steps"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.parse()
			require.Error(t, err)
			assert.True(t, errors.Is(err, errdefs.ErrInvalidHyperparameter))
			var perr *errdefs.ParamError
			require.True(t, errors.As(err, &perr))
			assert.Equal(t, tt.param, perr.Name)
		})
	}
}

func TestParsePGD(t *testing.T) {
	p, err := hyper.ParsePGD(hyper.MustSet("epsilon", 0.03, "step_size", 0.01, "num_steps", 10, "random_start", true))
	require.NoError(t, err)
	assert.Equal(t, hyper.PGDParams{Epsilon: 0.03, StepSize: 0.01, NumSteps: 10, RandomStart: true}, p)
}
