package errdefs_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/errdefs"
)

func TestParamError(t *testing.T) {
	err := fmt.Errorf("fgsm: %w", errdefs.InvalidParam("epsilon", -0.1, "must be > 0"))

	assert.True(t, errors.Is(err, errdefs.ErrInvalidHyperparameter))
	assert.False(t, errors.Is(err, errdefs.ErrInvalidConfiguration))

	var perr *errdefs.ParamError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "epsilon", perr.Name)
	assert.Equal(t, -0.1, perr.Value)
	assert.Contains(t, err.Error(), "epsilon=-0.1: must be > 0")
}
