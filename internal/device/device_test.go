package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/errdefs"
	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/tensor"
)

func TestResolve(t *testing.T) {
	for _, name := range []string{"", NameCPU, NameAuto} {
		d, err := Resolve(name)
		require.NoError(t, err, name)
		assert.Equal(t, tensor.CPU, d, name)
	}

	_, err := Resolve(NameWebGPU)
	assert.ErrorIs(t, err, errdefs.ErrInvalidConfiguration)

	_, err = Resolve("tpu")
	assert.ErrorIs(t, err, errdefs.ErrInvalidConfiguration)
}

func TestProbe(t *testing.T) {
	infos := Probe()
	require.Len(t, infos, 2)
	assert.Equal(t, NameCPU, infos[0].Name)
	assert.True(t, infos[0].Available)
	assert.True(t, infos[0].Trainable)
	assert.Equal(t, NameWebGPU, infos[1].Name)
	assert.False(t, infos[1].Trainable)
	assert.NotEmpty(t, infos[1].Detail)
}
