package models_test

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/engine"
	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/errdefs"
	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/models"
	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/nn"
	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/tensor"
)

func TestCapacitySweep(t *testing.T) {
	first := models.CapacitySweep(0)
	assert.Equal(t, []int{3, 2, 4}, first.Channels)
	assert.Equal(t, 1, first.FCLayers)
	assert.Equal(t, 5, first.CNNOutChannels)

	last := models.CapacitySweep(7)
	assert.Equal(t, []int{3, 256, 512}, last.Channels)
	assert.Equal(t, 4, last.FCLayers)
	assert.Equal(t, 40, last.CNNOutChannels)
	assert.Equal(t, models.ActivationLeakyReLU, last.Activation)
	assert.Equal(t, 43, last.OutSize)
	assert.Equal(t, 32, last.InWH)

	for i := range 8 {
		assert.NoError(t, models.CapacitySweep(i).Validate(), "capacity %d", i)
	}
}

func TestConvNet_Forward(t *testing.T) {
	b := engine.New()
	cfg := models.ConvConfig{
		Channels:       []int{1, 2, 3},
		Activation:     models.ActivationReLU,
		OutSize:        5,
		InWH:           8,
		FCLayers:       2,
		CNNOutChannels: 4,
	}
	assert.Equal(t, 4*2*2, cfg.FlatFeatures())

	net, err := models.ConvNet(cfg, rand.New(rand.NewPCG(1, 2)), b)
	require.NoError(t, err)

	x := tensor.Zeros[float32](tensor.Shape{3, 1, 8, 8}, b)
	logits := engine.Logits(b, net, x)
	assert.Equal(t, tensor.Shape{3, 5}, logits.Shape())

	// conv(1→2) + conv(2→3) + conv1x1(3→4) + fc(16→11) + fc(11→5)
	want := (2*1*9 + 2) + (3*2*9 + 3) + (4*3 + 4) + (16*11 + 11) + (11*5 + 5)
	assert.Equal(t, want, nn.NumParameters[*engine.Backend](net))
	assert.Contains(t, models.Describe(net), "Conv2D")
}

func TestConvNet_SeededInitIsReproducible(t *testing.T) {
	b := engine.New()
	cfg := models.CapacitySweep(0)

	a, err := models.ConvNet(cfg, rand.New(rand.NewPCG(3, 3)), b)
	require.NoError(t, err)
	c, err := models.ConvNet(cfg, rand.New(rand.NewPCG(3, 3)), b)
	require.NoError(t, err)

	sa, sc := a.StateDict(), c.StateDict()
	require.Equal(t, len(sa), len(sc))
	for name, raw := range sa {
		assert.Equal(t, raw.AsFloat32(), sc[name].AsFloat32(), name)
	}
}

func TestConvConfig_Invalid(t *testing.T) {
	base := models.DefaultConvConfig()
	cases := map[string]func(*models.ConvConfig){
		"one channel":  func(c *models.ConvConfig) { c.Channels = []int{3} },
		"zero channel": func(c *models.ConvConfig) { c.Channels = []int{3, 0} },
		"activation":   func(c *models.ConvConfig) { c.Activation = "gelu" },
		"no fc":        func(c *models.ConvConfig) { c.FCLayers = 0 },
		"tiny image":   func(c *models.ConvConfig) { c.InWH = 2 },
		"no classes":   func(c *models.ConvConfig) { c.OutSize = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := base
			cfg.Channels = append([]int(nil), base.Channels...)
			mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), errdefs.ErrInvalidConfiguration)
		})
	}
}

func TestMLPAndBuild(t *testing.T) {
	b := engine.New()
	rng := rand.New(rand.NewPCG(1, 1))

	m, err := models.Build(models.Spec{Kind: models.KindMLP, MLP: models.MLPConfig{In: 12, Hidden: []int{6}, OutSize: 3}}, rng, b)
	require.NoError(t, err)
	x := tensor.Zeros[float32](tensor.Shape{2, 3, 2, 2}, b)
	assert.Equal(t, tensor.Shape{2, 3}, engine.Logits(b, m, x).Shape())

	_, err = models.Build(models.Spec{Kind: "resnet"}, rng, b)
	assert.ErrorIs(t, err, errdefs.ErrInvalidConfiguration)

	m, err = models.Build(models.Spec{Kind: models.KindCapacity, CapacityIndex: 1}, rng, b)
	require.NoError(t, err)
	assert.Positive(t, nn.NumParameters(m))
}
