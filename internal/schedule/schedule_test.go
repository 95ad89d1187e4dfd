package schedule_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/errdefs"
	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/schedule"
)

func TestConstant_SequenceAndRestart(t *testing.T) {
	c, err := schedule.NewConstant(3)
	require.NoError(t, err)

	for range 2 {
		assert.Equal(t, schedule.Running, c.State())
		assert.True(t, c.ShouldContinue(0, 0))
		assert.True(t, c.ShouldContinue(1, 0))
		assert.True(t, c.ShouldContinue(2, 0))
		assert.False(t, c.ShouldContinue(3, 0))
		assert.Equal(t, schedule.Stopped, c.State())
		// stays stopped until restarted
		assert.False(t, c.ShouldContinue(0, 0))
		c.Restart()
	}
}

func TestConstant_Invalid(t *testing.T) {
	for _, n := range []int{0, -1} {
		_, err := schedule.NewConstant(n)
		assert.ErrorIs(t, err, errdefs.ErrInvalidConfiguration)
	}
}

func TestPatience(t *testing.T) {
	p, err := schedule.NewPatience(2, 0.01, 0)
	require.NoError(t, err)

	assert.True(t, p.ShouldContinue(1, 0.50))
	assert.True(t, p.ShouldContinue(2, 0.60))
	assert.True(t, p.ShouldContinue(3, 0.605)) // within min_delta
	assert.False(t, p.ShouldContinue(4, 0.55))
	assert.Equal(t, schedule.Stopped, p.State())

	best, ok := p.Best()
	assert.True(t, ok)
	assert.InDelta(t, 0.60, best, 1e-12)

	p.Restart()
	_, ok = p.Best()
	assert.False(t, ok)
	assert.Equal(t, schedule.Running, p.State())
	assert.True(t, p.ShouldContinue(1, 0.1))
}

func TestPatience_NaNIsNotImprovement(t *testing.T) {
	p, err := schedule.NewPatience(1, 0, 0)
	require.NoError(t, err)

	assert.True(t, p.ShouldContinue(1, 0.3))
	assert.False(t, p.ShouldContinue(2, math.NaN()))
}

func TestPatience_MaxEpochs(t *testing.T) {
	p, err := schedule.NewPatience(10, 0, 3)
	require.NoError(t, err)

	assert.True(t, p.ShouldContinue(1, 0.1))
	assert.True(t, p.ShouldContinue(2, 0.2))
	assert.False(t, p.ShouldContinue(3, 0.3))
}

func TestPatience_Invalid(t *testing.T) {
	_, err := schedule.NewPatience(0, 0, 0)
	assert.ErrorIs(t, err, errdefs.ErrInvalidConfiguration)
	_, err = schedule.NewPatience(1, -0.1, 0)
	assert.ErrorIs(t, err, errdefs.ErrInvalidConfiguration)
	_, err = schedule.NewPatience(1, 0, -5)
	assert.ErrorIs(t, err, errdefs.ErrInvalidConfiguration)
}

func TestEpochs(t *testing.T) {
	c, err := schedule.NewConstant(2)
	require.NoError(t, err)
	e := schedule.NewEpochs(c)

	assert.True(t, e.Step(0.5))
	assert.False(t, e.Step(0.5))
	assert.Equal(t, 2, e.Elapsed())
	assert.True(t, e.Stopped())

	e.Restart()
	assert.Equal(t, 0, e.Elapsed())
	assert.False(t, e.Stopped())
	assert.Same(t, c, e.Criterion())
}

func TestFromConfig(t *testing.T) {
	c, err := schedule.FromConfig(schedule.Config{Kind: "constant", Epochs: 25})
	require.NoError(t, err)
	assert.IsType(t, &schedule.Constant{}, c)

	c, err = schedule.FromConfig(schedule.Config{Kind: "patience", Patience: 3, MaxEpochs: 50})
	require.NoError(t, err)
	assert.IsType(t, &schedule.Patience{}, c)

	_, err = schedule.FromConfig(schedule.Config{Kind: "cosine"})
	assert.ErrorIs(t, err, errdefs.ErrInvalidConfiguration)
	assert.ErrorIs(t, schedule.Config{Kind: "constant"}.Validate(), errdefs.ErrInvalidConfiguration)
}
