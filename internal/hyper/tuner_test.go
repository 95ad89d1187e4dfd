package hyper_test

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/errdefs"
	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/hyper"
)

func gridTuner(t *testing.T, space hyper.Space) *hyper.GridTuner {
	t.Helper()
	g, err := hyper.NewGridSearch(space)
	require.NoError(t, err)
	return &hyper.GridTuner{Grid: g}
}

func TestGridTuner_MaximizesWithFirstTie(t *testing.T) {
	tuner := gridTuner(t, hyper.Space{{Name: "x", Values: []any{1, 3, 2, 3}}})

	var seen []int
	best, err := tuner.Tune(context.Background(), func(_ context.Context, s hyper.Set) (float64, error) {
		x, _ := s.Int("x")
		seen = append(seen, x)
		return float64(x), nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3, 2, 3}, seen)
	assert.Equal(t, 1, best.Index, "tie must keep the first trial")
	assert.Equal(t, 3.0, best.Score)
}

func TestGridTuner_NaNNeverWins(t *testing.T) {
	tuner := gridTuner(t, hyper.Space{{Name: "x", Values: []any{0, 1}}})

	best, err := tuner.Tune(context.Background(), func(_ context.Context, s hyper.Set) (float64, error) {
		x, _ := s.Int("x")
		if x == 0 {
			return math.NaN(), nil
		}
		return 0.2, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, best.Index)
}

func TestGridTuner_ErrorAborts(t *testing.T) {
	tuner := gridTuner(t, hyper.Space{{Name: "x", Values: []any{1, 2, 3}}})

	calls := 0
	_, err := tuner.Tune(context.Background(), func(_ context.Context, s hyper.Set) (float64, error) {
		calls++
		if x, _ := s.Int("x"); x == 2 {
			return 0, errdefs.ErrDiverged
		}
		return 1, nil
	})
	require.Error(t, err)
	assert.Equal(t, 2, calls)
	assert.True(t, errors.Is(err, errdefs.ErrDiverged))

	var cell *hyper.CellError
	require.True(t, errors.As(err, &cell))
	assert.Equal(t, 1, cell.Index)
	assert.Contains(t, err.Error(), "{x:2}")
}

func TestGridTuner_ContextCheckedBetweenCells(t *testing.T) {
	tuner := gridTuner(t, hyper.Space{{Name: "x", Values: []any{1, 2, 3}}})
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	_, err := tuner.Tune(ctx, func(context.Context, hyper.Set) (float64, error) {
		calls++
		cancel()
		return 1, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestMayflyTuner_FindsPeak(t *testing.T) {
	tuner := &hyper.MayflyTuner{
		Space: hyper.Space{
			{Name: "optimizer", Values: []any{"sgd", "adam"}},
			{Name: "lr", Values: []any{0.0, 1.0}},
			{Name: "batch_size", Values: []any{8, 64}},
		},
		Iterations: 30,
		Population: 10,
		Seed:       7,
	}

	best, err := tuner.Tune(context.Background(), func(_ context.Context, s hyper.Set) (float64, error) {
		lr, err := s.Float("lr")
		if err != nil {
			return 0, err
		}
		bs, err := s.Int("batch_size")
		if err != nil {
			return 0, err
		}
		assert.GreaterOrEqual(t, lr, 0.0)
		assert.LessOrEqual(t, lr, 1.0)
		assert.GreaterOrEqual(t, bs, 8)
		assert.LessOrEqual(t, bs, 64)
		return -(lr - 0.3) * (lr - 0.3), nil
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"optimizer", "lr", "batch_size"}, best.Set.Names())
	opt, _ := best.Set.Text("optimizer")
	assert.Equal(t, "sgd", opt)
	assert.Greater(t, best.Score, -0.05)
}

func TestNewTuner(t *testing.T) {
	space := hyper.Space{{Name: "lr", Values: []any{0.1}}}

	tuner, err := hyper.NewTuner("grid", space, 0, 0, 1)
	require.NoError(t, err)
	assert.IsType(t, &hyper.GridTuner{}, tuner)

	tuner, err = hyper.NewTuner("mayfly", space, 5, 5, 1)
	require.NoError(t, err)
	assert.IsType(t, &hyper.MayflyTuner{}, tuner)

	_, err = hyper.NewTuner("random", space, 0, 0, 1)
	assert.True(t, errors.Is(err, errdefs.ErrInvalidConfiguration))
}
