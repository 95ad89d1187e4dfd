package hyper_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/errdefs"
	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/hyper"
)

func collect(g *hyper.GridSearch) []hyper.Set {
	var out []hyper.Set
	for s := range g.Enumerate() {
		out = append(out, s)
	}
	return out
}

func TestGridSearch_Order(t *testing.T) {
	g, err := hyper.NewGridSearch(hyper.Space{
		{Name: "a", Values: []any{1, 2}},
		{Name: "b", Values: []any{10, 20}},
	})
	require.NoError(t, err)

	want := []hyper.Set{
		hyper.MustSet("a", 1, "b", 10),
		hyper.MustSet("a", 1, "b", 20),
		hyper.MustSet("a", 2, "b", 10),
		hyper.MustSet("a", 2, "b", 20),
	}

	got := collect(g)
	require.Len(t, got, 4)
	assert.Equal(t, 4, g.Len())
	for i := range want {
		assert.True(t, want[i].Equal(got[i]), "position %d: got %s, want %s", i, got[i], want[i])
		assert.Equal(t, []string{"a", "b"}, got[i].Names())
	}

	again := collect(g)
	for i := range got {
		assert.True(t, got[i].Equal(again[i]), "enumeration must be restartable")
	}
}

func TestGridSearch_SingleCandidate(t *testing.T) {
	g, err := hyper.NewGridSearch(hyper.Space{{Name: "lr", Values: []any{0.1}}})
	require.NoError(t, err)

	got := collect(g)
	require.Len(t, got, 1)
	assert.True(t, hyper.MustSet("lr", 0.1).Equal(got[0]))
}

func TestGridSearch_EarlyBreak(t *testing.T) {
	g, err := hyper.NewGridSearch(hyper.Space{{Name: "a", Values: []any{1, 2, 3}}})
	require.NoError(t, err)

	n := 0
	for range g.Enumerate() {
		n++
		if n == 2 {
			break
		}
	}
	assert.Equal(t, 2, n)
}

func TestGridSearch_EmptySpace(t *testing.T) {
	_, err := hyper.NewGridSearch(hyper.Space{
		{Name: "a", Values: []any{1}},
		{Name: "b", Values: nil},
	})
	assert.True(t, errors.Is(err, errdefs.ErrEmptySpace))

	_, err = hyper.NewGridSearch(nil)
	assert.True(t, errors.Is(err, errdefs.ErrEmptySpace))
}

func TestSpace_YAMLKeepsDeclarationOrder(t *testing.T) {
	src := `
lr: [0.01, 0.001]
batch_size: [32, 64]
optimizer: adam
`
	var space hyper.Space
	require.NoError(t, yaml.Unmarshal([]byte(src), &space))

	assert.Equal(t, []string{"lr", "batch_size", "optimizer"}, space.Names())
	assert.Equal(t, []any{0.01, 0.001}, space[0].Values)
	assert.Equal(t, []any{32, 64}, space[1].Values)
	assert.Equal(t, []any{"adam"}, space[2].Values)

	out, err := yaml.Marshal(space)
	require.NoError(t, err)
	var back hyper.Space
	require.NoError(t, yaml.Unmarshal(out, &back))
	assert.Equal(t, space, back)
}

func TestSpace_First(t *testing.T) {
	space, err := hyper.NewSpace(
		hyper.Param{Name: "epsilon", Values: []any{0.1, 0.2}},
		hyper.Param{Name: "num_steps", Values: []any{10}},
	)
	require.NoError(t, err)
	first := space.First()
	assert.Equal(t, []string{"epsilon", "num_steps"}, first.Names())
	assert.True(t, first.Equal(hyper.MustSet("epsilon", 0.1, "num_steps", 10)))
}
