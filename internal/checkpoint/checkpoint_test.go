package checkpoint_test

import (
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/checkpoint"
	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/engine"
	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/errdefs"
	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/evaluate"
	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/hyper"
	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/models"
	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/nn"
	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/tensor"
)

func smallNet(t *testing.T, b *engine.Backend, seed uint64) engine.Model {
	t.Helper()
	m, err := models.ConvNet(models.ConvConfig{
		Channels: []int{1, 2}, Activation: models.ActivationLeakyReLU, OutSize: 3, InWH: 4, FCLayers: 1,
	}, rand.New(rand.NewPCG(seed, seed)), b)
	require.NoError(t, err)
	return m
}

func sample(t *testing.T, b *engine.Backend, model engine.Model, name string) *checkpoint.Checkpoint {
	t.Helper()
	report, err := evaluate.NewReport(
		evaluate.Metric{Name: evaluate.KeyTestAccuracy, Value: 0.91},
		evaluate.Metric{Name: "%fgsm", Value: 0.35},
		evaluate.Metric{Name: "%pgd", Value: 0.87},
	)
	require.NoError(t, err)
	return &checkpoint.Checkpoint{
		Name:        name,
		RunID:       "run-1",
		CreatedAt:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		ModelType:   "ConvNet",
		Weights:     nn.Snapshot(model),
		TrainParams: hyper.MustSet("optimizer", "adam", "lr", 0.001, "batch_size", 64),
		AttackParams: map[string]hyper.Set{
			"fgsm": hyper.MustSet("epsilon", 0.1),
			"pgd":  hyper.MustSet("epsilon", 0.1, "step_size", 0.01, "num_steps", 10, "random_start", true),
		},
		Report: report,
		Epochs: 7,
		Score:  0.93,
	}
}

func TestFSStore_RoundTrip(t *testing.T) {
	b := engine.New()
	store, err := checkpoint.NewFSStore(filepath.Join(t.TempDir(), "checkpoints"))
	require.NoError(t, err)

	trained := smallNet(t, b, 1)
	saved := sample(t, b, trained, "capacity_0")
	require.NoError(t, store.Save(saved))
	assert.True(t, store.Exists("capacity_0"))

	loaded, err := store.Load("capacity_0")
	require.NoError(t, err)

	assert.Equal(t, saved.Name, loaded.Name)
	assert.Equal(t, saved.RunID, loaded.RunID)
	assert.True(t, saved.CreatedAt.Equal(loaded.CreatedAt))
	assert.Equal(t, 7, loaded.Epochs)
	assert.InDelta(t, 0.93, loaded.Score, 1e-12)
	assert.True(t, saved.TrainParams.Equal(loaded.TrainParams), "train params %s", loaded.TrainParams)
	assert.Equal(t, saved.TrainParams.Names(), loaded.TrainParams.Names())
	require.Len(t, loaded.AttackParams, 2)
	for name, set := range saved.AttackParams {
		assert.True(t, set.Equal(loaded.AttackParams[name]), name)
	}
	assert.Equal(t, saved.Report.Metrics(), loaded.Report.Metrics())

	// a fresh model with other weights predicts like the trained one after Apply
	fresh := smallNet(t, b, 2)
	require.NoError(t, loaded.Apply(fresh))
	probe := tensor.Full[float32](tensor.Shape{2, 1, 4, 4}, 0.3, b)
	probe.Data()[5] = 0.9
	assert.Equal(t, engine.Logits(b, trained, probe).Data(), engine.Logits(b, fresh, probe).Data())
	assert.Equal(t, engine.Predict(b, trained, probe), engine.Predict(b, fresh, probe))

	entries, err := os.ReadDir(store.Dir())
	require.NoError(t, err)
	require.Len(t, entries, 1, "no temp files left behind")
}

func TestFSStore_NotFoundAndDelete(t *testing.T) {
	b := engine.New()
	store, err := checkpoint.NewFSStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Load("nope")
	assert.ErrorIs(t, err, errdefs.ErrCheckpointNotFound)
	assert.ErrorIs(t, store.Delete("nope"), errdefs.ErrCheckpointNotFound)

	require.NoError(t, store.Save(sample(t, b, smallNet(t, b, 1), "exp")))
	require.NoError(t, store.Delete("exp"))
	assert.False(t, store.Exists("exp"))
	_, err = store.Load("exp")
	assert.ErrorIs(t, err, errdefs.ErrCheckpointNotFound)
}

func TestFSStore_Corrupt(t *testing.T) {
	b := engine.New()
	store, err := checkpoint.NewFSStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(store.Path("garbage"), []byte("not a checkpoint"), 0o600))
	_, err = store.Load("garbage")
	assert.ErrorIs(t, err, errdefs.ErrCheckpointCorrupt)

	// flip one weight byte so the checksum no longer matches
	require.NoError(t, store.Save(sample(t, b, smallNet(t, b, 1), "flipped")))
	data, err := os.ReadFile(store.Path("flipped"))
	require.NoError(t, err)
	data[len(data)-1] ^= 0xff
	require.NoError(t, os.WriteFile(store.Path("flipped"), data, 0o600))
	_, err = store.Load("flipped")
	assert.ErrorIs(t, err, errdefs.ErrCheckpointCorrupt)

	// weights of another architecture do not apply
	good := sample(t, b, smallNet(t, b, 1), "good")
	other := nn.NewLinear(2, 2, rand.New(rand.NewPCG(1, 1)), b)
	assert.ErrorIs(t, good.Apply(other), errdefs.ErrCheckpointCorrupt)
}

func TestFSStore_FailedSaveKeepsPrevious(t *testing.T) {
	b := engine.New()
	store, err := checkpoint.NewFSStore(t.TempDir())
	require.NoError(t, err)

	first := sample(t, b, smallNet(t, b, 1), "exp")
	require.NoError(t, store.Save(first))

	broken := sample(t, b, smallNet(t, b, 2), "exp")
	broken.TrainParams = hyper.MustSet("lr", func() {})
	assert.Error(t, store.Save(broken))

	loaded, err := store.Load("exp")
	require.NoError(t, err)
	assert.Equal(t, first.Weights["0.weight"].AsFloat32(), loaded.Weights["0.weight"].AsFloat32())
}

func TestFSStore_List(t *testing.T) {
	b := engine.New()
	store, err := checkpoint.NewFSStore(t.TempDir())
	require.NoError(t, err)

	infos, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, infos)

	for _, name := range []string{"robust net built using PGD", "capacity_1", "capacity_0"} {
		require.NoError(t, store.Save(sample(t, b, smallNet(t, b, 1), name)))
	}
	require.NoError(t, os.WriteFile(store.Path("broken"), []byte("x"), 0o600))

	infos, err = store.List()
	require.NoError(t, err)
	require.Len(t, infos, 3)
	assert.Equal(t, "capacity_0", infos[0].Name)
	assert.Equal(t, "capacity_1", infos[1].Name)
	assert.Equal(t, "robust net built using PGD", infos[2].Name)
	assert.Positive(t, infos[0].Size)
	v, ok := infos[0].Report.Get("%pgd")
	assert.True(t, ok)
	assert.InDelta(t, 0.87, v, 1e-12)
}

func TestValidateName(t *testing.T) {
	assert.NoError(t, checkpoint.ValidateName("capacity_3"))
	for _, bad := range []string{"", "  ", "../x", "a/b", `a\b`} {
		assert.ErrorIs(t, checkpoint.ValidateName(bad), errdefs.ErrInvalidConfiguration, bad)
	}
}
