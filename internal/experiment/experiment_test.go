package experiment

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/attack"
	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/checkpoint"
	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/config"
	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/dataset"
	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/engine"
	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/errdefs"
	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/evaluate"
	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/hyper"
	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/ledger"
	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/models"
	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/nn"
	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/schedule"
	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/tensor"
	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/train"
)

func testContext(t *testing.T) *Context {
	t.Helper()
	b := engine.New()
	dir := t.TempDir()
	store, err := checkpoint.NewFSStore(filepath.Join(dir, "checkpoints"))
	require.NoError(t, err)
	return &Context{
		Backend:     b,
		Loss:        engine.CrossEntropy(b),
		Seed:        1,
		Paths:       config.Paths{Checkpoints: store.Dir(), Plots: filepath.Join(dir, "plots")},
		Search:      config.Search{Strategy: "grid"},
		Stopping:    schedule.Config{Kind: schedule.KindConstant, Epochs: 3},
		ValFraction: 0.25,
		Spaces: config.Spaces{
			Training: hyper.Space{
				{Name: hyper.KeyLR, Values: []any{0.1}},
				{Name: hyper.KeyBatchSize, Values: []any{8}},
			},
			FGSM: hyper.Space{{Name: hyper.KeyEpsilon, Values: []any{0.05, 0.3}}},
			PGD: hyper.Space{
				{Name: hyper.KeyEpsilon, Values: []any{0.1}},
				{Name: hyper.KeyStepSize, Values: []any{0.05}},
				{Name: hyper.KeyNumSteps, Values: []any{3}},
				{Name: hyper.KeyRandomStart, Values: []any{false}},
			},
		},
		Eval:    evaluate.Options{BatchSize: 16, Record: 2},
		Range:   attack.DefaultRange,
		Attacks: attack.DefaultRegistry(),
		Store:   store,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// identity returns a 2→2 linear classifier whose logits equal its input.
func identity(b *engine.Backend) *nn.Linear[*engine.Backend] {
	l := nn.NewLinear(2, 2, rand.New(rand.NewPCG(1, 2)), b)
	copy(l.Weight().Tensor().Data(), []float32{1, 0, 0, 1})
	return l
}

// separable returns n samples of two well separated 4-pixel patterns.
func separable(t *testing.T, n int, seed uint64) *dataset.InMemory {
	t.Helper()
	rng := rand.New(rand.NewPCG(seed, 1))
	protos := [2][]float32{{0.1, 0.1, 0.9, 0.9}, {0.9, 0.9, 0.1, 0.1}}
	images := make([]float32, 0, n*4)
	labels := make([]int32, n)
	for i := range labels {
		c := i % 2
		labels[i] = int32(c)
		for _, p := range protos[c] {
			images = append(images, p+(rng.Float32()-0.5)*0.1)
		}
	}
	ds, err := dataset.NewInMemory(images, labels, tensor.Shape{4}, 2)
	require.NoError(t, err)
	return ds
}

func constant(t *testing.T, n int) *schedule.Epochs {
	t.Helper()
	c, err := schedule.NewConstant(n)
	require.NoError(t, err)
	return schedule.NewEpochs(c)
}

func TestFullAttack_PicksStrongerSet(t *testing.T) {
	ec := testContext(t)
	data, err := dataset.NewInMemory([]float32{0.6, 0.4}, []int32{0}, tensor.Shape{2}, 2)
	require.NoError(t, err)

	space := hyper.Space{{Name: hyper.KeyEpsilon, Values: []any{0.05, 0.2}}}
	res, err := FullAttack(context.Background(), ec, "identity", identity(ec.Backend), data, space,
		hyper.MustSet(hyper.KeyLR, 0.1), attack.NewFGSM())
	require.NoError(t, err)

	assert.Equal(t, attack.NameFGSM, res.Attack)
	assert.True(t, res.Set.Equal(hyper.MustSet(hyper.KeyEpsilon, 0.2)), res.Set.String())
	assert.Equal(t, 1.0, res.Score)
}

func TestFullAttack_TieKeepsFirst(t *testing.T) {
	ec := testContext(t)
	data, err := dataset.NewInMemory([]float32{0.6, 0.4}, []int32{0}, tensor.Shape{2}, 2)
	require.NoError(t, err)

	space := hyper.Space{{Name: hyper.KeyEpsilon, Values: []any{0.2, 0.3}}}
	res, err := FullAttack(context.Background(), ec, "identity", identity(ec.Backend), data, space,
		hyper.MustSet(hyper.KeyLR, 0.1), attack.NewFGSM())
	require.NoError(t, err)
	assert.True(t, res.Set.Equal(hyper.MustSet(hyper.KeyEpsilon, 0.2)), res.Set.String())
}

func TestFullAttack_RecordsTrialsInLedger(t *testing.T) {
	ec := testContext(t)
	l, err := ledger.Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	ec.Ledger = l
	ec.RunID, err = l.StartRun(ec.Seed, nil)
	require.NoError(t, err)

	data, err := dataset.NewInMemory([]float32{0.6, 0.4}, []int32{0}, tensor.Shape{2}, 2)
	require.NoError(t, err)
	space := hyper.Space{{Name: hyper.KeyEpsilon, Values: []any{0.05, 0.2}}}
	_, err = FullAttack(context.Background(), ec, "identity", identity(ec.Backend), data, space,
		hyper.MustSet(hyper.KeyLR, 0.1), attack.NewFGSM())
	require.NoError(t, err)

	trials, err := l.Trials(ec.RunID)
	require.NoError(t, err)
	require.Len(t, trials, 2)
	assert.Equal(t, AttackPhase(attack.NameFGSM), trials[0].Phase)
	assert.Equal(t, 0.0, trials[0].Score)
	assert.Equal(t, 1.0, trials[1].Score)
}

func TestFullAttack_CellErrorAborts(t *testing.T) {
	ec := testContext(t)
	data, err := dataset.NewInMemory([]float32{0.6, 0.4}, []int32{0}, tensor.Shape{2}, 2)
	require.NoError(t, err)

	space := hyper.Space{{Name: hyper.KeyEpsilon, Values: []any{0.1, -1.0}}}
	_, err = FullAttack(context.Background(), ec, "identity", identity(ec.Backend), data, space,
		hyper.MustSet(hyper.KeyLR, 0.1), attack.NewFGSM())
	require.Error(t, err)
	assert.ErrorIs(t, err, errdefs.ErrInvalidHyperparameter)

	var cell *hyper.CellError
	require.True(t, errors.As(err, &cell))
	assert.Equal(t, 1, cell.Index)
}

func TestFullTrain_SingleSet(t *testing.T) {
	ec := testContext(t)
	model := nn.NewLinear(4, 2, rand.New(rand.NewPCG(5, 5)), ec.Backend)
	data := train.Split{Train: separable(t, 32, 1), Val: separable(t, 16, 2)}
	space := hyper.Space{
		{Name: hyper.KeyLR, Values: []any{0.1}},
		{Name: hyper.KeyBatchSize, Values: []any{8}},
	}

	res, err := FullTrain(context.Background(), ec, "linear", model, data, space, constant(t, 10), nil,
		rand.New(rand.NewPCG(1, 1)))
	require.NoError(t, err)

	assert.True(t, res.Set.Equal(space.First()))
	assert.Equal(t, 10, res.Epochs)
	assert.Greater(t, res.Score, 0.9)
	assert.Equal(t, res.Score, evaluate.Accuracy(ec.Backend, model, data.Val, 16))
}

func TestFullTrain_RestoresBestWeights(t *testing.T) {
	ec := testContext(t)
	model := nn.NewLinear(4, 2, rand.New(rand.NewPCG(5, 5)), ec.Backend)
	data := train.Split{Train: separable(t, 32, 1), Val: separable(t, 16, 2)}
	space := hyper.Space{
		{Name: hyper.KeyLR, Values: []any{0.1, 1e-9}},
		{Name: hyper.KeyBatchSize, Values: []any{8}},
	}

	res, err := FullTrain(context.Background(), ec, "linear", model, data, space, constant(t, 10), nil,
		rand.New(rand.NewPCG(1, 1)))
	require.NoError(t, err)

	lr, err := res.Set.Float(hyper.KeyLR)
	require.NoError(t, err)
	assert.Equal(t, 0.1, lr)
	assert.Equal(t, res.Score, evaluate.Accuracy(ec.Backend, model, data.Val, 16))
}

func TestFullTrain_InvalidSetAborts(t *testing.T) {
	ec := testContext(t)
	model := nn.NewLinear(4, 2, rand.New(rand.NewPCG(5, 5)), ec.Backend)
	before := nn.Snapshot(model)
	data := train.Split{Train: separable(t, 8, 1), Val: separable(t, 4, 2)}

	_, err := FullTrain(context.Background(), ec, "linear", model, data,
		hyper.Space{{Name: hyper.KeyLR, Values: []any{-1.0}}}, constant(t, 2), nil, nil)
	require.ErrorIs(t, err, errdefs.ErrInvalidHyperparameter)

	for name, raw := range model.StateDict() {
		assert.Equal(t, before[name].AsFloat32(), raw.AsFloat32(), name)
	}
}

func TestFullTrain_StopsOnCancel(t *testing.T) {
	ec := testContext(t)
	model := nn.NewLinear(4, 2, rand.New(rand.NewPCG(5, 5)), ec.Backend)
	data := train.Split{Train: separable(t, 8, 1), Val: separable(t, 4, 2)}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := FullTrain(ctx, ec, "linear", model, data,
		hyper.Space{{Name: hyper.KeyLR, Values: []any{0.1}}}, constant(t, 2), nil, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func tinyExperiment() config.Experiment {
	return config.Experiment{
		Name: "tiny",
		Model: models.Spec{
			Kind: models.KindMLP,
			MLP:  models.MLPConfig{In: 4, Hidden: []int{6}, OutSize: 2, Activation: models.ActivationReLU},
		},
		Attacks: []string{attack.NameFGSM},
	}
}

func TestRun_SavesThenLoads(t *testing.T) {
	ec := testContext(t)
	var out bytes.Buffer
	ec.Out = &out
	data := Data{Train: separable(t, 32, 1), Test: separable(t, 16, 3)}

	e := tinyExperiment()
	first, err := Run(context.Background(), ec, e, data)
	require.NoError(t, err)
	assert.Equal(t, NeedsCompute, first.State)
	assert.True(t, ec.Store.Exists(e.Name))
	assert.Contains(t, out.String(), "TEST SCORES of tiny:")
	_, ok := first.Report.Get(evaluate.AttackKey(attack.NameFGSM))
	assert.True(t, ok)

	e.LoadCheckpoint = true
	second, err := Run(context.Background(), ec, e, data)
	require.NoError(t, err)
	assert.Equal(t, Loaded, second.State)
	assert.Equal(t, first.Report.String(), second.Report.String())
	assert.True(t, first.TrainSet.Equal(second.TrainSet))
	assert.True(t, first.AttackSets[attack.NameFGSM].Equal(second.AttackSets[attack.NameFGSM]))

	probe, err := engine.FromSlice(ec.Backend, []float32{0.1, 0.1, 0.9, 0.9, 0.9, 0.9, 0.1, 0.1}, tensor.Shape{2, 4})
	require.NoError(t, err)
	assert.Equal(t,
		engine.Logits(ec.Backend, first.Model, probe).Data(),
		engine.Logits(ec.Backend, second.Model, probe).Data())
}

func TestRun_LoadWithoutCheckpointComputes(t *testing.T) {
	ec := testContext(t)
	data := Data{Train: separable(t, 32, 1), Test: separable(t, 16, 3)}

	e := tinyExperiment()
	e.LoadCheckpoint = true
	f := false
	e.SaveCheckpoint = &f

	o, err := Run(context.Background(), ec, e, data)
	require.NoError(t, err)
	assert.Equal(t, NeedsCompute, o.State)
	assert.False(t, ec.Store.Exists(e.Name))
}

func TestRun_MismatchedCheckpointComputes(t *testing.T) {
	ec := testContext(t)
	data := Data{Train: separable(t, 32, 1), Test: separable(t, 16, 3)}

	e := tinyExperiment()
	_, err := Run(context.Background(), ec, e, data)
	require.NoError(t, err)

	e.LoadCheckpoint = true
	e.Model.MLP.Hidden = []int{5}
	o, err := Run(context.Background(), ec, e, data)
	require.NoError(t, err)
	assert.Equal(t, NeedsCompute, o.State)
}

func TestTrainAttack_ParamsFromCheckpoint(t *testing.T) {
	ec := testContext(t)
	data := Data{Train: separable(t, 32, 1), Test: separable(t, 16, 3)}
	src, err := Run(context.Background(), ec, tinyExperiment(), data)
	require.NoError(t, err)

	robust := tinyExperiment()
	robust.Name = "robust"
	robust.TrainAttack = &config.TrainAttack{Attack: attack.NameFGSM, ParamsFrom: "tiny", Mode: "augment"}

	adv, err := ec.trainAttack(robust, rand.New(rand.NewPCG(1, 1)))
	require.NoError(t, err)
	require.NotNil(t, adv)
	assert.Equal(t, attack.NameFGSM, adv.Attack.Name())
	assert.Equal(t, train.Augment, adv.Mode)
	assert.True(t, adv.Params.Equal(src.AttackSets[attack.NameFGSM]))

	robust.TrainAttack.ParamsFrom = "missing"
	_, err = ec.trainAttack(robust, nil)
	assert.ErrorIs(t, err, errdefs.ErrCheckpointNotFound)

	robust.TrainAttack = &config.TrainAttack{
		Attack: attack.NameFGSM,
		Params: hyper.Space{{Name: hyper.KeyEpsilon, Values: []any{0.07}}},
	}
	adv, err = ec.trainAttack(robust, nil)
	require.NoError(t, err)
	assert.True(t, adv.Params.Equal(hyper.MustSet(hyper.KeyEpsilon, 0.07)))
	assert.Equal(t, train.Replace, adv.Mode)
}

func TestRunAll_StopsBetweenExperiments(t *testing.T) {
	ec := testContext(t)
	data := Data{Train: separable(t, 32, 1), Test: separable(t, 16, 3)}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	outcomes, err := RunAll(ctx, ec, []config.Experiment{tinyExperiment()}, data)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, outcomes)
}

func TestMeasureResistance_WritesGallery(t *testing.T) {
	ec := testContext(t)
	test, err := dataset.NewInMemory([]float32{0.6, 0.4, 0.9, 0.1}, []int32{0, 0}, tensor.Shape{2}, 2)
	require.NoError(t, err)

	// The gallery needs [C,H,W] samples; a flat shape is reported and skipped.
	rep, err := MeasureResistance(context.Background(), ec, "identity", identity(ec.Backend), test,
		[]AttackSetting{{Attack: attack.NewFGSM(), Set: hyper.MustSet(hyper.KeyEpsilon, 0.2)}})
	require.NoError(t, err)

	names := []string{}
	for _, m := range rep.Metrics() {
		names = append(names, m.Name)
	}
	assert.Equal(t, []string{evaluate.KeyTestAccuracy, "%fgsm"}, names)
	acc, _ := rep.Get(evaluate.KeyTestAccuracy)
	assert.Equal(t, 1.0, acc)
	rate, _ := rep.Get("%fgsm")
	assert.Equal(t, 0.5, rate)

	img, err := dataset.NewInMemory([]float32{0.6, 0.4}, []int32{0}, tensor.Shape{2, 1, 1}, 2)
	require.NoError(t, err)
	flat := nn.NewFlatten[*engine.Backend]()
	seq := nn.NewSequential[*engine.Backend](flat, identity(ec.Backend))
	_, err = MeasureResistance(context.Background(), ec, "gallery", seq, img,
		[]AttackSetting{{Attack: attack.NewFGSM(), Set: hyper.MustSet(hyper.KeyEpsilon, 0.2)}})
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(ec.Paths.Plots, "gallery_fgsm.pdf"))
	assert.NoError(t, err)
}

func TestPrepare(t *testing.T) {
	dir := t.TempDir()
	paths := config.Paths{
		Results:     filepath.Join(dir, "results"),
		Checkpoints: filepath.Join(dir, "results", "checkpoints"),
		Plots:       filepath.Join(dir, "results", "plots"),
		Ledger:      filepath.Join(dir, "db", "ledger.db"),
	}
	require.NoError(t, os.MkdirAll(paths.Plots, 0o750))
	stale := filepath.Join(paths.Plots, "old.pdf")
	require.NoError(t, os.WriteFile(stale, []byte("x"), 0o600))

	require.NoError(t, Prepare(paths))
	for _, d := range []string{paths.Checkpoints, paths.Plots, filepath.Dir(paths.Ledger)} {
		info, err := os.Stat(d)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
	_, err := os.Stat(stale)
	assert.True(t, os.IsNotExist(err))
}

func TestLoadData_Synthetic(t *testing.T) {
	cfg := config.Default().Dataset
	cfg.Synthetic.Samples = 20
	cfg.Synthetic.Size = 4
	cfg.TestSamples = 6

	data, err := LoadData(cfg)
	require.NoError(t, err)
	assert.Equal(t, 20, data.Train.Len())
	assert.Equal(t, 6, data.Test.Len())
	assert.Equal(t, tensor.Shape{3, 4, 4}, data.Test.SampleShape())
}

func TestNewContext(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.Checkpoints = filepath.Join(t.TempDir(), "ckpt")

	ec, err := NewContext(&cfg, Options{})
	require.NoError(t, err)
	assert.Equal(t, tensor.CPU, ec.Device)
	assert.Equal(t, evaluate.LabelFlip, ec.Eval.Criterion)
	assert.Equal(t, attack.DefaultRange, ec.Range)

	cfg.Device = "webgpu"
	_, err = NewContext(&cfg, Options{})
	assert.ErrorIs(t, err, errdefs.ErrInvalidConfiguration)
}
