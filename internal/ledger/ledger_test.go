package ledger

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/evaluate"
	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/hyper"
)

func tempLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestRunLifecycle(t *testing.T) {
	l := tempLedger(t)

	id, err := l.StartRun(7, map[string]int{"seed": 7})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	runs, err := l.Runs(0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, id, runs[0].ID)
	assert.Equal(t, uint64(7), runs[0].Seed)
	assert.Equal(t, StatusRunning, runs[0].Status)
	assert.True(t, runs[0].FinishedAt.IsZero())

	require.NoError(t, l.FinishRun(id, StatusDone))
	runs, err = l.Runs(1)
	require.NoError(t, err)
	assert.Equal(t, StatusDone, runs[0].Status)
	assert.False(t, runs[0].FinishedAt.IsZero())

	assert.Error(t, l.FinishRun("missing", StatusDone))
}

func TestTrials(t *testing.T) {
	l := tempLedger(t)
	id, err := l.StartRun(1, nil)
	require.NoError(t, err)

	set := hyper.MustSet(hyper.KeyEpsilon, 0.1)
	require.NoError(t, l.RecordTrial(Trial{
		RunID: id, Experiment: "natural", Phase: "attack:fgsm", Index: 0, Params: set, Score: 0.25,
	}))
	require.NoError(t, l.RecordTrial(Trial{
		RunID: id, Experiment: "natural", Phase: "train", Index: 1, Params: set, Score: math.NaN(), Err: "diverged",
	}))

	trials, err := l.Trials(id)
	require.NoError(t, err)
	require.Len(t, trials, 2)

	assert.Equal(t, "attack:fgsm", trials[0].Phase)
	assert.InDelta(t, 0.25, trials[0].Score, 1e-12)
	assert.True(t, trials[0].Params.Equal(set))
	assert.Empty(t, trials[0].Err)

	assert.True(t, math.IsNaN(trials[1].Score))
	assert.Equal(t, "diverged", trials[1].Err)

	other, err := l.Trials("nope")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestResults(t *testing.T) {
	l := tempLedger(t)
	id, err := l.StartRun(1, nil)
	require.NoError(t, err)

	report, err := evaluate.NewReport(
		evaluate.Metric{Name: evaluate.KeyTestAccuracy, Value: 0.9},
		evaluate.Metric{Name: evaluate.AttackKey("fgsm"), Value: 0.4},
	)
	require.NoError(t, err)

	require.NoError(t, l.RecordResult(Result{RunID: id, Experiment: "natural", Report: report}))
	require.NoError(t, l.RecordResult(Result{RunID: id, Experiment: "robust", Report: report, Loaded: true}))

	all, err := l.Results("")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "robust", all[0].Experiment)
	assert.True(t, all[0].Loaded)

	natural, err := l.Results("natural")
	require.NoError(t, err)
	require.Len(t, natural, 1)
	v, ok := natural[0].Report.Get(evaluate.AttackKey("fgsm"))
	require.True(t, ok)
	assert.InDelta(t, 0.4, v, 1e-12)
	assert.Equal(t, report.String(), natural[0].Report.String())
}

func TestReopenKeepsHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	l, err := Open(path)
	require.NoError(t, err)
	id, err := l.StartRun(3, nil)
	require.NoError(t, err)
	require.NoError(t, l.Close())

	l, err = Open(path)
	require.NoError(t, err)
	defer l.Close()
	runs, err := l.Runs(0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, id, runs[0].ID)
}
