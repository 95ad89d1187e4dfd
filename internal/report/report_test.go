package report

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/evaluate"
	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/tensor"
)

func init() { SetNoColor(true) }

func sampleReport(t *testing.T) evaluate.Report {
	t.Helper()
	rep, err := evaluate.NewReport(
		evaluate.Metric{Name: evaluate.KeyTestAccuracy, Value: 0.9},
		evaluate.Metric{Name: evaluate.AttackKey("fgsm"), Value: 0.35},
		evaluate.Metric{Name: evaluate.AttackKey("pgd"), Value: 0.8},
	)
	require.NoError(t, err)
	return rep
}

func TestScores(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Scores(&buf, "natural", sampleReport(t)))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "TEST SCORES of natural:", lines[0])
	assert.Contains(t, lines[1], "test_acc")
	assert.Contains(t, lines[1], "0.9000")
	assert.Contains(t, lines[2], "%fgsm")
	assert.Contains(t, lines[3], "0.8000")
}

func TestSummary(t *testing.T) {
	partial, err := evaluate.NewReport(evaluate.Metric{Name: evaluate.KeyTestAccuracy, Value: 0.5})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Summary(&buf, []Row{
		{Experiment: "natural", Report: sampleReport(t)},
		{Experiment: "robust_pgd", Report: partial, Loaded: true},
	}))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "%pgd")
	assert.Contains(t, lines[1], "trained")
	assert.Contains(t, lines[2], "checkpoint")
	assert.Contains(t, lines[2], "-")
}

func TestGallery(t *testing.T) {
	clean := []float32{0, 0.25, 0.5, 1}
	adv := []float32{0.1, 0.15, 0.6, 0.9}
	examples := []evaluate.Example{
		{Shape: tensor.Shape{1, 2, 2}, Clean: clean, Adversarial: adv, Label: 1, CleanPred: 1, AdvPred: 3},
	}

	var buf bytes.Buffer
	require.NoError(t, Gallery(&buf, "natural / fgsm", examples, 0, 1))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))

	buf.Reset()
	require.NoError(t, Gallery(&buf, "empty", nil, 0, 1))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))
}

func TestGalleryErrors(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, Gallery(&buf, "x", nil, 1, 1))

	bad := []evaluate.Example{{Shape: tensor.Shape{4}, Clean: make([]float32, 4), Adversarial: make([]float32, 4)}}
	assert.Error(t, Gallery(&buf, "x", bad, 0, 1))

	short := []evaluate.Example{{Shape: tensor.Shape{1, 2, 2}, Clean: make([]float32, 3), Adversarial: make([]float32, 4)}}
	assert.Error(t, Gallery(&buf, "x", short, 0, 1))
}

func TestLevel(t *testing.T) {
	assert.Equal(t, 0, level(-1, 0, 1))
	assert.Equal(t, 255, level(2, 0, 1))
	assert.Equal(t, 128, level(0.5, 0, 1))
}
