package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderCounts(t *testing.T) {
	r, err := New()
	require.NoError(t, err)

	r.Trial("natural", "train", nil)
	r.Trial("natural", "train", nil)
	r.Trial("natural", "train", errors.New("boom"))
	r.BestScore("natural", "attack:fgsm", 0.4)
	r.ReportValue("natural", "%pgd", 0.7)
	r.Checkpoint("save")
	r.Epoch("natural", 250*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.trials.WithLabelValues("natural", "train", OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.trials.WithLabelValues("natural", "train", OutcomeFailed)))
	assert.Equal(t, 0.4, testutil.ToFloat64(r.bestScore.WithLabelValues("natural", "attack:fgsm")))
	assert.Equal(t, 0.7, testutil.ToFloat64(r.report.WithLabelValues("natural", "%pgd")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.checkpoints.WithLabelValues("save")))
	assert.Equal(t, 1, testutil.CollectAndCount(r.epochTime))
}

func TestNilRecorder(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.Trial("x", "train", nil)
		r.BestScore("x", "train", 1)
		r.Epoch("x", time.Second)
		r.ReportValue("x", "test_acc", 1)
		r.Checkpoint("load")
	})
	assert.Nil(t, r.Registry())
}

func TestHandler(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	r.Checkpoint("load")

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `advrobust_checkpoint_operations_total{operation="load"} 1`)
}

func TestServe(t *testing.T) {
	r, err := New()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r.Trial("natural", "train", nil)
	addr, err := r.Serve(ctx, "127.0.0.1:0")
	require.NoError(t, err)

	resp, err := http.Get("http://" + addr + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "advrobust_trials_total"))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
