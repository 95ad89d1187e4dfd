// Package metrics exposes experiment progress for Prometheus scraping.
//
// All collectors live on a private registry. A nil *Recorder is valid and
// records nothing.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "advrobust"

// Trial outcomes.
const (
	OutcomeOK     = "ok"
	OutcomeFailed = "failed"
)

// Recorder holds the experiment collectors.
type Recorder struct {
	registry *prometheus.Registry

	trials      *prometheus.CounterVec
	bestScore   *prometheus.GaugeVec
	epochTime   *prometheus.HistogramVec
	report      *prometheus.GaugeVec
	checkpoints *prometheus.CounterVec
}

// New creates a recorder with its own registry.
func New() (*Recorder, error) {
	r := &Recorder{registry: prometheus.NewRegistry()}

	r.trials = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trials_total",
			Help:      "Grid cells evaluated, by experiment, phase and outcome",
		},
		[]string{"experiment", "phase", "outcome"},
	)
	r.bestScore = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "best_score",
			Help:      "Best score found so far by a search phase",
		},
		[]string{"experiment", "phase"},
	)
	r.epochTime = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "epoch_duration_seconds",
			Help:      "Wall time of one training epoch",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
		},
		[]string{"experiment"},
	)
	r.report = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "report_value",
			Help:      "Final resistance report entries",
		},
		[]string{"experiment", "metric"},
	)
	r.checkpoints = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkpoint_operations_total",
			Help:      "Checkpoint saves and loads",
		},
		[]string{"operation"},
	)

	for _, c := range []prometheus.Collector{r.trials, r.bestScore, r.epochTime, r.report, r.checkpoints} {
		if err := r.registry.Register(c); err != nil {
			return nil, fmt.Errorf("register collector: %w", err)
		}
	}
	return r, nil
}

// Registry returns the private registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Trial counts one evaluated cell.
func (r *Recorder) Trial(experiment, phase string, err error) {
	if r == nil {
		return
	}
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeFailed
	}
	r.trials.WithLabelValues(experiment, phase, outcome).Inc()
}

// BestScore sets the best score of a phase.
func (r *Recorder) BestScore(experiment, phase string, score float64) {
	if r == nil {
		return
	}
	r.bestScore.WithLabelValues(experiment, phase).Set(score)
}

// Epoch observes one epoch's duration.
func (r *Recorder) Epoch(experiment string, d time.Duration) {
	if r == nil {
		return
	}
	r.epochTime.WithLabelValues(experiment).Observe(d.Seconds())
}

// ReportValue publishes one report entry.
func (r *Recorder) ReportValue(experiment, metric string, value float64) {
	if r == nil {
		return
	}
	r.report.WithLabelValues(experiment, metric).Set(value)
}

// Checkpoint counts a checkpoint operation ("save" or "load").
func (r *Recorder) Checkpoint(operation string) {
	if r == nil {
		return
	}
	r.checkpoints.WithLabelValues(operation).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Serve exposes /metrics on addr until ctx is done. It returns the bound
// address, so ":0" can be used in tests.
func (r *Recorder) Serve(ctx context.Context, addr string) (string, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("metrics listen: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())
	srv := &http.Server{
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server", "err", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("serving metrics", "addr", ln.Addr().String())
	return ln.Addr().String(), nil
}
