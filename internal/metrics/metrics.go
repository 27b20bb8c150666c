// Package metrics exposes generation and refinement metrics in Prometheus format.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MikeSquared-Agency/showrunner/internal/orchestrator"
	"github.com/MikeSquared-Agency/showrunner/internal/refinement"
)

const namespace = "showrunner"

// Recorder owns a private registry so tests and multiple instances do not collide
// on prometheus.DefaultRegistry.
type Recorder struct {
	registry *prometheus.Registry

	operations  *prometheus.CounterVec
	opDuration  *prometheus.HistogramVec
	runs        *prometheus.CounterVec
	iterations  prometheus.Histogram
	finalScores prometheus.Histogram
}

func New() *Recorder {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Recorder{
		registry: reg,
		operations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_operations_total",
			Help:      "Scene generation calls, partitioned by operation and outcome.",
		}, []string{"op", "outcome"}),
		opDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_operation_duration_seconds",
			Help:      "Duration of scene generation calls.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80},
		}, []string{"op"}),
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refinement_runs_total",
			Help:      "Finished refinement runs by terminal state.",
		}, []string{"state"}),
		iterations: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "refinement_iterations",
			Help:      "Iterations used per refinement run.",
			Buckets:   prometheus.LinearBuckets(1, 1, 6),
		}),
		finalScores: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "refinement_overall_score",
			Help:      "Overall quality score of the final script of each run.",
			Buckets:   prometheus.LinearBuckets(0.1, 0.1, 10),
		}),
	}
}

// StartOperation implements orchestrator.Observer.
func (r *Recorder) StartOperation(name string, sceneNumber int) orchestrator.Operation {
	return orchestrator.Operation{Name: name, SceneNumber: sceneNumber, Started: time.Now()}
}

// EndOperation implements orchestrator.Observer.
func (r *Recorder) EndOperation(op orchestrator.Operation, err error) {
	r.opDuration.WithLabelValues(op.Name).Observe(time.Since(op.Started).Seconds())
	r.operations.WithLabelValues(op.Name, outcome(err)).Inc()
}

// ObserveRun records the terminal state of a refinement run.
func (r *Recorder) ObserveRun(res *refinement.Result) {
	if res == nil {
		return
	}
	r.runs.WithLabelValues(string(res.State)).Inc()
	r.iterations.Observe(float64(res.Iterations))
	if res.Report != nil {
		r.finalScores.Observe(res.Report.Overall)
	}
}

// Handler serves the registry for scraping.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "canceled"
	}
	return "error"
}
