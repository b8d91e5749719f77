// Package metrics exports workflow metrics to Prometheus.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/entrhq/postpilot/pkg/post"
	"github.com/entrhq/postpilot/pkg/workflow"
)

// Collector records workflow outcomes. It implements workflow.Observer.
type Collector struct {
	workflowsTotal   *prometheus.CounterVec
	workflowDuration *prometheus.HistogramVec
	stepDuration     *prometheus.HistogramVec
	stepFailures     *prometheus.CounterVec
	droppedEvents    prometheus.Counter
}

var _ workflow.Observer = (*Collector)(nil)

// NewCollector registers the collector's metrics with reg.
func NewCollector(namespace string, reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		workflowsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "workflows_total",
				Help:      "Post workflows by terminal status",
			},
			[]string{"status"},
		),
		workflowDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "workflow_duration_seconds",
				Help:      "Post workflow duration in seconds",
				Buckets:   []float64{1, 2, 5, 10, 20, 30, 45, 60, 120},
			},
			[]string{"status"},
		),
		stepDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "step_duration_seconds",
				Help:      "Workflow step duration in seconds",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"step"},
		),
		stepFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "step_failures_total",
				Help:      "Workflow steps that ended the run with an error",
			},
			[]string{"step"},
		),
		droppedEvents: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "status_events_dropped_total",
				Help:      "Status events not delivered because no listener was ready",
			},
		),
	}
}

func (c *Collector) StepFinished(status post.Status, elapsed time.Duration, err error) {
	c.stepDuration.WithLabelValues(string(status)).Observe(elapsed.Seconds())
	if err != nil {
		c.stepFailures.WithLabelValues(string(status)).Inc()
	}
}

func (c *Collector) WorkflowFinished(ev post.StatusEvent, elapsed time.Duration) {
	c.workflowsTotal.WithLabelValues(string(ev.Status)).Inc()
	c.workflowDuration.WithLabelValues(string(ev.Status)).Observe(elapsed.Seconds())
}

// EventDropped counts an undelivered status event; pass it to
// status.WithDropHook.
func (c *Collector) EventDropped(post.StatusEvent) {
	c.droppedEvents.Inc()
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string, g prometheus.Gatherer) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(g))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
