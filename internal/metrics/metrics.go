// Package metrics exposes Plan execution counters over Prometheus,
// modeled on machinist.NewRootCommand's --metrics-port/--metrics-enable
// flag pair.
package metrics

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TasksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rex_tasks_total",
		Help: "Tasks reaching a terminal decision-tree leaf, by outcome.",
	}, []string{"outcome"})

	TaskDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rex_task_duration_seconds",
		Help:    "Wall-clock time spent executing a Task, including any rectifier retry.",
		Buckets: prometheus.DefBuckets,
	}, []string{"task"})
)

// Outcome labels for TasksTotal, matching the decision tree's leaves.
const (
	OutcomeComplete = "complete"
	OutcomeSkipped  = "skipped"
	OutcomeFailed   = "failed"
)

// Server optionally serves /metrics for the lifetime of a Plan run. It is
// a no-op when enable is false (the default off-switch machinist uses for
// --metrics-enable).
type Server struct {
	srv *http.Server
}

// Start begins serving /metrics on port if enable is true; otherwise it
// returns a Server whose Shutdown is a no-op.
func Start(enable bool, port int) (*Server, error) {
	if !enable {
		return &Server{}, nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}

	go func() {
		_ = srv.ListenAndServe()
	}()

	return &Server{srv: srv}, nil
}

// Shutdown stops the metrics server, if one was started.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}
