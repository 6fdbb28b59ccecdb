// Package metrics exposes the executor's Prometheus collectors: tick
// latency, phase advancement, rollback reasons, and alert volume.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const (
	namespace = "signalbeam"
	subsystem = "executor"
)

// Collector bundles every metric the executor's control loop records.
type Collector struct {
	TickDuration     *prometheus.HistogramVec
	PhaseAdvances    prometheus.Counter
	RolloutCompleted prometheus.Counter
	Rollbacks        *prometheus.CounterVec
	AlertsRaised     *prometheus.CounterVec
}

// NewCollector builds and registers every metric against reg. Passing
// prometheus.NewRegistry keeps tests isolated from the global registry;
// cmd/signalbeam-executor registers against prometheus.DefaultRegisterer.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		TickDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "tick_duration_seconds",
			Help:      "Duration of a single rollout reconcile tick.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		PhaseAdvances: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "phase_advances_total",
			Help:      "Number of rollout phases that advanced to the next phase.",
		}),
		RolloutCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "rollouts_completed_total",
			Help:      "Number of rollouts that reached Completed.",
		}),
		Rollbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "rollbacks_total",
			Help:      "Number of rollouts rolled back, partitioned by reason.",
		}, []string{"reason"}),
		AlertsRaised: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "alerts_raised_total",
			Help:      "Number of alerts raised, partitioned by type.",
		}, []string{"type"}),
	}
	reg.MustRegister(c.TickDuration, c.PhaseAdvances, c.RolloutCompleted, c.Rollbacks, c.AlertsRaised)
	return c
}

// ObserveTick records a completed reconcile tick's wall-clock duration.
// outcome is a short label such as "advanced", "rolled_back", "noop".
func (c *Collector) ObserveTick(outcome string, seconds float64) {
	c.TickDuration.WithLabelValues(outcome).Observe(seconds)
}

func (c *Collector) RecordRollback(reason string) {
	c.Rollbacks.WithLabelValues(reason).Inc()
}

func (c *Collector) RecordAlert(alertType string) {
	c.AlertsRaised.WithLabelValues(alertType).Inc()
}

// Serve starts the /metrics HTTP endpoint and blocks until ctx is
// cancelled, then shuts the server down gracefully.
func Serve(ctx context.Context, addr string, log logrus.FieldLogger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		log.Info("shutting down metrics server")
		return srv.Shutdown(context.Background())
	}
}
