package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	backendStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "voxd",
			Subsystem: "backend",
			Name:      "starts_total",
			Help:      "Number of successful backend starts (health gate passed).",
		}, []string{"name"},
	)
	backendStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "voxd",
			Subsystem: "backend",
			Name:      "stops_total",
			Help:      "Number of backend stops (graceful or kill).",
		}, []string{"name"},
	)
	backendStartupFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "voxd",
			Subsystem: "backend",
			Name:      "startup_failures_total",
			Help:      "Number of starts that failed before becoming healthy.",
		}, []string{"name", "reason"},
	)
	backendHealthFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "voxd",
			Subsystem: "backend",
			Name:      "health_check_failures_total",
			Help:      "Number of failed steady-state health checks.",
		}, []string{"name"},
	)
	backendStartupDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "voxd",
			Subsystem: "backend",
			Name:      "startup_duration_seconds",
			Help:      "Time from spawn to first successful readiness response.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"name"},
	)
	migrationsRun = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "voxd",
			Subsystem: "migration",
			Name:      "runs_total",
			Help:      "Number of completed resource migrations by outcome.",
		}, []string{"outcome"},
	)
	modelAssetsCopied = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "voxd",
			Subsystem: "models",
			Name:      "assets_copied_total",
			Help:      "Number of model assets copied into the cache.",
		},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{
		backendStarts, backendStops, backendStartupFailures,
		backendHealthFailures, backendStartupDuration,
		migrationsRun, modelAssetsCopied,
	}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			// If already registered, ignore (allows double Register with default registry)
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func IncStart(name string) {
	if regOK.Load() {
		backendStarts.WithLabelValues(name).Inc()
	}
}

func IncStop(name string) {
	if regOK.Load() {
		backendStops.WithLabelValues(name).Inc()
	}
}

func IncStartupFailure(name, reason string) {
	if regOK.Load() {
		backendStartupFailures.WithLabelValues(name, reason).Inc()
	}
}

func IncHealthFailure(name string) {
	if regOK.Load() {
		backendHealthFailures.WithLabelValues(name).Inc()
	}
}

func ObserveStartupDuration(name string, seconds float64) {
	if regOK.Load() {
		backendStartupDuration.WithLabelValues(name).Observe(seconds)
	}
}

func IncMigration(outcome string) {
	if regOK.Load() {
		migrationsRun.WithLabelValues(outcome).Inc()
	}
}

func AddModelAssetsCopied(n int) {
	if regOK.Load() && n > 0 {
		modelAssetsCopied.Add(float64(n))
	}
}
