package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestRegisterIsIdempotent(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := Register(reg); err != nil {
		t.Fatalf("second Register: %v", err)
	}
}

func TestHelpersRecordAfterRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("Register: %v", err)
	}

	IncStart("backend")
	IncStop("backend")
	IncStartupFailure("backend", "timeout")
	IncHealthFailure("backend")
	ObserveStartupDuration("backend", 1.5)
	IncMigration("migrated")
	AddModelAssetsCopied(2)

	if got := counterValue(t, backendStarts.WithLabelValues("backend")); got != 1 {
		t.Fatalf("starts = %v, want 1", got)
	}
	if got := counterValue(t, backendHealthFailures.WithLabelValues("backend")); got != 1 {
		t.Fatalf("health failures = %v, want 1", got)
	}
	if got := counterValue(t, migrationsRun.WithLabelValues("migrated")); got != 1 {
		t.Fatalf("migrations = %v, want 1", got)
	}
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return m.GetCounter().GetValue()
}
