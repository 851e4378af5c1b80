// Package voxd supervises the Vox transcription backend: it migrates the
// bundled Python runtime into the writable user data root on first launch,
// seeds model caches, and runs the backend as a health-gated child process.
//
// This file is the stable public facade over the internal packages for
// embedders; the voxd binary under cmd/voxd uses the same surface.
package voxd

import (
	"context"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/voxkit/voxd/internal/config"
	"github.com/voxkit/voxd/internal/history"
	"github.com/voxkit/voxd/internal/logger"
	"github.com/voxkit/voxd/internal/metrics"
	"github.com/voxkit/voxd/internal/migrate"
	"github.com/voxkit/voxd/internal/models"
	"github.com/voxkit/voxd/internal/server"
	"github.com/voxkit/voxd/internal/supervisor"
)

// Re-export core types for external consumers. These are aliases so
// conversions are zero-cost.

type Config = config.Config

type Event = supervisor.Event

type EventKind = supervisor.EventKind

const (
	EventLog       = supervisor.EventLog
	EventExit      = supervisor.EventExit
	EventError     = supervisor.EventError
	EventUnhealthy = supervisor.EventUnhealthy
)

type Supervisor = supervisor.Supervisor

type Migrator = migrate.Migrator

type MigrationOutcome = migrate.Outcome

type BootstrapResult = models.Result

type HistorySink = history.Sink

// ErrFullInstallRequired is returned from migration when the bundle ships
// without the runtime and no usable prior copy exists.
var ErrFullInstallRequired = migrate.ErrFullInstallRequired

// ErrStartupTimeout is returned from Supervisor.Start when the backend never
// passed the health gate.
var ErrStartupTimeout = supervisor.ErrStartupTimeout

func LoadConfig(path string) (*Config, error) { return config.LoadConfig(path) }

// NewLogger builds the process-wide slog logger from the config's log table.
func NewLogger(c *Config) *slog.Logger {
	return logger.New(c.Log.Level, c.Log.NoColor)
}

// NewMigrator wires a runtime migrator from the config, resolving the
// secondary resources to absolute paths.
func NewMigrator(c *Config, log *slog.Logger) *Migrator {
	secondary := make([]migrate.Resource, 0, len(c.Migration.Secondary))
	for _, r := range c.Migration.Secondary {
		secondary = append(secondary, migrate.Resource{
			Name:   r.Name,
			Source: joinIfRelative(c.Paths.BundleDir, r.Source),
			Dest:   joinIfRelative(c.Paths.UserDataDir, r.Dest),
		})
	}
	return migrate.New(migrate.Options{
		BundleDir:     c.Paths.BundleDir,
		UserDataDir:   c.Paths.UserDataDir,
		AppVersion:    c.AppVersion,
		RuntimeDir:    c.Migration.RuntimeDir,
		RuntimeBinary: c.Migration.RuntimeBinary,
		StagingSuffix: c.Migration.StagingSuffix,
		BundleMarker:  c.Migration.BundleMarker,
		Manifests:     c.Migration.Manifests,
		DownloadURL:   c.Migration.DownloadURL,
		Secondary:     secondary,
		Logger:        log,
	})
}

// NewBootstrapper wires the model-cache bootstrapper from the config.
func NewBootstrapper(c *Config, log *slog.Logger) *models.Bootstrapper {
	assets := make([]models.Asset, 0, len(c.Models))
	for _, a := range c.Models {
		assets = append(assets, models.Asset{Name: a.Name, Source: a.Source, Dest: a.Dest})
	}
	return models.New(c.Paths.BundleDir, c.Paths.ModelCacheDir, assets, log)
}

// NewSupervisor wires a backend supervisor from the config, resolving the
// packaged-vs-development launch layout.
func NewSupervisor(c *Config, log *slog.Logger, sinks ...HistorySink) *Supervisor {
	layout := config.ResolveLayout(c)
	env := make(map[string]string, len(c.Backend.Env))
	for _, kv := range c.Backend.Env {
		k, v, ok := splitEnv(kv)
		if ok {
			env[k] = v
		}
	}
	return supervisor.New(supervisor.Config{
		Name:                c.Backend.Name,
		ExecPath:            layout.ExecPath,
		Args:                layout.Args,
		WorkDir:             layout.WorkDir,
		Env:                 env,
		PreferredPort:       c.Backend.PreferredPort,
		DataDir:             c.Paths.UserDataDir,
		HealthPath:          c.Backend.HealthPath,
		StartupTimeout:      c.Backend.StartupTimeout,
		StartupPollInterval: c.Backend.StartupPollInterval,
		MonitorInterval:     c.Backend.MonitorInterval,
		StopTimeout:         c.Backend.StopTimeout,
		Capture:             c.Log.Capture,
		Logger:              log,
		Sinks:               sinks,
	})
}

// NewHistorySink opens the sqlite history sink at the configured path.
func NewHistorySink(ctx context.Context, c *Config) (*history.SQLiteSink, error) {
	return history.NewSQLiteSink(ctx, c.History.Path)
}

// NewHTTPServer starts the localhost status server for the host shell.
func NewHTTPServer(addr string, sup *Supervisor, mig *Migrator) *http.Server {
	return server.NewServer(addr, sup, mig)
}

// Metrics helpers (public facade).

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

func joinIfRelative(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

func splitEnv(kv string) (key, value string, ok bool) {
	return strings.Cut(kv, "=")
}
