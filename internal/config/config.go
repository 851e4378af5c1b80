package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/voxkit/voxd/internal/logger"
)

// Config is the top-level TOML structure (voxd.toml).
type Config struct {
	AppVersion string `mapstructure:"app_version"`
	DevMode    bool   `mapstructure:"dev_mode"`

	Log       LogConfig       `mapstructure:"log"`
	Paths     PathsConfig     `mapstructure:"paths"`
	Backend   BackendConfig   `mapstructure:"backend"`
	Migration MigrationConfig `mapstructure:"migration"`
	Models    []ModelAsset    `mapstructure:"models"`
	Server    ServerConfig    `mapstructure:"server"`
	History   HistoryConfig   `mapstructure:"history"`
}

type LogConfig struct {
	Level   string        `mapstructure:"level"`
	NoColor bool          `mapstructure:"no_color"`
	Capture logger.Config `mapstructure:"capture"` // backend stdout/stderr files
}

// PathsConfig separates the read-only bundle from writable per-user roots.
type PathsConfig struct {
	BundleDir     string `mapstructure:"bundle_dir"`      // read-only app bundle resources
	UserDataDir   string `mapstructure:"user_data_dir"`   // writable per-user root
	ModelCacheDir string `mapstructure:"model_cache_dir"` // shared hub-style model cache
}

type BackendConfig struct {
	Name                string        `mapstructure:"name"`
	PreferredPort       int           `mapstructure:"preferred_port"`
	HealthPath          string        `mapstructure:"health_path"`
	Script              string        `mapstructure:"script"` // backend entrypoint relative to its workdir
	Args                []string      `mapstructure:"args"`
	Env                 []string      `mapstructure:"env"`
	StartupTimeout      time.Duration `mapstructure:"startup_timeout"`
	StartupPollInterval time.Duration `mapstructure:"startup_poll_interval"`
	MonitorInterval     time.Duration `mapstructure:"monitor_interval"`
	StopTimeout         time.Duration `mapstructure:"stop_timeout"`
	// Development layout only: interpreter on PATH and source workdir.
	DevPython  string `mapstructure:"dev_python"`
	DevWorkDir string `mapstructure:"dev_workdir"`
}

// Resource maps a bundled resource to its writable destination. The paths are
// relative to bundle_dir and user_data_dir respectively.
type Resource struct {
	Name   string `mapstructure:"name"`
	Source string `mapstructure:"source"`
	Dest   string `mapstructure:"dest"`
}

type MigrationConfig struct {
	StagingSuffix string     `mapstructure:"staging_suffix"`
	BundleMarker  string     `mapstructure:"bundle_marker"` // substring identifying in-bundle symlink targets
	RuntimeDir    string     `mapstructure:"runtime_dir"`   // primary resource dir name (bundle and user side)
	RuntimeBinary string     `mapstructure:"runtime_binary"`
	Manifests     []string   `mapstructure:"manifests"` // dependency manifests relative to bundle_dir
	DownloadURL   string     `mapstructure:"download_url"`
	Secondary     []Resource `mapstructure:"secondary"`
}

type ModelAsset struct {
	Name   string `mapstructure:"name"`
	Source string `mapstructure:"source"` // relative to bundle_dir
	Dest   string `mapstructure:"dest"`   // relative to model_cache_dir
}

type ServerConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"` // sqlite file; defaults under user_data_dir
}

// LoadConfig reads a TOML config file and applies defaults.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, err
	}
	c.ApplyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// ApplyDefaults fills zero values with operational defaults.
func (c *Config) ApplyDefaults() {
	if c.AppVersion == "" {
		c.AppVersion = "0.0.0-dev"
	}
	if c.Backend.Name == "" {
		c.Backend.Name = "vox-backend"
	}
	if c.Backend.PreferredPort == 0 {
		c.Backend.PreferredPort = 8000
	}
	if c.Backend.HealthPath == "" {
		c.Backend.HealthPath = "/health"
	}
	if c.Backend.Script == "" {
		c.Backend.Script = "main.py"
	}
	if c.Backend.StartupTimeout <= 0 {
		c.Backend.StartupTimeout = 30 * time.Second
	}
	if c.Backend.StartupPollInterval <= 0 {
		c.Backend.StartupPollInterval = 500 * time.Millisecond
	}
	if c.Backend.MonitorInterval <= 0 {
		c.Backend.MonitorInterval = 10 * time.Second
	}
	if c.Backend.StopTimeout <= 0 {
		c.Backend.StopTimeout = 5 * time.Second
	}
	if c.Backend.DevPython == "" {
		c.Backend.DevPython = "python3"
	}
	if c.Migration.StagingSuffix == "" {
		c.Migration.StagingSuffix = "_new"
	}
	if c.Migration.BundleMarker == "" {
		c.Migration.BundleMarker = "app.asar"
	}
	if c.Migration.RuntimeDir == "" {
		c.Migration.RuntimeDir = "python-runtime"
	}
	if c.Migration.RuntimeBinary == "" {
		c.Migration.RuntimeBinary = filepath.Join("bin", "python3")
	}
	if len(c.Migration.Manifests) == 0 {
		c.Migration.Manifests = []string{"requirements.txt"}
	}
	if c.Server.Addr == "" {
		c.Server.Addr = "127.0.0.1:8099"
	}
	if c.Paths.ModelCacheDir == "" && c.Paths.UserDataDir != "" {
		c.Paths.ModelCacheDir = filepath.Join(c.Paths.UserDataDir, "models")
	}
	if c.History.Enabled && c.History.Path == "" && c.Paths.UserDataDir != "" {
		c.History.Path = filepath.Join(c.Paths.UserDataDir, "voxd-history.db")
	}
	if c.Log.Capture.Dir == "" && c.Paths.UserDataDir != "" {
		c.Log.Capture.Dir = filepath.Join(c.Paths.UserDataDir, "logs")
	}
}

// Validate checks the fields that have no sensible default.
func (c *Config) Validate() error {
	if c.Paths.UserDataDir == "" {
		return fmt.Errorf("paths.user_data_dir is required")
	}
	if !c.DevMode && c.Paths.BundleDir == "" {
		return fmt.Errorf("paths.bundle_dir is required outside dev mode")
	}
	return nil
}

// RuntimeSource returns the bundled primary-resource directory.
func (c *Config) RuntimeSource() string {
	return filepath.Join(c.Paths.BundleDir, c.Migration.RuntimeDir)
}

// RuntimeDest returns the migrated primary-resource directory.
func (c *Config) RuntimeDest() string {
	return filepath.Join(c.Paths.UserDataDir, c.Migration.RuntimeDir)
}
