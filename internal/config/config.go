// Package config loads and validates client configuration from YAML files
// and environment variables.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root client configuration.
type Config struct {
	Client        ClientConfig             `yaml:"client"`
	Tenant        TenantConfig             `yaml:"tenant"`
	Services      map[string]ServiceConfig `yaml:"services"`
	Storage       StorageConfig            `yaml:"storage"`
	Query         QueryConfig              `yaml:"query"`
	Observability ObservabilityConfig      `yaml:"observability"`
}

// ClientConfig describes the shared HTTP client.
type ClientConfig struct {
	Timeout    time.Duration `yaml:"timeout"`
	LoginRoute string        `yaml:"login_route"`
	UserAgent  string        `yaml:"user_agent"`
}

// TenantConfig identifies the tenant the client acts for.
type TenantConfig struct {
	ID          string `yaml:"id"`
	PartitionID string `yaml:"partition_id"`
}

// ServiceConfig describes one backend module. BaseURL may contain the
// {tenant} placeholder.
type ServiceConfig struct {
	BaseURL string `yaml:"base_url"`
}

// StorageConfig describes where client-local state is persisted.
type StorageConfig struct {
	Driver  string `yaml:"driver"`
	Path    string `yaml:"path"`
	Profile string `yaml:"profile"`
	AddrEnv string `yaml:"addr_env"`
	DB      int    `yaml:"db"`
	DSNEnv  string `yaml:"dsn_env"`
}

// QueryConfig describes the cached query layer.
type QueryConfig struct {
	StaleTime  time.Duration `yaml:"stale_time"`
	GCTime     time.Duration `yaml:"gc_time"`
	MaxEntries int           `yaml:"max_entries"`
}

// ObservabilityConfig describes logging, tracing, and metrics settings.
type ObservabilityConfig struct {
	LogLevel string        `yaml:"log_level"`
	Tracing  TracingConfig `yaml:"tracing"`
	Metrics  MetricsConfig `yaml:"metrics"`
}

// TracingConfig describes distributed tracing settings.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"sampling_rate"`
}

// MetricsConfig describes Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Supported storage drivers.
const (
	StorageMemory   = "memory"
	StorageFile     = "file"
	StorageRedis    = "redis"
	StoragePostgres = "postgres"
)

// Defaults returns a Config with sensible default values.
func Defaults() *Config {
	return &Config{
		Client: ClientConfig{
			Timeout:    10 * time.Second,
			LoginRoute: "/login",
			UserAgent:  "suitekit",
		},
		Services: map[string]ServiceConfig{},
		Storage: StorageConfig{
			Driver:  StorageFile,
			Path:    defaultStoragePath(),
			Profile: "default",
			AddrEnv: "SUITEKIT_REDIS_ADDR",
			DSNEnv:  "SUITEKIT_STORAGE_DSN",
		},
		Query: QueryConfig{
			StaleTime:  5 * time.Minute,
			GCTime:     30 * time.Minute,
			MaxEntries: 1000,
		},
		Observability: ObservabilityConfig{
			LogLevel: "info",
			Tracing: TracingConfig{
				Exporter:     "otlp",
				SamplingRate: 0.1,
			},
		},
	}
}

func defaultStoragePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "suitekit", "storage.json")
}

// Load reads a YAML config file, applies environment variable overrides,
// and validates required fields. A missing file is not an error when path
// is empty.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required fields are present and valid.
func (c *Config) Validate() error {
	var errs []string

	if c.Client.Timeout <= 0 {
		errs = append(errs, "client.timeout must be positive")
	}
	if !strings.HasPrefix(c.Client.LoginRoute, "/") {
		errs = append(errs, "client.login_route must be an absolute path")
	}
	if len(c.Services) == 0 {
		errs = append(errs, "at least one service is required")
	}
	for name, svc := range c.Services {
		if svc.BaseURL == "" {
			errs = append(errs, fmt.Sprintf("services.%s.base_url is required", name))
			continue
		}
		probe := strings.ReplaceAll(svc.BaseURL, "{tenant}", "tenant")
		u, err := url.Parse(probe)
		if err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Sprintf("services.%s.base_url must be an absolute URL", name))
		}
	}

	switch c.Storage.Driver {
	case StorageMemory, StorageRedis, StoragePostgres:
	case StorageFile:
		if c.Storage.Path == "" {
			errs = append(errs, "storage.path is required for the file driver")
		}
	default:
		errs = append(errs, fmt.Sprintf("unsupported storage.driver %q", c.Storage.Driver))
	}

	if c.Query.StaleTime < 0 {
		errs = append(errs, "query.stale_time must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// applyEnvOverrides reads SUITEKIT_* environment variables and overrides
// config values. Only the most commonly overridden fields are supported.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SUITEKIT_TENANT"); v != "" {
		cfg.Tenant.ID = v
	}
	if v := os.Getenv("SUITEKIT_LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}
	if v := os.Getenv("SUITEKIT_STORAGE_DRIVER"); v != "" {
		cfg.Storage.Driver = v
	}
	if v := os.Getenv("SUITEKIT_STORAGE_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("SUITEKIT_CLIENT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Client.Timeout = d
		}
	}
}
