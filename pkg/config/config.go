package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the full platform configuration. Values are resolved in
// order: defaults, then the optional YAML file, then environment variables.
type Config struct {
	Environment string `yaml:"environment"`
	Port        int    `yaml:"port"`
	WorkerCount int    `yaml:"worker_count"`
	DataDir     string `yaml:"data_dir"`
	DBPath      string `yaml:"db_path"`
	CacheURL    string `yaml:"cache_url"`
	LogLevel    string `yaml:"log_level"`
	LogJSON     bool   `yaml:"log_json"`

	Session   SessionConfig   `yaml:"session"`
	Autoscale AutoscaleConfig `yaml:"autoscale"`
	Cluster   ClusterConfig   `yaml:"cluster"`
	Drift     DriftConfig     `yaml:"drift"`
	Health    HealthConfig    `yaml:"health"`
}

// SessionConfig controls session lifetimes.
type SessionConfig struct {
	TTL  time.Duration `yaml:"ttl"`
	Idle time.Duration `yaml:"idle"`
}

// AutoscaleConfig holds scaling thresholds and windows.
type AutoscaleConfig struct {
	Min             int           `yaml:"min"`
	Max             int           `yaml:"max"`
	UpperRPS        float64       `yaml:"upper_rps"`
	LowerRPS        float64       `yaml:"lower_rps"`
	UpperP95        time.Duration `yaml:"upper_p95"`
	LowerP95        time.Duration `yaml:"lower_p95"`
	Interval        time.Duration `yaml:"interval"`
	SustainDuration time.Duration `yaml:"sustain_duration"`
	CoolDown        time.Duration `yaml:"cool_down"`
}

// ClusterConfig controls the worker process supervisor.
type ClusterConfig struct {
	DrainTimeout time.Duration `yaml:"drain_timeout"`
}

// DriftConfig selects the default drift detection method.
type DriftConfig struct {
	DefaultMethod string `yaml:"default_method"`
}

// HealthConfig holds thresholds for subordinate health checks.
type HealthConfig struct {
	DiskFreeMinBytes int64         `yaml:"disk_free_min_bytes"`
	BackupMaxAge     time.Duration `yaml:"backup_max_age"`
}

// Default returns the built-in configuration.
func Default() *Config {
	workers := runtime.NumCPU() - 1
	if workers < 1 {
		workers = 1
	}
	return &Config{
		Environment: "development",
		Port:        8080,
		WorkerCount: workers,
		DataDir:     "/var/lib/aerosuite",
		CacheURL:    "localhost:6379",
		LogLevel:    "info",
		LogJSON:     false,
		Session: SessionConfig{
			TTL:  24 * time.Hour,
			Idle: 30 * time.Minute,
		},
		Autoscale: AutoscaleConfig{
			Min:             1,
			Max:             8,
			UpperRPS:        500,
			LowerRPS:        50,
			UpperP95:        500 * time.Millisecond,
			LowerP95:        100 * time.Millisecond,
			Interval:        10 * time.Second,
			SustainDuration: 30 * time.Second,
			CoolDown:        2 * time.Minute,
		},
		Cluster: ClusterConfig{
			DrainTimeout: 10 * time.Second,
		},
		Drift: DriftConfig{
			DefaultMethod: "psi",
		},
		Health: HealthConfig{
			DiskFreeMinBytes: 1 << 30, // 1GiB
			BackupMaxAge:     48 * time.Hour,
		},
	}
}

// Load resolves configuration from the optional YAML file at path (empty
// path skips the file) and the process environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// IsProduction reports whether the config denotes a production environment.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.WorkerCount < 1 {
		return fmt.Errorf("worker count must be at least 1, got %d", c.WorkerCount)
	}
	if c.Autoscale.Min < 1 || c.Autoscale.Max < c.Autoscale.Min {
		return fmt.Errorf("invalid autoscale bounds [%d, %d]", c.Autoscale.Min, c.Autoscale.Max)
	}
	if c.Session.TTL <= 0 || c.Session.Idle <= 0 {
		return fmt.Errorf("session lifetimes must be positive")
	}
	switch c.Drift.DefaultMethod {
	case "psi", "ks", "chi-square":
	default:
		return fmt.Errorf("unknown drift method: %s", c.Drift.DefaultMethod)
	}
	return nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.Environment, "AEROSUITE_ENV")
	setInt(&cfg.Port, "PORT")
	setInt(&cfg.WorkerCount, "WORKER_COUNT")
	setString(&cfg.DataDir, "DATA_DIR")
	setString(&cfg.DBPath, "DB_URL")
	setString(&cfg.CacheURL, "CACHE_URL")
	setString(&cfg.LogLevel, "LOG_LEVEL")

	setSeconds(&cfg.Session.TTL, "SESSION_TTL_SEC")
	setSeconds(&cfg.Session.Idle, "SESSION_IDLE_SEC")

	setInt(&cfg.Autoscale.Min, "AUTOSCALE_MIN")
	setInt(&cfg.Autoscale.Max, "AUTOSCALE_MAX")
	setFloat(&cfg.Autoscale.UpperRPS, "AUTOSCALE_UPPER_RPS")
	setFloat(&cfg.Autoscale.LowerRPS, "AUTOSCALE_LOWER_RPS")
	setMillis(&cfg.Autoscale.UpperP95, "AUTOSCALE_UPPER_P95_MS")
	setMillis(&cfg.Autoscale.LowerP95, "AUTOSCALE_LOWER_P95_MS")

	setSeconds(&cfg.Cluster.DrainTimeout, "DRAIN_TIMEOUT_SEC")
	setString(&cfg.Drift.DefaultMethod, "DRIFT_METHOD_DEFAULT")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setSeconds(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = time.Duration(n) * time.Second
		}
	}
}

func setMillis(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = time.Duration(n) * time.Millisecond
		}
	}
}
