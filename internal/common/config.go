package common

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// BrowserConfigDefaults holds the browser-runtime knobs read from config
// (spec.md §6: `browser.{headless_mode,default_timeout_ms,viewport_width,
// viewport_height,stealth_enabled}`).
type BrowserConfigDefaults struct {
	HeadlessMode     string `yaml:"headless_mode"`
	DefaultTimeoutMS int    `yaml:"default_timeout_ms"`
	ViewportWidth    int    `yaml:"viewport_width"`
	ViewportHeight   int    `yaml:"viewport_height"`
	StealthEnabled   bool   `yaml:"stealth_enabled"`
}

// BackupConfig controls periodic database backups.
type BackupConfig struct {
	Enabled                bool `yaml:"enabled"`
	MaxBackups             int  `yaml:"max_backups"`
	ScheduledIntervalHours int  `yaml:"scheduled_interval_hours"`
}

// MonitoringConfig controls disk-space watermark alerts.
type MonitoringConfig struct {
	DiskWarningMB  int `yaml:"disk_warning_mb"`
	DiskCriticalMB int `yaml:"disk_critical_mb"`
}

// LoggingConfig controls the arbor logger built by SetupLogger.
type LoggingConfig struct {
	Level         string   `yaml:"level"`
	Output        []string `yaml:"output"`
	TimeFormat    string   `yaml:"time_format"`
	MaxFileSizeMB int      `yaml:"max_file_size_mb"`
	MaxFiles      int      `yaml:"max_files"`
}

// RateLimitConfig is a token-bucket-per-domain shape: minimum delay between
// requests, and caps on requests per minute/hour (internal/ratelimit).
type RateLimitConfig struct {
	MinDelayMS         int `yaml:"min_delay_ms"`
	MaxRequestsPerMin  int `yaml:"max_requests_per_minute"`
	MaxRequestsPerHour int `yaml:"max_requests_per_hour"`
}

// Config is the top-level configuration document (spec.md §6).
type Config struct {
	DataDir      string `yaml:"data_dir"`
	ArchiveDir   string `yaml:"archive_dir"`
	DatabasePath string `yaml:"database_path"`

	Backup     BackupConfig          `yaml:"backup"`
	Monitoring MonitoringConfig      `yaml:"monitoring"`
	Logging    LoggingConfig         `yaml:"logging"`
	Browser    BrowserConfigDefaults `yaml:"browser"`

	DefaultRateLimit RateLimitConfig            `yaml:"default_rate_limit"`
	DomainRateLimits map[string]RateLimitConfig `yaml:"domain_rate_limits"`
}

// DefaultConfig returns sane defaults for a fresh install.
func DefaultConfig() *Config {
	return &Config{
		DataDir:      "./data",
		ArchiveDir:   "./data/archive",
		DatabasePath: "./data/netwatch.db",
		Backup: BackupConfig{
			Enabled:                true,
			MaxBackups:             5,
			ScheduledIntervalHours: 24,
		},
		Monitoring: MonitoringConfig{
			DiskWarningMB:  1024,
			DiskCriticalMB: 256,
		},
		Logging: LoggingConfig{
			Level:         "info",
			Output:        []string{"console"},
			TimeFormat:    "15:04:05.000",
			MaxFileSizeMB: 100,
			MaxFiles:      3,
		},
		Browser: BrowserConfigDefaults{
			HeadlessMode:     "new",
			DefaultTimeoutMS: 30000,
			ViewportWidth:    1366,
			ViewportHeight:   900,
			StealthEnabled:   true,
		},
		DefaultRateLimit: RateLimitConfig{
			MinDelayMS:         500,
			MaxRequestsPerMin:  30,
			MaxRequestsPerHour: 600,
		},
		DomainRateLimits: map[string]RateLimitConfig{},
	}
}

// LoadConfig reads path as YAML into DefaultConfig and applies NT_-prefixed
// environment overrides with `__` as the nested-key delimiter (spec.md §6,
// e.g. NT_BROWSER__HEADLESS_MODE=shell).
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("open config %s: %w", path, err)
			}
			// Missing file is not fatal: defaults + env overrides still apply.
		} else {
			defer f.Close()
			if err := yaml.NewDecoder(f).Decode(cfg); err != nil {
				return nil, fmt.Errorf("decode config %s: %w", path, err)
			}
		}
	}

	if err := applyEnvOverrides(cfg, "NT", os.Environ()); err != nil {
		return nil, fmt.Errorf("apply env overrides: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides walks cfg's yaml-tagged fields and sets any whose
// NT_<PATH> env var (path segments joined by __) is present.
func applyEnvOverrides(cfg *Config, prefix string, environ []string) error {
	env := map[string]string{}
	for _, kv := range environ {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) == 2 && strings.HasPrefix(parts[0], prefix+"_") {
			env[parts[0]] = parts[1]
		}
	}
	if len(env) == 0 {
		return nil
	}
	return setFromEnv(reflect.ValueOf(cfg).Elem(), []string{prefix}, env)
}

func setFromEnv(v reflect.Value, pathParts []string, env map[string]string) error {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("yaml")
		name := strings.Split(tag, ",")[0]
		if name == "" || name == "-" {
			name = strings.ToUpper(field.Name)
		}
		key := strings.ToUpper(name)
		childPath := append(append([]string{}, pathParts...), key)

		fv := v.Field(i)
		switch fv.Kind() {
		case reflect.Struct:
			if err := setFromEnv(fv, childPath, env); err != nil {
				return err
			}
		case reflect.String, reflect.Int, reflect.Int64, reflect.Bool, reflect.Slice:
			envKey := strings.Join(childPath, "__")
			raw, ok := env[envKey]
			if !ok {
				continue
			}
			if err := setScalar(fv, raw); err != nil {
				return fmt.Errorf("%s: %w", envKey, err)
			}
		}
	}
	return nil
}

func setScalar(fv reflect.Value, raw string) error {
	switch fv.Kind() {
	case reflect.String:
		fv.SetString(raw)
	case reflect.Int, reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return err
		}
		fv.SetInt(n)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return err
		}
		fv.SetBool(b)
	case reflect.Slice:
		if fv.Type().Elem().Kind() == reflect.String {
			fv.Set(reflect.ValueOf(strings.Split(raw, ",")))
		}
	}
	return nil
}
