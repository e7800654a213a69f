package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables that override secrets kept out of the YAML file.
const (
	EnvDatabaseDSN       = "SEMCAL_DATABASE_DSN"
	EnvBasicAuthPassword = "SEMCAL_BASIC_AUTH_PASSWORD"
)

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverFile     = "file"
	DriverPostgres = "postgres"
)

// ICSConfig describes a single ICS subscription source.
type ICSConfig struct {
	// URL is the ICS subscription endpoint.
	URL string `yaml:"url" json:"url"`
	// ID is an internal identifier used for de-dup and logging.
	ID string `yaml:"id" json:"id"`
	// Name is a human-friendly label.
	Name string `yaml:"name" json:"name"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// StorageConfig selects where task records live.
type StorageConfig struct {
	// Driver is one of "memory", "file" or "postgres".
	Driver string `yaml:"driver" json:"driver"`
	// Path is the YAML file used by the file driver.
	Path string `yaml:"path" json:"path"`
	// DSN is the PostgreSQL connection string. Prefer SEMCAL_DATABASE_DSN.
	DSN         string `yaml:"dsn,omitempty" json:"-"`
	AutoMigrate bool   `yaml:"auto_migrate" json:"auto_migrate"`
	// QueryTimeout bounds each database statement (e.g. "5s").
	QueryTimeout string `yaml:"query_timeout" json:"query_timeout"`
}

// ExportConfig controls the periodic ICS export of the default user's
// calendar.
type ExportConfig struct {
	// Cron is a cron schedule; empty disables the job.
	Cron string `yaml:"cron" json:"cron"`
	// Dir receives one <slug>.ics file per export.
	Dir string `yaml:"dir" json:"dir"`
	// Name is the calendar name written into the export.
	Name string `yaml:"name" json:"name"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// LogLevel is one of DEBUG, INFO, WARN, ERROR.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// AcademicYear pins the year a semester starts in. Zero derives it from
	// the current date.
	AcademicYear int `yaml:"academic_year" json:"academic_year"`

	// DefaultUser is the session user when a request does not name one.
	DefaultUser string `yaml:"default_user" json:"default_user"`

	Storage StorageConfig `yaml:"storage" json:"storage"`

	// RefreshCron is the cron schedule for refreshing the ICS feeds.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// CacheDir holds the fetched ICS bodies and their ETags.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	// ICS is the list of subscribed ICS sources shown as read-only tasks.
	ICS []ICSConfig `yaml:"ics" json:"ics"`

	Export ExportConfig `yaml:"export" json:"export"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:      "127.0.0.1:8080",
		LogLevel:    "INFO",
		DefaultUser: "local",
		Storage: StorageConfig{
			Driver:       DriverFile,
			Path:         "./data/tasks.yaml",
			AutoMigrate:  true,
			QueryTimeout: "5s",
		},
		RefreshCron: "*/15 * * * *",
		CacheDir:    "./cache/ics-cache",
		ICS:         []ICSConfig{},
		Export: ExportConfig{
			Dir:  "./data/export",
			Name: "Semester Calendar",
		},
	}
}

// Normalize fills in missing/zero values with defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	def := DefaultConfig()
	if c.Listen == "" {
		c.Listen = def.Listen
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	if c.DefaultUser == "" {
		c.DefaultUser = def.DefaultUser
	}
	switch c.Storage.Driver {
	case DriverMemory, DriverFile, DriverPostgres:
	default:
		c.Storage.Driver = def.Storage.Driver
	}
	if c.Storage.Path == "" {
		c.Storage.Path = def.Storage.Path
	}
	if _, err := time.ParseDuration(c.Storage.QueryTimeout); err != nil {
		c.Storage.QueryTimeout = def.Storage.QueryTimeout
	}
	if c.RefreshCron == "" {
		c.RefreshCron = def.RefreshCron
	}
	if c.CacheDir == "" {
		c.CacheDir = def.CacheDir
	}
	if c.ICS == nil {
		c.ICS = []ICSConfig{}
	}
	if c.Export.Dir == "" {
		c.Export.Dir = def.Export.Dir
	}
	if c.Export.Name == "" {
		c.Export.Name = def.Export.Name
	}
	if c.AcademicYear < 0 {
		c.AcademicYear = 0
	}
}

// QueryTimeout returns the parsed storage query timeout.
func (c *Config) QueryTimeout() time.Duration {
	d, err := time.ParseDuration(c.Storage.QueryTimeout)
	if err != nil {
		return 5 * time.Second
	}
	return d
}

// ApplyEnv overrides secrets from the process environment. A .env file in
// the working directory is read first if present; variables already set in
// the environment win over it.
func (c *Config) ApplyEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("config: load .env: %w", err)
	}
	if dsn := os.Getenv(EnvDatabaseDSN); dsn != "" {
		c.Storage.DSN = dsn
	}
	if pw := os.Getenv(EnvBasicAuthPassword); pw != "" {
		if c.BasicAuth == nil {
			c.BasicAuth = &BasicAuthConfig{}
		}
		c.BasicAuth.Password = pw
	}
	return nil
}

// Validate reports settings that cannot work together.
func (c *Config) Validate() error {
	if c.Storage.Driver == DriverPostgres && c.Storage.DSN == "" {
		return fmt.Errorf("config: storage driver %q needs a dsn (or %s)", DriverPostgres, EnvDatabaseDSN)
	}
	if c.Export.Cron != "" && c.Export.Dir == "" {
		return errors.New("config: export cron set without an export dir")
	}
	return nil
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config is written with 0600
//     perms and returned.
//   - Otherwise the YAML is read and normalized.
//
// Environment overrides are not applied; call ApplyEnv.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes cfg to path atomically (temp file + rename) with 0600
// permissions, creating the parent directory (0700) if needed.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".semcal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save delegates to the package-level Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
