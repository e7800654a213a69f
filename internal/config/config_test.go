package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "etc", "semcal.yaml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}
	if cfg.Listen != "127.0.0.1:8080" || cfg.Storage.Driver != DriverFile {
		t.Errorf("default config = %+v", cfg)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("config not written: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("config perm = %o, want 600", perm)
	}
}

func TestLoadNormalizesPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "semcal.yaml")
	raw := "listen: \":9090\"\nstorage:\n  driver: bogus\n  query_timeout: soon\nacademic_year: -3\nics:\n  - url: https://example.com/a.ics\n    id: a\n"
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Listen != ":9090" {
		t.Errorf("Listen = %q", cfg.Listen)
	}
	if cfg.Storage.Driver != DriverFile || cfg.QueryTimeout() != 5*time.Second {
		t.Errorf("storage not normalized: %+v", cfg.Storage)
	}
	if cfg.AcademicYear != 0 || cfg.DefaultUser != "local" || cfg.RefreshCron == "" {
		t.Errorf("defaults missing: %+v", cfg)
	}
	if len(cfg.ICS) != 1 || cfg.ICS[0].ID != "a" {
		t.Errorf("ICS = %+v", cfg.ICS)
	}
}

func TestLoadCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "semcal.yaml")
	if err := os.WriteFile(path, []byte("listen: [\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected decode error")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "semcal.yaml")
	cfg := DefaultConfig()
	cfg.AcademicYear = 2025
	cfg.Export.Cron = "0 * * * *"
	cfg.BasicAuth = &BasicAuthConfig{Username: "me", Password: "pw"}
	if err := cfg.Save(path); err != nil {
		t.Fatal(err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.AcademicYear != 2025 || got.Export.Cron != "0 * * * *" || got.BasicAuth == nil || got.BasicAuth.Username != "me" {
		t.Errorf("round trip = %+v", got)
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv(EnvDatabaseDSN, "postgres://u@db/semcal")
	t.Setenv(EnvBasicAuthPassword, "s3cret")

	cfg := DefaultConfig()
	if err := cfg.ApplyEnv(); err != nil {
		t.Fatalf("ApplyEnv() = %v", err)
	}
	if cfg.Storage.DSN != "postgres://u@db/semcal" {
		t.Errorf("DSN = %q", cfg.Storage.DSN)
	}
	if cfg.BasicAuth == nil || cfg.BasicAuth.Password != "s3cret" {
		t.Errorf("BasicAuth = %+v", cfg.BasicAuth)
	}
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("default Validate() = %v", err)
	}
	cfg.Storage.Driver = DriverPostgres
	if err := cfg.Validate(); err == nil {
		t.Error("postgres without dsn should fail")
	}
	cfg.Storage.DSN = "postgres://localhost/semcal"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}
