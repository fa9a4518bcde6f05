package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rpattn/rollcall/internal/fetch"
)

func TestLoadDefaultsWithoutConfigFile(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("load returned error: %v", err)
	}

	if cfg.Database.Host != "localhost" || cfg.Database.Port != 5432 {
		t.Fatalf("unexpected database defaults: %+v", cfg.Database)
	}
	if cfg.Source.BaseURL != fetch.DefaultBaseURL || cfg.Source.Timeout != 30*time.Second {
		t.Fatalf("unexpected source defaults: %+v", cfg.Source)
	}
	if cfg.Ingest.Workers != 4 || cfg.Log.Format != "json" || cfg.Server.Addr != ":8080" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadLayersFileAndEnvironment(t *testing.T) {
	dir := t.TempDir()
	contents := `database:
  host: db.internal
  dbname: votes
source:
  timeout: 5s
  retry:
    max_attempts: 7
ingest:
  workers: 8
  year: 2023
`
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(contents), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	t.Setenv("ROLLCALL_DATABASE_HOST", "db.override")
	t.Setenv("ROLLCALL_LOG_LEVEL", "debug")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("load returned error: %v", err)
	}

	if cfg.Database.Host != "db.override" {
		t.Fatalf("expected env to override file, got %q", cfg.Database.Host)
	}
	if cfg.Database.DBName != "votes" {
		t.Fatalf("expected file value for dbname, got %q", cfg.Database.DBName)
	}
	if cfg.Source.Timeout != 5*time.Second || cfg.Source.Retry.MaxAttempts != 7 {
		t.Fatalf("unexpected source config: %+v", cfg.Source)
	}
	if cfg.Ingest.Workers != 8 || cfg.Ingest.Year != 2023 {
		t.Fatalf("unexpected ingest config: %+v", cfg.Ingest)
	}
	if cfg.Log.Level != "debug" {
		t.Fatalf("expected env log level, got %q", cfg.Log.Level)
	}
}

func TestLoadRejectsInvalidConfigFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("database: [unterminated"), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	if _, err := Load(dir); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestRetryPolicyFallsBackToDefaults(t *testing.T) {
	policy := RetryConfig{MaxAttempts: 5}.RetryPolicy()
	backoff, ok := policy.(*fetch.ExponentialBackoff)
	if !ok {
		t.Fatalf("expected exponential backoff, got %T", policy)
	}
	if backoff.MaxAttempts != 5 || backoff.InitialDelay != fetch.DefaultRetryPolicy().InitialDelay {
		t.Fatalf("unexpected policy: %+v", backoff)
	}
}
