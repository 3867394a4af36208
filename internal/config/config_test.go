package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg := LoadConfig(nil)
	if cfg.PipelinePort != "5124" {
		t.Fatalf("PipelinePort = %q, want 5124", cfg.PipelinePort)
	}
	if cfg.LeaseSeconds != DefaultLeaseSeconds {
		t.Fatalf("LeaseSeconds = %d, want %d", cfg.LeaseSeconds, DefaultLeaseSeconds)
	}
	if cfg.LeaseDuration().Seconds() != float64(DefaultLeaseSeconds) {
		t.Fatalf("LeaseDuration mismatch")
	}
	if cfg.TagVelocity == nil {
		t.Fatalf("TagVelocity should default to an empty, non-nil map")
	}
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("PIPELINE_PORT", "9999")
	t.Setenv("LEASE_SECONDS", "120")
	cfg := LoadConfig(nil)
	if cfg.PipelinePort != "9999" {
		t.Fatalf("PipelinePort = %q, want 9999", cfg.PipelinePort)
	}
	if cfg.LeaseSeconds != 120 {
		t.Fatalf("LeaseSeconds = %d, want 120", cfg.LeaseSeconds)
	}
}

func TestLoadConfigFileOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hub.yaml")
	contents := "tag_velocity:\n  fast: 50\n  slow: 2\nscopes:\n  - default\n  - batch\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	t.Setenv("HUB_CONFIG_FILE", path)

	cfg := LoadConfig(nil)
	if cfg.TagVelocity["fast"] != 50 || cfg.TagVelocity["slow"] != 2 {
		t.Fatalf("unexpected tag velocity overlay: %+v", cfg.TagVelocity)
	}
	if len(cfg.Scopes) != 2 || cfg.Scopes[0] != "default" {
		t.Fatalf("unexpected scopes overlay: %+v", cfg.Scopes)
	}
}

func TestPostgresDSN(t *testing.T) {
	cfg := Config{PostgresHost: "db", PostgresPort: "5432", PostgresUser: "u", PostgresPass: "p", PostgresName: "n"}
	dsn := cfg.PostgresDSN()
	if dsn != "host=db port=5432 user=u password=p dbname=n sslmode=disable" {
		t.Fatalf("unexpected DSN: %q", dsn)
	}
}
