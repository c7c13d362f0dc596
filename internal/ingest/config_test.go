package ingest

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigEmbedded(t *testing.T) {
	t.Setenv("CLEANER_API_KEY", "sk-test")
	t.Setenv("GRANTS_STAGING_DIR", "/var/tmp/staging")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Feed.Source != "grants.gov" {
		t.Errorf("unexpected source %q", cfg.Feed.Source)
	}
	if cfg.Feed.MaxLookbackDays != 7 {
		t.Errorf("unexpected lookback %d", cfg.Feed.MaxLookbackDays)
	}
	if cfg.Feed.StagingDir != "/var/tmp/staging" {
		t.Errorf("staging dir env expansion failed: %q", cfg.Feed.StagingDir)
	}
	if cfg.Cleaner.APIKey != "sk-test" {
		t.Errorf("api key env expansion failed: %q", cfg.Cleaner.APIKey)
	}
}

func TestLoadConfigFileOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	override := `feed:
  source: test-feed
  base_url: http://127.0.0.1:1/extracts
  staging_dir: /tmp/x
cleaner:
  strategy: external
  min_interval_ms: 250
`
	if err := os.WriteFile(path, []byte(override), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Feed.Source != "test-feed" {
		t.Errorf("override not applied, got %q", cfg.Feed.Source)
	}
	if cfg.Feed.MaxLookbackDays != 7 {
		t.Errorf("defaulting skipped for override files, got %d", cfg.Feed.MaxLookbackDays)
	}
	if got := cfg.Cleaner.RateLimiterConfig().MinInterval; got != 250*time.Millisecond {
		t.Errorf("unexpected limiter interval %v", got)
	}
}
