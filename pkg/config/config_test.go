package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestGetDurationAcceptsSecondsAndDurations(t *testing.T) {
	t.Setenv("TEST_DURATION_SECONDS", "15")
	t.Setenv("TEST_DURATION_STRING", "750ms")
	t.Setenv("TEST_DURATION_BAD", "soon")

	if got := GetDuration("TEST_DURATION_SECONDS", time.Second); got != 15*time.Second {
		t.Fatalf("expected 15s, got %s", got)
	}
	if got := GetDuration("TEST_DURATION_STRING", time.Second); got != 750*time.Millisecond {
		t.Fatalf("expected 750ms, got %s", got)
	}
	if got := GetDuration("TEST_DURATION_BAD", time.Second); got != time.Second {
		t.Fatalf("expected fallback, got %s", got)
	}
	if got := GetDuration("TEST_DURATION_UNSET", 3*time.Second); got != 3*time.Second {
		t.Fatalf("expected fallback for unset, got %s", got)
	}
}

func TestGetIntAndBoolFallback(t *testing.T) {
	t.Setenv("TEST_INT", "x")
	t.Setenv("TEST_BOOL", "yes please")
	if got := GetInt("TEST_INT", 7); got != 7 {
		t.Fatalf("expected fallback 7, got %d", got)
	}
	if got := GetBool("TEST_BOOL", true); !got {
		t.Fatal("expected fallback true")
	}
}

func TestGetList(t *testing.T) {
	t.Setenv("TEST_LIST", " https://a.example.com, ,https://b.example.com ")
	got := GetList("TEST_LIST", nil)
	if len(got) != 2 || got[0] != "https://a.example.com" || got[1] != "https://b.example.com" {
		t.Fatalf("unexpected list %q", got)
	}
}

func TestLoadTrackerConfigLayersFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tracker.yaml")
	doc := strings.Join([]string{
		"addr: \":7000\"",
		"data_source: SQLite",
		"sqlite_path: /var/lib/tracker.db",
		"hub_max_inflight: 4",
		"hub_write_timeout: 3s",
		"allowed_origins:",
		"  - https://tracker.example.com",
	}, "\n")
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("TRACKER_ADDR", ":7100")

	cfg, err := LoadTrackerConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":7100" {
		t.Fatalf("expected env to win for addr, got %q", cfg.Addr)
	}
	if cfg.DataSource != DataSourceSQLite || cfg.SQLitePath != "/var/lib/tracker.db" {
		t.Fatalf("unexpected data source %q path %q", cfg.DataSource, cfg.SQLitePath)
	}
	if cfg.HubMaxInflight != 4 || cfg.HubWriteTimeout != 3*time.Second {
		t.Fatalf("unexpected hub settings %d %s", cfg.HubMaxInflight, cfg.HubWriteTimeout)
	}
	if len(cfg.AllowedOrigins) != 1 {
		t.Fatalf("unexpected origins %q", cfg.AllowedOrigins)
	}
	if cfg.RateLimitWebsocket != 30 {
		t.Fatalf("expected default rate limit to survive, got %d", cfg.RateLimitWebsocket)
	}
}

func TestLoadTrackerConfigRejectsUnknownDataSource(t *testing.T) {
	t.Setenv("DATA_SOURCE", "mongo")
	if _, err := LoadTrackerConfig(""); err == nil || !strings.Contains(err.Error(), "mongo") {
		t.Fatalf("expected unknown data source error, got %v", err)
	}
}

func TestLoadTrackerConfigMissingFile(t *testing.T) {
	if _, err := LoadTrackerConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
