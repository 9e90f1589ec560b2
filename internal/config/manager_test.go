package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleYAML = `
logging:
  level: debug
  console: true
storage:
  driver: sqlite
  path: ./remindd.db
  busy_timeout: 5s
telegram:
  enabled: true
  token: "123:abc"
trigger:
  enabled: true
  timezone: UTC
  task_timeout: 2m
dispatch:
  error_rate_threshold: 0.05
  batch_size: 50
  expire_after: 168h
tasks:
  reminder_sweep:
    enabled: true
    schedule: "*/5 * * * *"
  maintenance:
    enabled: true
    schedule: "@daily"
    routine: store_cleanup
`

func TestParseBytesYAML(t *testing.T) {
	t.Parallel()
	cfg, err := ParseBytes("config.yaml", []byte(sampleYAML))
	if err != nil {
		t.Fatalf("ParseBytes error: %v", err)
	}
	if cfg.Logging.Level != "debug" || !cfg.Logging.Console {
		t.Fatalf("logging = %+v", cfg.Logging)
	}
	if cfg.Storage.Driver != "sqlite" || cfg.Storage.BusyTimeout != "5s" {
		t.Fatalf("storage = %+v", cfg.Storage)
	}
	if cfg.Telegram == nil || cfg.Telegram.Token != "123:abc" {
		t.Fatalf("telegram = %+v", cfg.Telegram)
	}
	if got := cfg.Tasks["maintenance"].Routine; got != "store_cleanup" {
		t.Fatalf("maintenance routine = %q", got)
	}
}

func TestParseBytesJSON(t *testing.T) {
	t.Parallel()
	cfg, err := ParseBytes("config.json", []byte(`{"logging":{"level":"info"},"storage":{"driver":"memory"}}`))
	if err != nil {
		t.Fatalf("ParseBytes error: %v", err)
	}
	if cfg.Logging.Level != "info" || cfg.Storage.Driver != "memory" {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestParseBytesRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	_, err := ParseBytes("config.yaml", []byte("logging:\n  level: info\nshceduler:\n  enabled: true\n"))
	if err == nil {
		t.Fatal("a misspelled top-level key must be rejected, not silently dropped")
	}
	if !strings.Contains(err.Error(), "shceduler") {
		t.Fatalf("error %q does not name the offending field", err)
	}
}

func TestParseBytesRejectsTrailingData(t *testing.T) {
	t.Parallel()
	if _, err := ParseBytes("config.json", []byte(`{"logging":{"level":"info"}} {"extra":1}`)); err == nil {
		t.Fatal("trailing tokens after the document must be rejected")
	}
}

func TestLoadCommitsAndGet(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o644); err != nil {
		t.Fatalf("WriteFile error: %v", err)
	}

	m := NewManager(path)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if got := m.Get(); got != cfg {
		t.Fatal("Get must return the committed config")
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	bad := "telegram:\n  enabled: true\n  token: \"\"\n"
	if err := os.WriteFile(path, []byte(bad), 0o644); err != nil {
		t.Fatalf("WriteFile error: %v", err)
	}

	m := NewManager(path)
	if _, err := m.Load(); err == nil {
		t.Fatal("Load must reject config that fails validation")
	}
	if m.Get() != nil {
		t.Fatal("a failed Load must not commit anything")
	}
}

func TestSubscribePublish(t *testing.T) {
	t.Parallel()
	m := NewManager("unused")
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	first := &Config{}
	second := &Config{Logging: LoggingConfig{Level: "debug"}}
	m.publish(first)
	m.publish(second) // buffer full: the stale config is dropped

	got := <-ch
	if got != second {
		t.Fatalf("subscriber got %+v, want the newest config", got)
	}
}
