package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "boa.toml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

const validConfig = `
[server]
db_path = "/tmp/boa-test.db"
checkpoint_dir = "/tmp/boa-test/checkpoints"
bundle_dir = "/tmp/boa-test/bundles"

[lock]
ttl = "5m"

[jobs]
poll_interval = "2s"
concurrency = 4
stale_max_age = "24h"
keep_completed = 1000
checkpoint_keep = 3

[logging]
level = "info"
format = "text"
`

func TestLoadValidConfig(t *testing.T) {
	path := writeTestConfig(t, validConfig)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.DBPath != "/tmp/boa-test.db" {
		t.Errorf("DBPath = %q, want /tmp/boa-test.db", cfg.Server.DBPath)
	}
	if cfg.Lock.TTL.Duration != 5*time.Minute {
		t.Errorf("Lock.TTL = %v, want 5m", cfg.Lock.TTL.Duration)
	}
	if cfg.Jobs.Concurrency != 4 {
		t.Errorf("Jobs.Concurrency = %d, want 4", cfg.Jobs.Concurrency)
	}
	if cfg.Jobs.PollInterval.Duration != 2*time.Second {
		t.Errorf("Jobs.PollInterval = %v, want 2s", cfg.Jobs.PollInterval.Duration)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Logging.Format = %q, want text", cfg.Logging.Format)
	}
}

func TestLoadAppliesDefaultsForMissingSections(t *testing.T) {
	path := writeTestConfig(t, `
[server]
db_path = "/tmp/boa-test.db"
checkpoint_dir = "/tmp/boa-test/checkpoints"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Jobs.Concurrency != Default().Jobs.Concurrency {
		t.Errorf("expected default concurrency, got %d", cfg.Jobs.Concurrency)
	}
	if cfg.Lock.TTL.Duration != Default().Lock.TTL.Duration {
		t.Errorf("expected default lock ttl, got %v", cfg.Lock.TTL.Duration)
	}
	if cfg.Plugins.DefaultSampler != Default().Plugins.DefaultSampler {
		t.Errorf("expected default sampler, got %q", cfg.Plugins.DefaultSampler)
	}
}

func TestLoadEmptyDBPathInvalid(t *testing.T) {
	path := writeTestConfig(t, `
[server]
db_path = ""
checkpoint_dir = "/tmp/boa-test/checkpoints"
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for empty db_path")
	}
}

func TestLoadNonPositiveLockTTLInvalid(t *testing.T) {
	path := writeTestConfig(t, strings.Replace(validConfig, `ttl = "5m"`, `ttl = "0s"`, 1))
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for non-positive lock ttl")
	}
}

func TestLoadNonPositiveJobConcurrencyInvalid(t *testing.T) {
	path := writeTestConfig(t, strings.Replace(validConfig, "concurrency = 4", "concurrency = 0", 1))
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for non-positive concurrency")
	}
}

func TestLoadInvalidLoggingFormat(t *testing.T) {
	path := writeTestConfig(t, strings.Replace(validConfig, `format = "text"`, `format = "xml"`, 1))
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for unknown logging format")
	}
}

func TestLoadInvalidLoggingLevel(t *testing.T) {
	path := writeTestConfig(t, strings.Replace(validConfig, `level = "info"`, `level = "verbose"`, 1))
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for unknown logging level")
	}
}

func TestLoadAggregatesMultipleIssues(t *testing.T) {
	path := writeTestConfig(t, `
[server]
db_path = ""
checkpoint_dir = ""

[lock]
ttl = "0s"
`)
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected aggregated validation error")
	}
	msg := err.Error()
	for _, want := range []string{"db_path", "checkpoint_dir", "lock.ttl"} {
		if !containsSubstring(msg, want) {
			t.Errorf("expected error to mention %q, got: %v", want, msg)
		}
	}
}

func containsSubstring(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}

func TestDurationUnmarshal(t *testing.T) {
	tests := []struct {
		input string
		want  time.Duration
	}{
		{"60s", 60 * time.Second},
		{"2m", 2 * time.Minute},
		{"1h", time.Hour},
		{"500ms", 500 * time.Millisecond},
	}
	for _, tt := range tests {
		var d Duration
		if err := d.UnmarshalText([]byte(tt.input)); err != nil {
			t.Errorf("UnmarshalText(%q) error: %v", tt.input, err)
			continue
		}
		if d.Duration != tt.want {
			t.Errorf("UnmarshalText(%q) = %v, want %v", tt.input, d.Duration, tt.want)
		}
	}
}

func TestDurationUnmarshalInvalid(t *testing.T) {
	var d Duration
	if err := d.UnmarshalText([]byte("not-a-duration")); err == nil {
		t.Error("expected error for invalid duration")
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory available")
	}
	got := ExpandHome("~/boa/boa.db")
	want := filepath.Join(home, "boa/boa.db")
	if got != want {
		t.Errorf("ExpandHome = %q, want %q", got, want)
	}
	if ExpandHome("/abs/path") != "/abs/path" {
		t.Error("ExpandHome should leave absolute paths untouched")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	cfg := Default()
	clone := cfg.Clone()
	clone.Server.DBPath = "mutated.db"
	if cfg.Server.DBPath == "mutated.db" {
		t.Fatal("mutating a clone should not affect the original")
	}
}
