package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Paths.SocketPath != "/run/jolt/daemon.sock" {
		t.Fatalf("unexpected SocketPath: %q", cfg.Paths.SocketPath)
	}
	if cfg.Sampling.SampleIntervalSecs != 2 {
		t.Fatalf("unexpected SampleIntervalSecs: %d", cfg.Sampling.SampleIntervalSecs)
	}
	if cfg.Sampling.MaxSubscribers != 10 {
		t.Fatalf("unexpected MaxSubscribers: %d", cfg.Sampling.MaxSubscribers)
	}
	if cfg.Retention.RawDays != 30 || cfg.Retention.HourlyDays != 180 || cfg.Retention.DailyDays != 0 || cfg.Retention.SessionsDays != 90 {
		t.Fatalf("unexpected retention defaults: %+v", cfg.Retention)
	}
	if cfg.Cycles.DesignCycleCeiling != 1000 {
		t.Fatalf("unexpected DesignCycleCeiling: %v", cfg.Cycles.DesignCycleCeiling)
	}
}

func TestLoad_OverridesAndKeepsDefaults(t *testing.T) {
	path := writeTempConfig(t, `
[paths]
db_path = "/tmp/test.db"

[sampling]
sample_interval_secs = 8
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Paths.DBPath != "/tmp/test.db" {
		t.Fatalf("DBPath = %q, want /tmp/test.db", cfg.Paths.DBPath)
	}
	if cfg.Paths.SocketPath != "/run/jolt/daemon.sock" {
		t.Fatalf("SocketPath = %q, want default", cfg.Paths.SocketPath)
	}
	if cfg.Sampling.SampleIntervalSecs != 8 {
		t.Fatalf("SampleIntervalSecs = %d, want 8", cfg.Sampling.SampleIntervalSecs)
	}
	if cfg.Sampling.MaxSubscribers != 10 {
		t.Fatalf("MaxSubscribers = %d, want default 10", cfg.Sampling.MaxSubscribers)
	}
	if cfg.Retention.RawDays != 30 {
		t.Fatalf("RawDays = %d, want default 30", cfg.Retention.RawDays)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	if err == nil {
		t.Fatal("Load() error = nil, want missing file error")
	}
	if !os.IsNotExist(err) {
		t.Fatalf("Load() error = %v, want not-exist error", err)
	}
}

func TestLoad_InvalidTOML(t *testing.T) {
	path := writeTempConfig(t, "not = [valid")
	_, err := Load(path)
	if err == nil {
		t.Fatal("Load() error = nil, want TOML parse error")
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name       string
		contents   string
		wantErrSub string
	}{
		{
			name: "sample_interval_secs out of range",
			contents: `
[sampling]
sample_interval_secs = 0
`,
			wantErrSub: "sampling.sample_interval_secs must be between",
		},
		{
			name: "broadcast_interval_ms out of range",
			contents: `
[sampling]
broadcast_interval_ms = 1
`,
			wantErrSub: "sampling.broadcast_interval_ms must be between",
		},
		{
			name: "max_subscribers out of range",
			contents: `
[sampling]
max_subscribers = 0
`,
			wantErrSub: "sampling.max_subscribers must be between",
		},
		{
			name: "retention_raw_days out of range",
			contents: `
[retention]
retention_raw_days = -1
`,
			wantErrSub: "retention.retention_raw_days must be between",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeTempConfig(t, tt.contents)
			_, err := Load(path)
			if err == nil {
				t.Fatalf("Load() error = nil, want error containing %q", tt.wantErrSub)
			}
			if !strings.Contains(err.Error(), tt.wantErrSub) {
				t.Fatalf("Load() error = %q, want contains %q", err.Error(), tt.wantErrSub)
			}
		})
	}
}

func TestSave_RoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Sampling.SampleIntervalSecs = 5
	path := filepath.Join(t.TempDir(), "subdir", "config.toml")

	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load() after Save() error = %v", err)
	}
	if got.Sampling.SampleIntervalSecs != 5 {
		t.Fatalf("SampleIntervalSecs = %d, want 5", got.Sampling.SampleIntervalSecs)
	}
}
