// Package config loads, validates, and saves the daemon's TOML config file,
// following the teacher's load/validate/save shape (DefaultConfig,
// NormalizeAndValidate, atomic-rename Save) with a field set generalized to
// this daemon's paths, sampling cadence, retention TTLs, and cycle policy.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

const (
	minSampleIntervalSecs = 1
	maxSampleIntervalSecs = 3600
	minBroadcastMs        = 500
	maxBroadcastMs        = 10_000
	minRetentionDays      = 0 // 0 means "keep forever"
	maxRetentionDays      = 3650
	minMaxSubscribers     = 1
	maxMaxSubscribers     = 1000
	minSubscriberQueue    = 1
	maxSubscriberQueue    = 10_000
	minDatabaseMB         = 1
	maxDatabaseMB         = 1_000_000
	minDesignCycles       = 1
	maxDesignCycles       = 100_000
)

// Config is the daemon's full runtime configuration (spec §6's config
// surface, plus the paths spec §6 names as external inputs).
type Config struct {
	Paths     PathsConfig     `toml:"paths"`
	Sampling  SamplingConfig  `toml:"sampling"`
	Retention RetentionConfig `toml:"retention"`
	Cycles    CyclesConfig    `toml:"cycles"`
}

// PathsConfig holds every file the daemon exclusively owns while running.
type PathsConfig struct {
	SocketPath string `toml:"socket_path"`
	PIDPath    string `toml:"pid_path"`
	LogPath    string `toml:"log_path"`
	DBPath     string `toml:"db_path"`
}

// SamplingConfig controls the sampler's tick cadence and subscriber
// fan-out limits. The sampler ticks, persists, and broadcasts at
// BroadcastIntervalMs, which SetBroadcastInterval adjusts at runtime.
// SampleIntervalSecs is a separate value, read once at startup as the
// analyzer's stall-detection interval; it does not follow
// SetBroadcastInterval.
type SamplingConfig struct {
	SampleIntervalSecs  int  `toml:"sample_interval_secs"`
	BroadcastIntervalMs int  `toml:"broadcast_interval_ms"`
	MaxSubscribers      int  `toml:"max_subscribers"`
	SubscriberQueueSize int  `toml:"subscriber_queue_size"`
	BackgroundRecording bool `toml:"background_recording"`
}

// RetentionConfig holds the per-table TTLs and database size ceiling
// applied by the retention sweep.
type RetentionConfig struct {
	RawDays           int `toml:"retention_raw_days"`
	HourlyDays        int `toml:"retention_hourly_days"`
	DailyDays         int `toml:"retention_daily_days"`
	SessionsDays      int `toml:"retention_sessions_days"`
	MaxDatabaseMB     int `toml:"max_database_mb"`
	SweepIntervalMins int `toml:"sweep_interval_mins"`
}

// CyclesConfig holds the battery-lifetime policy knobs that have no
// natural platform-reported source (spec §9's second open question).
type CyclesConfig struct {
	DesignCycleCeiling float64 `toml:"design_cycle_ceiling"`
}

// DefaultConfig mirrors spec §6 and §4.3/§4.7's stated defaults.
func DefaultConfig() *Config {
	return &Config{
		Paths: PathsConfig{
			SocketPath: "/run/jolt/daemon.sock",
			PIDPath:    "/run/jolt/daemon.pid",
			LogPath:    "/var/cache/jolt/daemon.log",
			DBPath:     "/var/lib/jolt/history.db",
		},
		Sampling: SamplingConfig{
			SampleIntervalSecs:  2,
			BroadcastIntervalMs: 2000,
			MaxSubscribers:      10,
			SubscriberQueueSize: 64,
			BackgroundRecording: true,
		},
		Retention: RetentionConfig{
			RawDays:           30,
			HourlyDays:        180,
			DailyDays:         0,
			SessionsDays:      90,
			MaxDatabaseMB:     512,
			SweepIntervalMins: 60,
		},
		Cycles: CyclesConfig{
			DesignCycleCeiling: 1000,
		},
	}
}

// Load reads and validates a TOML config file, defaulting any field the
// file doesn't set.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return NormalizeAndValidate(cfg)
}

// rangeCheck is one row in the table NormalizeAndValidate walks for every
// integer tunable with a configured [min, max]; a new bounded field means a
// new row here, not another copy of the comparison.
type rangeCheck struct {
	name     string
	value    int
	min, max int
}

func (r rangeCheck) validate() error {
	if r.value < r.min || r.value > r.max {
		return fmt.Errorf("%s must be between %d and %d, got %d", r.name, r.min, r.max, r.value)
	}
	return nil
}

// NormalizeAndValidate cleans paths and range-checks the sampling,
// retention-day, database-size, and cycle-ceiling tunables.
// retention.sweep_interval_mins is not range-checked.
func NormalizeAndValidate(cfg *Config) (*Config, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	out := *cfg

	for _, pf := range []struct {
		name string
		ptr  *string
	}{
		{"paths.socket_path", &out.Paths.SocketPath},
		{"paths.pid_path", &out.Paths.PIDPath},
		{"paths.log_path", &out.Paths.LogPath},
		{"paths.db_path", &out.Paths.DBPath},
	} {
		cleaned, err := requireAbsPath(pf.name, *pf.ptr)
		if err != nil {
			return nil, err
		}
		*pf.ptr = cleaned
	}

	checks := []rangeCheck{
		{"sampling.sample_interval_secs", out.Sampling.SampleIntervalSecs, minSampleIntervalSecs, maxSampleIntervalSecs},
		{"sampling.broadcast_interval_ms", out.Sampling.BroadcastIntervalMs, minBroadcastMs, maxBroadcastMs},
		{"sampling.max_subscribers", out.Sampling.MaxSubscribers, minMaxSubscribers, maxMaxSubscribers},
		{"sampling.subscriber_queue_size", out.Sampling.SubscriberQueueSize, minSubscriberQueue, maxSubscriberQueue},
		{"retention.retention_raw_days", out.Retention.RawDays, minRetentionDays, maxRetentionDays},
		{"retention.retention_hourly_days", out.Retention.HourlyDays, minRetentionDays, maxRetentionDays},
		{"retention.retention_daily_days", out.Retention.DailyDays, minRetentionDays, maxRetentionDays},
		{"retention.retention_sessions_days", out.Retention.SessionsDays, minRetentionDays, maxRetentionDays},
		{"retention.max_database_mb", out.Retention.MaxDatabaseMB, minDatabaseMB, maxDatabaseMB},
	}
	for _, c := range checks {
		if err := c.validate(); err != nil {
			return nil, err
		}
	}

	if out.Cycles.DesignCycleCeiling < minDesignCycles || out.Cycles.DesignCycleCeiling > maxDesignCycles {
		return nil, fmt.Errorf("cycles.design_cycle_ceiling must be between %d and %d, got %v", minDesignCycles, maxDesignCycles, out.Cycles.DesignCycleCeiling)
	}

	return &out, nil
}

// Save encodes cfg as TOML and replaces path with the result, routing the
// write through atomicWriteFile so a crash mid-write, or a reader racing
// the write, never observes a truncated config file.
func Save(path string, cfg *Config) error {
	trimmedPath := strings.TrimSpace(path)
	if trimmedPath == "" {
		return fmt.Errorf("config path must not be empty")
	}

	sanitized, err := NormalizeAndValidate(cfg)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(sanitized); err != nil {
		return fmt.Errorf("encode config TOML: %w", err)
	}

	return atomicWriteFile(trimmedPath, buf.Bytes(), 0o644)
}

// atomicWriteFile writes data to a fresh temp file beside path and renames
// it over path, so a reader only ever sees the old or the new contents.
func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".config-*.toml")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			os.Remove(tmp.Name())
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename temp file into place: %w", err)
	}

	committed = true
	return nil
}

// requireAbsPath trims value, rejects it if empty, and cleans it into an
// absolute path: every configured path here is handed straight to an
// open()/bind() call that won't resolve a relative one for us.
func requireAbsPath(name, value string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", fmt.Errorf("%s: must not be empty", name)
	}
	cleaned := filepath.Clean(trimmed)
	if !filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("%s: must be an absolute path, got %q", name, value)
	}
	return cleaned, nil
}
