// Package store is the embedded, single-file history store: append-only
// samples, upserted hourly/daily rollups, a session table, and pruning.
package store

import (
	"database/sql"
	"fmt"
	"os"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS samples (
	timestamp INTEGER PRIMARY KEY,
	battery_percent REAL NOT NULL,
	power_watts REAL NOT NULL,
	cpu_power REAL NOT NULL,
	gpu_power REAL NOT NULL,
	charging_state TEXT NOT NULL,
	external_connected INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_samples_ts ON samples(timestamp);

CREATE TABLE IF NOT EXISTS hourly_stats (
	hour_start INTEGER PRIMARY KEY,
	sum_power REAL NOT NULL,
	max_power REAL NOT NULL,
	min_power REAL NOT NULL,
	sum_battery REAL NOT NULL,
	first_battery REAL NOT NULL,
	first_ts INTEGER NOT NULL,
	last_battery REAL NOT NULL,
	last_ts INTEGER NOT NULL,
	sample_count INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_hourly_ts ON hourly_stats(hour_start);

CREATE TABLE IF NOT EXISTS daily_stats (
	date TEXT PRIMARY KEY,
	sum_power REAL NOT NULL,
	max_power REAL NOT NULL,
	sample_count INTEGER NOT NULL,
	total_energy_wh REAL NOT NULL,
	screen_on_hours REAL NOT NULL,
	charging_hours REAL NOT NULL,
	battery_cycles REAL NOT NULL,
	last_ts INTEGER NOT NULL,
	last_power REAL NOT NULL,
	last_charging INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_daily_date ON daily_stats(date);

CREATE TABLE IF NOT EXISTS daily_top_processes (
	date TEXT NOT NULL,
	process_name TEXT NOT NULL,
	total_impact REAL NOT NULL,
	avg_cpu REAL NOT NULL,
	avg_memory_mb REAL NOT NULL,
	sample_count INTEGER NOT NULL,
	avg_power REAL NOT NULL,
	total_energy_wh REAL NOT NULL,
	PRIMARY KEY (date, process_name)
);
CREATE INDEX IF NOT EXISTS idx_top_procs_date ON daily_top_processes(date);

CREATE TABLE IF NOT EXISTS charge_sessions (
	start_time INTEGER NOT NULL,
	session_type TEXT NOT NULL,
	end_time INTEGER,
	start_percent REAL NOT NULL,
	end_percent REAL,
	energy_wh REAL,
	charger_watts REAL,
	avg_power_watts REAL,
	is_complete INTEGER NOT NULL,
	PRIMARY KEY (start_time, session_type)
);
CREATE INDEX IF NOT EXISTS idx_sessions_start ON charge_sessions(start_time);

CREATE TABLE IF NOT EXISTS daily_cycles (
	date TEXT PRIMARY KEY,
	charge_session_count INTEGER NOT NULL,
	discharge_session_count INTEGER NOT NULL,
	charge_minutes REAL NOT NULL,
	discharge_minutes REAL NOT NULL,
	deepest_discharge_percent REAL NOT NULL,
	energy_in_wh REAL NOT NULL,
	energy_out_wh REAL NOT NULL,
	partial_cycles REAL NOT NULL,
	platform_cycle_count INTEGER,
	avg_temperature_c REAL,
	temp_sample_count INTEGER NOT NULL,
	time_at_high_soc_mins REAL NOT NULL
);
`

// DB wraps a SQLite database holding the daemon's full history. Reads may
// run concurrently; writes are serialized by the sql.DB connection pool the
// same way the teacher's storage.DB relies on SQLite's own locking under
// WAL mode.
type DB struct {
	db   *sql.DB
	path string
}

// Open opens or creates the SQLite database at the given path. A store open
// failure is fatal to the daemon per spec §4.3.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &DB{db: db, path: path}, nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

// Path returns the filesystem path this DB was opened against, so a caller
// that needs to reopen the store after a sustained write failure doesn't
// have to thread the original path through separately.
func (d *DB) Path() string {
	return d.path
}

// Stats is the result of get_stats(): counts, time bounds, and file size.
type Stats struct {
	SampleCount    int64
	OldestSample   *int64
	NewestSample   *int64
	SessionCount   int64
	StoreBytes     int64
}

// GetStats returns counts, oldest/newest sample timestamps, and byte size.
func (d *DB) GetStats() (Stats, error) {
	var s Stats
	row := d.db.QueryRow("SELECT COUNT(*), MIN(timestamp), MAX(timestamp) FROM samples")
	var minTS, maxTS sql.NullInt64
	if err := row.Scan(&s.SampleCount, &minTS, &maxTS); err != nil {
		return Stats{}, fmt.Errorf("query sample stats: %w", err)
	}
	if minTS.Valid {
		v := minTS.Int64
		s.OldestSample = &v
	}
	if maxTS.Valid {
		v := maxTS.Int64
		s.NewestSample = &v
	}
	if err := d.db.QueryRow("SELECT COUNT(*) FROM charge_sessions").Scan(&s.SessionCount); err != nil {
		return Stats{}, fmt.Errorf("query session count: %w", err)
	}
	if info, err := os.Stat(d.path); err == nil {
		s.StoreBytes = info.Size()
	}
	return s, nil
}

// Vacuum reclaims space freed by retention pruning.
func (d *DB) Vacuum() error {
	_, err := d.db.Exec("VACUUM")
	return err
}
