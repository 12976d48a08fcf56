package store

import "time"

// DeleteSamplesBefore removes raw samples older than cutoff (unix seconds).
func (d *DB) DeleteSamplesBefore(cutoff int64) (int64, error) {
	res, err := d.db.Exec("DELETE FROM samples WHERE timestamp < ?", cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteHourlyStatsBefore removes hourly rollups older than cutoff.
func (d *DB) DeleteHourlyStatsBefore(cutoff int64) (int64, error) {
	res, err := d.db.Exec("DELETE FROM hourly_stats WHERE hour_start < ?", cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteDailyStatsBefore removes daily rollups for dates before cutoff
// (YYYY-MM-DD, exclusive).
func (d *DB) DeleteDailyStatsBefore(cutoff string) (int64, error) {
	res, err := d.db.Exec("DELETE FROM daily_stats WHERE date < ?", cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteDailyProcessesBefore removes top-process rows for dates before cutoff.
func (d *DB) DeleteDailyProcessesBefore(cutoff string) (int64, error) {
	res, err := d.db.Exec("DELETE FROM daily_top_processes WHERE date < ?", cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteSessionsBefore removes charge sessions started before cutoff.
func (d *DB) DeleteSessionsBefore(cutoff int64) (int64, error) {
	res, err := d.db.Exec("DELETE FROM charge_sessions WHERE start_time < ?", cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteDailyCyclesBefore removes cycle rows for dates before cutoff.
func (d *DB) DeleteDailyCyclesBefore(cutoff string) (int64, error) {
	res, err := d.db.Exec("DELETE FROM daily_cycles WHERE date < ?", cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// RetentionPolicy is the set of per-table TTLs applied by ApplyRetention,
// expressed as day counts from the retention sweep's reference time (spec
// §4.3: each table ages out independently).
type RetentionPolicy struct {
	RawDays      int
	HourlyDays   int
	DailyDays    int
	SessionsDays int
}

// RetentionResult reports how many rows each sweep removed, for logging and
// the daemon's operational metrics.
type RetentionResult struct {
	SamplesDeleted    int64
	HourlyDeleted     int64
	DailyDeleted      int64
	ProcessesDeleted  int64
	SessionsDeleted   int64
	CyclesDeleted     int64
}

// ApplyRetention prunes samples (RawDays), hourly_stats (HourlyDays),
// charge_sessions (SessionsDays), and daily_stats, daily_top_processes and
// daily_cycles (all three by DailyDays), relative to now; a zero day count
// skips its tables. It is idempotent: running it again immediately deletes nothing
// further (spec scenario S5). Vacuum is the caller's decision, since it
// locks the whole database and is normally only worth running after a
// sweep actually freed a meaningful number of rows.
func (d *DB) ApplyRetention(now time.Time, p RetentionPolicy) (RetentionResult, error) {
	var res RetentionResult
	var err error

	if p.RawDays > 0 {
		cutoff := now.Add(-time.Duration(p.RawDays) * 24 * time.Hour).Unix()
		if res.SamplesDeleted, err = d.DeleteSamplesBefore(cutoff); err != nil {
			return res, err
		}
	}
	if p.HourlyDays > 0 {
		cutoff := now.Add(-time.Duration(p.HourlyDays) * 24 * time.Hour).Unix()
		if res.HourlyDeleted, err = d.DeleteHourlyStatsBefore(cutoff); err != nil {
			return res, err
		}
	}
	if p.DailyDays > 0 {
		cutoff := now.Add(-time.Duration(p.DailyDays) * 24 * time.Hour).Format("2006-01-02")
		if res.DailyDeleted, err = d.DeleteDailyStatsBefore(cutoff); err != nil {
			return res, err
		}
		if res.ProcessesDeleted, err = d.DeleteDailyProcessesBefore(cutoff); err != nil {
			return res, err
		}
		if res.CyclesDeleted, err = d.DeleteDailyCyclesBefore(cutoff); err != nil {
			return res, err
		}
	}
	if p.SessionsDays > 0 {
		cutoff := now.Add(-time.Duration(p.SessionsDays) * 24 * time.Hour).Unix()
		if res.SessionsDeleted, err = d.DeleteSessionsBefore(cutoff); err != nil {
			return res, err
		}
	}
	return res, nil
}
