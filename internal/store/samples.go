package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/cptspacemanspiff/jolt/internal/model"
)

func hourStart(ts int64) int64 {
	t := time.Unix(ts, 0).UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, time.UTC).Unix()
}

func dateOf(ts int64) string {
	return time.Unix(ts, 0).UTC().Format("2006-01-02")
}

// InsertSample appends a Sample and upserts the hourly and daily rollups
// derived from it in one transaction (spec §4.3: running aggregates, but
// reads must equal a full recompute over the bucket's samples).
func (d *DB) InsertSample(s model.Sample) error {
	clamped := clampBatteryPercent(s.BatteryPercent)

	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	external := 0
	if s.ExternalConnected {
		external = 1
	}
	if _, err := tx.Exec(
		`INSERT INTO samples (timestamp, battery_percent, power_watts, cpu_power, gpu_power, charging_state, external_connected)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.Timestamp, clamped, s.PowerWatts, s.CPUPower, s.GPUPower, string(s.ChargingState), external,
	); err != nil {
		return fmt.Errorf("insert sample: %w", err)
	}

	if err := upsertHourly(tx, s.Timestamp, clamped, s.PowerWatts); err != nil {
		return fmt.Errorf("upsert hourly: %w", err)
	}
	if err := upsertDaily(tx, s.Timestamp, s.PowerWatts, s.ChargingState == model.StateCharging); err != nil {
		return fmt.Errorf("upsert daily: %w", err)
	}

	return tx.Commit()
}

func upsertHourly(tx *sql.Tx, ts int64, batteryPct, power float64) error {
	hour := hourStart(ts)

	row := tx.QueryRow(`SELECT sum_power, max_power, min_power, sum_battery, first_battery, first_ts,
		last_battery, last_ts, sample_count FROM hourly_stats WHERE hour_start = ?`, hour)
	var sumPower, maxPower, minPower, sumBattery, firstBattery, lastBattery float64
	var firstTS, lastTS, count int64
	err := row.Scan(&sumPower, &maxPower, &minPower, &sumBattery, &firstBattery, &firstTS, &lastBattery, &lastTS, &count)
	switch {
	case err == sql.ErrNoRows:
		_, err = tx.Exec(`INSERT INTO hourly_stats
			(hour_start, sum_power, max_power, min_power, sum_battery, first_battery, first_ts, last_battery, last_ts, sample_count)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`,
			hour, power, power, power, batteryPct, batteryPct, ts, batteryPct, ts)
		return err
	case err != nil:
		return err
	}

	sumPower += power
	if power > maxPower {
		maxPower = power
	}
	if power < minPower {
		minPower = power
	}
	sumBattery += batteryPct
	count++
	if ts < firstTS {
		firstTS, firstBattery = ts, batteryPct
	}
	if ts >= lastTS {
		lastTS, lastBattery = ts, batteryPct
	}

	_, err = tx.Exec(`UPDATE hourly_stats SET sum_power=?, max_power=?, min_power=?, sum_battery=?,
		first_battery=?, first_ts=?, last_battery=?, last_ts=?, sample_count=? WHERE hour_start=?`,
		sumPower, maxPower, minPower, sumBattery, firstBattery, firstTS, lastBattery, lastTS, count, hour)
	return err
}

func upsertDaily(tx *sql.Tx, ts int64, power float64, charging bool) error {
	date := dateOf(ts)

	row := tx.QueryRow(`SELECT sum_power, max_power, sample_count, total_energy_wh, screen_on_hours,
		charging_hours, battery_cycles, last_ts, last_power, last_charging FROM daily_stats WHERE date = ?`, date)
	var sumPower, maxPower, totalEnergy, screenOnHours, chargingHours, batteryCycles, lastPower float64
	var count, lastTS int64
	var lastCharging int
	err := row.Scan(&sumPower, &maxPower, &count, &totalEnergy, &screenOnHours, &chargingHours, &batteryCycles, &lastTS, &lastPower, &lastCharging)
	if err == sql.ErrNoRows {
		// A row that AddBatteryCycles created earlier is found by the SELECT
		// above and takes the UPDATE path below. ON CONFLICT keeps this
		// INSERT from failing if such a row appears after that SELECT, and
		// preserves its battery_cycles rather than clobbering it.
		_, err = tx.Exec(`INSERT INTO daily_stats
			(date, sum_power, max_power, sample_count, total_energy_wh, screen_on_hours, charging_hours,
			 battery_cycles, last_ts, last_power, last_charging)
			VALUES (?, ?, ?, 1, 0, 0, 0, 0, ?, ?, ?)
			ON CONFLICT(date) DO UPDATE SET sum_power=daily_stats.sum_power+excluded.sum_power,
				max_power=MAX(daily_stats.max_power, excluded.max_power),
				sample_count=daily_stats.sample_count+1,
				last_ts=excluded.last_ts, last_power=excluded.last_power, last_charging=excluded.last_charging`,
			date, power, power, ts, power, boolToInt(charging))
		return err
	}
	if err != nil {
		return err
	}

	// Trapezoidal integration of power over the elapsed interval since the
	// day's previous sample, in watt-hours.
	elapsedHours := float64(ts-lastTS) / 3600.0
	if elapsedHours > 0 && elapsedHours < 6 { // guard against cross-restart or cross-day gaps
		totalEnergy += (power + lastPower) / 2 * elapsedHours
		screenOnHours += elapsedHours // no screen-state signal in this core; see DESIGN.md
		if charging && lastCharging != 0 {
			chargingHours += elapsedHours
		}
	}

	sumPower += power
	if power > maxPower {
		maxPower = power
	}
	count++

	_, err = tx.Exec(`UPDATE daily_stats SET sum_power=?, max_power=?, sample_count=?, total_energy_wh=?,
		screen_on_hours=?, charging_hours=?, last_ts=?, last_power=?, last_charging=? WHERE date=?`,
		sumPower, maxPower, count, totalEnergy, screenOnHours, chargingHours, ts, power, boolToInt(charging), date)
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func clampBatteryPercent(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// GetSamples returns samples within [from, to] inclusive, ordered by time.
func (d *DB) GetSamples(from, to int64) ([]model.Sample, error) {
	rows, err := d.db.Query(`SELECT timestamp, battery_percent, power_watts, cpu_power, gpu_power,
		charging_state, external_connected FROM samples WHERE timestamp >= ? AND timestamp <= ? ORDER BY timestamp`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Sample
	for rows.Next() {
		var s model.Sample
		var state string
		var external int
		if err := rows.Scan(&s.Timestamp, &s.BatteryPercent, &s.PowerWatts, &s.CPUPower, &s.GPUPower, &state, &external); err != nil {
			return nil, err
		}
		s.ChargingState = model.ChargingState(state)
		s.ExternalConnected = external != 0
		out = append(out, s)
	}
	return out, rows.Err()
}
