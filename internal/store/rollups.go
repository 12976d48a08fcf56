package store

import (
	"github.com/cptspacemanspiff/jolt/internal/model"
)

// GetHourlyStats returns one HourlyRollup per hour bucket in [from, to].
func (d *DB) GetHourlyStats(from, to int64) ([]model.HourlyRollup, error) {
	rows, err := d.db.Query(`SELECT hour_start, sum_power, max_power, min_power, sum_battery,
		first_battery, last_battery, sample_count FROM hourly_stats
		WHERE hour_start >= ? AND hour_start <= ? ORDER BY hour_start`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.HourlyRollup
	for rows.Next() {
		var r model.HourlyRollup
		var sumPower, sumBattery, firstBattery, lastBattery float64
		var count int64
		if err := rows.Scan(&r.HourStart, &sumPower, &r.MaxPower, &r.MinPower, &sumBattery, &firstBattery, &lastBattery, &count); err != nil {
			return nil, err
		}
		r.SampleCount = count
		if count > 0 {
			r.AvgPower = sumPower / float64(count)
			r.AvgBattery = sumBattery / float64(count)
		}
		r.BatteryDelta = lastBattery - firstBattery
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetDailyStats returns one DailyRollup per UTC date in [from, to] inclusive.
func (d *DB) GetDailyStats(from, to string) ([]model.DailyRollup, error) {
	rows, err := d.db.Query(`SELECT date, sum_power, max_power, sample_count, total_energy_wh,
		screen_on_hours, charging_hours, battery_cycles FROM daily_stats
		WHERE date >= ? AND date <= ? ORDER BY date`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.DailyRollup
	for rows.Next() {
		var r model.DailyRollup
		var sumPower float64
		var count int64
		if err := rows.Scan(&r.Date, &sumPower, &r.MaxPower, &count, &r.TotalEnergyWh, &r.ScreenOnHours, &r.ChargingHours, &r.BatteryCycles); err != nil {
			return nil, err
		}
		if count > 0 {
			r.AvgPower = sumPower / float64(count)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// AddBatteryCycles increments the given date's battery_cycles field, called
// by the analyzer when a discharge session closes (spec invariant 5: partial
// cycles are monotonic within a day).
func (d *DB) AddBatteryCycles(date string, delta float64) error {
	res, err := d.db.Exec(`UPDATE daily_stats SET battery_cycles = battery_cycles + ? WHERE date = ?`, delta, date)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		_, err = d.db.Exec(`INSERT INTO daily_stats
			(date, sum_power, max_power, sample_count, total_energy_wh, screen_on_hours, charging_hours,
			 battery_cycles, last_ts, last_power, last_charging)
			VALUES (?, 0, 0, 0, 0, 0, 0, ?, 0, 0, 0)`, date, delta)
	}
	return err
}
