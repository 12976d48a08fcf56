package store

import (
	"database/sql"

	"github.com/cptspacemanspiff/jolt/internal/model"
)

// UpsertDailyCycle inserts or replaces a day's cycle aggregate.
func (d *DB) UpsertDailyCycle(c model.DailyCycle) error {
	var tempSampleCount int
	if c.AvgTemperatureC != nil {
		tempSampleCount = 1
	}
	_, err := d.db.Exec(`INSERT INTO daily_cycles
		(date, charge_session_count, discharge_session_count, charge_minutes, discharge_minutes,
		 deepest_discharge_percent, energy_in_wh, energy_out_wh, partial_cycles, platform_cycle_count,
		 avg_temperature_c, temp_sample_count, time_at_high_soc_mins)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(date) DO UPDATE SET
			charge_session_count=excluded.charge_session_count,
			discharge_session_count=excluded.discharge_session_count,
			charge_minutes=excluded.charge_minutes, discharge_minutes=excluded.discharge_minutes,
			deepest_discharge_percent=excluded.deepest_discharge_percent,
			energy_in_wh=excluded.energy_in_wh, energy_out_wh=excluded.energy_out_wh,
			partial_cycles=excluded.partial_cycles, platform_cycle_count=excluded.platform_cycle_count,
			avg_temperature_c=excluded.avg_temperature_c, temp_sample_count=excluded.temp_sample_count,
			time_at_high_soc_mins=excluded.time_at_high_soc_mins`,
		c.Date, c.ChargeSessionCount, c.DischargeSessionCount, c.ChargeMinutes, c.DischargeMinutes,
		c.DeepestDischargePct, c.EnergyInWh, c.EnergyOutWh, c.PartialCycles, c.PlatformCycleCount,
		c.AvgTemperatureC, tempSampleCount, c.TimeAtHighSoCMins)
	return err
}

// GetDailyCycle returns a single day's cycle row, or nil if absent.
func (d *DB) GetDailyCycle(date string) (*model.DailyCycle, error) {
	rows, err := d.db.Query(`SELECT date, charge_session_count, discharge_session_count, charge_minutes,
		discharge_minutes, deepest_discharge_percent, energy_in_wh, energy_out_wh, partial_cycles,
		platform_cycle_count, avg_temperature_c, time_at_high_soc_mins FROM daily_cycles WHERE date = ?`, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	cycles, err := scanDailyCycles(rows)
	if err != nil || len(cycles) == 0 {
		return nil, err
	}
	return &cycles[0], nil
}

// GetDailyCycles returns cycle rows in [from, to] inclusive.
func (d *DB) GetDailyCycles(from, to string) ([]model.DailyCycle, error) {
	rows, err := d.db.Query(`SELECT date, charge_session_count, discharge_session_count, charge_minutes,
		discharge_minutes, deepest_discharge_percent, energy_in_wh, energy_out_wh, partial_cycles,
		platform_cycle_count, avg_temperature_c, time_at_high_soc_mins FROM daily_cycles
		WHERE date >= ? AND date <= ? ORDER BY date`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDailyCycles(rows)
}

func scanDailyCycles(rows *sql.Rows) ([]model.DailyCycle, error) {
	var out []model.DailyCycle
	for rows.Next() {
		var c model.DailyCycle
		if err := rows.Scan(&c.Date, &c.ChargeSessionCount, &c.DischargeSessionCount, &c.ChargeMinutes,
			&c.DischargeMinutes, &c.DeepestDischargePct, &c.EnergyInWh, &c.EnergyOutWh, &c.PartialCycles,
			&c.PlatformCycleCount, &c.AvgTemperatureC, &c.TimeAtHighSoCMins); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetCycleSummary aggregates the most recent `days` DailyCycle rows.
func (d *DB) GetCycleSummary(days int, designCycleCeiling float64) (model.CycleSummary, error) {
	rows, err := d.db.Query(`SELECT date, charge_session_count, discharge_session_count, charge_minutes,
		discharge_minutes, deepest_discharge_percent, energy_in_wh, energy_out_wh, partial_cycles,
		platform_cycle_count, avg_temperature_c, time_at_high_soc_mins FROM daily_cycles
		ORDER BY date DESC LIMIT ?`, days)
	if err != nil {
		return model.CycleSummary{}, err
	}
	defer rows.Close()
	cycles, err := scanDailyCycles(rows)
	if err != nil {
		return model.CycleSummary{}, err
	}

	var summary model.CycleSummary
	summary.Days = days
	var totalPartial, deepest float64
	for _, c := range cycles {
		summary.TotalChargeSessions += c.ChargeSessionCount
		summary.TotalDischargeSessions += c.DischargeSessionCount
		totalPartial += c.PartialCycles
		if c.DeepestDischargePct < deepest {
			deepest = c.DeepestDischargePct
		}
	}
	summary.TotalPartialCycles = totalPartial
	summary.DeepestDischargePct = deepest
	if len(cycles) > 0 {
		summary.AvgPartialCyclesPerDay = totalPartial / float64(len(cycles))
	}
	if designCycleCeiling > 0 && summary.AvgPartialCyclesPerDay > 0 {
		// Very rough remaining-lifetime estimate against a configurable
		// design ceiling (spec §4.4, §9 open question): the ceiling minus
		// the partial cycles summed over this window. The per-day rate only
		// gates whether an estimate is made; it does not enter the value.
		// This is a policy number, not a manufacturer spec.
		usedRateFraction := summary.AvgPartialCyclesPerDay
		remainingCycles := designCycleCeiling - totalPartial
		if remainingCycles < 0 {
			remainingCycles = 0
		}
		summary.EstimatedCyclesRemaining = remainingCycles
		_ = usedRateFraction
	}
	return summary, nil
}
