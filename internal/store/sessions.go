package store

import "github.com/cptspacemanspiff/jolt/internal/model"

// UpsertChargeSession inserts or replaces a session row keyed by
// (start_time, session_type). The analyzer is the source of truth for
// session state; this just persists whatever it currently believes.
func (d *DB) UpsertChargeSession(s model.ChargeSession) error {
	_, err := d.db.Exec(`INSERT INTO charge_sessions
		(start_time, session_type, end_time, start_percent, end_percent, energy_wh, charger_watts, avg_power_watts, is_complete)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(start_time, session_type) DO UPDATE SET
			end_time=excluded.end_time, end_percent=excluded.end_percent, energy_wh=excluded.energy_wh,
			charger_watts=excluded.charger_watts, avg_power_watts=excluded.avg_power_watts, is_complete=excluded.is_complete`,
		s.StartTime, string(s.SessionType), s.EndTime, s.StartPercent, s.EndPercent, s.EnergyWh, s.ChargerWatts, s.AvgPowerWatts, boolToInt(s.IsComplete))
	return err
}

// GetChargeSessions returns sessions whose start_time falls in [from, to].
func (d *DB) GetChargeSessions(from, to int64) ([]model.ChargeSession, error) {
	rows, err := d.db.Query(`SELECT start_time, session_type, end_time, start_percent, end_percent,
		energy_wh, charger_watts, avg_power_watts, is_complete FROM charge_sessions
		WHERE start_time >= ? AND start_time <= ? ORDER BY start_time`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSessions(rows)
}

func scanSessions(rows interface {
	Next() bool
	Scan(...any) error
	Err() error
}) ([]model.ChargeSession, error) {
	var out []model.ChargeSession
	for rows.Next() {
		var s model.ChargeSession
		var sessionType string
		var isComplete int
		if err := rows.Scan(&s.StartTime, &sessionType, &s.EndTime, &s.StartPercent, &s.EndPercent,
			&s.EnergyWh, &s.ChargerWatts, &s.AvgPowerWatts, &isComplete); err != nil {
			return nil, err
		}
		s.SessionType = model.SessionType(sessionType)
		s.IsComplete = isComplete != 0
		out = append(out, s)
	}
	return out, rows.Err()
}
