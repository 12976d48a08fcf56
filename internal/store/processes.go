package store

import "github.com/cptspacemanspiff/jolt/internal/model"

// InsertDailyTopProcesses replaces the day's top-N process aggregates.
func (d *DB) InsertDailyTopProcesses(date string, list []model.DailyTopProcess) error {
	tx, err := d.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM daily_top_processes WHERE date = ?", date); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT INTO daily_top_processes
		(date, process_name, total_impact, avg_cpu, avg_memory_mb, sample_count, avg_power, total_energy_wh)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, p := range list {
		if _, err := stmt.Exec(date, p.ProcessName, p.TotalImpact, p.AvgCPU, p.AvgMemoryMB, p.SampleCount, p.AvgPower, p.TotalEnergyWh); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetTopProcessesRange returns the top `limit` processes by total impact,
// aggregated across [from, to].
func (d *DB) GetTopProcessesRange(from, to string, limit int) ([]model.DailyTopProcess, error) {
	rows, err := d.db.Query(`SELECT process_name,
		SUM(total_impact), SUM(avg_cpu * sample_count) / NULLIF(SUM(sample_count), 0),
		SUM(avg_memory_mb * sample_count) / NULLIF(SUM(sample_count), 0), SUM(sample_count),
		SUM(avg_power * sample_count) / NULLIF(SUM(sample_count), 0), SUM(total_energy_wh)
		FROM daily_top_processes WHERE date >= ? AND date <= ?
		GROUP BY process_name ORDER BY SUM(total_impact) DESC LIMIT ?`, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.DailyTopProcess
	for rows.Next() {
		var p model.DailyTopProcess
		if err := rows.Scan(&p.ProcessName, &p.TotalImpact, &p.AvgCPU, &p.AvgMemoryMB, &p.SampleCount, &p.AvgPower, &p.TotalEnergyWh); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
