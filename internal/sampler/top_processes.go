package sampler

import (
	"sort"

	"github.com/cptspacemanspiff/jolt/internal/model"
)

// aggregateTopProcesses folds one tick's flat process list into
// per-process DailyTopProcess rows, keeping only the top `limit` by total
// energy impact. InsertDailyTopProcesses replaces the whole day's rows each
// call and this computes from the single tick it was given, so a day's
// stored rows reflect only its most recent refresh (the sampler calls this
// at most once a minute); values are not accumulated across the day.
func aggregateTopProcesses(date string, flat []*model.ProcessRecord, systemPowerWatts float64, limit int) []model.DailyTopProcess {
	byName := make(map[string]*model.DailyTopProcess, len(flat))
	for _, p := range flat {
		agg, ok := byName[p.Name]
		if !ok {
			agg = &model.DailyTopProcess{Date: date, ProcessName: p.Name}
			byName[p.Name] = agg
		}
		agg.TotalImpact += p.EnergyImpact
		agg.AvgCPU += p.CPUUsage
		agg.AvgMemoryMB += p.MemoryMB
		agg.SampleCount++
		agg.AvgPower += p.EnergyImpact
		agg.TotalEnergyWh += p.EnergyImpact / 3600.0 // the reading counted as one second of draw, in Wh
	}

	out := make([]model.DailyTopProcess, 0, len(byName))
	for _, agg := range byName {
		if agg.SampleCount > 0 {
			agg.AvgCPU /= float64(agg.SampleCount)
			agg.AvgMemoryMB /= float64(agg.SampleCount)
			agg.AvgPower /= float64(agg.SampleCount)
		}
		out = append(out, *agg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TotalImpact > out[j].TotalImpact })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
