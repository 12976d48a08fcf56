package store

import (
	"testing"

	"github.com/cptspacemanspiff/jolt/internal/model"
)

func TestUpsertDailyCycle_RoundTrip(t *testing.T) {
	d := openTestDB(t)

	temp := 34.5
	if err := d.UpsertDailyCycle(model.DailyCycle{
		Date:                  "2026-07-30",
		ChargeSessionCount:    1,
		DischargeSessionCount: 2,
		ChargeMinutes:         45,
		DischargeMinutes:      300,
		DeepestDischargePct:   -60,
		EnergyInWh:            20,
		EnergyOutWh:           35,
		PartialCycles:         0.35,
		AvgTemperatureC:       &temp,
		TimeAtHighSoCMins:     15,
	}); err != nil {
		t.Fatalf("UpsertDailyCycle() error = %v", err)
	}

	got, err := d.GetDailyCycle("2026-07-30")
	if err != nil {
		t.Fatalf("GetDailyCycle() error = %v", err)
	}
	if got == nil {
		t.Fatalf("GetDailyCycle() = nil, want a row")
	}
	if got.PartialCycles != 0.35 {
		t.Fatalf("PartialCycles = %v, want 0.35", got.PartialCycles)
	}
	if got.AvgTemperatureC == nil || *got.AvgTemperatureC != 34.5 {
		t.Fatalf("AvgTemperatureC = %v, want 34.5", got.AvgTemperatureC)
	}
}

func TestGetCycleSummary_AveragesAcrossDays(t *testing.T) {
	d := openTestDB(t)

	days := []model.DailyCycle{
		{Date: "2026-07-28", ChargeSessionCount: 1, DischargeSessionCount: 1, PartialCycles: 0.4, DeepestDischargePct: -30},
		{Date: "2026-07-29", ChargeSessionCount: 0, DischargeSessionCount: 1, PartialCycles: 0.6, DeepestDischargePct: -80},
		{Date: "2026-07-30", ChargeSessionCount: 1, DischargeSessionCount: 0, PartialCycles: 0.2, DeepestDischargePct: -10},
	}
	for _, c := range days {
		if err := d.UpsertDailyCycle(c); err != nil {
			t.Fatalf("UpsertDailyCycle(%s) error = %v", c.Date, err)
		}
	}

	summary, err := d.GetCycleSummary(3, 1000)
	if err != nil {
		t.Fatalf("GetCycleSummary() error = %v", err)
	}
	if summary.TotalChargeSessions != 2 {
		t.Fatalf("TotalChargeSessions = %d, want 2", summary.TotalChargeSessions)
	}
	if summary.TotalDischargeSessions != 2 {
		t.Fatalf("TotalDischargeSessions = %d, want 2", summary.TotalDischargeSessions)
	}
	wantTotal := 0.4 + 0.6 + 0.2
	if summary.TotalPartialCycles != wantTotal {
		t.Fatalf("TotalPartialCycles = %v, want %v", summary.TotalPartialCycles, wantTotal)
	}
	if summary.DeepestDischargePct != -80 {
		t.Fatalf("DeepestDischargePct = %v, want -80 (most negative across the window)", summary.DeepestDischargePct)
	}
	if summary.EstimatedCyclesRemaining != 1000-wantTotal {
		t.Fatalf("EstimatedCyclesRemaining = %v, want %v", summary.EstimatedCyclesRemaining, 1000-wantTotal)
	}
}
