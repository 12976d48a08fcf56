package store

import (
	"testing"

	"github.com/cptspacemanspiff/jolt/internal/model"
)

func TestUpsertChargeSession_OpenThenClose(t *testing.T) {
	d := openTestDB(t)

	start := int64(1_700_000_000)
	if err := d.UpsertChargeSession(model.ChargeSession{
		StartTime:    start,
		StartPercent: 40,
		SessionType:  model.SessionCharge,
		IsComplete:   false,
	}); err != nil {
		t.Fatalf("UpsertChargeSession(open) error = %v", err)
	}

	end := start + 1800
	endPct := 90.0
	energy := 12.5
	watts := 30.0
	avg := 25.0
	if err := d.UpsertChargeSession(model.ChargeSession{
		StartTime:     start,
		EndTime:       &end,
		StartPercent:  40,
		EndPercent:    &endPct,
		EnergyWh:      &energy,
		ChargerWatts:  &watts,
		AvgPowerWatts: &avg,
		SessionType:   model.SessionCharge,
		IsComplete:    true,
	}); err != nil {
		t.Fatalf("UpsertChargeSession(close) error = %v", err)
	}

	got, err := d.GetChargeSessions(start, start)
	if err != nil {
		t.Fatalf("GetChargeSessions() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len(got) = %d, want 1", len(got))
	}
	if !got[0].IsComplete {
		t.Fatalf("IsComplete = false, want true after close upsert")
	}
	if got[0].EndTime == nil || *got[0].EndTime != end {
		t.Fatalf("EndTime = %v, want %v", got[0].EndTime, end)
	}
}

func TestUpsertChargeSession_DistinctTypesSameStart(t *testing.T) {
	d := openTestDB(t)
	start := int64(1_700_000_000)

	for _, typ := range []model.SessionType{model.SessionCharge, model.SessionDischarge} {
		if err := d.UpsertChargeSession(model.ChargeSession{StartTime: start, StartPercent: 50, SessionType: typ}); err != nil {
			t.Fatalf("UpsertChargeSession(%s) error = %v", typ, err)
		}
	}

	got, err := d.GetChargeSessions(start, start)
	if err != nil {
		t.Fatalf("GetChargeSessions() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len(got) = %d, want 2 (composite key keeps both session types)", len(got))
	}
}
