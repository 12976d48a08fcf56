package store

import (
	"testing"
	"time"

	"github.com/cptspacemanspiff/jolt/internal/model"
)

func TestApplyRetention_PrunesOnlyExpiredRows(t *testing.T) {
	d := openTestDB(t)

	now := time.Unix(1_700_000_000, 0).UTC()
	old := now.Add(-10 * 24 * time.Hour).Unix()
	recent := now.Add(-1 * time.Hour).Unix()

	if err := d.InsertSample(model.Sample{Timestamp: old, BatteryPercent: 50, PowerWatts: 5, ChargingState: model.StateDischarging}); err != nil {
		t.Fatalf("InsertSample(old) error = %v", err)
	}
	if err := d.InsertSample(model.Sample{Timestamp: recent, BatteryPercent: 60, PowerWatts: 5, ChargingState: model.StateDischarging}); err != nil {
		t.Fatalf("InsertSample(recent) error = %v", err)
	}

	res, err := d.ApplyRetention(now, RetentionPolicy{RawDays: 7, HourlyDays: 7, DailyDays: 30, SessionsDays: 30})
	if err != nil {
		t.Fatalf("ApplyRetention() error = %v", err)
	}
	if res.SamplesDeleted != 1 {
		t.Fatalf("SamplesDeleted = %d, want 1", res.SamplesDeleted)
	}

	remaining, err := d.GetSamples(0, now.Unix())
	if err != nil {
		t.Fatalf("GetSamples() error = %v", err)
	}
	if len(remaining) != 1 || remaining[0].Timestamp != recent {
		t.Fatalf("remaining samples = %+v, want only the recent one", remaining)
	}
}

func TestApplyRetention_IsIdempotent(t *testing.T) {
	d := openTestDB(t)
	now := time.Unix(1_700_000_000, 0).UTC()
	old := now.Add(-10 * 24 * time.Hour).Unix()

	if err := d.InsertSample(model.Sample{Timestamp: old, BatteryPercent: 50, PowerWatts: 5, ChargingState: model.StateDischarging}); err != nil {
		t.Fatalf("InsertSample() error = %v", err)
	}

	policy := RetentionPolicy{RawDays: 7, HourlyDays: 7, DailyDays: 30, SessionsDays: 30}
	if _, err := d.ApplyRetention(now, policy); err != nil {
		t.Fatalf("ApplyRetention() first pass error = %v", err)
	}
	res, err := d.ApplyRetention(now, policy)
	if err != nil {
		t.Fatalf("ApplyRetention() second pass error = %v", err)
	}
	if res.SamplesDeleted != 0 || res.HourlyDeleted != 0 || res.DailyDeleted != 0 {
		t.Fatalf("second pass deleted rows, want a no-op: %+v", res)
	}
}
