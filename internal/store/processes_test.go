package store

import (
	"testing"

	"github.com/cptspacemanspiff/jolt/internal/model"
)

func TestInsertDailyTopProcesses_ReplacesSameDay(t *testing.T) {
	d := openTestDB(t)

	first := []model.DailyTopProcess{
		{Date: "2026-07-30", ProcessName: "chrome", TotalImpact: 100, AvgCPU: 20, SampleCount: 10},
	}
	if err := d.InsertDailyTopProcesses("2026-07-30", first); err != nil {
		t.Fatalf("InsertDailyTopProcesses(first) error = %v", err)
	}

	second := []model.DailyTopProcess{
		{Date: "2026-07-30", ProcessName: "firefox", TotalImpact: 50, AvgCPU: 10, SampleCount: 5},
	}
	if err := d.InsertDailyTopProcesses("2026-07-30", second); err != nil {
		t.Fatalf("InsertDailyTopProcesses(second) error = %v", err)
	}

	got, err := d.GetTopProcessesRange("2026-07-30", "2026-07-30", 10)
	if err != nil {
		t.Fatalf("GetTopProcessesRange() error = %v", err)
	}
	if len(got) != 1 || got[0].ProcessName != "firefox" {
		t.Fatalf("got = %+v, want only firefox (chrome replaced)", got)
	}
}

func TestGetTopProcessesRange_AggregatesAcrossDaysAndOrders(t *testing.T) {
	d := openTestDB(t)

	if err := d.InsertDailyTopProcesses("2026-07-29", []model.DailyTopProcess{
		{ProcessName: "chrome", TotalImpact: 40, AvgCPU: 10, SampleCount: 10},
		{ProcessName: "firefox", TotalImpact: 20, AvgCPU: 5, SampleCount: 10},
	}); err != nil {
		t.Fatalf("InsertDailyTopProcesses(day1) error = %v", err)
	}
	if err := d.InsertDailyTopProcesses("2026-07-30", []model.DailyTopProcess{
		{ProcessName: "chrome", TotalImpact: 10, AvgCPU: 10, SampleCount: 10},
		{ProcessName: "firefox", TotalImpact: 50, AvgCPU: 20, SampleCount: 10},
	}); err != nil {
		t.Fatalf("InsertDailyTopProcesses(day2) error = %v", err)
	}

	got, err := d.GetTopProcessesRange("2026-07-29", "2026-07-30", 2)
	if err != nil {
		t.Fatalf("GetTopProcessesRange() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len(got) = %d, want 2", len(got))
	}
	if got[0].ProcessName != "firefox" || got[0].TotalImpact != 70 {
		t.Fatalf("got[0] = %+v, want firefox with total impact 70", got[0])
	}
	if got[1].ProcessName != "chrome" || got[1].TotalImpact != 50 {
		t.Fatalf("got[1] = %+v, want chrome with total impact 50", got[1])
	}
}
