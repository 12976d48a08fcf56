// Package model holds the entities shared by the store, analyzer,
// forecaster, sampler, and protocol packages, so none of them import each
// other just to see a shared struct.
package model

// ChargingState is the coarse state recorded on a Sample, distinct from the
// richer sensor.ChargeState so a schema change in the sensor layer doesn't
// ripple into stored history.
type ChargingState string

const (
	StateDischarging ChargingState = "discharging"
	StateCharging    ChargingState = "charging"
	StateFull        ChargingState = "full"
	StateUnknown     ChargingState = "unknown"
)

// Sample is one row per collection tick. Immutable after insert.
type Sample struct {
	Timestamp         int64         `json:"timestamp"`
	BatteryPercent    float64       `json:"battery_percent"`
	PowerWatts        float64       `json:"power_watts"`
	CPUPower          float64       `json:"cpu_power"`
	GPUPower          float64       `json:"gpu_power"`
	ChargingState     ChargingState `json:"charging_state"`
	ExternalConnected bool          `json:"external_connected"`
}

// ProcessRecord is a per-process usage snapshot, optionally tree-structured
// by ParentPID for serialization; the tree is assembled fresh each tick, not
// persisted structurally (spec §9).
type ProcessRecord struct {
	PID          int     `json:"pid"`
	ParentPID    int     `json:"parent_pid"`
	Name         string  `json:"name"`
	Command      string  `json:"command"`
	CPUUsage     float64 `json:"cpu_usage"`
	MemoryMB     float64 `json:"memory_mb"`
	EnergyImpact float64 `json:"energy_impact"`
	IsPCore      bool    `json:"is_p_core"`

	Children []*ProcessRecord `json:"children,omitempty"`
}

// HourlyRollup is the upserted aggregate for one UTC hour bucket.
type HourlyRollup struct {
	HourStart    int64   `json:"hour_start"`
	AvgPower     float64 `json:"avg_power"`
	MaxPower     float64 `json:"max_power"`
	MinPower     float64 `json:"min_power"`
	AvgBattery   float64 `json:"avg_battery"`
	BatteryDelta float64 `json:"battery_delta"`
	SampleCount  int64   `json:"sample_count"`
}

// DailyRollup is the upserted aggregate for one UTC calendar date.
type DailyRollup struct {
	Date           string  `json:"date"` // YYYY-MM-DD, UTC
	AvgPower       float64 `json:"avg_power"`
	MaxPower       float64 `json:"max_power"`
	TotalEnergyWh  float64 `json:"total_energy_wh"`
	ScreenOnHours  float64 `json:"screen_on_hours"`
	ChargingHours  float64 `json:"charging_hours"`
	BatteryCycles  float64 `json:"battery_cycles"`
}

// DailyTopProcess is the per-(date, process name) aggregate used for the
// top-N processes view.
type DailyTopProcess struct {
	Date          string  `json:"date"`
	ProcessName   string  `json:"process_name"`
	TotalImpact   float64 `json:"total_impact"`
	AvgCPU        float64 `json:"avg_cpu"`
	AvgMemoryMB   float64 `json:"avg_memory_mb"`
	SampleCount   int64   `json:"sample_count"`
	AvgPower      float64 `json:"avg_power"`
	TotalEnergyWh float64 `json:"total_energy_wh"`
}

// SessionType distinguishes charge from discharge sessions.
type SessionType string

const (
	SessionCharge    SessionType = "charge"
	SessionDischarge SessionType = "discharge"
)

// ChargeSession is a contiguous interval of charging or discharging,
// delimited by external-power transitions. Closed sessions are immutable.
type ChargeSession struct {
	StartTime      int64       `json:"start_time"`
	EndTime        *int64      `json:"end_time,omitempty"`
	StartPercent   float64     `json:"start_percent"`
	EndPercent     *float64    `json:"end_percent,omitempty"`
	EnergyWh       *float64    `json:"energy_wh,omitempty"`
	ChargerWatts   *float64    `json:"charger_watts,omitempty"`
	AvgPowerWatts  *float64    `json:"avg_power_watts,omitempty"`
	SessionType    SessionType `json:"session_type"`
	IsComplete     bool        `json:"is_complete"`
}

// DailyCycle is the per-date aggregate of sessions: counts, minutes, depth,
// energy, and partial-cycle accrual.
type DailyCycle struct {
	Date                string  `json:"date"`
	ChargeSessionCount   int     `json:"charge_session_count"`
	DischargeSessionCount int    `json:"discharge_session_count"`
	ChargeMinutes        float64 `json:"charge_minutes"`
	DischargeMinutes     float64 `json:"discharge_minutes"`
	DeepestDischargePct  float64 `json:"deepest_discharge_percent"`
	EnergyInWh           float64 `json:"energy_in_wh"`
	EnergyOutWh          float64 `json:"energy_out_wh"`
	PartialCycles        float64 `json:"partial_cycles"`
	PlatformCycleCount   *int    `json:"platform_cycle_count,omitempty"`
	AvgTemperatureC      *float64 `json:"avg_temperature_c,omitempty"`
	TimeAtHighSoCMins    float64 `json:"time_at_high_soc_mins"`
}

// CycleSummary aggregates DailyCycle rows over the most recent N days.
type CycleSummary struct {
	Days                       int     `json:"days"`
	TotalChargeSessions        int     `json:"total_charge_sessions"`
	TotalDischargeSessions     int     `json:"total_discharge_sessions"`
	TotalPartialCycles         float64 `json:"total_partial_cycles"`
	AvgPartialCyclesPerDay     float64 `json:"avg_partial_cycles_per_day"`
	DeepestDischargePct        float64 `json:"deepest_discharge_percent"`
	EstimatedCyclesRemaining   float64 `json:"estimated_cycles_remaining"`
}

// ForecastSource records which strategy produced a ForecastSnapshot.
type ForecastSource string

const (
	ForecastDaemon  ForecastSource = "daemon"
	ForecastSession ForecastSource = "session"
	ForecastNone    ForecastSource = "none"
)

// ForecastSnapshot is the estimated time-to-empty or time-to-full.
type ForecastSnapshot struct {
	DurationSecs  *int64         `json:"duration_secs,omitempty"`
	AvgPowerWatts *float64       `json:"avg_power_watts,omitempty"`
	SampleCount   int            `json:"sample_count"`
	Source        ForecastSource `json:"source"`
}

// SystemInfo is a minimal platform descriptor attached to each Snapshot.
type SystemInfo struct {
	Hostname      string `json:"hostname"`
	PowerMode     string `json:"power_mode"`
	SampleSecsAgo int64  `json:"sample_secs_ago"`
}

// Snapshot is the union of one tick's values, delivered whole to subscribers
// and used to build the Sample/rollup/session/process-history writes.
type Snapshot struct {
	Timestamp int64             `json:"timestamp"`
	Battery   BatterySnapshot   `json:"battery"`
	Power     PowerSnapshot     `json:"power"`
	System    SystemInfo        `json:"system"`
	Processes []*ProcessRecord  `json:"processes"`
	Forecast  ForecastSnapshot  `json:"forecast"`
}

// BatterySnapshot is the wire-facing projection of sensor.BatteryInfo.
type BatterySnapshot struct {
	ChargePercent     float64       `json:"charge_percent"`
	State             ChargingState `json:"state"`
	ExternalConnected bool          `json:"external_connected"`
	HealthPercent     float64       `json:"health_percent"`
	CycleCount        *int          `json:"cycle_count,omitempty"`
	TemperatureC      *float64      `json:"temperature_c,omitempty"`
	EnergyRateWatts   float64       `json:"energy_rate_watts"`
	MaxCapacityWh     float64       `json:"max_capacity_wh"`
}

// PowerSnapshot is the wire-facing projection of sensor.PowerInfo.
type PowerSnapshot struct {
	CPUPowerWatts    float64 `json:"cpu_power_watts"`
	GPUPowerWatts    float64 `json:"gpu_power_watts"`
	SystemPowerWatts float64 `json:"system_power_watts"`
	PowerMode        string  `json:"power_mode"`
	IsWarmedUp       bool    `json:"is_warmed_up"`
}

// ToSample projects a Snapshot down to the immutable row stored per tick.
func (s Snapshot) ToSample() Sample {
	state := s.Battery.State
	if state == "" {
		state = StateUnknown
	}
	return Sample{
		Timestamp:         s.Timestamp,
		BatteryPercent:    clampPercent(s.Battery.ChargePercent),
		PowerWatts:        s.Power.SystemPowerWatts,
		CPUPower:          s.Power.CPUPowerWatts,
		GPUPower:          s.Power.GPUPowerWatts,
		ChargingState:     state,
		ExternalConnected: s.Battery.ExternalConnected,
	}
}

func clampPercent(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
