// Package sensor defines the platform capability the sampler depends on and
// a Linux implementation built from sysfs and RAPL energy counters.
package sensor

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ChargeState mirrors the firmware-reported battery status.
type ChargeState string

const (
	Charging    ChargeState = "charging"
	Discharging ChargeState = "discharging"
	Full        ChargeState = "full"
	NotCharging ChargeState = "not_charging"
	Unknown     ChargeState = "unknown"
)

// PowerMode is a coarse platform power profile, when the platform exposes one.
type PowerMode string

const (
	PowerModeLowPower      PowerMode = "low_power"
	PowerModeAutomatic     PowerMode = "automatic"
	PowerModeHighPerf      PowerMode = "high_performance"
	PowerModeUnknownPlat   PowerMode = "unknown"
)

// BatteryInfo is a fully-populated snapshot of battery state. Optional fields
// use pointers so the sampler can tell "not reported" from "zero".
type BatteryInfo struct {
	ChargePercent     float64
	State             ChargeState
	MaxCapacityWh     float64
	DesignCapacityWh  float64
	VoltageMV         float64
	AmperageMA        float64 // signed; negative = discharging
	HealthPercent     float64
	CycleCount        *int
	TimeToFull        *time.Duration
	TimeToEmpty       *time.Duration
	TemperatureC      *float64
	ExternalConnected bool
	Vendor            string
	Model             string
	Serial            string
	Technology        string
	EnergyWh          float64
	EnergyRateWatts   float64
	ChargerWatts      *float64
	DailyMinSoC       *float64
	DailyMaxSoC       *float64
}

// PowerInfo is a fully-populated snapshot of system power draw.
type PowerInfo struct {
	CPUPowerWatts    float64
	GPUPowerWatts    float64
	SystemPowerWatts float64
	PowerMode        PowerMode
	IsWarmedUp       bool
}

// Provider is the capability the sampler depends on: refresh, then read.
// Implementations are platform-specific; the core never branches on OS.
type Provider interface {
	Refresh() error
	BatteryInfo() (BatteryInfo, error)
	PowerInfo() (PowerInfo, error)
}

// DetectProvider picks a Provider at startup (spec §9: "pick an
// implementation at startup based on the running OS", with a fallback that
// never blocks the sampler when the platform can't be read). On Linux it
// returns a LinuxProvider when at least one battery node is present under
// /sys/class/power_supply; otherwise it falls back to NullProvider, the
// same "no crash on a desktop with no battery" behavior the teacher's own
// battery.go degrades to when BAT0 is absent.
func DetectProvider() Provider {
	if hasLinuxBattery() {
		return NewLinuxProvider()
	}
	return NullProvider{}
}

func hasLinuxBattery() bool {
	entries, err := os.ReadDir(filepath.Join(sysfsRoot, "class", "power_supply"))
	if err != nil {
		return false
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "BAT") {
			return true
		}
	}
	return false
}
