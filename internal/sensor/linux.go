package sensor

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// sysfsRoot is overridden in tests so CollectBattery-style reads never touch
// the real machine's /sys tree.
var sysfsRoot = "/sys"

const maxRAPLSockets = 8

// LinuxProvider reads battery state from /sys/class/power_supply and CPU
// package energy from Intel RAPL powercap nodes. It owns the smoothing
// window the spec requires (§4.1): PowerInfo reports the rolling mean, with
// IsWarmedUp false until the window holds three readings.
type LinuxProvider struct {
	smoother *powerSmoother

	lastEnergyUJ map[int]uint64
	lastEnergyAt time.Time
	raplSockets  int

	battery BatteryInfo
	power   PowerInfo
}

// NewLinuxProvider constructs a provider with an empty smoothing window.
func NewLinuxProvider() *LinuxProvider {
	return &LinuxProvider{smoother: newPowerSmoother(), lastEnergyUJ: make(map[int]uint64)}
}

func (p *LinuxProvider) Refresh() error {
	bat, err := p.readBattery()
	if err != nil {
		return fmt.Errorf("read battery: %w", err)
	}
	p.battery = bat

	cpuW := p.readRAPLCPUWatts()
	// No GPU power rail is modeled on Linux in this implementation; discrete
	// GPU vendors expose this very differently (nvidia-smi, amdgpu sysfs) and
	// are out of scope for the core (§4.1: "implementation details are
	// external collaborators here").
	systemW := cpuW
	if bat.EnergyRateWatts > 0 {
		systemW = bat.EnergyRateWatts
	}
	p.power = p.smoother.observe(cpuW, 0, systemW)
	return nil
}

func (p *LinuxProvider) BatteryInfo() (BatteryInfo, error) { return p.battery, nil }
func (p *LinuxProvider) PowerInfo() (PowerInfo, error)     { return p.power, nil }

func (p *LinuxProvider) readBattery() (BatteryInfo, error) {
	matches, err := filepath.Glob(filepath.Join(sysfsRoot, "class/power_supply/BAT*"))
	if err != nil {
		return BatteryInfo{}, fmt.Errorf("glob battery: %w", err)
	}
	if len(matches) == 0 {
		return BatteryInfo{}, nil // no battery: a desktop is a legitimate platform
	}

	data, err := os.ReadFile(filepath.Join(matches[0], "uevent"))
	if err != nil {
		return BatteryInfo{}, fmt.Errorf("read uevent: %w", err)
	}
	props := parseUevent(string(data))

	capPct, _ := strconv.ParseFloat(props["POWER_SUPPLY_CAPACITY"], 64)
	voltageUV, _ := strconv.ParseFloat(props["POWER_SUPPLY_VOLTAGE_NOW"], 64)
	currentUA, _ := strconv.ParseFloat(props["POWER_SUPPLY_CURRENT_NOW"], 64)
	powerUW, _ := strconv.ParseFloat(props["POWER_SUPPLY_POWER_NOW"], 64)
	if powerUW == 0 && voltageUV > 0 && currentUA > 0 {
		// Some firmware doesn't report POWER_NOW; fall back to V*I, same as
		// the teacher's sysfs reader.
		powerUW = (voltageUV / 1000) * (currentUA / 1000)
	}
	chargeFullUAH, _ := strconv.ParseFloat(props["POWER_SUPPLY_CHARGE_FULL"], 64)
	chargeFullDesignUAH, _ := strconv.ParseFloat(props["POWER_SUPPLY_CHARGE_FULL_DESIGN"], 64)
	voltageMinDesignUV, _ := strconv.ParseFloat(props["POWER_SUPPLY_VOLTAGE_MIN_DESIGN"], 64)

	status := props["POWER_SUPPLY_STATUS"]
	acOnline := isACOnline()
	// Some firmware reports "Discharging" at full capacity while on AC power;
	// correct it so the session analyzer doesn't see a spurious discharge
	// open at 100%.
	if status == "Discharging" && capPct >= 100 && acOnline {
		status = "Full"
	}

	var cycleCount *int
	if v, err := strconv.Atoi(props["POWER_SUPPLY_CYCLE_COUNT"]); err == nil {
		cycleCount = &v
	}

	info := BatteryInfo{
		ChargePercent:     capPct,
		State:             mapChargeState(status),
		MaxCapacityWh:     chargeFullUAH * voltageMinDesignUV / 1e12,
		DesignCapacityWh:  chargeFullDesignUAH * voltageMinDesignUV / 1e12,
		VoltageMV:         voltageUV / 1000,
		AmperageMA:        signedAmperage(currentUA, status),
		HealthPercent:     healthPercent(chargeFullUAH, chargeFullDesignUAH),
		CycleCount:        cycleCount,
		ExternalConnected: acOnline,
		Vendor:            props["POWER_SUPPLY_MANUFACTURER"],
		Model:             props["POWER_SUPPLY_MODEL_NAME"],
		Serial:            props["POWER_SUPPLY_SERIAL_NUMBER"],
		Technology:        props["POWER_SUPPLY_TECHNOLOGY"],
		EnergyRateWatts:   powerUW / 1e6, // energy-over-time accumulation lives in the store, not here
	}
	return info, nil
}

func healthPercent(fullUAH, designUAH float64) float64 {
	if designUAH <= 0 {
		return 0
	}
	pct := fullUAH / designUAH * 100
	if pct > 100 {
		pct = 100
	}
	return pct
}

func signedAmperage(currentUA float64, status string) float64 {
	ma := currentUA / 1000
	if status == "Discharging" && ma > 0 {
		return -ma
	}
	return ma
}

func mapChargeState(status string) ChargeState {
	switch status {
	case "Charging":
		return Charging
	case "Discharging":
		return Discharging
	case "Full":
		return Full
	case "Not charging":
		return NotCharging
	default:
		return Unknown
	}
}

func isACOnline() bool {
	matches, err := filepath.Glob(filepath.Join(sysfsRoot, "class/power_supply/AC*/online"))
	if err != nil {
		return false
	}
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err == nil && strings.TrimSpace(string(data)) == "1" {
			return true
		}
	}
	return false
}

func parseUevent(data string) map[string]string {
	props := make(map[string]string)
	for _, line := range strings.Split(data, "\n") {
		if k, v, ok := strings.Cut(line, "="); ok {
			props[k] = v
		}
	}
	return props
}

// readRAPLCPUWatts differences the cumulative package energy counter across
// ticks to estimate instantaneous CPU package power, the same technique
// kepler's RAPL sysfs reader uses (one energy_uj file per socket).
func (p *LinuxProvider) readRAPLCPUWatts() float64 {
	now := time.Now()
	var totalUJ uint64
	var sockets int
	for i := 0; i < maxRAPLSockets; i++ {
		path := filepath.Join(sysfsRoot, "class/powercap",
			fmt.Sprintf("intel-rapl/intel-rapl:%d/energy_uj", i))
		data, err := os.ReadFile(path)
		if err != nil {
			break
		}
		v, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 64)
		if err != nil {
			break
		}
		totalUJ += v
		sockets++
	}
	if sockets == 0 {
		return 0
	}
	defer func() {
		p.lastEnergyAt = now
		p.raplSockets = sockets
	}()
	if p.lastEnergyAt.IsZero() || p.raplSockets != sockets {
		p.lastEnergyUJ[0] = totalUJ
		return 0
	}
	elapsed := now.Sub(p.lastEnergyAt).Seconds()
	if elapsed <= 0 {
		return 0
	}
	prev := p.lastEnergyUJ[0]
	p.lastEnergyUJ[0] = totalUJ
	// RAPL counters wrap around; a negative delta means we crossed the
	// wraparound boundary this tick, which we can't recover without the
	// max-range value the kernel exposes separately. Treat as "no reading".
	if totalUJ < prev {
		return 0
	}
	return float64(totalUJ-prev) / 1e6 / elapsed
}
