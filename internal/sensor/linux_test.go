package sensor

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func setTestSysfsRoot(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	old := sysfsRoot
	sysfsRoot = root
	t.Cleanup(func() { sysfsRoot = old })
	return root
}

func writeTestFile(t *testing.T, path, contents string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestRefresh_ParsesUeventAndCorrectsFullStatus(t *testing.T) {
	root := setTestSysfsRoot(t)
	writeTestFile(t, filepath.Join(root, "class/power_supply/BAT0/uevent"), strings.Join([]string{
		"POWER_SUPPLY_STATUS=Discharging",
		"POWER_SUPPLY_VOLTAGE_NOW=12000000",
		"POWER_SUPPLY_CURRENT_NOW=1000000",
		"POWER_SUPPLY_POWER_NOW=0",
		"POWER_SUPPLY_CAPACITY=100",
		"",
	}, "\n"))
	writeTestFile(t, filepath.Join(root, "class/power_supply/AC0/online"), "1\n")

	p := NewLinuxProvider()
	if err := p.Refresh(); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	info, err := p.BatteryInfo()
	if err != nil {
		t.Fatalf("BatteryInfo() error = %v", err)
	}
	if info.State != Full {
		t.Fatalf("State = %q, want Full (firmware quirk correction)", info.State)
	}
	if info.EnergyRateWatts != 12.0 {
		t.Fatalf("EnergyRateWatts = %v, want 12.0 (V*I fallback)", info.EnergyRateWatts)
	}
	if !info.ExternalConnected {
		t.Fatalf("ExternalConnected = false, want true")
	}
}

func TestRefresh_NoBatteryIsNotAnError(t *testing.T) {
	setTestSysfsRoot(t)
	p := NewLinuxProvider()
	if err := p.Refresh(); err != nil {
		t.Fatalf("Refresh() error = %v, want nil on battery-less platform", err)
	}
	info, _ := p.BatteryInfo()
	if info.State != "" {
		t.Fatalf("State = %q, want zero value", info.State)
	}
}

func TestSignedAmperage(t *testing.T) {
	if got := signedAmperage(2000000, "Discharging"); got != -2000 {
		t.Fatalf("signedAmperage discharging = %v, want -2000", got)
	}
	if got := signedAmperage(2000000, "Charging"); got != 2000 {
		t.Fatalf("signedAmperage charging = %v, want 2000", got)
	}
}
