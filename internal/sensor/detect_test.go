package sensor

import (
	"path/filepath"
	"testing"
)

func TestDetectProvider_NoBattery_ReturnsNullProvider(t *testing.T) {
	setTestSysfsRoot(t)

	p := DetectProvider()
	if _, ok := p.(NullProvider); !ok {
		t.Fatalf("DetectProvider() = %T, want NullProvider", p)
	}
}

func TestDetectProvider_WithBattery_ReturnsLinuxProvider(t *testing.T) {
	root := setTestSysfsRoot(t)
	writeTestFile(t, filepath.Join(root, "class/power_supply/BAT0/uevent"), "POWER_SUPPLY_STATUS=Discharging\n")

	p := DetectProvider()
	if _, ok := p.(*LinuxProvider); !ok {
		t.Fatalf("DetectProvider() = %T, want *LinuxProvider", p)
	}
}
