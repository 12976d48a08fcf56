package wake

import (
	"testing"

	"github.com/godbus/dbus/v5"
)

func TestMonitor_HandlePrepareForSleep_EmitsWakeOnResume(t *testing.T) {
	m := &Monitor{wake: make(chan struct{}, 1)}

	m.handle(&dbus.Signal{
		Name: "org.freedesktop.login1.Manager.PrepareForSleep",
		Body: []interface{}{true},
	})
	select {
	case <-m.wake:
		t.Fatal("must not wake on the sleep-start signal")
	default:
	}

	m.handle(&dbus.Signal{
		Name: "org.freedesktop.login1.Manager.PrepareForSleep",
		Body: []interface{}{false},
	})
	select {
	case <-m.wake:
	default:
		t.Fatal("expected a wake notification on resume")
	}
}

func TestMonitor_HandleCoalescesMultipleResumes(t *testing.T) {
	m := &Monitor{wake: make(chan struct{}, 1)}
	for i := 0; i < 3; i++ {
		m.handle(&dbus.Signal{
			Name: "org.freedesktop.login1.Manager.PrepareForSleep",
			Body: []interface{}{false},
		})
	}
	if len(m.wake) != 1 {
		t.Fatalf("expected coalesced buffer of 1, got %d", len(m.wake))
	}
}

func TestMonitor_IgnoresMalformedSignalBody(t *testing.T) {
	m := &Monitor{wake: make(chan struct{}, 1)}
	m.handle(&dbus.Signal{Name: "org.freedesktop.login1.Manager.PrepareForSleep", Body: nil})
	m.handle(&dbus.Signal{Name: "org.freedesktop.login1.Manager.PrepareForSleep", Body: []interface{}{"not-a-bool"}})
	if len(m.wake) != 0 {
		t.Fatalf("expected no wake from malformed signals, got %d", len(m.wake))
	}
}
