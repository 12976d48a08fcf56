// Package wake listens for systemd-logind suspend/resume signals over the
// system D-Bus, generalized from the teacher's internal/collector/sleep.go
// SleepMonitor. Where the teacher's dbus package also exported the daemon's
// own data over the bus (internal/dbus/service.go), that role now belongs to
// internal/ipcserver's Unix-domain-socket protocol per spec.md C7; this
// package keeps dbus for the one thing the spec's sampler loop still needs
// from it: knowing when a long suspend just ended, so the next sample is
// taken immediately instead of waiting out the rest of a stale tick (spec
// §4.6, generalized from the teacher's wall-clock-jump check).
package wake

import (
	"log/slog"
	"time"

	"github.com/godbus/dbus/v5"
)

// Monitor emits a signal on Wake() each time logind reports the end of a
// suspend or hibernate.
type Monitor struct {
	conn   *dbus.Conn
	wake   chan struct{}
	done   chan struct{}
	logger *slog.Logger

	sleepAt      time.Time
	hibernating  bool
}

// NewMonitor connects to the system bus and subscribes to logind's
// PrepareForSleep/PrepareForShutdown signals. Returns an error if the system
// bus is unavailable (e.g. no logind on this host); callers treat that as
// non-fatal and run without wake-triggered catch-up sampling.
func NewMonitor(logger *slog.Logger) (*Monitor, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, err
	}
	for _, member := range []string{"PrepareForSleep", "PrepareForShutdown"} {
		if err := conn.AddMatchSignal(
			dbus.WithMatchInterface("org.freedesktop.login1.Manager"),
			dbus.WithMatchMember(member),
		); err != nil {
			return nil, err
		}
	}

	m := &Monitor{
		conn:   conn,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		logger: logger,
	}
	go m.listen()
	return m, nil
}

// Wake delivers one notification per resume. It is buffered to 1 and never
// blocks the dbus listener goroutine: a sampler that is slow to drain simply
// coalesces multiple resumes into one catch-up sample.
func (m *Monitor) Wake() <-chan struct{} {
	return m.wake
}

// Close stops the monitor and releases the bus connection.
func (m *Monitor) Close() {
	close(m.done)
	m.conn.Close()
}

func (m *Monitor) listen() {
	ch := make(chan *dbus.Signal, 16)
	m.conn.Signal(ch)
	defer m.conn.RemoveSignal(ch)

	for {
		select {
		case sig := <-ch:
			m.handle(sig)
		case <-m.done:
			return
		}
	}
}

func (m *Monitor) handle(sig *dbus.Signal) {
	if len(sig.Body) < 1 {
		return
	}
	active, ok := sig.Body[0].(bool)
	if !ok {
		return
	}

	switch sig.Name {
	case "org.freedesktop.login1.Manager.PrepareForShutdown":
		if active {
			m.hibernating = true
		}
	case "org.freedesktop.login1.Manager.PrepareForSleep":
		if active {
			m.sleepAt = time.Now().Round(0) // strip monotonic so Sub uses wall clock across suspend
			if m.logger != nil {
				kind := "suspend"
				if m.hibernating {
					kind = "hibernate"
				}
				m.logger.Info("system going to sleep", "type", kind)
			}
			return
		}
		woke := time.Now()
		if !m.sleepAt.IsZero() && m.logger != nil {
			m.logger.Info("woke from sleep", "slept_for", woke.Sub(m.sleepAt))
		}
		m.sleepAt = time.Time{}
		m.hibernating = false
		select {
		case m.wake <- struct{}{}:
		default:
		}
	}
}
