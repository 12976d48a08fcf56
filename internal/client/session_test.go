package client

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/cptspacemanspiff/jolt/internal/analyzer"
	"github.com/cptspacemanspiff/jolt/internal/ipcserver"
	"github.com/cptspacemanspiff/jolt/internal/model"
	"github.com/cptspacemanspiff/jolt/internal/sensor"
	"github.com/cptspacemanspiff/jolt/internal/store"
)

type fakeLocalProvider struct {
	battery sensor.BatteryInfo
	power   sensor.PowerInfo
}

func (f *fakeLocalProvider) Refresh() error { return nil }
func (f *fakeLocalProvider) BatteryInfo() (sensor.BatteryInfo, error) { return f.battery, nil }
func (f *fakeLocalProvider) PowerInfo() (sensor.PowerInfo, error)     { return f.power, nil }

func TestSession_ConnectsAndReceivesBroadcast(t *testing.T) {
	db, err := store.Open(filepath.Join(t.TempDir(), "jolt.db"))
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	defer db.Close()
	a := analyzer.New(db, 2*time.Second, 1000)
	sock := filepath.Join(t.TempDir(), "daemon.sock")
	srv, err := ipcserver.Listen(ipcserver.Options{SocketPath: sock, DB: store.NewHandle(db), Analyzer: a})
	if err != nil {
		t.Fatalf("ipcserver.Listen() error = %v", err)
	}
	go srv.Serve()
	defer srv.Close()

	s := NewSession(Options{SocketPath: sock})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	// Give the session time to connect and subscribe.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok, usingDaemon, _ := s.Latest(); ok && usingDaemon {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	srv.Broadcast(model.Snapshot{Timestamp: 99, Battery: model.BatterySnapshot{ChargePercent: 55}})

	deadline = time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		snap, ok, usingDaemon, _ := s.Latest()
		if ok && usingDaemon && snap.Timestamp == 99 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("session never observed the broadcast snapshot")
}

func TestSession_FallsBackToLocalSamplingWhenDaemonUnreachable(t *testing.T) {
	s := NewSession(Options{
		SocketPath: filepath.Join(t.TempDir(), "no-such-daemon.sock"),
		Spawn:      func() error { return errors.New("no daemon binary available in test") },
		Local: &fakeLocalProvider{
			battery: sensor.BatteryInfo{ChargePercent: 61, State: sensor.Discharging, MaxCapacityWh: 40},
			power:   sensor.PowerInfo{SystemPowerWatts: 6},
		},
		LocalInterval: 20 * time.Millisecond,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	s.Run(ctx)

	snap, ok, usingDaemon, _ := s.Latest()
	if !ok {
		t.Fatal("Latest() ok = false after local fallback, want a sampled snapshot")
	}
	if usingDaemon {
		t.Fatal("usingDaemon = true after exhausting connect retries, want false")
	}
	if snap.Battery.ChargePercent != 61 {
		t.Fatalf("Battery.ChargePercent = %v, want 61", snap.Battery.ChargePercent)
	}
}

func TestSession_Latest_StaleWithNoData(t *testing.T) {
	s := NewSession(Options{SocketPath: "/nonexistent"})
	_, ok, _, stale := s.Latest()
	if ok {
		t.Fatal("Latest() ok = true before Run(), want false")
	}
	if !stale {
		t.Fatal("Latest() stale = false before any data, want true")
	}
}
