package ipcserver

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/cptspacemanspiff/jolt/internal/analyzer"
	"github.com/cptspacemanspiff/jolt/internal/model"
	"github.com/cptspacemanspiff/jolt/internal/protocol"
	"github.com/cptspacemanspiff/jolt/internal/store"
)

type fakeSampler struct {
	intervalMS int64
	current    model.Snapshot
	haveCur    bool
}

func (f *fakeSampler) IntervalMS() int64 { return f.intervalMS }
func (f *fakeSampler) SetIntervalMS(ms int64) int64 {
	f.intervalMS = ms
	return ms
}
func (f *fakeSampler) CurrentSnapshot() (model.Snapshot, bool) { return f.current, f.haveCur }

func newTestServer(t *testing.T) (*Server, *store.DB) {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "jolt.db"))
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	srv := &Server{
		db:          store.NewHandle(db),
		analyzer:    analyzer.New(db, 2*time.Second, 1000),
		sampler:     &fakeSampler{intervalMS: 2000},
		started:     time.Now(),
		subscribers: make(map[uint64]*subscriber),
	}
	return srv, db
}

// dispatch never touches conn/writeMu/enc for request kinds that don't
// transition the connection's subscription state, so unit tests can call
// it directly with nils the same way the teacher's dbus service tests call
// Service methods in-process rather than over the bus.
func TestDispatch_GetStatus(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, action := srv.dispatch(protocol.Request{Kind: protocol.KindGetStatus}, nil, nil, nil)
	if action != actionNone {
		t.Fatalf("action = %v, want actionNone", action)
	}
	if resp.Status == nil {
		t.Fatal("Status = nil, want populated")
	}
	if resp.Status.ProtocolVersion != protocol.ProtocolVersion {
		t.Fatalf("ProtocolVersion = %d, want %d", resp.Status.ProtocolVersion, protocol.ProtocolVersion)
	}
}

func TestDispatch_UnsupportedKind(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, action := srv.dispatch(protocol.Request{Kind: "not_a_real_kind"}, nil, nil, nil)
	if action != actionNone {
		t.Fatalf("action = %v, want actionNone", action)
	}
	if resp.Kind != protocol.KindError || resp.ErrorMessage != "unsupported" {
		t.Fatalf("resp = %+v, want unsupported error", resp)
	}
}

func TestDispatch_GetHourlyStats_EmptyRange(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, _ := srv.dispatch(protocol.Request{Kind: protocol.KindGetHourlyStats}, nil, nil, nil)
	if resp.Kind != protocol.KindHourlyStats {
		t.Fatalf("Kind = %v, want KindHourlyStats", resp.Kind)
	}
	if len(resp.HourlyStats) != 0 {
		t.Fatalf("HourlyStats = %v, want empty", resp.HourlyStats)
	}
}

func TestDispatch_GetCurrentData_NoneYet(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, _ := srv.dispatch(protocol.Request{Kind: protocol.KindGetCurrentData}, nil, nil, nil)
	if resp.Kind != protocol.KindError {
		t.Fatalf("Kind = %v, want KindError before any snapshot exists", resp.Kind)
	}
}

func TestDispatch_SetBroadcastInterval_ForwardsToSampler(t *testing.T) {
	srv, _ := newTestServer(t)

	ms := int64(1)
	resp, _ := srv.dispatch(protocol.Request{Kind: protocol.KindSetBroadcastInterval, IntervalMS: &ms}, nil, nil, nil)
	if resp.Kind != protocol.KindOk {
		t.Fatalf("Kind = %v, want KindOk", resp.Kind)
	}
	got := srv.sampler.IntervalMS()
	if got != 1 {
		// handleSetBroadcastInterval delegates clamping to the sampler
		// itself; fakeSampler here doesn't clamp, so this just proves the
		// value is forwarded unchanged to whatever IntervalSetter is wired.
		t.Fatalf("IntervalMS = %d, want 1 (fake has no clamp)", got)
	}
}

func TestDispatch_Subscribe_RejectsWhenFull(t *testing.T) {
	srv, _ := newTestServer(t)
	srv.maxSubscribers = 0

	resp, action := srv.dispatch(protocol.Request{Kind: protocol.KindSubscribe}, nil, nil, nil)
	if action != actionNone {
		t.Fatalf("action = %v, want actionNone (rejected before registering)", action)
	}
	if resp.Kind != protocol.KindSubscriptionRejected {
		t.Fatalf("Kind = %v, want KindSubscriptionRejected", resp.Kind)
	}
}

func TestDispatch_Shutdown(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, action := srv.dispatch(protocol.Request{Kind: protocol.KindShutdown}, nil, nil, nil)
	if action != actionShutdown {
		t.Fatalf("action = %v, want actionShutdown", action)
	}
	if resp.Kind != protocol.KindOk {
		t.Fatalf("Kind = %v, want KindOk", resp.Kind)
	}
}
