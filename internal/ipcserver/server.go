// Package ipcserver implements the daemon's Unix-domain-socket protocol
// server (spec.md C7): accept local connections, decode one newline-JSON
// request per line, dispatch against the store/analyzer/sampler, and fan out
// sampler snapshots to subscribed clients.
//
// The per-connection accept/decode/dispatch/reply shape is grounded on the
// teacher's internal/dbus/service.go method dispatch (one function per
// request kind, JSON payload in and out), adapted from a D-Bus method table
// to a line-oriented socket protocol since spec.md is explicit that the wire
// transport is a UDS, not D-Bus.
package ipcserver

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/cptspacemanspiff/jolt/internal/analyzer"
	"github.com/cptspacemanspiff/jolt/internal/metrics"
	"github.com/cptspacemanspiff/jolt/internal/model"
	"github.com/cptspacemanspiff/jolt/internal/protocol"
	"github.com/cptspacemanspiff/jolt/internal/store"
)

// writeTimeout bounds how long a blocked subscriber write may stall its
// writer goroutine before the subscriber is dropped (spec §5: subscriber
// writes use a short write timeout; on expiry the subscriber is removed).
const writeTimeout = 2 * time.Second

// IntervalSetter is the narrow surface the server needs from the sampler to
// serve SetBroadcastInterval and GetStatus without importing the sampler
// package outright (which would create an import cycle, since the sampler
// depends on ipcserver's Broadcaster interface).
type IntervalSetter interface {
	IntervalMS() int64
	SetIntervalMS(ms int64) int64
	CurrentSnapshot() (model.Snapshot, bool)
}

// Server owns the listener, the subscriber set, and dispatches requests.
type Server struct {
	listener net.Listener
	db       *store.Handle
	analyzer *analyzer.Analyzer
	sampler  IntervalSetter
	metrics  *metrics.Registry
	logger   *slog.Logger
	started  time.Time

	maxSubscribers int
	queueSize      int

	mu          sync.Mutex
	subscribers map[uint64]*subscriber
	nextID      uint64

	onShutdown func()
}

// Options configures a new Server.
type Options struct {
	SocketPath     string
	DB             *store.Handle
	Analyzer       *analyzer.Analyzer
	Sampler        IntervalSetter
	Metrics        *metrics.Registry
	Logger         *slog.Logger
	MaxSubscribers int
	QueueSize      int
	OnShutdown     func()
}

// Listen binds the Unix domain socket at mode 0600, unlinking a stale socket
// from a prior unclean shutdown once before giving up (spec §4.9, §7).
func Listen(o Options) (*Server, error) {
	if o.MaxSubscribers <= 0 {
		o.MaxSubscribers = 10
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 64
	}

	l, err := bindSocket(o.SocketPath)
	if err != nil {
		return nil, err
	}

	return &Server{
		listener:       l,
		db:             o.DB,
		analyzer:       o.Analyzer,
		sampler:        o.Sampler,
		metrics:        o.Metrics,
		logger:         o.Logger,
		started:        time.Now(),
		maxSubscribers: o.MaxSubscribers,
		queueSize:      o.QueueSize,
		subscribers:    make(map[uint64]*subscriber),
		onShutdown:     o.OnShutdown,
	}, nil
}

func bindSocket(path string) (net.Listener, error) {
	l, err := net.Listen("unix", path)
	if err != nil {
		if errors.Is(err, unix.EADDRINUSE) {
			if rmErr := os.Remove(path); rmErr != nil {
				return nil, fmt.Errorf("listen unix %s: %w (stale socket unlink failed: %v)", path, err, rmErr)
			}
			l, err = net.Listen("unix", path)
		}
		if err != nil {
			return nil, fmt.Errorf("listen unix %s: %w", path, err)
		}
	}
	if chmodErr := os.Chmod(path, 0o600); chmodErr != nil {
		l.Close()
		return nil, fmt.Errorf("chmod socket %s: %w", path, chmodErr)
	}
	return l, nil
}

// Close stops accepting connections and releases the listener. It does not
// forcibly close existing connections; callers stop accepting as the first
// step of shutdown and let connections wind down via their own EOF/Shutdown
// handling (spec §4.9's shutdown ordering).
func (s *Server) Close() error {
	return s.listener.Close()
}

// Addr returns the bound socket path.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Serve accepts connections until the listener is closed.
func (s *Server) Serve() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		go s.handleConn(conn)
	}
}

// Broadcast implements sampler.Broadcaster: it copies the subscriber set
// under s.mu and then enqueues the snapshot to each subscriber's mailbox
// outside that lock. Each enqueue appends under the subscriber's own lock,
// so while Broadcast is called from a single goroutine (the sampler's tick
// loop), every subscriber receives snapshots in the order they were
// produced (spec §5 ordering guarantee).
func (s *Server) Broadcast(snap model.Snapshot) {
	s.mu.Lock()
	subs := make([]*subscriber, 0, len(s.subscribers))
	for _, sub := range s.subscribers {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		sub.enqueue(snap, s.metrics)
	}
}

func (s *Server) activeSubscriberCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subscribers)
}

func (s *Server) registerSubscriber(sub *subscriber) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.subscribers) >= s.maxSubscribers {
		return false
	}
	s.nextID++
	sub.id = s.nextID
	s.subscribers[sub.id] = sub
	if s.metrics != nil {
		s.metrics.ActiveSubscribers.Set(float64(len(s.subscribers)))
	}
	return true
}

func (s *Server) deregisterSubscriber(sub *subscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subscribers, sub.id)
	if s.metrics != nil {
		s.metrics.ActiveSubscribers.Set(float64(len(s.subscribers)))
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	dec := protocol.NewDecoder(conn)
	var writeMu sync.Mutex
	enc := protocol.NewEncoder(conn)
	writeResponse := func(resp protocol.Response) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return enc.EncodeResponse(resp)
	}

	var sub *subscriber
	defer func() {
		if sub != nil {
			sub.stop()
			s.deregisterSubscriber(sub)
		}
	}()

	for {
		req, err := dec.DecodeRequest()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				_ = writeResponse(protocol.Error("bad request"))
				continue
			}
			return
		}

		resp, subscribeAction := s.dispatch(req, conn, &writeMu, enc)
		switch subscribeAction {
		case actionSubscribe:
			newSub := newSubscriber(s.queueSize, conn, &writeMu)
			if !s.registerSubscriber(newSub) {
				resp = protocol.Response{Kind: protocol.KindSubscriptionRejected, RejectReason: "too many subscribers"}
			} else {
				sub = newSub
				go func() {
					// run returns on stop() or on a failed write; either
					// way the subscriber leaves the set.
					newSub.run(s.logger)
					s.deregisterSubscriber(newSub)
				}()
			}
		case actionUnsubscribe:
			if sub != nil {
				sub.stop()
				s.deregisterSubscriber(sub)
				sub = nil
			}
		}

		if err := writeResponse(resp); err != nil {
			return
		}
		if subscribeAction == actionShutdown {
			if s.onShutdown != nil {
				s.onShutdown()
			}
			return
		}
	}
}

type dispatchAction int

const (
	actionNone dispatchAction = iota
	actionSubscribe
	actionUnsubscribe
	actionShutdown
)

func (s *Server) dispatch(req protocol.Request, conn net.Conn, writeMu *sync.Mutex, enc *protocol.Encoder) (protocol.Response, dispatchAction) {
	switch req.Kind {
	case protocol.KindGetStatus:
		return s.handleGetStatus(), actionNone
	case protocol.KindGetHourlyStats:
		return s.handleGetHourlyStats(req), actionNone
	case protocol.KindGetDailyStats:
		return s.handleGetDailyStats(req), actionNone
	case protocol.KindGetTopProcessesRange:
		return s.handleGetTopProcessesRange(req), actionNone
	case protocol.KindGetRecentSamples:
		return s.handleGetRecentSamples(req), actionNone
	case protocol.KindGetCurrentData:
		return s.handleGetCurrentData(), actionNone
	case protocol.KindGetCycleSummary:
		return s.handleGetCycleSummary(req), actionNone
	case protocol.KindGetChargeSessions:
		return s.handleGetChargeSessions(req), actionNone
	case protocol.KindGetDailyCycles:
		return s.handleGetDailyCycles(req), actionNone
	case protocol.KindSubscribe:
		if s.activeSubscriberCount() >= s.maxSubscribers {
			return protocol.Response{Kind: protocol.KindSubscriptionRejected, RejectReason: "too many subscribers"}, actionNone
		}
		return protocol.Response{Kind: protocol.KindSubscribed}, actionSubscribe
	case protocol.KindUnsubscribe:
		return protocol.Response{Kind: protocol.KindUnsubscribed}, actionUnsubscribe
	case protocol.KindSetBroadcastInterval:
		return s.handleSetBroadcastInterval(req), actionNone
	case protocol.KindKillProcess:
		return s.handleKillProcess(req), actionNone
	case protocol.KindShutdown:
		return protocol.OK(), actionShutdown
	default:
		return protocol.Error("unsupported"), actionNone
	}
}

func (s *Server) handleGetStatus() protocol.Response {
	stats, err := s.db.Get().GetStats()
	if err != nil {
		return protocol.Error(err.Error())
	}
	status := protocol.DaemonStatus{
		ProtocolVersion:     protocol.ProtocolVersion,
		MinSupportedVersion: protocol.MinSupportedVersion,
		Uptime:              int64(time.Since(s.started).Seconds()),
		SubscriberCount:     s.activeSubscriberCount(),
		StoreBytes:          stats.StoreBytes,
	}
	if s.sampler != nil {
		status.BroadcastIntervalMS = s.sampler.IntervalMS()
	}
	if s.metrics != nil {
		m := s.metrics.Snapshot()
		status.SamplesInserted = int64(m.SamplesInserted)
		status.InsertionFailures = int64(m.InsertionFailures)
	}
	return protocol.Response{Kind: protocol.KindStatus, Status: &status}
}

func (s *Server) handleGetHourlyStats(req protocol.Request) protocol.Response {
	from, to := deref(req.FromTS), deref(req.ToTS)
	rows, err := s.db.Get().GetHourlyStats(from, to)
	if err != nil {
		return protocol.Error(err.Error())
	}
	return protocol.Response{Kind: protocol.KindHourlyStats, HourlyStats: rows}
}

func (s *Server) handleGetDailyStats(req protocol.Request) protocol.Response {
	from, to := derefStr(req.FromDate), derefStr(req.ToDate)
	rows, err := s.db.Get().GetDailyStats(from, to)
	if err != nil {
		return protocol.Error(err.Error())
	}
	return protocol.Response{Kind: protocol.KindDailyStats, DailyStats: rows}
}

func (s *Server) handleGetTopProcessesRange(req protocol.Request) protocol.Response {
	from, to := derefStr(req.FromDate), derefStr(req.ToDate)
	limit := 10
	if req.Limit != nil {
		limit = *req.Limit
	}
	rows, err := s.db.Get().GetTopProcessesRange(from, to, limit)
	if err != nil {
		return protocol.Error(err.Error())
	}
	return protocol.Response{Kind: protocol.KindTopProcesses, TopProcesses: rows}
}

func (s *Server) handleGetRecentSamples(req protocol.Request) protocol.Response {
	window := int64(300)
	if req.WindowSecs != nil {
		window = *req.WindowSecs
	}
	to := time.Now().Unix()
	rows, err := s.db.Get().GetSamples(to-window, to)
	if err != nil {
		return protocol.Error(err.Error())
	}
	return protocol.Response{Kind: protocol.KindRecentSamples, Samples: rows}
}

func (s *Server) handleGetCurrentData() protocol.Response {
	if s.sampler == nil {
		return protocol.Error("no current data")
	}
	snap, ok := s.sampler.CurrentSnapshot()
	if !ok {
		return protocol.Error("no current data")
	}
	return protocol.Response{Kind: protocol.KindCurrentData, Current: &snap}
}

func (s *Server) handleGetCycleSummary(req protocol.Request) protocol.Response {
	days := 30
	if req.Days != nil {
		days = *req.Days
	}
	summary, err := s.analyzer.CycleSummary(days)
	if err != nil {
		return protocol.Error(err.Error())
	}
	return protocol.Response{Kind: protocol.KindCycleSummary, CycleSummary: &summary}
}

func (s *Server) handleGetChargeSessions(req protocol.Request) protocol.Response {
	from, to := deref(req.FromTS), deref(req.ToTS)
	rows, err := s.db.Get().GetChargeSessions(from, to)
	if err != nil {
		return protocol.Error(err.Error())
	}
	return protocol.Response{Kind: protocol.KindChargeSessions, ChargeSessions: rows}
}

func (s *Server) handleGetDailyCycles(req protocol.Request) protocol.Response {
	from, to := derefStr(req.FromDate), derefStr(req.ToDate)
	rows, err := s.db.Get().GetDailyCycles(from, to)
	if err != nil {
		return protocol.Error(err.Error())
	}
	return protocol.Response{Kind: protocol.KindDailyCycles, DailyCycles: rows}
}

func (s *Server) handleSetBroadcastInterval(req protocol.Request) protocol.Response {
	if s.sampler == nil || req.IntervalMS == nil {
		return protocol.Error("bad request")
	}
	s.sampler.SetIntervalMS(*req.IntervalMS)
	return protocol.OK()
}

func (s *Server) handleKillProcess(req protocol.Request) protocol.Response {
	if req.PID == nil {
		return protocol.Error("bad request")
	}
	sig := unix.SIGTERM
	if req.Signal != nil && *req.Signal == protocol.SignalForce {
		sig = unix.SIGKILL
	}
	err := unix.Kill(*req.PID, sig)
	result := protocol.KillResult{PID: *req.PID, Success: err == nil}
	if err != nil {
		result.Error = err.Error()
	}
	return protocol.Response{Kind: protocol.KindKillResult, KillResult: &result}
}

func deref(p *int64) int64 {
	if p == nil {
		return 0
	}
	return *p
}

func derefStr(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
