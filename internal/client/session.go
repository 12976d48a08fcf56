package client

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cptspacemanspiff/jolt/internal/model"
	"github.com/cptspacemanspiff/jolt/internal/sampler"
	"github.com/cptspacemanspiff/jolt/internal/sensor"
)

// Tunables from spec §4.8.
const (
	maxSpawnRetries  = 5
	spawnBackoff     = 200 * time.Millisecond
	staleAfter       = 5 * time.Second  // drop subscription, start reconnecting
	freshnessWindow  = 2 * time.Second  // data older than this is "stale" to a viewer
	maxReconnectTries = 3
)

// SpawnFunc auto-starts the daemon when no socket is listening. It is
// injected rather than hard-coded so tests (and the one-shot "daemon not
// running" CLI path) can supply a no-op or a fake.
type SpawnFunc func() error

// Session drives the terminal client's live-view flow end to end (spec
// §4.8 items 1-4): connect-or-spawn, a reader worker via Client, a
// reconnect state machine with linear backoff, and a local-sampling
// fallback once reconnection is exhausted. The consuming UI (out of scope
// here) only ever calls Latest().
type Session struct {
	socketPath string
	spawn      SpawnFunc
	local      sensor.Provider
	localEvery time.Duration
	logger     *slog.Logger

	mu              sync.Mutex
	current         model.Snapshot
	haveCurrent     bool
	lastUpdateAt    time.Time
	usingDaemonData bool
}

// Options configures a new Session.
type Options struct {
	SocketPath string
	Spawn      SpawnFunc
	// Local is the Sensor Provider used once reconnection is exhausted
	// (spec §4.8 item 3's fallback). May be nil if no local fallback is
	// available, in which case the session simply reports stale data.
	Local  sensor.Provider
	Logger *slog.Logger
	// LocalInterval overrides the local-fallback sampling cadence;
	// defaults to 2s (the spec's default broadcast interval) when zero.
	LocalInterval time.Duration
}

// NewSession builds a Session. Call Run to start the connect/reconnect loop.
func NewSession(o Options) *Session {
	logger := o.Logger
	if logger == nil {
		logger = slog.Default()
	}
	localEvery := o.LocalInterval
	if localEvery <= 0 {
		localEvery = 2 * time.Second
	}
	return &Session{socketPath: o.SocketPath, spawn: o.Spawn, local: o.Local, localEvery: localEvery, logger: logger}
}

// Latest returns the most recently observed snapshot, whether it came from
// the daemon or local fallback sampling, whether the session is currently
// using daemon data at all, and whether the data is stale (spec §4.8 item
// 4: stale if no update for more than freshnessWindow).
func (s *Session) Latest() (snap model.Snapshot, ok bool, usingDaemon bool, stale bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.haveCurrent {
		return model.Snapshot{}, false, s.usingDaemonData, true
	}
	stale = time.Since(s.lastUpdateAt) > freshnessWindow
	return s.current, true, s.usingDaemonData, stale
}

func (s *Session) setCurrent(snap model.Snapshot, usingDaemon bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = snap
	s.haveCurrent = true
	s.lastUpdateAt = time.Now()
	s.usingDaemonData = usingDaemon
}

func (s *Session) setUsingDaemon(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usingDaemonData = v
}

// Run drives the session until ctx is cancelled. It never returns early on
// a disconnect: failures feed the reconnect state machine, and exhausting
// that falls back to local sampling rather than giving up.
func (s *Session) Run(ctx context.Context) {
	for ctx.Err() == nil {
		c, err := s.connectAndSubscribe(ctx)
		if err != nil {
			s.logger.Warn("daemon unreachable after retries, falling back to local sampling", "err", err)
			s.runLocalFallback(ctx)
			return
		}
		s.setUsingDaemon(true)
		s.drain(ctx, c)
		c.Close()

		if ctx.Err() != nil {
			return
		}
		if !s.reconnectWithBackoff(ctx) {
			s.logger.Warn("reconnect attempts exhausted, falling back to local sampling")
			s.runLocalFallback(ctx)
			return
		}
	}
}

// connectAndSubscribe implements try_connect_daemon: attempt to subscribe;
// on failure, auto-spawn the daemon and retry up to maxSpawnRetries times
// with a fixed backoff (spec §4.8 item 1).
func (s *Session) connectAndSubscribe(ctx context.Context) (*Client, error) {
	c, err := Connect(s.socketPath)
	if err == nil {
		if err = c.Subscribe(); err == nil {
			return c, nil
		}
		c.Close()
	}

	if s.spawn != nil {
		if spawnErr := s.spawn(); spawnErr != nil {
			s.logger.Debug("auto-spawn daemon failed", "err", spawnErr)
		}
	}

	for attempt := 0; attempt < maxSpawnRetries; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(spawnBackoff):
		}
		c, err = Connect(s.socketPath)
		if err != nil {
			continue
		}
		if err = c.Subscribe(); err != nil {
			c.Close()
			continue
		}
		return c, nil
	}
	return nil, err
}

// drain reads updates from c until staleAfter elapses without one or the
// connection fails; it returns once the caller should enter the reconnect
// state machine.
func (s *Session) drain(ctx context.Context, c *Client) {
	timer := time.NewTimer(staleAfter)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-c.UpdatesChan():
			if !ok {
				return
			}
			s.setCurrent(snap, true)
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(staleAfter)
		case <-c.ReadErrChan():
			return
		case <-timer.C:
			return
		}
	}
}

// reconnectWithBackoff implements spec §4.8 item 3's reconnect state
// machine: linear backoff 1*n seconds for up to maxReconnectTries attempts.
func (s *Session) reconnectWithBackoff(ctx context.Context) bool {
	for attempt := 1; attempt <= maxReconnectTries; attempt++ {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(time.Duration(attempt) * time.Second):
		}
		c, err := Connect(s.socketPath)
		if err != nil {
			continue
		}
		if err := c.Subscribe(); err != nil {
			c.Close()
			continue
		}
		s.setUsingDaemon(true)
		s.drain(ctx, c)
		c.Close()
		if ctx.Err() != nil {
			return false
		}
		// A successful drain that later went stale/failed still counts
		// as "reconnected"; the outer Run loop re-enters this function
		// fresh rather than treating an in-drain failure as exhaustion.
		return true
	}
	return false
}

// runLocalFallback samples the Sensor Provider directly, the same
// refresh-then-read shape sampler.Tick uses, at the default broadcast
// cadence, until ctx is cancelled (spec §4.8 item 3's final fallback).
func (s *Session) runLocalFallback(ctx context.Context) {
	s.setUsingDaemon(false)
	if s.local == nil {
		return
	}
	hostname := "localhost"
	ticker := time.NewTicker(s.localEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.local.Refresh(); err != nil {
				s.logger.Debug("local sensor refresh failed", "err", err)
				continue
			}
			battery, err := s.local.BatteryInfo()
			if err != nil {
				continue
			}
			power, err := s.local.PowerInfo()
			if err != nil {
				continue
			}
			snap := sampler.BuildSnapshot(time.Now().Unix(), hostname, battery, power)
			s.setCurrent(snap, false)
		}
	}
}
