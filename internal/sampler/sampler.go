// Package sampler implements the collector daemon's periodic tick: refresh
// the sensor provider, build a Snapshot, feed the analyzer and forecaster,
// persist a Sample, and hand the result to the IPC server for fan-out.
//
// The tick loop's shape — a single select over a ticker, an external wake
// channel, and a context-cancellation — is the same one the teacher's
// cmd/power-monitor-daemon/main.go uses for its own collection loop;
// generalized here into its own goroutine so the IPC acceptor and retention
// sweep can run as siblings instead of sharing one select statement.
package sampler

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cptspacemanspiff/jolt/internal/analyzer"
	"github.com/cptspacemanspiff/jolt/internal/forecast"
	"github.com/cptspacemanspiff/jolt/internal/metrics"
	"github.com/cptspacemanspiff/jolt/internal/model"
	"github.com/cptspacemanspiff/jolt/internal/process"
	"github.com/cptspacemanspiff/jolt/internal/sensor"
	"github.com/cptspacemanspiff/jolt/internal/store"
)

const (
	// MinIntervalMS and MaxIntervalMS bound SetBroadcastInterval (spec §4.6).
	MinIntervalMS = 500
	MaxIntervalMS = 10_000

	// maxConsecutiveInsertFailures triggers a store reopen attempt (spec §4.3).
	maxConsecutiveInsertFailures = 5

	// maxReopenFailures bounds how many times in a row the reopen attempt
	// itself may fail before the daemon gives up and exits (spec §4.3:
	// "on repeated reopen failure, exit").
	maxReopenFailures = 3

	topProcessRefreshInterval = time.Minute
)

// Broadcaster is the IPC server's fan-out surface; the sampler depends only
// on this narrow interface so it never blocks on a subscriber's socket.
type Broadcaster interface {
	Broadcast(model.Snapshot)
}

// Sampler owns the sensor provider, persists samples, drives the analyzer
// and forecaster, and republishes the "current" snapshot.
type Sampler struct {
	provider   sensor.Provider
	db         *store.Handle
	analyzer   *analyzer.Analyzer
	forecaster *forecast.Forecaster
	procs      *process.Collector
	metrics    *metrics.Registry
	broadcast  Broadcaster
	logger     *slog.Logger
	hostname   string
	exit       func(code int)

	intervalMS           atomic.Int64
	consecutiveInsertErr int
	reopenFailures       int

	mu      sync.RWMutex
	current *model.Snapshot

	lastTopProcessRefresh time.Time
	topProcessLimit       int
}

// Options configures a new Sampler.
type Options struct {
	Provider        sensor.Provider
	DB              *store.Handle
	Analyzer        *analyzer.Analyzer
	Forecaster      *forecast.Forecaster
	Processes       *process.Collector
	Metrics         *metrics.Registry
	Broadcast       Broadcaster
	Logger          *slog.Logger
	IntervalMS      int64
	TopProcessLimit int

	// Exit is called with a non-zero code when the store cannot be reopened
	// after repeated attempts. Defaults to os.Exit; tests override it to
	// observe the decision without killing the test binary.
	Exit func(code int)
}

// New builds a Sampler from Options, clamping the initial interval.
func New(o Options) *Sampler {
	if o.TopProcessLimit <= 0 {
		o.TopProcessLimit = 10
	}
	if o.Exit == nil {
		o.Exit = os.Exit
	}
	hostname, _ := os.Hostname()
	s := &Sampler{
		provider:        o.Provider,
		db:              o.DB,
		analyzer:        o.Analyzer,
		forecaster:      o.Forecaster,
		procs:           o.Processes,
		metrics:         o.Metrics,
		broadcast:       o.Broadcast,
		logger:          o.Logger,
		hostname:        hostname,
		exit:            o.Exit,
		topProcessLimit: o.TopProcessLimit,
	}
	s.intervalMS.Store(clampInterval(o.IntervalMS))
	return s
}

// SetBroadcaster wires the IPC server in after construction, breaking the
// constructor cycle between Sampler and ipcserver.Server: the server needs
// a built Sampler to satisfy IntervalSetter, and the sampler needs a built
// server to satisfy Broadcaster.
func (s *Sampler) SetBroadcaster(b Broadcaster) {
	s.broadcast = b
}

// IntervalMS returns the sampler's current tick interval.
func (s *Sampler) IntervalMS() int64 {
	return s.intervalMS.Load()
}

// SetIntervalMS clamps ms to [MinIntervalMS, MaxIntervalMS] and applies it;
// the next tick picks up the new interval (spec §4.7 SetBroadcastInterval).
func (s *Sampler) SetIntervalMS(ms int64) int64 {
	clamped := clampInterval(ms)
	s.intervalMS.Store(clamped)
	return clamped
}

func clampInterval(ms int64) int64 {
	if ms < MinIntervalMS {
		return MinIntervalMS
	}
	if ms > MaxIntervalMS {
		return MaxIntervalMS
	}
	return ms
}

// CurrentSnapshot returns the most recently produced snapshot, if any.
func (s *Sampler) CurrentSnapshot() (model.Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return model.Snapshot{}, false
	}
	return *s.current, true
}

// Run drives the tick loop until ctx is cancelled. wake, when non-nil,
// forces an immediate out-of-cadence tick (e.g. on resume from suspend) so a
// long sleep doesn't get averaged into one high-power reading (spec §4.6,
// §9's "prolonged stall" rule in the analyzer is the complementary half of
// this: if nothing forces a wake tick, the analyzer's own stall timeout
// force-closes a stuck Discharging session instead).
func (s *Sampler) Run(ctx context.Context, wake <-chan struct{}) {
	next := time.Now()
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-wake:
			if !timer.Stop() {
				<-timer.C
			}
			next = time.Now()
			timer.Reset(0)
		case <-timer.C:
			if _, err := s.Tick(); err != nil {
				s.logger.Error("sampler tick failed", "err", err)
			}
			// Catch up, don't compound drift: the next scheduled time is
			// max(now, prev+interval), never a tight backfill loop.
			interval := time.Duration(s.IntervalMS()) * time.Millisecond
			next = next.Add(interval)
			now := time.Now()
			if next.Before(now) {
				next = now
			}
			timer.Reset(next.Sub(now))
		}
	}
}

// Tick performs one sample: refresh, build the Snapshot, feed the analyzer
// and forecaster, persist, periodically refresh top processes, broadcast,
// and cache as current.
func (s *Sampler) Tick() (model.Snapshot, error) {
	if err := s.provider.Refresh(); err != nil {
		s.logger.Debug("sensor refresh failed", "err", err)
	}
	battery, err := s.provider.BatteryInfo()
	if err != nil {
		return model.Snapshot{}, err
	}
	power, err := s.provider.PowerInfo()
	if err != nil {
		return model.Snapshot{}, err
	}

	now := time.Now().Unix()
	snapshot := BuildSnapshot(now, s.hostname, battery, power)

	s.forecaster.Observe(forecast.Reading{
		Timestamp:     now,
		PowerWatts:    power.SystemPowerWatts,
		ChargePercent: battery.ChargePercent,
		Charging:      battery.ExternalConnected,
	})
	snapshot.Forecast = s.forecaster.Snapshot(battery.ChargePercent, battery.MaxCapacityWh, battery.ExternalConnected, battery.TimeToFull)

	if s.procs != nil {
		flat, procErr := s.procs.Collect(power.SystemPowerWatts)
		if procErr != nil {
			s.logger.Debug("process collection failed", "err", procErr)
		} else {
			snapshot.Processes = process.BuildTree(flat)
		}
	}

	if err := s.analyzer.Feed(analyzer.Input{
		Timestamp:         now,
		ChargePercent:     battery.ChargePercent,
		PowerWatts:        power.SystemPowerWatts,
		State:             battery.State,
		ExternalConnected: battery.ExternalConnected,
		ChargerWatts:      battery.ChargerWatts,
		CycleCount:        battery.CycleCount,
		TemperatureC:      battery.TemperatureC,
	}); err != nil {
		s.logger.Warn("analyzer feed failed", "err", err)
	}

	if err := s.persist(snapshot); err != nil {
		s.logger.Error("persist sample failed", "err", err)
	}

	s.maybeRefreshTopProcesses(snapshot, now)

	s.mu.Lock()
	s.current = &snapshot
	s.mu.Unlock()

	if s.broadcast != nil {
		s.broadcast.Broadcast(snapshot)
	}

	return snapshot, nil
}

func (s *Sampler) persist(snapshot model.Snapshot) error {
	db := s.db.Get()
	if err := db.InsertSample(snapshot.ToSample()); err != nil {
		s.consecutiveInsertErr++
		if s.metrics != nil {
			s.metrics.InsertionFailures.Inc()
		}
		if s.consecutiveInsertErr >= maxConsecutiveInsertFailures {
			s.reopenStore(db)
		}
		return err
	}
	s.consecutiveInsertErr = 0
	if s.metrics != nil {
		s.metrics.SamplesInserted.Inc()
	}
	return nil
}

// reopenStore runs after a run of maxConsecutiveInsertFailures consecutive
// insertion errors (spec §4.3). It reopens the DB at the same path and
// swaps it into the shared handle, so the IPC server's historical queries
// (GetStats, GetHourlyStats, ...) start hitting the new connection too,
// rather than one goroutine quietly keeping the old, failing *DB alive.
// A run of maxReopenFailures failed reopen attempts means the underlying
// storage itself is gone, not just the connection, so the daemon exits.
func (s *Sampler) reopenStore(failed *store.DB) {
	s.logger.Error("sustained insertion failures, reopening store", "count", s.consecutiveInsertErr)

	reopened, err := store.Open(failed.Path())
	if err != nil {
		s.reopenFailures++
		s.logger.Error("store reopen failed", "err", err, "attempt", s.reopenFailures)
		if s.reopenFailures >= maxReopenFailures {
			s.logger.Error("store reopen failed repeatedly, exiting", "attempts", s.reopenFailures)
			s.exit(1)
		}
		return
	}

	s.db.Replace(reopened)
	if err := failed.Close(); err != nil {
		s.logger.Warn("close failed store handle", "err", err)
	}
	s.reopenFailures = 0
	s.consecutiveInsertErr = 0
	if s.metrics != nil {
		s.metrics.StoreReopens.Inc()
	}
	s.logger.Info("store reopened")
}

func (s *Sampler) maybeRefreshTopProcesses(snapshot model.Snapshot, now int64) {
	if len(snapshot.Processes) == 0 {
		return
	}
	if !s.lastTopProcessRefresh.IsZero() && time.Since(s.lastTopProcessRefresh) < topProcessRefreshInterval {
		return
	}
	s.lastTopProcessRefresh = time.Now()

	date := time.Unix(now, 0).UTC().Format("2006-01-02")
	flat := flattenProcesses(snapshot.Processes)
	top := aggregateTopProcesses(date, flat, snapshot.Power.SystemPowerWatts, s.topProcessLimit)
	if err := s.db.InsertDailyTopProcesses(date, top); err != nil {
		s.logger.Warn("refresh daily top processes failed", "err", err)
	}
}

func flattenProcesses(roots []*model.ProcessRecord) []*model.ProcessRecord {
	var out []*model.ProcessRecord
	var walk func(*model.ProcessRecord)
	walk = func(r *model.ProcessRecord) {
		out = append(out, r)
		for _, c := range r.Children {
			walk(c)
		}
	}
	for _, r := range roots {
		walk(r)
	}
	return out
}

// BuildSnapshot projects a raw sensor reading into the wire-facing Snapshot
// shape. Exported so the client library's local-sampling fallback (spec
// §4.8 "falls back to local sampling") can build the same shape without
// duplicating the projection.
func BuildSnapshot(ts int64, hostname string, battery sensor.BatteryInfo, power sensor.PowerInfo) model.Snapshot {
	state := model.StateUnknown
	switch battery.State {
	case sensor.Charging:
		state = model.StateCharging
	case sensor.Discharging:
		state = model.StateDischarging
	case sensor.Full:
		state = model.StateFull
	}
	return model.Snapshot{
		Timestamp: ts,
		Battery: model.BatterySnapshot{
			ChargePercent:     battery.ChargePercent,
			State:             state,
			ExternalConnected: battery.ExternalConnected,
			HealthPercent:     battery.HealthPercent,
			CycleCount:        battery.CycleCount,
			TemperatureC:      battery.TemperatureC,
			EnergyRateWatts:   battery.EnergyRateWatts,
			MaxCapacityWh:     battery.MaxCapacityWh,
		},
		Power: model.PowerSnapshot{
			CPUPowerWatts:    power.CPUPowerWatts,
			GPUPowerWatts:    power.GPUPowerWatts,
			SystemPowerWatts: power.SystemPowerWatts,
			PowerMode:        string(power.PowerMode),
			IsWarmedUp:       power.IsWarmedUp,
		},
		System: model.SystemInfo{
			Hostname:  hostname,
			PowerMode: string(power.PowerMode),
		},
	}
}
