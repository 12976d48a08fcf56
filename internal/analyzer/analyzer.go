// Package analyzer segments the sampler's stream of readings into charge and
// discharge sessions and rolls closed sessions up into the day's cycle
// accounting, generalized from the teacher's collector loop (which read
// BatteryInfo once per tick and logged state changes inline) into an
// explicit state machine the sampler can drive and the store can persist.
package analyzer

import (
	"time"

	"github.com/cptspacemanspiff/jolt/internal/model"
	"github.com/cptspacemanspiff/jolt/internal/sensor"
	"github.com/cptspacemanspiff/jolt/internal/store"
)

// State is the analyzer's coarse charge/discharge/idle classification.
type State string

const (
	StateIdle        State = "idle"
	StateCharging    State = "charging"
	StateDischarging State = "discharging"
)

// stallMultiple is how many sample intervals may pass with no feed before a
// stuck Discharging session is force-closed (spec §4.4).
const stallMultiple = 2

// highSoCThreshold is the charge_percent above which elapsed time accrues to
// a DailyCycle's time_at_high_soc_mins.
const highSoCThreshold = 80.0

// Input is one tick's worth of analyzer-relevant battery state. It carries
// more than model.Sample does (model.Sample's ChargingState is deliberately
// coarser than sensor.ChargeState) because the Charging→Idle transition
// needs to distinguish Full from NotCharging.
type Input struct {
	Timestamp         int64
	ChargePercent     float64
	PowerWatts        float64
	State             sensor.ChargeState
	ExternalConnected bool
	ChargerWatts      *float64
	CycleCount        *int
	TemperatureC      *float64
}

type openSession struct {
	sessionType  model.SessionType
	startTime    int64
	startPercent float64
	chargerWatts *float64
	timestamps   []int64
	powers       []float64
	lastTS       int64
	lastPercent  float64
	highSoCMins  float64
}

// Analyzer tracks one open session at a time plus the current state.
type Analyzer struct {
	db                 *store.DB
	designCycleCeiling float64
	sampleInterval     time.Duration

	state       State
	open        *openSession
	haveFed     bool
	lastFeedsAt int64
}

// New builds an Analyzer. designCycleCeiling feeds GetCycleSummary's
// estimated_cycles_remaining (spec §9 open question, default 1000, set from
// config).
func New(db *store.DB, sampleInterval time.Duration, designCycleCeiling float64) *Analyzer {
	return &Analyzer{
		db:                 db,
		designCycleCeiling: designCycleCeiling,
		sampleInterval:     sampleInterval,
		state:              StateIdle,
	}
}

// State returns the analyzer's current classification.
func (a *Analyzer) State() State {
	return a.state
}

// Feed processes one tick. It may open, update, or close a session. Opening
// and closing a session are persisted immediately; the readings an open
// session accrues (power, timestamps, high-SoC minutes) stay in memory until
// it closes, so a crash loses them while the open session's row survives.
func (a *Analyzer) Feed(in Input) error {
	if a.haveFed && a.state == StateDischarging && a.open != nil {
		gap := time.Duration(in.Timestamp-a.lastFeedsAt) * time.Second
		if gap > stallMultiple*a.sampleInterval {
			if err := a.closeSession(a.lastFeedsAt, a.open.lastPercent, nil); err != nil {
				return err
			}
			a.state = StateIdle
		}
	}

	target := a.target(in)
	switch {
	case a.state != StateCharging && target == StateCharging:
		if a.open != nil {
			if err := a.closeSession(in.Timestamp, in.ChargePercent, in.CycleCount); err != nil {
				return err
			}
		}
		if err := a.openNew(model.SessionCharge, in); err != nil {
			return err
		}
		a.state = StateCharging
	case a.state != StateDischarging && target == StateDischarging:
		if a.open != nil {
			if err := a.closeSession(in.Timestamp, in.ChargePercent, in.CycleCount); err != nil {
				return err
			}
		}
		if err := a.openNew(model.SessionDischarge, in); err != nil {
			return err
		}
		a.state = StateDischarging
	case a.state == StateCharging && target == StateIdle:
		if err := a.closeSession(in.Timestamp, in.ChargePercent, in.CycleCount); err != nil {
			return err
		}
		a.state = StateIdle
	default:
		if a.open != nil {
			a.update(in)
		}
	}

	a.haveFed = true
	a.lastFeedsAt = in.Timestamp
	return nil
}

// target computes the state the incoming reading implies, independent of
// the analyzer's current state (spec §4.4's transition table).
func (a *Analyzer) target(in Input) State {
	switch {
	case in.ExternalConnected && in.State == sensor.Charging:
		return StateCharging
	case !in.ExternalConnected:
		return StateDischarging
	case in.ExternalConnected && (in.State == sensor.Full || in.State == sensor.NotCharging):
		return StateIdle
	default:
		return a.state
	}
}

func (a *Analyzer) openNew(typ model.SessionType, in Input) error {
	a.open = &openSession{
		sessionType:  typ,
		startTime:    in.Timestamp,
		startPercent: in.ChargePercent,
		chargerWatts: in.ChargerWatts,
		timestamps:   []int64{in.Timestamp},
		powers:       []float64{in.PowerWatts},
		lastTS:       in.Timestamp,
		lastPercent:  in.ChargePercent,
	}
	// highSoCMins accrues from elapsed deltas starting with the next reading.

	return a.db.UpsertChargeSession(model.ChargeSession{
		StartTime:    in.Timestamp,
		StartPercent: in.ChargePercent,
		ChargerWatts: in.ChargerWatts,
		SessionType:  typ,
		IsComplete:   false,
	})
}

func (a *Analyzer) update(in Input) {
	s := a.open
	elapsedHours := float64(in.Timestamp-s.lastTS) / 3600.0
	if elapsedHours > 0 && elapsedHours < 6 {
		if in.ChargePercent > highSoCThreshold || s.lastPercent > highSoCThreshold {
			s.highSoCMins += elapsedHours * 60
		}
	}
	s.timestamps = append(s.timestamps, in.Timestamp)
	s.powers = append(s.powers, in.PowerWatts)
	s.lastTS = in.Timestamp
	s.lastPercent = in.ChargePercent
}

func (a *Analyzer) closeSession(endTime int64, endPercent float64, cycleCount *int) error {
	s := a.open
	a.open = nil
	if s == nil {
		return nil
	}

	var sumPower float64
	for _, p := range s.powers {
		sumPower += p
	}
	avgPower := sumPower / float64(len(s.powers))

	var energyWh float64
	for i := 1; i < len(s.timestamps); i++ {
		dh := float64(s.timestamps[i]-s.timestamps[i-1]) / 3600.0
		if dh <= 0 || dh >= 6 {
			continue
		}
		energyWh += (s.powers[i] + s.powers[i-1]) / 2 * dh
	}

	avg := avgPower
	energy := energyWh
	if err := a.db.UpsertChargeSession(model.ChargeSession{
		StartTime:     s.startTime,
		EndTime:       &endTime,
		StartPercent:  s.startPercent,
		EndPercent:    &endPercent,
		EnergyWh:      &energy,
		ChargerWatts:  s.chargerWatts,
		AvgPowerWatts: &avg,
		SessionType:   s.sessionType,
		IsComplete:    true,
	}); err != nil {
		return err
	}

	return a.rollUpDailyCycle(s, endTime, endPercent, energyWh, cycleCount)
}

func (a *Analyzer) rollUpDailyCycle(s *openSession, endTime int64, endPercent, energyWh float64, cycleCount *int) error {
	date := dateOf(s.startTime)
	minutes := float64(endTime-s.startTime) / 60.0
	depthPct := endPercent - s.startPercent // negative for discharge

	cur, err := a.db.GetDailyCycle(date)
	if err != nil {
		return err
	}
	if cur == nil {
		cur = &model.DailyCycle{Date: date}
	}

	switch s.sessionType {
	case model.SessionCharge:
		cur.ChargeSessionCount++
		cur.ChargeMinutes += minutes
		cur.EnergyInWh += energyWh
	case model.SessionDischarge:
		cur.DischargeSessionCount++
		cur.DischargeMinutes += minutes
		cur.EnergyOutWh += energyWh
		if depthPct < 0 {
			cur.PartialCycles += -depthPct / 100.0
			if depthPct < cur.DeepestDischargePct {
				cur.DeepestDischargePct = depthPct
			}
			if err := a.db.AddBatteryCycles(date, -depthPct/100.0); err != nil {
				return err
			}
		}
	}
	cur.TimeAtHighSoCMins += s.highSoCMins
	if cycleCount != nil {
		cur.PlatformCycleCount = cycleCount
	}

	return a.db.UpsertDailyCycle(*cur)
}

// Shutdown closes any open session without treating it as a statistically
// complete close: is_complete stays false and no cycle aggregates are
// touched, so a restart can tell this session was interrupted rather than
// resolved (spec §4.9 shutdown sequence).
func (a *Analyzer) Shutdown() error {
	if a.open == nil {
		return nil
	}
	s := a.open
	a.open = nil
	endTime := s.lastTS
	endPercent := s.lastPercent
	return a.db.UpsertChargeSession(model.ChargeSession{
		StartTime:    s.startTime,
		EndTime:      &endTime,
		StartPercent: s.startPercent,
		EndPercent:   &endPercent,
		ChargerWatts: s.chargerWatts,
		SessionType:  s.sessionType,
		IsComplete:   false,
	})
}

// CycleSummary proxies to the store with the analyzer's configured ceiling.
func (a *Analyzer) CycleSummary(days int) (model.CycleSummary, error) {
	return a.db.GetCycleSummary(days, a.designCycleCeiling)
}

func dateOf(ts int64) string {
	return time.Unix(ts, 0).UTC().Format("2006-01-02")
}
