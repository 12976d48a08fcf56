// Package forecast estimates time-to-empty or time-to-full from a short
// trailing window of recent power readings, the way the teacher's
// calibration package holds a window of timestamped PowerReadings and
// averages over it rather than trusting a single instantaneous sample.
package forecast

import (
	"time"

	"github.com/cptspacemanspiff/jolt/internal/model"
)

// DefaultWindow is the trailing window used to estimate discharge rate.
const DefaultWindow = 300 * time.Second

const (
	minSamplesForEstimate = 3
	minDischargeWatts     = 0.1
	maxForecastDuration   = 24 * time.Hour
)

// Reading is one tick's worth of forecaster input.
type Reading struct {
	Timestamp     int64
	PowerWatts    float64
	ChargePercent float64
	Charging      bool
}

// Forecaster holds a trailing window of readings and derives a
// ForecastSnapshot from it on demand.
type Forecaster struct {
	windowSecs int64
	readings   []Reading
}

// New builds a Forecaster with the given trailing window.
func New(window time.Duration) *Forecaster {
	return &Forecaster{windowSecs: int64(window / time.Second)}
}

// Observe records a reading and drops anything that has aged out of the
// window relative to its timestamp.
func (f *Forecaster) Observe(r Reading) {
	f.readings = append(f.readings, r)
	cutoff := r.Timestamp - f.windowSecs
	i := 0
	for ; i < len(f.readings); i++ {
		if f.readings[i].Timestamp >= cutoff {
			break
		}
	}
	f.readings = f.readings[i:]
}

// Snapshot produces the current estimate. maxCapacityWh and timeToFull come
// from the latest BatteryInfo; timeToFull is nil when the platform doesn't
// report one.
func (f *Forecaster) Snapshot(chargePercent, maxCapacityWh float64, charging bool, timeToFull *time.Duration) model.ForecastSnapshot {
	if !charging {
		if snap, ok := f.dischargeEstimate(chargePercent, maxCapacityWh); ok {
			return snap
		}
		return model.ForecastSnapshot{SampleCount: len(f.readings), Source: model.ForecastNone}
	}

	if timeToFull != nil {
		secs := int64(timeToFull.Seconds())
		if secs >= 0 && time.Duration(secs)*time.Second <= maxForecastDuration {
			return model.ForecastSnapshot{
				DurationSecs: &secs,
				SampleCount:  len(f.readings),
				Source:       model.ForecastSession,
			}
		}
	}
	return model.ForecastSnapshot{SampleCount: len(f.readings), Source: model.ForecastNone}
}

func (f *Forecaster) dischargeEstimate(chargePercent, maxCapacityWh float64) (model.ForecastSnapshot, bool) {
	if len(f.readings) < minSamplesForEstimate {
		return model.ForecastSnapshot{}, false
	}

	var sum float64
	n := 0
	for _, r := range f.readings {
		if r.Charging {
			continue
		}
		sum += r.PowerWatts
		n++
	}
	if n < minSamplesForEstimate {
		return model.ForecastSnapshot{}, false
	}
	meanWatts := sum / float64(n)
	if meanWatts <= minDischargeWatts {
		return model.ForecastSnapshot{}, false
	}

	hours := (chargePercent / 100.0) * maxCapacityWh / meanWatts
	duration := time.Duration(hours * float64(time.Hour))
	if duration < 0 || duration > maxForecastDuration {
		return model.ForecastSnapshot{}, false
	}

	secs := int64(duration.Seconds())
	avg := meanWatts
	return model.ForecastSnapshot{
		DurationSecs:  &secs,
		AvgPowerWatts: &avg,
		SampleCount:   n,
		Source:        model.ForecastDaemon,
	}, true
}
