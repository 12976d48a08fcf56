// Package metrics holds the daemon's in-process operational counters,
// using prometheus/client_golang the way 99souls-ariadne does for its own
// service metrics, but without an HTTP exporter: there is no HTTP surface
// in this daemon, so nothing scrapes them. GetStatus reads back the
// samples-inserted and insertion-failure counters; the rest stay in-process.
package metrics

import (
	dto "github.com/prometheus/client_model/go"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds the daemon's counters and gauges, each created against a
// private prometheus.Registry rather than the global default so tests can
// build as many Registries as they like without collector-name collisions.
type Registry struct {
	reg *prometheus.Registry

	SamplesInserted    prometheus.Counter
	InsertionFailures  prometheus.Counter
	ActiveSubscribers  prometheus.Gauge
	BroadcastDrops     prometheus.Counter
	RetentionSweeps    prometheus.Counter
	RetentionRowsFreed prometheus.Counter
	RetentionVacuums   prometheus.Counter
	StoreReopens       prometheus.Counter
}

// New builds a Registry with every metric registered.
func New() *Registry {
	reg := prometheus.NewRegistry()
	r := &Registry{
		reg: reg,
		SamplesInserted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jolt_samples_inserted_total",
			Help: "Total samples successfully persisted.",
		}),
		InsertionFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jolt_sample_insertion_failures_total",
			Help: "Total sample insertion failures.",
		}),
		ActiveSubscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "jolt_active_subscribers",
			Help: "Current number of subscribed IPC clients.",
		}),
		BroadcastDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jolt_broadcast_drops_total",
			Help: "Total snapshots dropped from a subscriber's full outbound queue.",
		}),
		RetentionSweeps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jolt_retention_sweeps_total",
			Help: "Total retention sweeps run.",
		}),
		RetentionRowsFreed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jolt_retention_rows_freed_total",
			Help: "Total rows deleted by retention sweeps across all tables.",
		}),
		RetentionVacuums: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jolt_retention_vacuums_total",
			Help: "Total VACUUM operations run after a retention sweep exceeded the database size ceiling.",
		}),
		StoreReopens: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jolt_store_reopens_total",
			Help: "Total times the sampler reopened the history store after sustained insertion failures.",
		}),
	}
	reg.MustRegister(r.SamplesInserted, r.InsertionFailures, r.ActiveSubscribers, r.BroadcastDrops,
		r.RetentionSweeps, r.RetentionRowsFreed, r.RetentionVacuums, r.StoreReopens)
	return r
}

// Snapshot holds the current value of every metric. GetStatus copies
// SamplesInserted and InsertionFailures from it onto the wire.
type Snapshot struct {
	SamplesInserted    float64 `json:"samples_inserted"`
	InsertionFailures  float64 `json:"insertion_failures"`
	ActiveSubscribers  float64 `json:"active_subscribers"`
	BroadcastDrops     float64 `json:"broadcast_drops"`
	RetentionSweeps    float64 `json:"retention_sweeps"`
	RetentionRowsFreed float64 `json:"retention_rows_freed"`
	RetentionVacuums   float64 `json:"retention_vacuums"`
	StoreReopens       float64 `json:"store_reopens"`
}

// Snapshot reads the current value of every metric. Counters and gauges in
// client_golang don't expose a plain float getter, so this goes through
// the standard Write(*dto.Metric) path each of them implements.
func (r *Registry) Snapshot() Snapshot {
	return Snapshot{
		SamplesInserted:    readCounter(r.SamplesInserted),
		InsertionFailures:  readCounter(r.InsertionFailures),
		ActiveSubscribers:  readGauge(r.ActiveSubscribers),
		BroadcastDrops:     readCounter(r.BroadcastDrops),
		RetentionSweeps:    readCounter(r.RetentionSweeps),
		RetentionRowsFreed: readCounter(r.RetentionRowsFreed),
		RetentionVacuums:   readCounter(r.RetentionVacuums),
		StoreReopens:       readCounter(r.StoreReopens),
	}
}

func readCounter(c prometheus.Counter) float64 {
	m := &dto.Metric{}
	_ = c.Write(m)
	return m.GetCounter().GetValue()
}

func readGauge(g prometheus.Gauge) float64 {
	m := &dto.Metric{}
	_ = g.Write(m)
	return m.GetGauge().GetValue()
}
