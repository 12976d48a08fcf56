// Package protocol defines the versioned request/response/event envelopes
// exchanged over the daemon's Unix domain socket, one JSON object per line.
package protocol

import "github.com/cptspacemanspiff/jolt/internal/model"

// Current and minimum-supported protocol versions. Additive changes (new
// optional fields, new variants) don't bump these; removals, renames, and
// type changes do.
const (
	ProtocolVersion      = 3
	MinSupportedVersion  = 2
)

// Kind discriminates the envelope payload. Requests, responses, and events
// all share one wire shape so a single line-reader can decode any of them.
type Kind string

const (
	KindGetStatus              Kind = "get_status"
	KindGetHourlyStats         Kind = "get_hourly_stats"
	KindGetDailyStats          Kind = "get_daily_stats"
	KindGetTopProcessesRange   Kind = "get_top_processes_range"
	KindGetRecentSamples       Kind = "get_recent_samples"
	KindGetCurrentData         Kind = "get_current_data"
	KindGetCycleSummary        Kind = "get_cycle_summary"
	KindGetChargeSessions      Kind = "get_charge_sessions"
	KindGetDailyCycles         Kind = "get_daily_cycles"
	KindSubscribe              Kind = "subscribe"
	KindUnsubscribe            Kind = "unsubscribe"
	KindSetBroadcastInterval   Kind = "set_broadcast_interval"
	KindKillProcess            Kind = "kill_process"
	KindShutdown               Kind = "shutdown"

	KindStatus                 Kind = "status"
	KindHourlyStats            Kind = "hourly_stats"
	KindDailyStats             Kind = "daily_stats"
	KindTopProcesses           Kind = "top_processes"
	KindRecentSamples          Kind = "recent_samples"
	KindCurrentData            Kind = "current_data"
	KindCycleSummary           Kind = "cycle_summary"
	KindChargeSessions         Kind = "charge_sessions"
	KindDailyCycles            Kind = "daily_cycles"
	KindKillResult             Kind = "kill_result"
	KindSubscribed             Kind = "subscribed"
	KindUnsubscribed           Kind = "unsubscribed"
	KindSubscriptionRejected   Kind = "subscription_rejected"
	KindOk                     Kind = "ok"
	KindError                  Kind = "error"

	KindDataUpdate             Kind = "data_update"
)

// Signal selects how KillProcess terminates a process.
type Signal string

const (
	SignalGraceful Signal = "graceful"
	SignalForce    Signal = "force"
)

// Request is the decoded shape of any client->daemon line. Only the fields
// relevant to Kind are populated; unknown fields are ignored by encoding/json
// and missing optional fields decode to their zero value, which is the
// spec's definition of "default".
type Request struct {
	Kind Kind `json:"kind"`

	FromTS   *int64  `json:"from_ts,omitempty"`
	ToTS     *int64  `json:"to_ts,omitempty"`
	FromDate *string `json:"from_date,omitempty"`
	ToDate   *string `json:"to_date,omitempty"`
	Limit    *int    `json:"limit,omitempty"`
	WindowSecs *int64 `json:"window_secs,omitempty"`
	Days     *int    `json:"days,omitempty"`

	IntervalMS *int64 `json:"interval_ms,omitempty"`

	PID    *int    `json:"pid,omitempty"`
	Signal *Signal `json:"signal,omitempty"`
}

// Response is the decoded shape of any daemon->client line answering a
// request. Event lines (DataUpdate) reuse the same struct with Kind ==
// KindDataUpdate and only Snapshot populated.
type Response struct {
	Kind Kind `json:"kind"`

	Status *DaemonStatus `json:"status,omitempty"`

	HourlyStats    []model.HourlyRollup    `json:"hourly_stats,omitempty"`
	DailyStats     []model.DailyRollup     `json:"daily_stats,omitempty"`
	TopProcesses   []model.DailyTopProcess `json:"top_processes,omitempty"`
	Samples        []model.Sample          `json:"samples,omitempty"`
	Current        *model.Snapshot         `json:"current,omitempty"`
	CycleSummary   *model.CycleSummary     `json:"cycle_summary,omitempty"`
	ChargeSessions []model.ChargeSession   `json:"charge_sessions,omitempty"`
	DailyCycles    []model.DailyCycle      `json:"daily_cycles,omitempty"`

	KillResult *KillResult `json:"kill_result,omitempty"`

	RejectReason string `json:"reject_reason,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`

	Snapshot *model.Snapshot `json:"snapshot,omitempty"`
}

// DaemonStatus carries the protocol version contract from spec §4.2/§6.
type DaemonStatus struct {
	ProtocolVersion     int    `json:"protocol_version"`
	MinSupportedVersion int    `json:"min_supported_version"`
	Uptime              int64  `json:"uptime_secs"`
	BroadcastIntervalMS int64  `json:"broadcast_interval_ms"`
	SubscriberCount     int    `json:"subscriber_count"`
	SamplesInserted     int64  `json:"samples_inserted"`
	InsertionFailures   int64  `json:"insertion_failures"`
	StoreBytes          int64  `json:"store_bytes"`
}

// KillResult reports the outcome of a KillProcess request.
type KillResult struct {
	PID     int    `json:"pid"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// OK builds the trivial acknowledgement response.
func OK() Response { return Response{Kind: KindOk} }

// Error builds an Error response carrying message unchanged. The IPC server
// passes fixed strings ("bad request", "unsupported", "no current data") for
// protocol-level errors, and the text of a store or analyzer error as-is
// when a query fails; no further normalization is applied.
func Error(message string) Response {
	return Response{Kind: KindError, ErrorMessage: message}
}

// SupportedBy reports whether a client compiled at clientVersion may talk to
// a daemon advertising status. Spec §4.2: client must refuse outside
// [server.min_supported, server.current].
func SupportedBy(status DaemonStatus, clientVersion int) bool {
	return clientVersion >= status.MinSupportedVersion && clientVersion <= status.ProtocolVersion
}
