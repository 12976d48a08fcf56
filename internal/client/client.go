// Package client implements the terminal client's connection to the
// collector daemon (spec.md C8): connect over the Unix domain socket,
// subscribe to the broadcast stream, drain decoded updates, and issue the
// synchronous history/query requests.
//
// The one-method-per-request-kind shape is grounded on the teacher's
// cmd/power-gui/dbus.go dbusClient: each wrapper writes a request, reads
// back exactly one matching response, and returns a typed result or error.
// Unlike the teacher's D-Bus calls, a single connection here may also be
// subscribed, so responses to synchronous requests can have DataUpdate
// events interleaved ahead of them (spec §4.2's ordering rule) — the
// request/response path and the subscription reader share one connection
// but never read it concurrently themselves.
package client

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/cptspacemanspiff/jolt/internal/model"
	"github.com/cptspacemanspiff/jolt/internal/protocol"
)

// ErrClosed is returned by Client methods once the underlying connection
// has been torn down, either by Close or by a read failure on the
// subscription reader.
var ErrClosed = errors.New("client: connection closed")

// Client owns one connection to the daemon's Unix domain socket. It is not
// safe for concurrent *requests* (GetStatus, GetDailyStats, ...) from
// multiple goroutines; ReadUpdate is safe to call from a single dedicated
// reader goroutine while other goroutines hold off on issuing requests, the
// same single-outstanding-request discipline the daemon assumes on its side
// of the connection (spec §4.2: "the daemon processes each client's
// requests sequentially").
type Client struct {
	conn net.Conn
	enc  *protocol.Encoder
	dec  *protocol.Decoder

	reqMu sync.Mutex // serializes Request/response round-trips

	subMu      sync.Mutex
	subscribed bool
	updates    chan model.Snapshot
	pending    chan protocol.Response
	readErr    chan error
	nonBlock   bool
}

// Connect dials the daemon's Unix domain socket.
func Connect(socketPath string) (*Client, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", socketPath, err)
	}
	return &Client{
		conn: conn,
		enc:  protocol.NewEncoder(conn),
		dec:  protocol.NewDecoder(conn),
	}, nil
}

// Close tears down the connection. Safe to call more than once.
func (c *Client) Close() error {
	return c.conn.Close()
}

// request sends req and waits for the matching response, tolerating
// DataUpdate events interleaved ahead of it once the client is subscribed.
func (c *Client) request(req protocol.Request) (protocol.Response, error) {
	c.reqMu.Lock()
	defer c.reqMu.Unlock()

	if err := c.enc.EncodeRequest(req); err != nil {
		return protocol.Response{}, fmt.Errorf("write request: %w", err)
	}

	c.subMu.Lock()
	subscribed := c.subscribed
	c.subMu.Unlock()

	if !subscribed {
		resp, err := c.dec.DecodeResponse()
		if err != nil {
			return protocol.Response{}, mapReadErr(err)
		}
		return resp, nil
	}

	// The background reader owns the socket now; wait for it to hand us
	// the next non-event response.
	select {
	case resp, ok := <-c.pending:
		if !ok {
			return protocol.Response{}, ErrClosed
		}
		return resp, nil
	case err := <-c.readErr:
		return protocol.Response{}, mapReadErr(err)
	}
}

func mapReadErr(err error) error {
	if errors.Is(err, io.EOF) {
		return ErrClosed
	}
	return err
}

func asError(resp protocol.Response) error {
	if resp.Kind == protocol.KindError {
		return fmt.Errorf("daemon: %s", resp.ErrorMessage)
	}
	return nil
}

// GetStatus sends GetStatus and returns the decoded DaemonStatus.
func (c *Client) GetStatus() (protocol.DaemonStatus, error) {
	resp, err := c.request(protocol.Request{Kind: protocol.KindGetStatus})
	if err != nil {
		return protocol.DaemonStatus{}, err
	}
	if err := asError(resp); err != nil {
		return protocol.DaemonStatus{}, err
	}
	if resp.Status == nil {
		return protocol.DaemonStatus{}, fmt.Errorf("unexpected response kind %q for get_status", resp.Kind)
	}
	return *resp.Status, nil
}

// GetHourlyStats returns hourly rollups in [from, to] (unix seconds).
func (c *Client) GetHourlyStats(from, to int64) ([]model.HourlyRollup, error) {
	resp, err := c.request(protocol.Request{Kind: protocol.KindGetHourlyStats, FromTS: &from, ToTS: &to})
	if err != nil {
		return nil, err
	}
	if err := asError(resp); err != nil {
		return nil, err
	}
	return resp.HourlyStats, nil
}

// GetDailyStats returns daily rollups in [fromDate, toDate] (YYYY-MM-DD).
func (c *Client) GetDailyStats(fromDate, toDate string) ([]model.DailyRollup, error) {
	resp, err := c.request(protocol.Request{Kind: protocol.KindGetDailyStats, FromDate: &fromDate, ToDate: &toDate})
	if err != nil {
		return nil, err
	}
	if err := asError(resp); err != nil {
		return nil, err
	}
	return resp.DailyStats, nil
}

// GetTopProcessesRange returns the top-N process aggregates in a date range.
func (c *Client) GetTopProcessesRange(fromDate, toDate string, limit int) ([]model.DailyTopProcess, error) {
	resp, err := c.request(protocol.Request{Kind: protocol.KindGetTopProcessesRange, FromDate: &fromDate, ToDate: &toDate, Limit: &limit})
	if err != nil {
		return nil, err
	}
	if err := asError(resp); err != nil {
		return nil, err
	}
	return resp.TopProcesses, nil
}

// GetRecentSamples returns raw samples from the last windowSecs seconds.
func (c *Client) GetRecentSamples(windowSecs int64) ([]model.Sample, error) {
	resp, err := c.request(protocol.Request{Kind: protocol.KindGetRecentSamples, WindowSecs: &windowSecs})
	if err != nil {
		return nil, err
	}
	if err := asError(resp); err != nil {
		return nil, err
	}
	return resp.Samples, nil
}

// GetCurrentData returns the daemon's cached current snapshot.
func (c *Client) GetCurrentData() (model.Snapshot, error) {
	resp, err := c.request(protocol.Request{Kind: protocol.KindGetCurrentData})
	if err != nil {
		return model.Snapshot{}, err
	}
	if err := asError(resp); err != nil {
		return model.Snapshot{}, err
	}
	if resp.Current == nil {
		return model.Snapshot{}, fmt.Errorf("unexpected response kind %q for get_current_data", resp.Kind)
	}
	return *resp.Current, nil
}

// GetCycleSummary returns the rolling cycle summary over the trailing days.
func (c *Client) GetCycleSummary(days int) (model.CycleSummary, error) {
	resp, err := c.request(protocol.Request{Kind: protocol.KindGetCycleSummary, Days: &days})
	if err != nil {
		return model.CycleSummary{}, err
	}
	if err := asError(resp); err != nil {
		return model.CycleSummary{}, err
	}
	if resp.CycleSummary == nil {
		return model.CycleSummary{}, fmt.Errorf("unexpected response kind %q for get_cycle_summary", resp.Kind)
	}
	return *resp.CycleSummary, nil
}

// GetChargeSessions returns sessions whose start time falls in [from, to]
// (unix seconds).
func (c *Client) GetChargeSessions(from, to int64) ([]model.ChargeSession, error) {
	resp, err := c.request(protocol.Request{Kind: protocol.KindGetChargeSessions, FromTS: &from, ToTS: &to})
	if err != nil {
		return nil, err
	}
	if err := asError(resp); err != nil {
		return nil, err
	}
	return resp.ChargeSessions, nil
}

// GetDailyCycles returns daily cycle aggregates in [fromDate, toDate].
func (c *Client) GetDailyCycles(fromDate, toDate string) ([]model.DailyCycle, error) {
	resp, err := c.request(protocol.Request{Kind: protocol.KindGetDailyCycles, FromDate: &fromDate, ToDate: &toDate})
	if err != nil {
		return nil, err
	}
	if err := asError(resp); err != nil {
		return nil, err
	}
	return resp.DailyCycles, nil
}

// SetBroadcastInterval asks the daemon to retune its sampler/broadcast tick.
// The daemon clamps to [MIN_REFRESH_MS, MAX_REFRESH_MS]; this call always
// succeeds once the daemon accepts the request.
func (c *Client) SetBroadcastInterval(ms int64) error {
	resp, err := c.request(protocol.Request{Kind: protocol.KindSetBroadcastInterval, IntervalMS: &ms})
	if err != nil {
		return err
	}
	return asError(resp)
}

// KillProcess sends the mapped signal to pid.
func (c *Client) KillProcess(pid int, signal protocol.Signal) (protocol.KillResult, error) {
	resp, err := c.request(protocol.Request{Kind: protocol.KindKillProcess, PID: &pid, Signal: &signal})
	if err != nil {
		return protocol.KillResult{}, err
	}
	if err := asError(resp); err != nil {
		return protocol.KillResult{}, err
	}
	if resp.KillResult == nil {
		return protocol.KillResult{}, fmt.Errorf("unexpected response kind %q for kill_process", resp.Kind)
	}
	return *resp.KillResult, nil
}

// Shutdown asks the daemon to terminate gracefully.
func (c *Client) Shutdown() error {
	resp, err := c.request(protocol.Request{Kind: protocol.KindShutdown})
	if err != nil {
		return err
	}
	return asError(resp)
}

// Subscribe registers this connection for DataUpdate events and starts the
// background reader worker that drains them (spec §4.8: "a reader worker
// loops on read_update(); each successfully decoded update is pushed onto a
// bounded channel"). After Subscribe succeeds, synchronous requests on this
// same Client continue to work: the reader worker routes non-event
// responses back to the pending request.
func (c *Client) Subscribe() error {
	resp, err := c.request(protocol.Request{Kind: protocol.KindSubscribe})
	if err != nil {
		return err
	}
	switch resp.Kind {
	case protocol.KindSubscriptionRejected:
		return fmt.Errorf("subscription rejected: %s", resp.RejectReason)
	case protocol.KindSubscribed:
	default:
		return asError(resp)
	}

	c.subMu.Lock()
	c.subscribed = true
	c.updates = make(chan model.Snapshot, 1)
	c.pending = make(chan protocol.Response)
	c.readErr = make(chan error, 1)
	c.subMu.Unlock()

	go c.readLoop()
	return nil
}

// readLoop is the dedicated reader worker: it owns all further reads on the
// connection, forwarding DataUpdate events to the coalescing updates
// channel (spec §5: "latest-wins coalescing" — a full channel has its
// stale value dropped before the new one is sent) and everything else to
// pending for a blocked request() call to pick up.
func (c *Client) readLoop() {
	for {
		resp, err := c.dec.DecodeResponse()
		if err != nil {
			c.readErr <- mapReadErr(err)
			close(c.updates)
			return
		}
		if resp.Kind == protocol.KindDataUpdate && resp.Snapshot != nil {
			select {
			case c.updates <- *resp.Snapshot:
			default:
				select {
				case <-c.updates:
				default:
				}
				c.updates <- *resp.Snapshot
			}
			continue
		}
		c.pending <- resp
	}
}

// SetNonBlocking toggles whether ReadUpdate blocks waiting for the next
// update (false, the default) or returns immediately when none is queued
// (true).
func (c *Client) SetNonBlocking(nonBlocking bool) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	c.nonBlock = nonBlocking
}

// ReadUpdate returns the most recent DataUpdate snapshot. In blocking mode
// it waits for the next one to arrive (or the connection to fail); in
// non-blocking mode it returns ok=false immediately if none is queued.
func (c *Client) ReadUpdate() (model.Snapshot, bool, error) {
	c.subMu.Lock()
	updates, readErr, nonBlock := c.updates, c.readErr, c.nonBlock
	c.subMu.Unlock()

	if updates == nil {
		return model.Snapshot{}, false, fmt.Errorf("not subscribed")
	}

	if nonBlock {
		select {
		case snap, ok := <-updates:
			if !ok {
				return model.Snapshot{}, false, ErrClosed
			}
			return snap, true, nil
		default:
			return model.Snapshot{}, false, nil
		}
	}

	select {
	case snap, ok := <-updates:
		if !ok {
			return model.Snapshot{}, false, ErrClosed
		}
		return snap, true, nil
	case err := <-readErr:
		return model.Snapshot{}, false, mapReadErr(err)
	}
}

// UpdatesChan exposes the coalescing update channel directly, for callers
// (such as Session) that need to select on it alongside a timer instead of
// going through the blocking/non-blocking ReadUpdate call.
func (c *Client) UpdatesChan() <-chan model.Snapshot {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	return c.updates
}

// ReadErrChan exposes the reader worker's terminal error, fired exactly
// once when the connection fails or is closed.
func (c *Client) ReadErrChan() <-chan error {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	return c.readErr
}

// Unsubscribe deregisters from DataUpdate events but keeps the connection
// open for further synchronous requests (spec §4.2). The reader worker
// keeps running (the daemon may still interleave a trailing event or two),
// but update deliveries simply stop mattering to the caller.
func (c *Client) Unsubscribe() error {
	resp, err := c.request(protocol.Request{Kind: protocol.KindUnsubscribe})
	if err != nil {
		return err
	}
	return asError(resp)
}
