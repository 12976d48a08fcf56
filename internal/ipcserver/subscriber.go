package ipcserver

import (
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/cptspacemanspiff/jolt/internal/metrics"
	"github.com/cptspacemanspiff/jolt/internal/model"
	"github.com/cptspacemanspiff/jolt/internal/protocol"
)

// subscriber holds one connection's bounded outbound mailbox. Broadcast
// enqueues never block: once the mailbox is at capacity, the oldest queued
// snapshot is dropped to make room for the newest one (spec §5's
// drop-oldest backpressure policy).
type subscriber struct {
	id uint64

	conn    net.Conn
	writeMu *sync.Mutex
	enc     *protocol.Encoder

	mu      sync.Mutex
	queue   []model.Snapshot
	cap     int
	dropped uint64
	notify  chan struct{}
	done    chan struct{}
}

func newSubscriber(capacity int, conn net.Conn, writeMu *sync.Mutex) *subscriber {
	return &subscriber{
		conn:    conn,
		writeMu: writeMu,
		enc:     protocol.NewEncoder(conn),
		cap:     capacity,
		notify:  make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

// enqueue appends snap, dropping the oldest queued snapshot first if the
// mailbox is already full.
func (s *subscriber) enqueue(snap model.Snapshot, m *metrics.Registry) {
	s.mu.Lock()
	if len(s.queue) >= s.cap {
		s.queue = s.queue[1:]
		s.dropped++
		if m != nil {
			m.BroadcastDrops.Inc()
		}
	}
	s.queue = append(s.queue, snap)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *subscriber) stop() {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
}

// run drains the mailbox and writes each snapshot as a DataUpdate event,
// serialized against writeMu so it never interleaves with a response write
// mid-line on the shared connection.
func (s *subscriber) run(logger *slog.Logger) {
	for {
		select {
		case <-s.done:
			return
		case <-s.notify:
			for {
				snap, ok := s.pop()
				if !ok {
					break
				}
				if err := s.write(snap); err != nil {
					if logger != nil {
						logger.Debug("subscriber write failed", "err", err)
					}
					s.stop()
					return
				}
			}
		}
	}
}

func (s *subscriber) pop() (model.Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return model.Snapshot{}, false
	}
	snap := s.queue[0]
	s.queue = s.queue[1:]
	return snap, true
}

func (s *subscriber) write(snap model.Snapshot) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	defer s.conn.SetWriteDeadline(time.Time{})
	return s.enc.EncodeResponse(protocol.Response{Kind: protocol.KindDataUpdate, Snapshot: &snap})
}
