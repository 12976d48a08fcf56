package supervisor

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// ShutdownFunc performs the ordered shutdown sequence from spec §4.9: stop
// accepting new connections, stop the sampler, close any open sessions
// (preserving is_complete=false), flush the store. Lock release and
// socket/PID file cleanup are handled by this package, not the callback,
// since only the supervisor knows the paths it owns.
type ShutdownFunc func()

// Supervisor ties a held Lock to the socket path it guards and runs the
// signal-driven shutdown sequence.
type Supervisor struct {
	lock       *Lock
	socketPath string
	logger     *slog.Logger
}

// New wraps an already-acquired Lock. socketPath is removed as part of
// shutdown cleanup (spec §4.9's final step); pass "" if the caller manages
// the socket file itself.
func New(lock *Lock, socketPath string, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{lock: lock, socketPath: socketPath, logger: logger}
}

// Run blocks until ctx is cancelled or SIGINT/SIGTERM is received, then
// invokes onShutdown and releases the lock and socket file. Callers
// typically run this on the main goroutine after starting the sampler and
// IPC server on their own goroutines.
func (s *Supervisor) Run(ctx context.Context, onShutdown ShutdownFunc) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down", "reason", "context cancelled")
	case sig := <-sigCh:
		s.logger.Info("shutting down", "reason", "signal", "signal", sig.String())
	}

	s.Shutdown(onShutdown)
}

// Shutdown runs onShutdown then releases the lock and removes the socket
// file, regardless of how shutdown was triggered (signal, Run's ctx, or a
// protocol Shutdown request handled directly by the IPC server).
func (s *Supervisor) Shutdown(onShutdown ShutdownFunc) {
	if onShutdown != nil {
		onShutdown()
	}
	if s.socketPath != "" {
		if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("remove socket file", "path", s.socketPath, "err", err)
		}
	}
	if err := s.lock.Release(); err != nil {
		s.logger.Warn("release pid lock", "err", err)
	}
}

// RetentionTicker runs fn on a fixed interval until ctx is cancelled,
// grounded on the teacher's own cleanupTicker in cmd/power-monitor-daemon
// (a plain time.Ticker selected alongside the collection ticker and signal
// channel), generalized here into its own goroutine since the sampler,
// IPC acceptor, and retention sweep are now independent tasks (spec §5).
func RetentionTicker(ctx context.Context, interval time.Duration, fn func()) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}
