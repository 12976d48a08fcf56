// Package supervisor implements the daemon's singleton lifecycle (spec.md
// C9): PID-file locking, optional daemonization, the shutdown sequence, and
// the signal handling that drives it. The daemon main (cmd/jolt-daemon)
// wires the store/sampler/IPC server together and hands this package the
// lock path, socket path, and a shutdown callback; everything about
// "exactly one daemon owns these files at a time" lives here.
package supervisor

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// ErrAlreadyRunning is returned by AcquireLock when another process already
// holds the exclusive advisory lock on the PID file (spec §4.9 step 1,
// exit code 2 per §6).
var ErrAlreadyRunning = errors.New("supervisor: another instance is already running")

// Lock is an exclusive advisory lock on the daemon's PID file. Holding one
// proves this process is the sole daemon instance for its socket/store/log
// paths until Release is called or the process exits (the kernel drops
// flock locks on process exit, so a crashed daemon never wedges the lock).
type Lock struct {
	path string
	file *os.File
}

// AcquireLock opens (creating if needed) the PID file at path and takes a
// non-blocking exclusive flock on it. On success the file is truncated and
// rewritten with the caller's PID. A lock already held by another process
// surfaces as ErrAlreadyRunning so callers can map it to the "already
// running" CLI behavior (report and exit non-zero from an explicit start,
// or silently no-op from an auto-start path, per spec §4.9 step 1).
func AcquireLock(path string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create pid directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open pid file %s: %w", path, err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) || errors.Is(err, unix.EAGAIN) {
			return nil, ErrAlreadyRunning
		}
		return nil, fmt.Errorf("flock pid file %s: %w", path, err)
	}

	if err := f.Truncate(0); err != nil {
		unix.Flock(int(f.Fd()), unix.LOCK_UN)
		f.Close()
		return nil, fmt.Errorf("truncate pid file: %w", err)
	}
	if _, err := f.WriteAt([]byte(fmt.Sprintf("%d\n", os.Getpid())), 0); err != nil {
		unix.Flock(int(f.Fd()), unix.LOCK_UN)
		f.Close()
		return nil, fmt.Errorf("write pid file: %w", err)
	}
	if err := f.Sync(); err != nil {
		unix.Flock(int(f.Fd()), unix.LOCK_UN)
		f.Close()
		return nil, fmt.Errorf("sync pid file: %w", err)
	}

	return &Lock{path: path, file: f}, nil
}

// Release unlocks and removes the PID file. Part of the shutdown sequence
// in spec §4.9: "release lock -> delete socket and PID files -> exit".
func (l *Lock) Release() error {
	unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	if err := l.file.Close(); err != nil {
		return fmt.Errorf("close pid file: %w", err)
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove pid file: %w", err)
	}
	return nil
}
