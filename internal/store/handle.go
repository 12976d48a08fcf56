package store

import "sync"

// Handle is a swappable reference to the daemon's single *DB. The sampler
// and the IPC server are each handed a *Handle instead of a bare *DB, so
// when the sampler reopens the store after sustained insertion failures
// (spec §4.3), every reader of the handle sees the new connection on its
// next call instead of one goroutine quietly keeping a closed *DB alive.
type Handle struct {
	mu sync.RWMutex
	db *DB
}

// NewHandle wraps an already-open DB.
func NewHandle(db *DB) *Handle {
	return &Handle{db: db}
}

// Get returns the DB currently behind the handle.
func (h *Handle) Get() *DB {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.db
}

// Replace swaps in a newly opened DB and returns the previous one so the
// caller can close it once any in-flight callers have finished with it.
func (h *Handle) Replace(db *DB) *DB {
	h.mu.Lock()
	defer h.mu.Unlock()
	old := h.db
	h.db = db
	return old
}

// Close closes the DB currently behind the handle.
func (h *Handle) Close() error {
	return h.Get().Close()
}
