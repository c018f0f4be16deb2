// ABOUTME: Correlation table tracking live exchange identifiers and their owners
// ABOUTME: Register/release lifecycle with tombstones guarding released ids

package exchange

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind says which side of the connection opened an exchange.
type Kind int

const (
	// KindLocal exchanges were opened by this process; their frames route
	// to a waiting listener.
	KindLocal Kind = iota
	// KindRemote exchanges were opened by another client on the same
	// conversation; their frames are observed, never answered.
	KindRemote
)

func (k Kind) String() string {
	switch k {
	case KindLocal:
		return "local"
	case KindRemote:
		return "remote"
	default:
		return "unknown"
	}
}

// Status is the lifecycle position of an exchange.
type Status int

const (
	StatusPending Status = iota
	StatusStreaming
	StatusDone
	StatusErrored
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusStreaming:
		return "streaming"
	case StatusDone:
		return "done"
	case StatusErrored:
		return "errored"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

var (
	ErrAlreadyRegistered = errors.New("exchange: identifier already registered")
	ErrReleased          = errors.New("exchange: identifier was already released")
)

const (
	defaultTombstoneTTL = 5 * time.Minute
	defaultTombstoneMax = 4096
)

type entry struct {
	kind         Kind
	status       Status
	registeredAt time.Time
}

// Table is the authority on identifier liveness and ownership. Safe for
// concurrent use.
type Table struct {
	mu      sync.RWMutex
	entries map[string]*entry

	tombstones *tombstoneSet
	logger     *slog.Logger
}

// New creates a table with the default tombstone window.
func New(logger *slog.Logger) *Table {
	return newTable(defaultTombstoneTTL, defaultTombstoneMax, logger)
}

func newTable(ttl time.Duration, maxTombstones int, logger *slog.Logger) *Table {
	if logger == nil {
		logger = slog.Default()
	}
	return &Table{
		entries:    make(map[string]*entry),
		tombstones: newTombstoneSet(ttl, maxTombstones),
		logger:     logger.With("component", "exchange"),
	}
}

// Allocate returns a fresh identifier. Allocation does not register; the
// caller registers once it has a listener in place.
func (t *Table) Allocate() string {
	return uuid.New().String()
}

// Register claims an identifier. Duplicate registration and registration of
// a released identifier are both refused.
func (t *Table) Register(id string, kind Kind) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.entries[id]; ok {
		return ErrAlreadyRegistered
	}
	if t.tombstones.contains(id) {
		return ErrReleased
	}
	t.entries[id] = &entry{
		kind:         kind,
		status:       StatusPending,
		registeredAt: time.Now(),
	}
	t.logger.Debug("exchange registered", "id", id, "kind", kind.String())
	return nil
}

// Release ends an exchange with a terminal status and tombstones the
// identifier. Reports whether the identifier was live.
func (t *Table) Release(id string, status Status) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[id]
	if !ok {
		return false
	}
	delete(t.entries, id)
	t.tombstones.add(id)
	t.logger.Debug("exchange released",
		"id", id, "kind", e.kind.String(), "status", status.String())
	return true
}

// IsLive reports whether the identifier is currently registered.
func (t *Table) IsLive(id string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.entries[id]
	return ok
}

// IsLocallyOwned reports whether the identifier is live and was opened by
// this process.
func (t *Table) IsLocallyOwned(id string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.entries[id]
	return ok && e.kind == KindLocal
}

// KindOf returns the owner side of a live identifier.
func (t *Table) KindOf(id string) (Kind, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.entries[id]
	if !ok {
		return 0, false
	}
	return e.kind, true
}

// StatusOf returns the lifecycle position of a live identifier.
func (t *Table) StatusOf(id string) (Status, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.entries[id]
	if !ok {
		return 0, false
	}
	return e.status, true
}

// MarkStreaming records that the first body chunk arrived. Reports false
// for identifiers that are not live.
func (t *Table) MarkStreaming(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[id]
	if !ok {
		return false
	}
	if e.status == StatusPending {
		e.status = StatusStreaming
	}
	return true
}

// WasReleased reports whether the identifier ended here recently. The
// answer decays with the tombstone window; an expired tombstone reads as
// never-seen, which is safe because the peer stopped sending long before.
func (t *Table) WasReleased(id string) bool {
	return t.tombstones.contains(id)
}

// Len is the number of live exchanges.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Close stops the tombstone sweeper. The table remains usable; tombstones
// simply stop expiring in the background.
func (t *Table) Close() {
	t.tombstones.close()
}
