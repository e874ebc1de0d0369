// Package ledger records which reminder checkpoints have already fired.
//
// Most checkpoints live only in memory for the lifetime of the process.
// Per-day checkpoints (multi-day ranges and recurring instances) are also
// written to a durable MarkerStore so a restart on the same calendar day does
// not fire them again.
package ledger

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

type Kind string

const (
	KindPrimary  Kind = "primary"
	KindDaily    Kind = "daily"
	KindSnooze   Kind = "snooze"
	KindAdvance  Kind = "advance"
	KindStrategy Kind = "strategy"
	KindNeglect  Kind = "neglect"
	KindDynamic  Kind = "dynamic"
)

// MarkerSeparator joins task id and ISO date in durable marker keys.
const MarkerSeparator = "_reminded_"

// Key identifies one checkpoint. Offset is set for advance and strategy
// checkpoints; Date for per-day and dated checkpoints.
type Key struct {
	TaskID string
	Kind   Kind
	Offset int
	Date   string
}

// Durable reports whether the key is mirrored to the marker store.
func (k Key) Durable() bool {
	return k.Kind == KindDaily
}

// Marker is the durable store key for a per-day checkpoint.
func (k Key) Marker() string {
	return k.TaskID + MarkerSeparator + k.Date
}

// MarkerStore is a string-keyed durable flag store. Entries never expire.
type MarkerStore interface {
	Has(ctx context.Context, key string) (bool, error)
	Set(ctx context.Context, key string) error
}

type Ledger struct {
	mu      sync.Mutex
	seen    map[Key]struct{}
	markers MarkerStore
	logger  *zap.Logger
}

func New(markers MarkerStore, logger *zap.Logger) *Ledger {
	if markers == nil {
		markers = NewMemoryMarkers()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{
		seen:    make(map[Key]struct{}),
		markers: markers,
		logger:  logger,
	}
}

// Seen reports whether k has already been recorded.
func (l *Ledger) Seen(ctx context.Context, k Key) bool {
	l.mu.Lock()
	_, ok := l.seen[k]
	l.mu.Unlock()
	if ok || !k.Durable() {
		return ok
	}
	has, err := l.markers.Has(ctx, k.Marker())
	if err != nil {
		l.logger.Warn("marker lookup failed", zap.String("marker", k.Marker()), zap.Error(err))
		return false
	}
	if has {
		l.mu.Lock()
		l.seen[k] = struct{}{}
		l.mu.Unlock()
	}
	return has
}

// Claim records k and reports whether this call was the first to do so.
// The in-memory entry is written before the durable marker.
func (l *Ledger) Claim(ctx context.Context, k Key) bool {
	if l.Seen(ctx, k) {
		return false
	}
	l.mu.Lock()
	if _, ok := l.seen[k]; ok {
		l.mu.Unlock()
		return false
	}
	l.seen[k] = struct{}{}
	l.mu.Unlock()

	if k.Durable() {
		if err := l.markers.Set(ctx, k.Marker()); err != nil {
			l.logger.Warn("marker write failed", zap.String("marker", k.Marker()), zap.Error(err))
		}
	}
	return true
}

// Forget drops the in-memory entries of a task for the given kinds. Durable
// markers are left alone.
func (l *Ledger) Forget(taskID string, kinds ...Kind) {
	drop := make(map[Kind]bool, len(kinds))
	for _, k := range kinds {
		drop[k] = true
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for k := range l.seen {
		if k.TaskID == taskID && drop[k.Kind] {
			delete(l.seen, k)
		}
	}
}

// Prune drops in-memory entries for tasks that are no longer active.
func (l *Ledger) Prune(active map[string]bool) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for k := range l.seen {
		if !active[k.TaskID] {
			delete(l.seen, k)
			removed++
		}
	}
	return removed
}

func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.seen)
}
