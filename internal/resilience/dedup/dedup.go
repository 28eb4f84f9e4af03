package dedup

import (
	"context"
	"sync"
	"time"

	"github.com/bnema/valuation-session-cli/internal/ports"
)

const (
	// pendingStaleBound guards against operations that never settle; it is
	// independent of the caller-supplied maxAge.
	pendingStaleBound = 5 * time.Minute
	sweepInterval     = time.Minute
)

type pending struct {
	done      chan struct{}
	value     any
	err       error
	startedAt time.Time
}

// Deduplicator collapses concurrent calls that share a key onto a single
// execution; every joined caller observes the same value and error.
type Deduplicator struct {
	clock ports.Clock

	mu      sync.Mutex
	entries map[string]*pending

	stop     chan struct{}
	stopOnce sync.Once
}

func New(clock ports.Clock) *Deduplicator {
	if clock == nil {
		clock = ports.SystemClock{}
	}

	d := &Deduplicator{
		clock:   clock,
		entries: map[string]*pending{},
		stop:    make(chan struct{}),
	}
	go d.sweepLoop()

	return d
}

// Do starts op under key, or joins the in-flight execution for key when one
// exists and is younger than maxAge. A pending entry older than maxAge is
// discarded and a fresh execution starts in its place. maxAge <= 0 means
// any pending entry may be joined.
func (d *Deduplicator) Do(ctx context.Context, key string, maxAge time.Duration, op func(context.Context) (any, error)) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	if entry, ok := d.entries[key]; ok {
		if maxAge <= 0 || d.clock.Now().Sub(entry.startedAt) <= maxAge {
			d.mu.Unlock()
			select {
			case <-entry.done:
				return entry.value, entry.err
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		delete(d.entries, key)
	}

	entry := &pending{done: make(chan struct{}), startedAt: d.clock.Now()}
	d.entries[key] = entry
	d.mu.Unlock()

	entry.value, entry.err = op(ctx)
	close(entry.done)

	d.mu.Lock()
	if current, ok := d.entries[key]; ok && current == entry {
		delete(d.entries, key)
	}
	d.mu.Unlock()

	return entry.value, entry.err
}

func (d *Deduplicator) IsPending(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, ok := d.entries[key]
	return ok
}

// Cancel detaches the bookkeeping for key so the next Do starts fresh.
// Callers already joined to the old execution still observe its settlement.
func (d *Deduplicator) Cancel(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.entries, key)
}

func (d *Deduplicator) Close() {
	d.stopOnce.Do(func() {
		close(d.stop)
	})
}

func (d *Deduplicator) sweepLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			d.sweep()
		case <-d.stop:
			return
		}
	}
}

func (d *Deduplicator) sweep() {
	now := d.clock.Now()

	d.mu.Lock()
	defer d.mu.Unlock()

	for key, entry := range d.entries {
		if now.Sub(entry.startedAt) > pendingStaleBound {
			delete(d.entries, key)
		}
	}
}
