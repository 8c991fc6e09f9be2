package location

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DebouncedStore coalesces rapid replacements into a single write to the
// wrapped store. Replace never blocks on I/O; the latest location is written
// once no further Replace has arrived for the delay, or on Flush.
type DebouncedStore struct {
	inner Store
	delay time.Duration

	// writeMu orders writes to inner
	writeMu sync.Mutex

	mu      sync.Mutex
	pending *string
	timer   *time.Timer
}

// NewDebouncedStore wraps inner so that writes happen at most once per delay
func NewDebouncedStore(inner Store, delay time.Duration) *DebouncedStore {
	return &DebouncedStore{inner: inner, delay: delay}
}

// Load returns the pending location if one is waiting to be written,
// otherwise the stored one
func (d *DebouncedStore) Load(ctx context.Context) (string, error) {
	d.mu.Lock()
	if d.pending != nil {
		loc := *d.pending
		d.mu.Unlock()
		return loc, nil
	}
	d.mu.Unlock()
	return d.inner.Load(ctx)
}

// Replace records location and schedules the write
func (d *DebouncedStore) Replace(_ context.Context, location string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.pending = &location
	if d.timer == nil {
		d.timer = time.AfterFunc(d.delay, d.flushPending)
		return nil
	}
	d.timer.Reset(d.delay)
	return nil
}

// Flush writes the pending location, if any, without waiting for the delay
func (d *DebouncedStore) Flush(ctx context.Context) error {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	d.mu.Lock()
	loc := d.pending
	d.pending = nil
	if d.timer != nil {
		d.timer.Stop()
	}
	d.mu.Unlock()

	if loc == nil {
		return nil
	}
	return d.inner.Replace(ctx, *loc)
}

func (d *DebouncedStore) flushPending() {
	if err := d.Flush(context.Background()); err != nil {
		slog.Warn("Failed to store location", "error", err)
	}
}
