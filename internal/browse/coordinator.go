package browse

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/stacklok/itembrowser/internal/items"
	"github.com/stacklok/itembrowser/internal/otel"
	"github.com/stacklok/itembrowser/internal/telemetry"
)

// ErrClosed is returned by Wait once the coordinator has been closed or its
// parent context is done
var ErrClosed = errors.New("coordinator closed")

// State is the fetch state of a Coordinator
type State int

// Fetch states
const (
	StateIdle State = iota
	StateLoading
	StateLoaded
	StateFailed
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateLoading:
		return "Loading"
	case StateLoaded:
		return "Loaded"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Snapshot is the published state of a Coordinator
type Snapshot struct {
	// Seq increases on every publish. Listeners may drop a snapshot whose
	// Seq is lower than one they already handled.
	Seq   uint64
	Epoch uint64
	State State
	// Intent is the most recently requested intent
	Intent Intent
	// Page is the last successfully loaded page. It survives failed fetches.
	Page Page
	// PageIntent is the intent that produced Page
	PageIntent Intent
	// Err is the failure of the current epoch when State is StateFailed
	Err error
}

// Settled reports whether the current epoch has finished
func (s Snapshot) Settled() bool {
	return s.State == StateLoaded || s.State == StateFailed
}

// Lister fetches one page of records
type Lister interface {
	ListRecords(ctx context.Context, params items.ListParams) (*items.ListResult, error)
}

// Listener receives every published snapshot. It is called outside the
// coordinator lock, possibly from a fetch goroutine, and must not block.
type Listener func(Snapshot)

// CoordinatorOption configures a Coordinator
type CoordinatorOption func(*Coordinator)

// WithListener registers a snapshot listener
func WithListener(l Listener) CoordinatorOption {
	return func(c *Coordinator) {
		if l != nil {
			c.listeners = append(c.listeners, l)
		}
	}
}

// WithFetchErrorHandler sets the callback invoked when a current fetch fails
func WithFetchErrorHandler(fn func(intent Intent, err error)) CoordinatorOption {
	return func(c *Coordinator) {
		c.onFetchError = fn
	}
}

// WithBrowseMetrics sets the metrics for the coordinator
func WithBrowseMetrics(metrics *telemetry.BrowseMetrics) CoordinatorOption {
	return func(c *Coordinator) {
		c.metrics = metrics
	}
}

// WithCoordinatorTracer sets the tracer used for fetch spans
func WithCoordinatorTracer(tracer trace.Tracer) CoordinatorOption {
	return func(c *Coordinator) {
		c.tracer = tracer
	}
}

// Coordinator owns the current Intent and Page. Every trigger starts a new
// epoch; a fetch result is applied only if its epoch is still current when it
// completes, so a later trigger always wins regardless of completion order.
// The previous fetch's context is cancelled when a new epoch starts, but
// correctness depends only on the epoch comparison.
type Coordinator struct {
	lister Lister

	baseCtx    context.Context
	baseCancel context.CancelFunc

	mu         sync.Mutex
	closed     bool
	epoch      uint64
	seq        uint64
	state      State
	intent     Intent
	page       Page
	pageIntent Intent
	err        error
	cancel     context.CancelFunc
	// changed is closed and replaced on every publish
	changed chan struct{}

	listeners    []Listener
	onFetchError func(Intent, error)
	metrics      *telemetry.BrowseMetrics
	tracer       trace.Tracer
}

// NewCoordinator creates an idle coordinator. Fetches run under contexts
// derived from ctx.
func NewCoordinator(ctx context.Context, lister Lister, opts ...CoordinatorOption) *Coordinator {
	baseCtx, baseCancel := context.WithCancel(ctx)
	c := &Coordinator{
		lister:     lister,
		baseCtx:    baseCtx,
		baseCancel: baseCancel,
		changed:    make(chan struct{}),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// SetIntent replaces the intent and starts a new fetch cycle, even when the
// intent is unchanged.
func (c *Coordinator) SetIntent(intent Intent) {
	c.trigger(intent, false)
}

// Refresh starts a new fetch cycle for the current intent
func (c *Coordinator) Refresh() {
	c.trigger(Intent{}, true)
}

// Snapshot returns the current state without publishing
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Wait blocks until the current epoch settles and returns its snapshot. An
// idle coordinator returns immediately.
func (c *Coordinator) Wait(ctx context.Context) (Snapshot, error) {
	for {
		c.mu.Lock()
		snap := c.snapshotLocked()
		changed := c.changed
		c.mu.Unlock()

		if snap.State != StateLoading {
			return snap, nil
		}

		select {
		case <-changed:
		case <-c.baseCtx.Done():
			return snap, ErrClosed
		case <-ctx.Done():
			return snap, ctx.Err()
		}
	}
}

// Close cancels the in-flight fetch and stops accepting triggers
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.cancel = nil
	c.mu.Unlock()

	c.baseCancel()
}

func (c *Coordinator) trigger(intent Intent, keepIntent bool) {
	c.mu.Lock()
	if c.closed || c.baseCtx.Err() != nil {
		c.mu.Unlock()
		return
	}
	if c.cancel != nil {
		c.cancel()
	}
	if keepIntent {
		intent = c.intent
	}

	c.epoch++
	epoch := c.epoch
	c.intent = intent
	c.state = StateLoading
	c.err = nil

	fetchCtx, cancel := context.WithCancel(c.baseCtx)
	c.cancel = cancel
	snap := c.publishLocked()
	c.mu.Unlock()

	slog.Debug("Fetch started",
		"epoch", epoch,
		"has_cursor", intent.Cursor != "",
		"search", intent.Search,
		"group", intent.Group)
	c.notify(snap)

	go c.fetch(fetchCtx, epoch, intent)
}

func (c *Coordinator) fetch(ctx context.Context, epoch uint64, intent Intent) {
	ctx, span := otel.StartSpan(ctx, c.tracer, "browse.Fetch",
		trace.WithAttributes(otel.FetchAttributes(epoch, intent.Cursor != "", intent.Search, intent.Group)...))
	defer span.End()

	start := time.Now()
	result, err := c.lister.ListRecords(ctx, intent.ListParams())
	outcome := c.complete(ctx, epoch, intent, result, err)

	c.metrics.RecordFetch(ctx, time.Since(start), outcome)
	if outcome == telemetry.OutcomeFailed {
		otel.RecordError(span, err)
	}
}

// complete applies a fetch result if its epoch is current and returns the
// fetch outcome.
func (c *Coordinator) complete(
	ctx context.Context, epoch uint64, intent Intent, result *items.ListResult, err error,
) string {
	cancelled := err != nil && items.IsCancelled(err)

	c.mu.Lock()
	if epoch != c.epoch || c.closed {
		current := c.epoch
		c.mu.Unlock()

		slog.Debug("Discarding stale fetch result",
			"epoch", epoch,
			"current_epoch", current,
			"cancelled", cancelled)
		c.metrics.RecordStaleResult(ctx)
		if cancelled {
			return telemetry.OutcomeCancelled
		}
		return telemetry.OutcomeStale
	}

	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}

	if cancelled {
		// Only the caller's own context can cancel the current epoch; the
		// result is dropped without a state change.
		c.mu.Unlock()
		slog.Debug("Current fetch cancelled", "epoch", epoch)
		return telemetry.OutcomeCancelled
	}

	if err != nil {
		c.state = StateFailed
		c.err = err
		snap := c.publishLocked()
		onFetchError := c.onFetchError
		c.mu.Unlock()

		slog.Warn("Fetch failed", "epoch", epoch, "error", err)
		c.notify(snap)
		if onFetchError != nil {
			onFetchError(intent, err)
		}
		return telemetry.OutcomeFailed
	}

	c.page = pageFromResult(result)
	c.pageIntent = intent
	c.state = StateLoaded
	snap := c.publishLocked()
	c.mu.Unlock()

	slog.Debug("Fetch loaded",
		"epoch", epoch,
		"count", len(snap.Page.Records),
		"has_next", snap.Page.HasNext(),
		"has_prev", snap.Page.HasPrev())
	c.notify(snap)
	return telemetry.OutcomeLoaded
}

func (c *Coordinator) snapshotLocked() Snapshot {
	return Snapshot{
		Seq:        c.seq,
		Epoch:      c.epoch,
		State:      c.state,
		Intent:     c.intent,
		Page:       c.page,
		PageIntent: c.pageIntent,
		Err:        c.err,
	}
}

func (c *Coordinator) publishLocked() Snapshot {
	c.seq++
	close(c.changed)
	c.changed = make(chan struct{})
	return c.snapshotLocked()
}

func (c *Coordinator) notify(snap Snapshot) {
	for _, l := range c.listeners {
		l(snap)
	}
}
