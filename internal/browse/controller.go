package browse

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/stacklok/itembrowser/internal/items"
	"github.com/stacklok/itembrowser/internal/location"
	"github.com/stacklok/itembrowser/internal/telemetry"
)

// TracerName is the name used for the fetch tracer
const TracerName = "github.com/stacklok/itembrowser/browse"

// Mutation names recorded on the mutations counter
const (
	opCreate = "create"
	opUpdate = "update"
	opDelete = "delete"
)

// Option configures a Controller
type Option func(*controllerOptions)

type controllerOptions struct {
	codec     *Codec
	store     location.Store
	notifier  Notifier
	listeners []Listener
	metrics   *telemetry.BrowseMetrics
	tracer    trace.Tracer
}

// WithCodec sets the location codec. The default accepts any group.
func WithCodec(codec *Codec) Option {
	return func(o *controllerOptions) {
		o.codec = codec
	}
}

// WithStore sets where the current location is mirrored
func WithStore(store location.Store) Option {
	return func(o *controllerOptions) {
		o.store = store
	}
}

// WithNotifier sets the receiver of user notices
func WithNotifier(n Notifier) Option {
	return func(o *controllerOptions) {
		o.notifier = n
	}
}

// WithSnapshotListener registers a listener for published snapshots
func WithSnapshotListener(l Listener) Option {
	return func(o *controllerOptions) {
		o.listeners = append(o.listeners, l)
	}
}

// WithMetrics sets the fetch and mutation metrics
func WithMetrics(metrics *telemetry.BrowseMetrics) Option {
	return func(o *controllerOptions) {
		o.metrics = metrics
	}
}

// WithTracer sets the tracer used for fetch spans
func WithTracer(tracer trace.Tracer) Option {
	return func(o *controllerOptions) {
		o.tracer = tracer
	}
}

// Controller is the public surface of the browser: navigation helpers,
// mutation flows and location mirroring on top of a Coordinator.
type Controller struct {
	ctx      context.Context
	coord    *Coordinator
	client   items.Client
	codec    *Codec
	store    location.Store
	notifier Notifier
	metrics  *telemetry.BrowseMetrics
}

// NewController creates a controller that lists and mutates records through
// client. Fetches stop when ctx is done or Close is called.
func NewController(ctx context.Context, client items.Client, opts ...Option) *Controller {
	o := &controllerOptions{}
	for _, opt := range opts {
		opt(o)
	}
	if o.codec == nil {
		o.codec = NewCodec()
	}

	c := &Controller{
		ctx:      ctx,
		client:   client,
		codec:    o.codec,
		store:    o.store,
		notifier: o.notifier,
		metrics:  o.metrics,
	}

	coordOpts := []CoordinatorOption{
		WithFetchErrorHandler(c.onFetchError),
		WithBrowseMetrics(o.metrics),
		WithCoordinatorTracer(o.tracer),
	}
	for _, l := range o.listeners {
		coordOpts = append(coordOpts, WithListener(l))
	}
	c.coord = NewCoordinator(ctx, client, coordOpts...)

	return c
}

// Start decodes location and fetches it. An empty location resumes from the
// stored one.
func (c *Controller) Start(loc string) {
	if loc == "" && c.store != nil {
		stored, err := c.store.Load(c.ctx)
		if err != nil {
			slog.Warn("Failed to load stored location", "error", err)
		} else {
			loc = stored
		}
	}

	intent := c.codec.Decode(loc)
	slog.Debug("Starting browser", "location", c.codec.Encode(intent))
	c.SetIntent(intent)
}

// SetIntent replaces the intent, mirrors it to the store and fetches. A group
// the codec does not allow is dropped, as it would be when decoding.
func (c *Controller) SetIntent(intent Intent) {
	intent = c.codec.Normalize(intent)
	c.mirror(intent)
	c.coord.SetIntent(intent)
}

// Refresh refetches the current intent
func (c *Controller) Refresh() {
	c.coord.Refresh()
}

// GoNext moves to the next page. It reports false when there is none. It
// also reports false while a filter change is loading: the displayed page's
// cursors belong to the previous filters and would mix them with the new ones.
func (c *Controller) GoNext() bool {
	snap := c.coord.Snapshot()
	if !snap.Page.HasNext() || !sameFilters(snap.Intent, snap.PageIntent) {
		return false
	}
	c.SetIntent(snap.Intent.WithCursor(snap.Page.NextCursor))
	return true
}

// GoPrev moves to the previous page, like GoNext
func (c *Controller) GoPrev() bool {
	snap := c.coord.Snapshot()
	if !snap.Page.HasPrev() || !sameFilters(snap.Intent, snap.PageIntent) {
		return false
	}
	c.SetIntent(snap.Intent.WithCursor(snap.Page.PrevCursor))
	return true
}

// GoHome shows the first page without filters
func (c *Controller) GoHome() {
	c.SetIntent(HomeIntent)
}

// SetSearch changes the search term and returns to the first page
func (c *Controller) SetSearch(search string) {
	c.SetIntent(c.coord.Snapshot().Intent.WithSearch(search))
}

// SetGroup changes the group filter and returns to the first page.
// An empty group clears the filter.
func (c *Controller) SetGroup(group string) {
	c.SetIntent(c.coord.Snapshot().Intent.WithGroup(group))
}

// Snapshot returns the current published state
func (c *Controller) Snapshot() Snapshot {
	return c.coord.Snapshot()
}

// Wait blocks until the current fetch settles
func (c *Controller) Wait(ctx context.Context) (Snapshot, error) {
	return c.coord.Wait(ctx)
}

// Location returns the encoded current intent
func (c *Controller) Location() string {
	return c.codec.Encode(c.coord.Snapshot().Intent)
}

// LocationOf returns the encoded form of intent
func (c *Controller) LocationOf(intent Intent) string {
	return c.codec.Encode(intent)
}

// Groups returns the group names the location codec accepts
func (c *Controller) Groups() []string {
	return c.codec.Groups()
}

// Close cancels the in-flight fetch
func (c *Controller) Close() {
	c.coord.Close()
}

// Get fetches the full record for editing
func (c *Controller) Get(ctx context.Context, id uuid.UUID) (*items.Record, error) {
	record, err := c.client.GetRecord(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get item %s: %w", id, err)
	}
	return record, nil
}

// Delete deletes a record and recovers the view. When the deleted record
// was the only one on its page and a previous page exists, the view steps
// back; otherwise the page is refetched.
func (c *Controller) Delete(ctx context.Context, id uuid.UUID) error {
	before := c.coord.Snapshot()

	err := c.client.DeleteRecord(ctx, id)
	c.metrics.RecordMutation(ctx, opDelete, err == nil)
	if err != nil {
		if !items.IsCancelled(err) {
			slog.Error("Failed to delete item", "id", id, "error", err)
			c.emit(errorNotice("Error deleting item", err))
		}
		return fmt.Errorf("failed to delete item %s: %w", id, err)
	}

	current := c.coord.Snapshot().Intent
	decision := AfterDelete(before.Page, current.Cursor, before.Page.PrevCursor)
	if decision.StepBack {
		c.SetIntent(current.WithCursor(decision.NextCursor))
		c.emit(noticeStepBack)
		return nil
	}

	c.Refresh()
	c.emit(noticeDeleted)
	return nil
}

// Create creates a record and jumps to the unfiltered first page. Validation
// and transport errors are returned unchanged and leave the view untouched.
func (c *Controller) Create(ctx context.Context, input items.Input) (*items.Record, error) {
	record, err := c.client.CreateRecord(ctx, input)
	c.metrics.RecordMutation(ctx, opCreate, err == nil)
	if err != nil {
		return nil, err
	}

	c.SetIntent(AfterCreate())
	c.emit(noticeCreated)
	return record, nil
}

// Update updates a record and refetches the current page. Errors are
// returned unchanged.
func (c *Controller) Update(ctx context.Context, id uuid.UUID, input items.Input) (*items.Record, error) {
	record, err := c.client.UpdateRecord(ctx, id, input)
	c.metrics.RecordMutation(ctx, opUpdate, err == nil)
	if err != nil {
		return nil, err
	}

	if AfterUpdate() {
		c.Refresh()
	}
	c.emit(noticeUpdated)
	return record, nil
}

func (c *Controller) onFetchError(intent Intent, err error) {
	slog.Error("Failed to fetch items", "location", c.codec.Encode(intent), "error", err)
	c.emit(errorNotice("Error fetching items", err))
}

// mirror replaces the stored location. Failures are logged only.
func (c *Controller) mirror(intent Intent) {
	if c.store == nil {
		return
	}
	if err := c.store.Replace(c.ctx, c.codec.Encode(intent)); err != nil {
		slog.Warn("Failed to store location", "error", err)
	}
}

func (c *Controller) emit(n Notice) {
	if c.notifier != nil {
		c.notifier(n)
	}
}

func sameFilters(a, b Intent) bool {
	return a.Search == b.Search && a.Group == b.Group
}
