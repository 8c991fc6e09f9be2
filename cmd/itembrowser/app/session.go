package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/stacklok/itembrowser/internal/browse"
	"github.com/stacklok/itembrowser/internal/config"
	"github.com/stacklok/itembrowser/internal/items"
	"github.com/stacklok/itembrowser/internal/location"
	"github.com/stacklok/itembrowser/internal/telemetry"
	"github.com/stacklok/itembrowser/pkg/versions"
)

const telemetryShutdownTimeout = 5 * time.Second

// session wires the items client, location store and controller for one command
type session struct {
	client items.Client
	store  location.Store
	codec  *browse.Codec
	ctrl   *browse.Controller
	tel    *telemetry.Telemetry
}

func newSession(ctx context.Context, cfg *config.Config, opts ...browse.Option) (*session, error) {
	return openSession(ctx, cfg, 0, opts...)
}

// openSession is newSession with location writes debounced by storeDelay
// when it is positive
func openSession(
	ctx context.Context, cfg *config.Config, storeDelay time.Duration, opts ...browse.Option,
) (*session, error) {
	tel, err := telemetry.New(ctx, cfg.Telemetry, versions.GetVersionInfo().Version)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	client, err := newItemsClient(cfg, tel)
	if err != nil {
		shutdownTelemetry(tel)
		return nil, err
	}

	store, err := newStore(cfg)
	if err != nil {
		shutdownTelemetry(tel)
		return nil, err
	}
	if storeDelay > 0 {
		store = location.NewDebouncedStore(store, storeDelay)
	}

	codec := browse.NewCodec(cfg.Groups...)
	ctrlOpts := append([]browse.Option{
		browse.WithCodec(codec),
		browse.WithStore(store),
		browse.WithMetrics(tel.BrowseMetrics()),
		browse.WithTracer(tel.Tracer(browse.TracerName)),
	}, opts...)

	return &session{
		client: client,
		store:  store,
		codec:  codec,
		ctrl:   browse.NewController(ctx, client, ctrlOpts...),
		tel:    tel,
	}, nil
}

func newItemsClient(cfg *config.Config, tel *telemetry.Telemetry) (items.Client, error) {
	client, err := items.NewRESTClient(cfg.API.Endpoint,
		items.WithItemsPath(cfg.API.ItemsPath),
		items.WithTimeout(cfg.API.GetTimeout()),
		items.WithMaxTries(cfg.API.GetMaxTries()),
		items.WithRetryInterval(cfg.API.GetRetryInterval()),
		items.WithBreaker(cfg.API.GetBreaker()),
		items.WithTracer(tel.Tracer(items.TracerName)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create items client: %w", err)
	}
	return client, nil
}

func newStore(cfg *config.Config) (location.Store, error) {
	if cfg.State.Disabled {
		return location.NewMemoryStore(""), nil
	}
	dir, err := cfg.StateDir()
	if err != nil {
		return nil, err
	}
	return location.NewFileStore(dir), nil
}

// Close stops fetching, writes any pending location and flushes telemetry
func (s *session) Close() {
	s.ctrl.Close()
	if d, ok := s.store.(*location.DebouncedStore); ok {
		if err := d.Flush(context.Background()); err != nil {
			slog.Warn("Failed to store location", "error", err)
		}
	}
	shutdownTelemetry(s.tel)
}

// settle waits for the current fetch and reports a failed one as an error
func (s *session) settle(ctx context.Context) (browse.Snapshot, error) {
	snap, err := s.ctrl.Wait(ctx)
	if err != nil {
		return snap, fmt.Errorf("failed to wait for items: %w", err)
	}
	if snap.State == browse.StateFailed {
		return snap, fmt.Errorf("failed to fetch items: %w", snap.Err)
	}
	return snap, nil
}

func shutdownTelemetry(tel *telemetry.Telemetry) {
	ctx, cancel := context.WithTimeout(context.Background(), telemetryShutdownTimeout)
	defer cancel()
	if err := tel.Shutdown(ctx); err != nil {
		slog.Warn("Failed to shutdown telemetry", "error", err)
	}
}

// printNotices returns a notifier that writes notices as single lines to w.
// Error notices are skipped: commands return those failures instead.
func printNotices(w io.Writer) browse.Notifier {
	return func(n browse.Notice) {
		if n.Level == browse.NoticeError {
			return
		}
		if n.Detail != "" {
			_, _ = fmt.Fprintf(w, "%s: %s\n", n.Title, n.Detail)
			return
		}
		_, _ = fmt.Fprintln(w, n.Title)
	}
}
