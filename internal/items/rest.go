package items

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/go-resty/resty/v2"
	"github.com/google/go-querystring/query"
	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel/trace"

	"github.com/stacklok/itembrowser/internal/otel"
	"github.com/stacklok/itembrowser/pkg/versions"
)

const (
	// DefaultTimeout is the default timeout for a single HTTP request
	DefaultTimeout = 10 * time.Second

	// DefaultItemsPath is the path of the items collection below the API endpoint
	DefaultItemsPath = "/api/v1/items/"

	// DefaultMaxTries is the default number of attempts for idempotent requests
	DefaultMaxTries uint = 3

	// DefaultBreakerMaxFailures is the number of consecutive failures that opens the breaker
	DefaultBreakerMaxFailures uint32 = 5

	// DefaultBreakerOpenTimeout is how long the breaker stays open before probing again
	DefaultBreakerOpenTimeout = 30 * time.Second

	// TracerName is the name used for the items client tracer
	TracerName = "github.com/stacklok/itembrowser/items"

	defaultRetryInterval = 200 * time.Millisecond
	maxRetryInterval     = 2 * time.Second
)

// listEnvelope is the paginated list response of the items API
type listEnvelope struct {
	Results  []Record `json:"results"`
	Next     *string  `json:"next"`
	Previous *string  `json:"previous"`
}

// Option configures the REST client
type Option func(*restClient)

// WithTimeout sets the per-request timeout. Zero keeps DefaultTimeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *restClient) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithItemsPath overrides the path of the items collection
func WithItemsPath(path string) Option {
	return func(c *restClient) {
		if path != "" {
			c.itemsPath = path
		}
	}
}

// WithMaxTries sets how many attempts idempotent requests get. 1 disables retries.
func WithMaxTries(tries uint) Option {
	return func(c *restClient) {
		if tries > 0 {
			c.maxTries = tries
		}
	}
}

// WithRetryInterval sets the initial backoff interval between attempts
func WithRetryInterval(interval time.Duration) Option {
	return func(c *restClient) {
		if interval > 0 {
			c.retryInterval = interval
		}
	}
}

// WithBreaker configures the circuit breaker guarding the items API
func WithBreaker(maxFailures uint32, openTimeout time.Duration) Option {
	return func(c *restClient) {
		if maxFailures > 0 {
			c.breakerMaxFailures = maxFailures
		}
		if openTimeout > 0 {
			c.breakerOpenTimeout = openTimeout
		}
	}
}

// WithTracer sets the tracer used for request spans
func WithTracer(tracer trace.Tracer) Option {
	return func(c *restClient) {
		c.tracer = tracer
	}
}

// restClient implements Client over the items REST API
type restClient struct {
	http      *resty.Client
	endpoint  string
	itemsPath string
	timeout   time.Duration
	tracer    trace.Tracer

	maxTries      uint
	retryInterval time.Duration

	breaker            *gobreaker.CircuitBreaker
	breakerMaxFailures uint32
	breakerOpenTimeout time.Duration
}

// NewRESTClient creates a client for the items API served at endpoint
// (scheme and host, e.g. "http://localhost:8000").
func NewRESTClient(endpoint string, opts ...Option) (Client, error) {
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("invalid endpoint %q: scheme must be http or https", endpoint)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("invalid endpoint %q: host is required", endpoint)
	}

	c := &restClient{
		endpoint:           strings.TrimRight(endpoint, "/"),
		itemsPath:          DefaultItemsPath,
		timeout:            DefaultTimeout,
		maxTries:           DefaultMaxTries,
		retryInterval:      defaultRetryInterval,
		breakerMaxFailures: DefaultBreakerMaxFailures,
		breakerOpenTimeout: DefaultBreakerOpenTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	if !strings.HasPrefix(c.itemsPath, "/") {
		c.itemsPath = "/" + c.itemsPath
	}
	if !strings.HasSuffix(c.itemsPath, "/") {
		c.itemsPath += "/"
	}

	c.http = resty.New().
		SetBaseURL(c.endpoint).
		SetTimeout(c.timeout).
		SetHeader("User-Agent", versions.UserAgent()).
		SetHeader("Accept", "application/json")

	maxFailures := c.breakerMaxFailures
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "items-api",
		Timeout: c.breakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || IsCancelled(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("Circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String())
		},
	})

	return c, nil
}

// ListRecords fetches one page of records
func (c *restClient) ListRecords(ctx context.Context, params ListParams) (*ListResult, error) {
	const op = "list"
	ctx, span := otel.StartSpan(ctx, c.tracer, "items.ListRecords",
		trace.WithAttributes(
			otel.AttrOperation.String(op),
			otel.AttrHasCursor.Bool(params.Cursor != ""),
			otel.AttrSearch.String(params.Search),
			otel.AttrGroup.String(params.Group),
		))
	defer span.End()

	values, err := query.Values(params)
	if err != nil {
		return nil, fmt.Errorf("failed to encode list parameters: %w", err)
	}

	result, err := retryIdempotent(ctx, c, op, func() (*ListResult, error) {
		resp, err := c.send(ctx, op, http.MethodGet, c.itemsPath, func(r *resty.Request) *resty.Request {
			return r.SetQueryParamsFromValues(values)
		})
		if err != nil {
			return nil, err
		}
		if resp.StatusCode() != http.StatusOK {
			return nil, NewHTTPError(op, resp.StatusCode(), resp.Request.URL, resp.Status())
		}

		var envelope listEnvelope
		if err := json.Unmarshal(resp.Body(), &envelope); err != nil {
			return nil, &TransportError{Op: op, URL: resp.Request.URL, Message: "malformed list response", Err: err}
		}

		return &ListResult{
			Records:  envelope.Results,
			Next:     derefString(envelope.Next),
			Previous: derefString(envelope.Previous),
		}, nil
	})
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}

	span.SetAttributes(otel.AttrResultCount.Int(len(result.Records)))
	slog.Debug("Listed records",
		"count", len(result.Records),
		"has_next", result.Next != "",
		"has_previous", result.Previous != "")
	return result, nil
}

// GetRecord fetches the full record
func (c *restClient) GetRecord(ctx context.Context, id uuid.UUID) (*Record, error) {
	const op = "get"
	ctx, span := otel.StartSpan(ctx, c.tracer, "items.GetRecord",
		trace.WithAttributes(otel.AttrOperation.String(op), otel.AttrRecordID.String(id.String())))
	defer span.End()

	record, err := retryIdempotent(ctx, c, op, func() (*Record, error) {
		resp, err := c.send(ctx, op, http.MethodGet, c.recordPath(id), nil)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode() != http.StatusOK {
			return nil, NewHTTPError(op, resp.StatusCode(), resp.Request.URL, resp.Status())
		}
		return decodeRecord(op, resp)
	})
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	return record, nil
}

// CreateRecord creates a record
func (c *restClient) CreateRecord(ctx context.Context, input Input) (*Record, error) {
	const op = "create"
	ctx, span := otel.StartSpan(ctx, c.tracer, "items.CreateRecord",
		trace.WithAttributes(otel.AttrOperation.String(op), otel.AttrGroup.String(input.Group)))
	defer span.End()

	record, err := c.write(ctx, op, http.MethodPost, c.itemsPath, input, http.StatusCreated)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}

	span.SetAttributes(otel.AttrRecordID.String(record.ID.String()))
	slog.Info("Created record", "id", record.ID, "group", record.Group)
	return record, nil
}

// UpdateRecord partially updates a record
func (c *restClient) UpdateRecord(ctx context.Context, id uuid.UUID, input Input) (*Record, error) {
	const op = "update"
	ctx, span := otel.StartSpan(ctx, c.tracer, "items.UpdateRecord",
		trace.WithAttributes(otel.AttrOperation.String(op), otel.AttrRecordID.String(id.String())))
	defer span.End()

	record, err := c.write(ctx, op, http.MethodPatch, c.recordPath(id), input, http.StatusOK)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}

	slog.Info("Updated record", "id", record.ID)
	return record, nil
}

// DeleteRecord deletes a record
func (c *restClient) DeleteRecord(ctx context.Context, id uuid.UUID) error {
	const op = "delete"
	ctx, span := otel.StartSpan(ctx, c.tracer, "items.DeleteRecord",
		trace.WithAttributes(otel.AttrOperation.String(op), otel.AttrRecordID.String(id.String())))
	defer span.End()

	resp, err := c.send(ctx, op, http.MethodDelete, c.recordPath(id), nil)
	if err != nil {
		recordSpanError(span, err)
		return err
	}
	if resp.StatusCode() != http.StatusNoContent && resp.StatusCode() != http.StatusOK {
		err := NewHTTPError(op, resp.StatusCode(), resp.Request.URL, resp.Status())
		recordSpanError(span, err)
		return err
	}

	slog.Info("Deleted record", "id", id)
	return nil
}

// write sends a create or update body and maps 400 responses to a ValidationError
func (c *restClient) write(
	ctx context.Context, op, method, path string, input Input, wantStatus int,
) (*Record, error) {
	resp, err := c.send(ctx, op, method, path, func(r *resty.Request) *resty.Request {
		return r.SetHeader("Content-Type", "application/json").SetBody(input)
	})
	if err != nil {
		return nil, err
	}

	switch resp.StatusCode() {
	case wantStatus:
		return decodeRecord(op, resp)
	case http.StatusBadRequest:
		return nil, parseValidationError(resp.Body())
	default:
		return nil, NewHTTPError(op, resp.StatusCode(), resp.Request.URL, resp.Status())
	}
}

// send performs a single request through the circuit breaker.
// Non-5xx responses are returned as-is for the caller to interpret; 5xx
// responses and network failures are returned as errors so that they count
// against the breaker.
func (c *restClient) send(
	ctx context.Context, op, method, path string, build func(*resty.Request) *resty.Request,
) (*resty.Response, error) {
	target := c.endpoint + path

	result, err := c.breaker.Execute(func() (interface{}, error) {
		req := c.http.R().SetContext(ctx)
		if build != nil {
			req = build(req)
		}

		resp, err := req.Execute(method, path)
		if err != nil {
			return nil, classifyRequestError(ctx, op, target, err)
		}
		if resp.StatusCode() >= http.StatusInternalServerError {
			return nil, NewHTTPError(op, resp.StatusCode(), resp.Request.URL, resp.Status())
		}
		return resp, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, &TransportError{Op: op, URL: target, Message: "items API unavailable", Err: err}
		}
		return nil, err
	}

	resp, ok := result.(*resty.Response)
	if !ok {
		return nil, &TransportError{Op: op, URL: target, Message: "unexpected response type"}
	}
	return resp, nil
}

func (c *restClient) recordPath(id uuid.UUID) string {
	return c.itemsPath + id.String() + "/"
}

// retryIdempotent retries fn on retryable transport failures with exponential backoff.
// Cancellation and client errors are returned immediately.
func retryIdempotent[T any](ctx context.Context, c *restClient, op string, fn func() (T, error)) (T, error) {
	var zero T
	if c.maxTries <= 1 {
		return fn()
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryInterval
	b.MaxInterval = maxRetryInterval

	attempt := 0
	result, err := backoff.Retry(ctx, func() (T, error) {
		attempt++
		v, err := fn()
		if err == nil {
			return v, nil
		}

		var transportErr *TransportError
		if errors.As(err, &transportErr) && transportErr.retryable() && !errors.Is(err, gobreaker.ErrOpenState) {
			slog.Debug("Retrying items API request",
				"operation", op,
				"attempt", attempt,
				"error", err)
			return v, err
		}
		return v, backoff.Permanent(err)
	}, backoff.WithBackOff(b), backoff.WithMaxTries(c.maxTries))
	if err != nil {
		if ctx.Err() != nil && !IsCancelled(err) {
			return zero, &CancelledError{Op: op, Err: ctx.Err()}
		}
		return zero, err
	}
	return result, nil
}

// classifyRequestError separates caller cancellation from transport failures.
// A request timeout configured on the client is a transport failure; only the
// caller's own context counts as cancellation.
func classifyRequestError(ctx context.Context, op, target string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return &CancelledError{Op: op, Err: ctxErr}
	}
	if errors.Is(err, context.Canceled) {
		return &CancelledError{Op: op, Err: err}
	}
	return &TransportError{Op: op, URL: target, Err: err}
}

func decodeRecord(op string, resp *resty.Response) (*Record, error) {
	var record Record
	if err := json.Unmarshal(resp.Body(), &record); err != nil {
		return nil, &TransportError{Op: op, URL: resp.Request.URL, Message: "malformed record response", Err: err}
	}
	return &record, nil
}

// parseValidationError decodes a 400 body of the form
// {"field": ["msg", ...], "non_field_errors": ["msg"]}. A value may also be a
// single string. Unparseable bodies produce an empty ValidationError.
func parseValidationError(body []byte) *ValidationError {
	validationErr := &ValidationError{Fields: map[string][]string{}}
	if !gjson.ValidBytes(body) {
		return validationErr
	}

	parsed := gjson.ParseBytes(body)
	if !parsed.IsObject() {
		return validationErr
	}

	parsed.ForEach(func(key, value gjson.Result) bool {
		msgs := decodeMessages(value)
		switch key.String() {
		case "non_field_errors", "detail":
			validationErr.NonField = append(validationErr.NonField, msgs...)
		default:
			if len(msgs) > 0 {
				validationErr.Fields[key.String()] = msgs
			}
		}
		return true
	})
	return validationErr
}

func decodeMessages(value gjson.Result) []string {
	switch {
	case value.IsArray():
		var msgs []string
		for _, item := range value.Array() {
			if item.Type == gjson.String {
				msgs = append(msgs, item.String())
			}
		}
		return msgs
	case value.Type == gjson.String:
		return []string{value.String()}
	default:
		return nil
	}
}

// recordSpanError records err on span unless it is a cancellation
func recordSpanError(span trace.Span, err error) {
	if IsCancelled(err) {
		return
	}
	var statusCode int
	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		statusCode = transportErr.StatusCode
	}
	otel.RecordStatusError(span, err, statusCode)
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
