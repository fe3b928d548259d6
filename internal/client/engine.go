package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"roamgate/internal/oicp"
)

// timeNow is swappable in tests.
var timeNow = time.Now

// Config is the client-wide read-only configuration. It is never mutated
// after construction and is safe for concurrent reads.
type Config struct {
	// DefaultTimeout applies when a call carries no timeout of its own.
	DefaultTimeout time.Duration
	// ListenerWait bounds how long a request waits for its notification
	// listeners before moving on without them.
	ListenerWait time.Duration
}

// RequestEvent notifies listeners that a request is about to be sent. The log
// timestamp is distinct from the request's own logical timestamp.
type RequestEvent struct {
	CorrelationID    string
	Path             string
	RequestTimestamp time.Time
	LogTimestamp     time.Time
}

// ResponseEvent notifies listeners that a response was received.
type ResponseEvent struct {
	CorrelationID string
	Path          string
	LogTimestamp  time.Time
	Runtime       time.Duration
	HTTPStatus    int
	IsFault       bool
}

// RequestListener observes outgoing requests.
type RequestListener func(RequestEvent)

// ResponseListener observes received responses.
type ResponseListener func(ResponseEvent)

// Client executes protocol requests against one partner endpoint. All state is
// fixed at construction; concurrent Execute calls share nothing mutable.
type Client struct {
	cfg               Config
	transport         Transport
	logger            *zap.Logger
	requestListeners  []RequestListener
	responseListeners []ResponseListener
}

// Option configures a Client at construction time.
type Option func(*Client)

// WithRequestListener registers a request-sent listener.
func WithRequestListener(l RequestListener) Option {
	return func(c *Client) { c.requestListeners = append(c.requestListeners, l) }
}

// WithResponseListener registers a response-received listener.
func WithResponseListener(l ResponseListener) Option {
	return func(c *Client) { c.responseListeners = append(c.responseListeners, l) }
}

// New builds a protocol client over the given transport.
func New(transport Transport, cfg Config, logger *zap.Logger, opts ...Option) (*Client, error) {
	if transport == nil {
		return nil, errors.New("client: transport is required")
	}
	if logger == nil {
		return nil, errors.New("client: logger is required")
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = 30 * time.Second
	}
	if cfg.ListenerWait <= 0 {
		cfg.ListenerWait = time.Second
	}
	c := &Client{cfg: cfg, transport: transport, logger: logger}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Call describes one typed protocol operation. The per-message pieces plug
// into the shared six-step pipeline instead of duplicating it.
type Call[Req, Resp any] struct {
	// Path is the partner endpoint path for this message type.
	Path string
	// CorrelationID correlates request and response; generated when empty.
	CorrelationID string
	// Timeout overrides the client default when positive.
	Timeout time.Duration
	// Timestamp is the request's own logical timestamp; defaults to now.
	Timestamp time.Time

	// MapRequest is the caller-supplied request transform. Returning false
	// fails the call fast with an invalid-request outcome.
	MapRequest func(Req) (Req, bool)
	// Encode serializes the mapped request to its wire payload.
	Encode func(Req) ([]byte, error)
	// MapPayload is the last-mile payload transform.
	MapPayload func([]byte) []byte
	// Decode parses a successful payload into the typed response.
	Decode func([]byte) (Resp, error)
	// Fault builds the typed response shape for any failure outcome.
	Fault func(code oicp.StatusCode, description string) Resp
	// IsProtocolFault inspects a well-formed body for a protocol-level
	// rejection, returning its description.
	IsProtocolFault func([]byte) (string, bool)
}

// Response wraps the typed response of one execution. Value is always
// populated; callers never observe a raw exception from transport or parsing.
type Response[Resp any] struct {
	Value      Resp
	Status     oicp.StatusCode
	HTTPStatus int
	IsFault    bool
	Cancelled  bool
	ProcessID  string
	Runtime    time.Duration
	// Err is the underlying cause, attached for diagnostics only.
	Err error
}

// Execute runs the six-step pipeline for one request: map, notify, serialize,
// send, resolve exactly one outcome, notify. Two calls perform two independent
// network calls; nothing is retried or deduplicated here.
func Execute[Req, Resp any](ctx context.Context, c *Client, call Call[Req, Resp], request Req) Response[Resp] {
	start := timeNow()
	if call.Timestamp.IsZero() {
		call.Timestamp = start
	}
	if call.CorrelationID == "" {
		call.CorrelationID = uuid.NewString()
	}
	timeout := call.Timeout
	if timeout <= 0 {
		timeout = c.cfg.DefaultTimeout
	}

	fault := func(code oicp.StatusCode, description string, cause error) Response[Resp] {
		resp := Response[Resp]{
			Status:  code,
			IsFault: true,
			Err:     cause,
			Runtime: timeNow().Sub(start),
		}
		if call.Fault != nil {
			resp.Value = call.Fault(code, description)
		}
		return resp
	}

	// Step 1: request mapping.
	if call.MapRequest != nil {
		mapped, ok := call.MapRequest(request)
		if !ok {
			return fault(oicp.StatusCodeInvalidRequest, "request mapper returned no request", nil)
		}
		request = mapped
	}

	// Step 2: request-sent notification, best effort.
	c.notifyRequest(RequestEvent{
		CorrelationID:    call.CorrelationID,
		Path:             call.Path,
		RequestTimestamp: call.Timestamp,
		LogTimestamp:     timeNow(),
	})

	// Step 3: serialization and payload mapping.
	payload, err := call.Encode(request)
	if err != nil {
		resp := fault(oicp.StatusCodeServiceNotAvailable, fmt.Sprintf("request serialization failed: %v", err), err)
		c.notifyResponse(call.CorrelationID, call.Path, resp.Runtime, resp.HTTPStatus, resp.IsFault)
		return resp
	}
	if call.MapPayload != nil {
		payload = call.MapPayload(payload)
	}

	// Cancellation is honored before the transport call is issued.
	if err := ctx.Err(); err != nil {
		resp := fault(oicp.StatusCodeRequestCancelled, "request cancelled before transport call", err)
		resp.Cancelled = true
		c.notifyResponse(call.CorrelationID, call.Path, resp.Runtime, resp.HTTPStatus, resp.IsFault)
		return resp
	}

	// Step 4: transport call.
	result, err := c.transport.Send(ctx, call.Path, payload, call.CorrelationID, timeout)

	// Step 5: outcome resolution, exactly one branch.
	var resp Response[Resp]
	switch {
	case err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)):
		resp = fault(oicp.StatusCodeRequestCancelled, fmt.Sprintf("transport call cancelled: %v", err), err)
		resp.Cancelled = errors.Is(err, context.Canceled)
	case err != nil:
		resp = fault(oicp.StatusCodeServiceNotAvailable, exceptionDescription(err), err)
	case result == nil:
		// Should not happen under correct wiring; tolerated regardless.
		resp = fault(oicp.StatusCodeSystemError, "HTTP request failed", nil)
	case result.HTTPStatus < 200 || result.HTTPStatus > 299:
		resp = fault(oicp.StatusCodeDataError, transportErrorDescription(result), nil)
		resp.HTTPStatus = result.HTTPStatus
		resp.ProcessID = result.ProcessID
	default:
		resp = resolveBody(call, result, fault)
	}
	resp.Runtime = timeNow().Sub(start)

	// Step 6: response-received notification, best effort.
	c.notifyResponse(call.CorrelationID, call.Path, resp.Runtime, resp.HTTPStatus, resp.IsFault)
	return resp
}

func resolveBody[Req, Resp any](call Call[Req, Resp], result *Result, fault func(oicp.StatusCode, string, error) Response[Resp]) Response[Resp] {
	if call.IsProtocolFault != nil {
		if description, ok := call.IsProtocolFault(result.Body); ok {
			resp := fault(oicp.StatusCodeDataError, description, nil)
			resp.HTTPStatus = result.HTTPStatus
			resp.ProcessID = result.ProcessID
			return resp
		}
	}

	value, err := call.Decode(result.Body)
	if err != nil {
		resp := fault(oicp.StatusCodeServiceNotAvailable, exceptionDescription(err), err)
		resp.HTTPStatus = result.HTTPStatus
		resp.ProcessID = result.ProcessID
		return resp
	}

	return Response[Resp]{
		Value:      value,
		Status:     oicp.StatusCodeSuccess,
		HTTPStatus: result.HTTPStatus,
		ProcessID:  result.ProcessID,
	}
}

func exceptionDescription(err error) string {
	return fmt.Sprintf("exception during send/decode: %v", err)
}

func transportErrorDescription(result *Result) string {
	description := result.StatusLine
	if len(result.Body) > 0 {
		body := string(result.Body)
		if len(body) > 512 {
			body = body[:512]
		}
		description = description + ": " + body
	}
	return description
}

func (c *Client) notifyRequest(ev RequestEvent) {
	listeners := c.requestListeners
	c.fanOut(len(listeners), func(i int) { listeners[i](ev) })
}

func (c *Client) notifyResponse(correlationID, path string, runtime time.Duration, httpStatus int, isFault bool) {
	listeners := c.responseListeners
	ev := ResponseEvent{
		CorrelationID: correlationID,
		Path:          path,
		LogTimestamp:  timeNow(),
		Runtime:       runtime,
		HTTPStatus:    httpStatus,
		IsFault:       isFault,
	}
	c.fanOut(len(listeners), func(i int) { listeners[i](ev) })
}

// fanOut invokes listeners concurrently and waits a bounded time for them. A
// slow or panicking listener never blocks or aborts the request.
func (c *Client) fanOut(n int, invoke func(int)) {
	if n == 0 {
		return
	}

	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					c.logger.Warn("listener panicked", zap.Any("panic", r))
				}
			}()
			invoke(i)
		}(i)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(c.cfg.ListenerWait):
		c.logger.Warn("listener notification timed out", zap.Duration("wait", c.cfg.ListenerWait))
	}
}
