package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPDoer defines the http.Client interface subset the transport needs.
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// Result is the raw outcome of one transport call.
type Result struct {
	HTTPStatus int
	StatusLine string
	Body       []byte
	// ProcessID is the partner-assigned correlation id, when present.
	ProcessID string
}

// Transport sends one serialized payload to the partner endpoint. HTTP
// framing, TLS and DNS are its concern; the engine only resolves its outcome.
type Transport interface {
	Send(ctx context.Context, path string, payload []byte, correlationID string, timeout time.Duration) (*Result, error)
}

const (
	headerCorrelationID = "X-Correlation-ID"
	headerProcessID     = "Process-ID"
)

// HTTPTransport is the default Transport over net/http. Retries are limited
// and apply to network-level failures only; HTTP error statuses are results,
// not failures, and are never retried here.
type HTTPTransport struct {
	baseURL string
	client  HTTPDoer
	retries int
}

// NewHTTPTransport builds a transport against the partner base URL.
func NewHTTPTransport(baseURL string, client HTTPDoer, retries int) *HTTPTransport {
	if retries < 0 {
		retries = 0
	}
	return &HTTPTransport{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		retries: retries,
	}
}

func (t *HTTPTransport) buildURL(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return t.baseURL + path
}

// Send posts the payload and returns the raw response.
func (t *HTTPTransport) Send(ctx context.Context, path string, payload []byte, correlationID string, timeout time.Duration) (*Result, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var lastErr error
	for attempt := 0; attempt <= t.retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.buildURL(path), bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("transport: build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if correlationID != "" {
			req.Header.Set(headerCorrelationID, correlationID)
		}

		resp, err := t.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("transport: read body: %w", err)
			continue
		}

		return &Result{
			HTTPStatus: resp.StatusCode,
			StatusLine: resp.Status,
			Body:       body,
			ProcessID:  resp.Header.Get(headerProcessID),
		}, nil
	}
	return nil, fmt.Errorf("transport: %w", lastErr)
}

// NewDefaultHTTPClient returns an *http.Client without its own timeout; the
// engine applies per-call timeouts through the request context.
func NewDefaultHTTPClient() *http.Client {
	return &http.Client{}
}
