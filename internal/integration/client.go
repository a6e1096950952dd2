// Package integration is the outbound HTTP client shared by the bot and
// identity integrations. It distinguishes transport failures from non-200
// responses so callers can log them differently while treating both as
// "no usable response".
package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/wolfman30/support-integrations/pkg/logging"
)

const (
	defaultTimeout   = 10 * time.Second
	defaultBackoff   = 250 * time.Millisecond
	defaultUserAgent = "support-integrations/0.1"
	maxBodyBytes     = 1 << 20
)

// Response is a completed HTTP exchange, whatever its status.
type Response struct {
	StatusCode int
	Body       []byte
}

// OK is the success predicate used by every integration.
func (r *Response) OK() bool {
	return r != nil && r.StatusCode == http.StatusOK
}

// TransportError means no HTTP response was obtained (DNS, connect, timeout).
type TransportError struct {
	Method string
	URL    string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("integration: %s %s: %v", e.Method, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Timeout reports whether the failure was a deadline or network timeout.
func (e *TransportError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(e.Err, &netErr) && netErr.Timeout()
}

// IsTransport reports whether err is (or wraps) a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// Observer receives per-call latency. Metrics implement it.
type Observer interface {
	ObserveCall(service string, status int, seconds float64)
}

// Client performs single synchronous calls against one external service.
type Client struct {
	service    string
	httpClient *http.Client
	timeout    time.Duration
	maxRetries int
	backoff    time.Duration
	userAgent  string
	observer   Observer
	logger     *logging.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout bounds each call, including reading the body.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithHTTPClient overrides the underlying http.Client. Its transport is still
// wrapped for tracing.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithMaxRetries enables retries for transport failures, 429 and 5xx.
// The default is no retries.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.maxRetries = n
		}
	}
}

// WithBackoff sets the base delay between retries.
func WithBackoff(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.backoff = d
		}
	}
}

// WithObserver records call latency.
func WithObserver(o Observer) Option {
	return func(c *Client) {
		c.observer = o
	}
}

// WithLogger sets the logger used for retry warnings.
func WithLogger(logger *logging.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// New creates a client for the named service ("bot", "identity").
func New(service string, opts ...Option) *Client {
	c := &Client{
		service:   service,
		timeout:   defaultTimeout,
		backoff:   defaultBackoff,
		userAgent: defaultUserAgent,
		logger:    logging.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	base := c.httpClient
	if base == nil {
		base = &http.Client{}
	}
	transport := base.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	c.httpClient = &http.Client{
		Transport:     otelhttp.NewTransport(transport),
		CheckRedirect: base.CheckRedirect,
		Jar:           base.Jar,
		Timeout:       base.Timeout,
	}
	return c
}

// Call sends payload (JSON-encoded when non-nil) and returns the status and
// body. A non-200 status is a Response, not an error; only transport failures
// and request construction problems return an error.
func (c *Client) Call(ctx context.Context, method, url string, payload any) (*Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	var body []byte
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("integration: encode %s payload: %w", c.service, err)
		}
		body = encoded
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		resp, err := c.do(ctx, method, url, body)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil || attempt == c.maxRetries || !IsTransport(err) {
				return nil, err
			}
			c.logRetry(url, attempt, 0, err)
			if sleepErr := c.sleep(ctx, attempt); sleepErr != nil {
				return nil, &TransportError{Method: method, URL: url, Err: sleepErr}
			}
			continue
		}
		if attempt < c.maxRetries && retryableStatus(resp.StatusCode) {
			c.logRetry(url, attempt, resp.StatusCode, nil)
			if sleepErr := c.sleep(ctx, attempt); sleepErr != nil {
				return resp, nil
			}
			continue
		}
		return resp, nil
	}
	return nil, lastErr
}

func (c *Client) do(ctx context.Context, method, url string, body []byte) (*Response, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(callCtx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("integration: build %s request: %w", c.service, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observe(0, start)
		return nil, &TransportError{Method: method, URL: url, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	c.observe(resp.StatusCode, start)
	if err != nil {
		return nil, &TransportError{Method: method, URL: url, Err: fmt.Errorf("read body: %w", err)}
	}
	return &Response{StatusCode: resp.StatusCode, Body: data}, nil
}

func (c *Client) observe(status int, start time.Time) {
	if c.observer == nil {
		return
	}
	c.observer.ObserveCall(c.service, status, time.Since(start).Seconds())
}

func (c *Client) sleep(ctx context.Context, attempt int) error {
	delay := c.backoff * time.Duration(1<<attempt)
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Client) logRetry(url string, attempt int, status int, err error) {
	c.logger.Warn("integration retry",
		"service", c.service,
		"url", url,
		"attempt", attempt+1,
		"status", status,
		"error", err,
	)
}

func retryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || (status >= 500 && status <= 599)
}
