// Package httpclient is the single outbound HTTP client every feature module
// shares. Cross-cutting behaviour is attached as an ordered pipeline of
// request and response middleware around one transport call.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/pitabwire/suitekit/internal/observability"
	"github.com/pitabwire/suitekit/model"
)

// DefaultTimeout bounds every call, including reading the response body.
const DefaultTimeout = 10 * time.Second

// maxResponseBytes caps how much of a response body is read.
const maxResponseBytes = 10 << 20

// Request is one outgoing call. It is owned by the call site and is only
// mutated by request middleware.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   any
}

// Response is a received response with its body fully read.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Decode unmarshals the JSON body into v.
func (r *Response) Decode(v any) error {
	if len(r.Body) == 0 {
		return errors.New("httpclient: empty response body")
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("httpclient: decode response: %w", err)
	}
	return nil
}

// RequestMiddleware runs before the transport call. Returning an error
// aborts the call.
type RequestMiddleware func(ctx context.Context, req *Request) error

// ResponseMiddleware runs after the transport call on its outcome. It may
// perform side effects and must return an error whenever it received one.
type ResponseMiddleware func(ctx context.Context, req *Request, resp *Response, err error) (*Response, error)

// Client issues JSON requests through the middleware pipeline. It is safe
// for concurrent use once constructed.
type Client struct {
	http     *http.Client
	timeout  time.Duration
	defaults http.Header
	reqMW    []RequestMiddleware
	respMW   []ResponseMiddleware
	metrics  *observability.Metrics
	logger   *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout overrides the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithHTTPClient replaces the underlying *http.Client. Its Timeout is
// overwritten by the client timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithDefaultHeader adds a header sent on every request unless the call
// overrides it.
func WithDefaultHeader(key, value string) Option {
	return func(c *Client) {
		c.defaults.Set(key, value)
	}
}

// WithRequestMiddleware appends request middleware in order.
func WithRequestMiddleware(mw ...RequestMiddleware) Option {
	return func(c *Client) {
		c.reqMW = append(c.reqMW, mw...)
	}
}

// WithResponseMiddleware appends response middleware in order.
func WithResponseMiddleware(mw ...ResponseMiddleware) Option {
	return func(c *Client) {
		c.respMW = append(c.respMW, mw...)
	}
}

// WithMetrics records request counts and durations on m.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithLogger sets the fallback logger used when the context carries none.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// New creates a Client with a 10s timeout and JSON content headers. There
// is no base URL; every call takes a fully qualified URL.
func New(opts ...Option) *Client {
	c := &Client{
		timeout:  DefaultTimeout,
		defaults: make(http.Header),
		logger:   zap.NewNop(),
	}
	c.defaults.Set("Content-Type", "application/json")
	c.defaults.Set("Accept", "application/json")

	for _, opt := range opts {
		opt(c)
	}

	if c.http == nil {
		c.http = &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        100,
				MaxConnsPerHost:     50,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		}
	}
	c.http.Timeout = c.timeout

	return c
}

// Timeout returns the per-call timeout.
func (c *Client) Timeout() time.Duration {
	return c.timeout
}

// Logger returns the fallback logger.
func (c *Client) Logger() *zap.Logger {
	return c.logger
}

// CallOption adjusts a single request built by the verb helpers.
type CallOption func(*Request)

// WithHeader sets a header on one call, overriding the defaults.
func WithHeader(key, value string) CallOption {
	return func(r *Request) {
		r.Header.Set(key, value)
	}
}

// Get issues a GET request.
func (c *Client) Get(ctx context.Context, rawURL string, opts ...CallOption) (*Response, error) {
	return c.Do(ctx, c.newRequest(http.MethodGet, rawURL, nil, opts))
}

// Post issues a POST request with a JSON body.
func (c *Client) Post(ctx context.Context, rawURL string, body any, opts ...CallOption) (*Response, error) {
	return c.Do(ctx, c.newRequest(http.MethodPost, rawURL, body, opts))
}

// Put issues a PUT request with a JSON body.
func (c *Client) Put(ctx context.Context, rawURL string, body any, opts ...CallOption) (*Response, error) {
	return c.Do(ctx, c.newRequest(http.MethodPut, rawURL, body, opts))
}

// Patch issues a PATCH request with a JSON body.
func (c *Client) Patch(ctx context.Context, rawURL string, body any, opts ...CallOption) (*Response, error) {
	return c.Do(ctx, c.newRequest(http.MethodPatch, rawURL, body, opts))
}

// Delete issues a DELETE request.
func (c *Client) Delete(ctx context.Context, rawURL string, opts ...CallOption) (*Response, error) {
	return c.Do(ctx, c.newRequest(http.MethodDelete, rawURL, nil, opts))
}

func (c *Client) newRequest(method, rawURL string, body any, opts []CallOption) *Request {
	req := &Request{
		Method: method,
		URL:    rawURL,
		Header: c.defaults.Clone(),
		Body:   body,
	}
	for _, opt := range opts {
		opt(req)
	}
	return req
}

// Do runs req through the pipeline: request middleware in order, the
// transport call, then response middleware in order. Non-2xx responses and
// transport failures are returned as *model.APIError. A non-2xx response
// is returned alongside its error.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	if req.Header == nil {
		req.Header = make(http.Header)
	}
	for k, v := range c.defaults {
		if req.Header.Get(k) == "" {
			req.Header[k] = append([]string(nil), v...)
		}
	}

	ctx, span := observability.StartClientSpan(ctx, req.Method, req.URL)

	for _, mw := range c.reqMW {
		if err := mw(ctx, req); err != nil {
			observability.EndSpan(span, 0, err)
			return nil, fmt.Errorf("httpclient: request middleware: %w", err)
		}
	}

	start := time.Now()
	resp, err := c.send(ctx, req)

	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	c.metrics.RecordClientRequest(req.Method, hostOf(req.URL), status, time.Since(start))
	if status > 0 {
		observability.EndSpan(span, status, nil)
	} else {
		observability.EndSpan(span, 0, err)
	}

	for _, mw := range c.respMW {
		resp, err = mw(ctx, req, resp, err)
	}
	return resp, err
}

func (c *Client) send(ctx context.Context, req *Request) (*Response, error) {
	body, err := encodeBody(req.Body)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("httpclient: build request: %w", err)
	}
	httpReq.Header = req.Header.Clone()

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, &model.APIError{
			Method: req.Method,
			URL:    req.URL,
			Err:    classifyTransportError(ctx, err),
		}
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		return nil, &model.APIError{
			Method: req.Method,
			URL:    req.URL,
			Err:    classifyTransportError(ctx, err),
		}
	}

	resp := &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       respBody,
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp, &model.APIError{
			StatusCode: resp.StatusCode,
			Method:     req.Method,
			URL:        req.URL,
			Body:       respBody,
			Payload:    decodePayload(respBody),
		}
	}
	return resp, nil
}

func encodeBody(body any) (io.Reader, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return bytes.NewReader(b), nil
	case json.RawMessage:
		return bytes.NewReader(b), nil
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("httpclient: marshal body: %w", err)
	}
	return bytes.NewReader(data), nil
}

// decodePayload returns the body as a JSON object, or nil if it is not one.
func decodePayload(body []byte) map[string]any {
	if len(body) == 0 {
		return nil
	}
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil
	}
	return payload
}

// transportError keeps the transport's own message while letting callers
// match the coded envelope with errors.As.
type transportError struct {
	envelope *model.ErrorEnvelope
	err      error
}

func (e *transportError) Error() string {
	return e.err.Error()
}

func (e *transportError) Unwrap() []error {
	return []error{e.envelope, e.err}
}

func classifyTransportError(ctx context.Context, err error) error {
	var netErr net.Error
	switch {
	case ctx.Err() != nil, errors.As(err, &netErr) && netErr.Timeout():
		return &transportError{envelope: model.NewBackendTimeoutError(), err: err}
	case isConnectionError(err):
		return &transportError{envelope: model.NewBackendUnavailableError(), err: err}
	}
	return err
}

func isConnectionError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "unknown"
	}
	return u.Host
}
