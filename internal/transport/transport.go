// Package transport is the HTTP session used to talk to the course platform.
//
// Every call goes through a bounded retry policy: rate-limited responses
// (429) back off and retry, CSRF rejections (403 with a "CSRF Failed" detail)
// refresh the session token from the cookie jar and retry, transport errors
// retry, and any other non-2xx status is terminal.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/keanucz/maktabdl/internal/logging"
)

const (
	// DefaultBaseURL is the origin of the course platform.
	DefaultBaseURL = "https://maktabkhooneh.org"
	// DefaultMaxAttempts is the number of attempts made per call.
	DefaultMaxAttempts = 3
	// DefaultRateLimitBackoff is how long to wait after a 429 response.
	DefaultRateLimitBackoff = 60 * time.Second

	// CSRFCookie is the cookie holding the current CSRF token.
	CSRFCookie = "csrftoken"
	// CSRFHeader carries the CSRF token on outgoing requests.
	CSRFHeader = "X-Csrftoken"

	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"
	maxErrorBody     = 64 << 10
)

// ErrRetriesExhausted is returned when every attempt of a call failed with a
// retryable condition.
var ErrRetriesExhausted = errors.New("retries exhausted")

// StatusError is a terminal non-2xx response.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.URL, e.StatusCode)
}

// IsStatus reports whether err carries a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the default SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Request describes a single call.
type Request struct {
	Method string
	URL    string
	Header http.Header // overrides the session headers
	Query  url.Values
	Form   url.Values // sent url-encoded when non-nil

	media bool // media requests skip the API session headers
}

// Response is a fully read response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	URL        string
	Length     int64
}

// ContentLength returns the declared body length, 0 when absent.
func (r *Response) ContentLength() int64 {
	if r.Length > 0 {
		return r.Length
	}
	if v := r.Header.Get("Content-Length"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			return n
		}
	}
	return 0
}

// Text returns the body as a string.
func (r *Response) Text() string { return string(r.Body) }

// JSON decodes the body into v.
func (r *Response) JSON(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decode %s: %w", r.URL, err)
	}
	return nil
}

// Client is an authenticated session with retry.
type Client struct {
	hc          *http.Client
	base        *url.URL
	log         logging.Logger
	maxAttempts int
	backoff     time.Duration
	sleep       SleepFunc
	limiter     *rate.Limiter

	mu      sync.RWMutex
	headers http.Header
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(c *Client) { c.log = logging.OrDiscard(l) }
}

// WithMaxAttempts sets the number of attempts per call.
func WithMaxAttempts(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// WithBackoff sets the wait after a 429 response.
func WithBackoff(d time.Duration) Option {
	return func(c *Client) {
		if d >= 0 {
			c.backoff = d
		}
	}
}

// WithSleep replaces the sleep used for backoff.
func WithSleep(fn SleepFunc) Option {
	return func(c *Client) {
		if fn != nil {
			c.sleep = fn
		}
	}
}

// WithRateLimit caps outgoing requests per second. Zero or less disables it.
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// WithHeader sets a session header.
func WithHeader(name, value string) Option {
	return func(c *Client) { c.headers.Set(name, value) }
}

// New creates a Client for the platform at baseURL. A nil hc gets a default
// client; a client without a cookie jar gets one.
func New(hc *http.Client, baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", baseURL)
	}
	if hc == nil {
		hc = &http.Client{}
	}
	if hc.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, err
		}
		hc.Jar = jar
	}

	origin := base.Scheme + "://" + base.Host
	c := &Client{
		hc:          hc,
		base:        base,
		log:         logging.Discard(),
		maxAttempts: DefaultMaxAttempts,
		backoff:     DefaultRateLimitBackoff,
		sleep:       Sleep,
		headers: http.Header{
			"Accept":           {"application/json"},
			"Accept-Language":  {"en-US,en;q=0.9"},
			"Origin":           {origin},
			"Referer":          {origin + "/"},
			"User-Agent":       {defaultUserAgent},
			"X-Requested-With": {"XMLHttpRequest"},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	if tok := c.cookie(CSRFCookie); tok != "" {
		c.headers.Set(CSRFHeader, tok)
	}
	return c, nil
}

// BaseURL returns the platform origin without a trailing slash.
func (c *Client) BaseURL() string {
	return c.base.String()
}

// Jar exposes the session cookie jar.
func (c *Client) Jar() http.CookieJar {
	return c.hc.Jar
}

// Cookies returns the session cookies for the platform origin.
func (c *Client) Cookies() []*http.Cookie {
	return c.hc.Jar.Cookies(c.base)
}

// SetHeader sets a header sent with every API request of the session.
func (c *Client) SetHeader(name, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.headers.Set(name, value)
}

// Header returns the current value of a session header.
func (c *Client) Header(name string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.headers.Get(name)
}

// Do performs req and returns the fully read response.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	resp, body, err := c.send(ctx, req, false)
	if err != nil {
		return nil, err
	}
	finalURL := req.URL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}
	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
		URL:        finalURL,
		Length:     resp.ContentLength,
	}, nil
}

// Get is shorthand for a GET through Do.
func (c *Client) Get(ctx context.Context, rawURL string, header http.Header) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodGet, URL: rawURL, Header: header})
}

// Head issues a HEAD request for a media URL.
func (c *Client) Head(ctx context.Context, rawURL string) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodHead, URL: rawURL, media: true})
}

// Stream issues a GET for a media URL and returns the response with its body
// unread. The caller must close the body.
func (c *Client) Stream(ctx context.Context, rawURL string) (*http.Response, error) {
	resp, _, err := c.send(ctx, &Request{Method: http.MethodGet, URL: rawURL, media: true}, true)
	return resp, err
}

func (c *Client) send(ctx context.Context, req *Request, stream bool) (*http.Response, []byte, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, nil, err
			}
		}

		hreq, err := c.newRequest(ctx, method, req)
		if err != nil {
			return nil, nil, err
		}

		c.log.Debug("request", "method", method, "url", req.URL, "attempt", attempt)
		resp, err := c.hc.Do(hreq)
		if err != nil {
			if ctx.Err() != nil {
				return nil, nil, ctx.Err()
			}
			c.log.Warn("request failed", "method", method, "url", req.URL, "attempt", attempt, "error", err)
			lastErr = err
			continue
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			if stream {
				return resp, nil, nil
			}
			body, err := io.ReadAll(resp.Body)
			resp.Body.Close()
			if err != nil {
				if ctx.Err() != nil {
					return nil, nil, ctx.Err()
				}
				c.log.Warn("read body failed", "url", req.URL, "attempt", attempt, "error", err)
				lastErr = fmt.Errorf("read body: %w", err)
				continue
			}
			return resp, body, nil
		}

		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		resp.Body.Close()
		statusErr := &StatusError{Method: method, URL: req.URL, StatusCode: resp.StatusCode, Body: body}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			lastErr = statusErr
			if attempt < c.maxAttempts {
				c.log.Error("too many requests, backing off", "url", req.URL, "wait", c.backoff)
				if err := c.sleep(ctx, c.backoff); err != nil {
					return nil, nil, err
				}
			}
		case resp.StatusCode == http.StatusForbidden && isCSRFFailure(body):
			c.log.Error("csrf check failed, refreshing token", "url", req.URL)
			lastErr = statusErr
			c.refreshCSRF()
		default:
			return nil, nil, statusErr
		}
	}

	return nil, nil, fmt.Errorf("%w: %s %s after %d attempts: %w",
		ErrRetriesExhausted, method, req.URL, c.maxAttempts, lastErr)
}

func (c *Client) newRequest(ctx context.Context, method string, req *Request) (*http.Request, error) {
	u, err := url.Parse(req.URL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	if len(req.Query) > 0 {
		q := u.Query()
		for k, vs := range req.Query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}

	var body io.Reader
	if req.Form != nil {
		body = strings.NewReader(req.Form.Encode())
	}
	hreq, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, err
	}

	c.mu.RLock()
	if req.media {
		hreq.Header.Set("User-Agent", c.headers.Get("User-Agent"))
		hreq.Header.Set("Referer", c.headers.Get("Referer"))
	} else {
		for k, vs := range c.headers {
			hreq.Header[k] = append([]string(nil), vs...)
		}
	}
	c.mu.RUnlock()

	for k, vs := range req.Header {
		hreq.Header[http.CanonicalHeaderKey(k)] = append([]string(nil), vs...)
	}
	if req.Form != nil {
		hreq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	return hreq, nil
}

func (c *Client) cookie(name string) string {
	for _, ck := range c.hc.Jar.Cookies(c.base) {
		if ck.Name == name {
			return ck.Value
		}
	}
	return ""
}

// refreshCSRF copies the CSRF cookie into the session header.
func (c *Client) refreshCSRF() {
	tok := c.cookie(CSRFCookie)
	if tok == "" {
		c.log.Warn("no csrf cookie in session")
		return
	}
	c.SetHeader(CSRFHeader, tok)
}

// isCSRFFailure recognises the platform's {"detail": "CSRF Failed: ..."} body.
func isCSRFFailure(body []byte) bool {
	var payload struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		return strings.Contains(payload.Detail, "CSRF Failed")
	}
	return bytes.Contains(body, []byte("CSRF Failed"))
}
