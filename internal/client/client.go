package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/publicsuffix"
)

// DefaultTimeout bounds a single backend call.
const DefaultTimeout = 30 * time.Second

// RequestIDHeader carries a per-call id the backend can log.
const RequestIDHeader = "X-Request-ID"

// Client is an HTTP client for the VM provisioning backend. The backend
// session lives in a cookie, so every call goes through the cookie jar.
type Client struct {
	baseURL    string
	jar        http.CookieJar
	httpClient *http.Client
}

// Option customises a Client.
type Option func(*Client)

// WithJar replaces the in-memory cookie jar, e.g. with a FileJar.
func WithJar(jar http.CookieJar) Option {
	return func(c *Client) { c.jar = jar }
}

// WithHTTPClient uses hc for requests. hc is copied; its Jar is replaced by
// the client's jar.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		cp := *hc
		c.httpClient = &cp
	}
}

// WithTimeout sets the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// New creates a client for the backend at baseURL (e.g. http://localhost:5000).
func New(baseURL string, opts ...Option) (*Client, error) {
	base, err := normalizeBaseURL(baseURL)
	if err != nil {
		return nil, err
	}

	c := &Client{
		baseURL:    base,
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.jar == nil {
		jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		if err != nil {
			return nil, fmt.Errorf("creating cookie jar: %w", err)
		}
		c.jar = jar
	}
	c.httpClient.Jar = c.jar
	return c, nil
}

// BaseURL returns the normalised backend URL without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func normalizeBaseURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("backend URL is empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parsing backend URL %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("backend URL %q must start with http:// or https://", raw)
	}
	if u.Host == "" {
		return "", fmt.Errorf("backend URL %q has no host", raw)
	}
	return strings.TrimRight(u.String(), "/"), nil
}

// Do sends one request to endpoint and decodes the JSON response into out
// (which may be nil). body, if non-nil, is sent as JSON.
//
// Non-2xx responses return *APIError. Connection-level failures return an
// *UnavailableError matching ErrServerUnavailable, unless ctx itself was
// cancelled, in which case ctx.Err() is returned. There is no retry.
func (c *Client) Do(ctx context.Context, method, endpoint string, body, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding %s %s body: %w", method, endpoint, err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reqBody)
	if err != nil {
		return fmt.Errorf("building %s %s: %w", method, endpoint, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(RequestIDHeader, uuid.NewString())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return c.transportError(ctx, method, endpoint, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return c.transportError(ctx, method, endpoint, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newAPIError(resp, data)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parsing %s %s response: %w", method, endpoint, err)
	}
	return nil
}

func (c *Client) transportError(ctx context.Context, method, endpoint string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return &UnavailableError{Op: method + " " + endpoint, Err: err}
}
