// Package adminapi is a client for the key service's cookie-authenticated admin API.
package adminapi

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
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/LiquorXR/gemini-synapse/internal/config"
)

// SessionCookie is the cookie carrying the admin session token.
const SessionCookie = "admin_session_token"

var (
	// ErrUnauthorized is wrapped by every 401 response.
	ErrUnauthorized = errors.New("admin session is not authenticated")
	// ErrNotFound is wrapped by every 404 response.
	ErrNotFound = errors.New("resource not found")
)

// APIError is a non-2xx response from the admin API.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("admin api returned status %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("admin api returned status %d: %s", e.Status, e.Message)
}

// Unwrap maps well-known statuses to sentinel errors.
func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusNotFound:
		return ErrNotFound
	}
	return nil
}

// Options tune the HTTP behaviour of a Client.
type Options struct {
	Timeout   time.Duration
	RateLimit float64
	Burst     int
	// Transport overrides the round tripper, mainly for tests.
	Transport http.RoundTripper
}

// Client talks to one key service instance.
type Client struct {
	baseURL *url.URL
	jar     http.CookieJar
	http    *http.Client
	stream  *http.Client
	limiter *rate.Limiter
	logger  *zap.SugaredLogger
}

// New creates a client for the admin API rooted at baseURL.
func New(baseURL string, opts Options, logger *zap.SugaredLogger) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid admin base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid admin base url %q: scheme must be http or https", baseURL)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 10
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	transport := opts.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}

	return &Client{
		baseURL: u,
		jar:     jar,
		http: &http.Client{
			Timeout:   opts.Timeout,
			Jar:       jar,
			Transport: transport,
		},
		// Streams stay open for the whole validation run, so no client timeout.
		stream: &http.Client{
			Jar:       jar,
			Transport: transport,
		},
		limiter: rate.NewLimiter(rate.Limit(opts.RateLimit), opts.Burst),
		logger:  logger,
	}, nil
}

// NewFromConfig creates a client from the admin section of the configuration.
func NewFromConfig(cfg config.AdminConfig, logger *zap.SugaredLogger) (*Client, error) {
	return New(cfg.BaseURL, Options{
		Timeout:   cfg.Timeout,
		RateLimit: cfg.RateLimit,
		Burst:     cfg.Burst,
	}, logger)
}

// BaseURL returns the admin API root.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// SessionToken returns the current admin session token, or "" when logged out.
func (c *Client) SessionToken() string {
	for _, ck := range c.jar.Cookies(c.baseURL) {
		if ck.Name == SessionCookie {
			return ck.Value
		}
	}
	return ""
}

// SetSessionToken installs a previously saved session token. An empty token
// drops the cookie.
func (c *Client) SetSessionToken(token string) {
	ck := &http.Cookie{
		Name:  SessionCookie,
		Value: token,
		Path:  "/",
	}
	if token == "" {
		ck.MaxAge = -1
	}
	c.jar.SetCookies(c.baseURL, []*http.Cookie{ck})
}

// OpenStream issues a GET for a server-sent event stream and returns its body.
// The caller owns the body and must close it.
func (c *Client) OpenStream(ctx context.Context, path string, query url.Values) (io.ReadCloser, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(path, query), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.stream.Do(req)
	if err != nil {
		return nil, fmt.Errorf("stream request failed: %w", err)
	}
	if resp.StatusCode >= 400 {
		defer func() { _ = resp.Body.Close() }()
		return nil, decodeError(resp)
	}

	c.logger.Debugw("Stream opened", "path", path, "status", resp.StatusCode)
	return resp.Body, nil
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.baseURL
	u.Path = strings.TrimRight(c.baseURL.Path, "/") + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal payload: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, query), body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warnw("Admin request failed", "method", method, "path", path, "error", err)
		return fmt.Errorf("admin request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		apiErr := decodeError(resp)
		c.logger.Debugw("Admin request rejected", "method", method, "path", path, "status", resp.StatusCode)
		return apiErr
	}

	c.logger.Debugw("Admin request completed", "method", method, "path", path, "status", resp.StatusCode)

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}

// decodeError understands both {"error":{"code","message"}} and {"detail": ...} bodies.
func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	apiErr := &APIError{Status: resp.StatusCode}

	var envelope struct {
		Error *struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil {
		switch {
		case envelope.Error != nil:
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
		case len(envelope.Detail) > 0:
			var detail string
			if json.Unmarshal(envelope.Detail, &detail) == nil {
				apiErr.Message = detail
			} else {
				apiErr.Message = string(envelope.Detail)
			}
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(raw))
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}
