// internal/session/client.go
package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/villagebot/api/schemas"
	"github.com/xkilldash9x/villagebot/internal/config"
	"github.com/xkilldash9x/villagebot/internal/network"
)

const (
	defaultMaxRedirects = 10
	maxBodyBytes        = 8 << 20
	formContentType     = "application/x-www-form-urlencoded"
)

// Response is a fully read HTTP response after every redirect was followed.
type Response struct {
	StatusCode int
	// URL is the final URL after redirects.
	URL    *url.URL
	Header http.Header
	Body   []byte
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Client performs requests on behalf of a Session. It sends a constant
// User-Agent, rebuilds the Cookie header from the jar on every hop, and
// merges Set-Cookie from every response, redirects included.
type Client struct {
	httpClient   *http.Client
	userAgent    string
	maxRedirects int
	limiter      *rate.Limiter
	logger       *zap.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying client. Its redirect policy is overridden.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		clone := *hc
		c.httpClient = &clone
	}
}

// WithRateLimit bounds outgoing requests. A non-positive rps disables limiting.
func WithRateLimit(rps float64, burst int) ClientOption {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithMaxRedirects caps the redirect chain.
func WithMaxRedirects(n int) ClientOption {
	return func(c *Client) {
		if n >= 0 {
			c.maxRedirects = n
		}
	}
}

// WithUserAgent sets the User-Agent sent with every request.
func WithUserAgent(ua string) ClientOption {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// NewClient creates a Client. Without WithHTTPClient it builds a transport with
// network.NewRoundTripper.
func NewClient(logger *zap.Logger, opts ...ClientOption) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		userAgent:    config.NewDefaultConfig().Network.UserAgent,
		maxRedirects: defaultMaxRedirects,
		logger:       logger.Named("session_client"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Transport: network.NewRoundTripper(network.NewDefaultClientConfig())}
	}
	// Redirects are followed by hand so every hop's cookies land in the jar.
	c.httpClient.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return c
}

// NewClientFromConfig builds a Client from the network section of the config.
func NewClientFromConfig(cfg config.NetworkConfig, logger *zap.Logger) (*Client, error) {
	cc, err := network.ClientConfigFromNetwork(cfg, logger)
	if err != nil {
		return nil, err
	}
	hc := &http.Client{Transport: network.NewRoundTripper(cc)}
	return NewClient(logger,
		WithHTTPClient(hc),
		WithUserAgent(cfg.UserAgent),
		WithMaxRedirects(cfg.MaxRedirects),
		WithRateLimit(cfg.RequestsPerSecond, cfg.Burst),
	), nil
}

// UserAgent returns the User-Agent string in use.
func (c *Client) UserAgent() string { return c.userAgent }

// Get issues a GET for ref, resolved against the session base URL.
func (c *Client) Get(ctx context.Context, s *Session, ref string) (*Response, error) {
	return c.do(ctx, s, http.MethodGet, ref, nil)
}

// PostForm issues a form-encoded POST for ref.
func (c *Client) PostForm(ctx context.Context, s *Session, ref string, values url.Values) (*Response, error) {
	return c.do(ctx, s, http.MethodPost, ref, []byte(values.Encode()))
}

func (c *Client) do(ctx context.Context, s *Session, method, ref string, body []byte) (*Response, error) {
	const op = "session.request"

	target, err := s.Resolve(ref)
	if err != nil {
		return nil, schemas.NewError(schemas.ErrCodeUnreachable, op, "bad url", err)
	}

	for hop := 0; ; hop++ {
		if err := c.wait(ctx); err != nil {
			return nil, classifyTransportError(op, target, err)
		}

		req, err := c.newRequest(ctx, s, method, target, body)
		if err != nil {
			return nil, schemas.NewError(schemas.ErrCodeUnreachable, op, "building request", err)
		}

		start := time.Now()
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, classifyTransportError(op, target, err)
		}

		data, readErr := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
		resp.Body.Close()
		if readErr != nil {
			return nil, classifyTransportError(op, target, readErr)
		}
		if len(data) > maxBodyBytes {
			return nil, schemas.Errorf(schemas.ErrCodeUnreachable, op, nil, "response from %s exceeds %d bytes", target.Redacted(), maxBodyBytes)
		}

		// Other hosts neither receive nor set the session's cookies.
		merged := 0
		if sameHost(s, target) {
			merged = s.MergeSetCookie(resp.Header.Values("Set-Cookie")...)
		}
		c.logger.Debug("Request completed.",
			zap.String("session_id", s.ID()),
			zap.String("method", method),
			zap.String("url", target.String()),
			zap.Int("status", resp.StatusCode),
			zap.Int("cookies_merged", merged),
			zap.Duration("duration", time.Since(start)),
		)

		next, redirect := redirectTarget(resp, target)
		if !redirect {
			return &Response{
				StatusCode: resp.StatusCode,
				URL:        target,
				Header:     resp.Header,
				Body:       data,
			}, nil
		}
		if hop >= c.maxRedirects {
			return nil, schemas.Errorf(schemas.ErrCodeUnreachable, op, nil, "stopped after %d redirects", c.maxRedirects)
		}

		// 307 and 308 keep the method and body, everything else downgrades to GET.
		if resp.StatusCode != http.StatusTemporaryRedirect && resp.StatusCode != http.StatusPermanentRedirect {
			method = http.MethodGet
			body = nil
		}
		target = next
	}
}

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return ctx.Err()
	}
	return c.limiter.Wait(ctx)
}

func (c *Client) newRequest(ctx context.Context, s *Session, method string, target *url.URL, body []byte) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	if cookie := s.CookieHeader(); cookie != "" && sameHost(s, target) {
		req.Header.Set("Cookie", cookie)
	}
	if body != nil {
		req.Header.Set("Content-Type", formContentType)
	}
	return req, nil
}

func sameHost(s *Session, target *url.URL) bool {
	return strings.EqualFold(target.Host, s.ServerURL().Host)
}

func redirectTarget(resp *http.Response, current *url.URL) (*url.URL, bool) {
	switch resp.StatusCode {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
	default:
		return nil, false
	}
	location := strings.TrimSpace(resp.Header.Get("Location"))
	if location == "" {
		return nil, false
	}
	next, err := current.Parse(location)
	if err != nil {
		return nil, false
	}
	return next, true
}

func classifyTransportError(op string, target *url.URL, err error) error {
	msg := fmt.Sprintf("request to %s failed", target.Redacted())
	if errors.Is(err, context.DeadlineExceeded) {
		msg = fmt.Sprintf("request to %s timed out", target.Redacted())
	}
	return schemas.NewError(schemas.ErrCodeUnreachable, op, msg, err)
}
