// Package vrchat implements provider.Session against the VRChat REST API.
package vrchat

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/gregjones/httpcache"
	"github.com/vrceventbot/vrceventbot/internal/logging"
	"github.com/vrceventbot/vrceventbot/internal/provider"
	"github.com/vrceventbot/vrceventbot/pkg/headers"
	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the public VRChat API root.
	DefaultBaseURL = "https://api.vrchat.cloud/api/1"
	// DefaultUserAgent identifies the bot; VRChat rejects requests without one.
	DefaultUserAgent = "VRCEventBot/0.1.0"

	cookieAuth      = "auth"
	cookieTwoFactor = "twoFactorAuth"
)

// RequestObserver receives one call per completed HTTP exchange. Status is 0
// on transport failure.
type RequestObserver interface {
	ObserveProviderRequest(endpoint string, status int, elapsed time.Duration)
}

// Client is the session factory. All sessions share its transport and rate
// limiter but each gets a private cookie jar.
type Client struct {
	baseURL     string
	userAgent   string
	timeout     time.Duration
	transport   http.RoundTripper
	limiter     *rate.Limiter
	cacheGroups bool
	logger      *logging.Logger
	observer    RequestObserver
	breaker     *breaker
}

// ClientOption configures the Client.
type ClientOption func(*Client)

func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

func WithUserAgent(ua string) ClientOption {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// WithTimeout bounds each request. Zero means no client side timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithRateLimit paces requests across all sessions.
func WithRateLimit(requestsPerSecond float64, burst int) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
	}
}

// WithUTLS swaps the TLS handshake for a browser fingerprint.
func WithUTLS(enabled bool) ClientOption {
	return func(c *Client) {
		c.transport = newTransport(enabled)
	}
}

// WithTransport replaces the base round tripper. Used by tests.
func WithTransport(rt http.RoundTripper) ClientOption {
	return func(c *Client) {
		c.transport = rt
	}
}

// WithGroupCache revalidates group reads through an in-memory HTTP cache.
func WithGroupCache(enabled bool) ClientOption {
	return func(c *Client) {
		c.cacheGroups = enabled
	}
}

// WithBreaker opens the circuit after threshold consecutive outage failures
// and lets one trial call through after cooldown. A threshold of zero or
// less disables it.
func WithBreaker(threshold int, cooldown time.Duration) ClientOption {
	return func(c *Client) {
		if threshold <= 0 {
			c.breaker = nil
			return
		}
		c.breaker = newBreaker(threshold, cooldown)
	}
}

func WithLogger(logger *logging.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

func WithObserver(o RequestObserver) ClientOption {
	return func(c *Client) {
		c.observer = o
	}
}

// NewClient creates a session factory.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL:   DefaultBaseURL,
		userAgent: DefaultUserAgent,
		limiter:   rate.NewLimiter(rate.Limit(5), 5),
		logger:    logging.Nop(),
		breaker:   newBreaker(5, 30*time.Second),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.transport == nil {
		c.transport = newTransport(false)
	}
	return c
}

// BreakerStats reports the outage breaker. The zero value means it is disabled.
func (c *Client) BreakerStats() BreakerStats {
	if c.breaker == nil {
		return BreakerStats{}
	}
	return c.breaker.stats()
}

// NewSession returns a session that authenticates with HTTP Basic until
// VRChat hands out an auth cookie.
func (c *Client) NewSession(username, password string) provider.Session {
	s := c.newSession()
	s.username = username
	s.password = password
	return s
}

// ResumeSession returns a session that presents only the given cookies.
func (c *Client) ResumeSession(authToken, twoFactorToken string) provider.Session {
	s := c.newSession()
	s.SetSessionTokens(authToken, twoFactorToken)
	return s
}

func (c *Client) newSession() *session {
	// cookiejar.New never fails with nil options
	jar, _ := cookiejar.New(nil)
	root, _ := url.Parse(c.baseURL)

	s := &session{
		client: c,
		jar:    jar,
		root:   &url.URL{Scheme: root.Scheme, Host: root.Host, Path: "/"},
		base:   root,
		api:    &http.Client{Transport: c.transport, Jar: jar, Timeout: c.timeout},
	}
	s.groups = s.api
	if c.cacheGroups {
		s.groups = &http.Client{
			Transport: &httpcache.Transport{
				Transport:           c.transport,
				Cache:               httpcache.NewMemoryCache(),
				MarkCachedResponses: true,
			},
			Jar:     jar,
			Timeout: c.timeout,
		}
	}
	return s
}

var _ provider.Factory = (*Client)(nil)

// session is one VRChat login. It is safe for sequential use by one Discord
// user; the cookie jar itself is concurrency safe.
type session struct {
	client   *Client
	jar      http.CookieJar
	root     *url.URL
	base     *url.URL
	api      *http.Client
	groups   *http.Client
	username string
	password string
}

var _ provider.Session = (*session)(nil)

func (s *session) SessionTokens() (string, string) {
	var authToken, twoFactor string
	for _, ck := range s.jar.Cookies(s.base) {
		switch ck.Name {
		case cookieAuth:
			authToken = ck.Value
		case cookieTwoFactor:
			twoFactor = ck.Value
		}
	}
	return authToken, twoFactor
}

func (s *session) SetSessionTokens(authToken, twoFactorToken string) {
	var cookies []*http.Cookie
	if authToken != "" {
		cookies = append(cookies, &http.Cookie{Name: cookieAuth, Value: authToken, Path: "/"})
	}
	if twoFactorToken != "" {
		cookies = append(cookies, &http.Cookie{Name: cookieTwoFactor, Value: twoFactorToken, Path: "/"})
	}
	if len(cookies) > 0 {
		s.jar.SetCookies(s.root, cookies)
	}
}

func (s *session) hasAuthCookie() bool {
	authToken, _ := s.SessionTokens()
	return authToken != ""
}

// basicAuth follows VRChat's scheme: both parts are URL encoded before base64.
func basicAuth(username, password string) string {
	raw := url.QueryEscape(username) + ":" + url.QueryEscape(password)
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(raw))
}

type request struct {
	op        string
	method    string
	path      string
	query     url.Values
	body      interface{}
	basic     bool
	cacheable bool
}

// do sends req and decodes a 2xx JSON body into out. Non-2xx statuses and
// transport failures come back as *provider.Error.
func (s *session) do(ctx context.Context, req request, out interface{}) error {
	b := s.client.breaker
	if b != nil && !b.allow() {
		return &provider.Error{Op: req.op, Kind: provider.KindTransport, Err: ErrCircuitOpen}
	}
	err := s.send(ctx, req, out)
	if b != nil {
		if ctx.Err() != nil {
			b.release()
		} else {
			b.record(err)
		}
	}
	return err
}

func (s *session) send(ctx context.Context, req request, out interface{}) error {
	if err := s.client.limiter.Wait(ctx); err != nil {
		return &provider.Error{Op: req.op, Kind: provider.KindTransport, Err: err}
	}

	target := s.client.baseURL + req.path
	if len(req.query) > 0 {
		target += "?" + req.query.Encode()
	}

	var body io.Reader
	if req.body != nil {
		data, err := json.Marshal(req.body)
		if err != nil {
			return &provider.Error{Op: req.op, Kind: provider.KindDecode, Err: err}
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, target, body)
	if err != nil {
		return &provider.Error{Op: req.op, Kind: provider.KindTransport, Err: err}
	}
	httpReq.Header.Set("User-Agent", s.client.userAgent)
	httpReq.Header.Set("Accept", "application/json")
	if req.body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if req.basic {
		httpReq.Header.Set("Authorization", basicAuth(s.username, s.password))
	}

	hc := s.api
	if req.cacheable {
		hc = s.groups
	}

	start := time.Now()
	resp, err := hc.Do(httpReq)
	if err != nil {
		s.observe(req.op, 0, start)
		s.client.logger.DebugWithContext(ctx, "vrchat request failed", "op", req.op, "error", err)
		return &provider.Error{Op: req.op, Kind: provider.KindTransport, Err: err}
	}
	defer resp.Body.Close()
	s.observe(req.op, resp.StatusCode, start)

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return &provider.Error{Op: req.op, Kind: provider.KindTransport, Status: resp.StatusCode, Err: err}
	}

	s.client.logger.DebugWithContext(ctx, "vrchat request",
		"op", req.op,
		"status", resp.StatusCode,
		"cached", resp.Header.Get(httpcache.XFromCache) != "",
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		kind := provider.KindStatus
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			kind = provider.KindUnauthorized
		}
		pe := &provider.Error{Op: req.op, Kind: kind, Status: resp.StatusCode, Message: errorMessage(data, resp.Status)}
		if rl := headers.Parse(resp.Header, time.Now()); rl.Wait() > 0 {
			pe.RetryAfter = rl.Wait()
			s.client.logger.WarnWithContext(ctx, "vrchat asked to back off",
				"op", req.op,
				"status", resp.StatusCode,
				"retry_after_s", pe.RetryAfter.Seconds(),
			)
		}
		return pe
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &provider.Error{Op: req.op, Kind: provider.KindDecode, Status: resp.StatusCode, Err: err}
	}
	return nil
}

func (s *session) observe(op string, status int, start time.Time) {
	if s.client.observer != nil {
		s.client.observer.ObserveProviderRequest(op, status, time.Since(start))
	}
}

// errorMessage pulls error.message out of a VRChat error body.
func errorMessage(body []byte, fallback string) string {
	var payload struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error.Message != "" {
		return strings.Trim(payload.Error.Message, `"`)
	}
	if len(body) > 0 && len(body) < 256 {
		return strings.TrimSpace(string(body))
	}
	return fallback
}

func escapeID(id string) string {
	return url.PathEscape(strings.TrimSpace(id))
}

func opError(op string, format string, args ...interface{}) error {
	return &provider.Error{Op: op, Kind: provider.KindDecode, Message: fmt.Sprintf(format, args...)}
}
