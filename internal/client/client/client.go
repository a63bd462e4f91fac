package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dmitrijs2005/healthkeeper/internal/common"
	"github.com/dmitrijs2005/healthkeeper/internal/logging"
	"github.com/goccy/go-json"
	"golang.org/x/time/rate"
)

// TokenSource yields the access token of the current session, or "" when
// anonymous.
type TokenSource interface {
	AccessToken() string
}

// TokenFunc adapts a function to TokenSource.
type TokenFunc func() string

func (f TokenFunc) AccessToken() string { return f() }

// Client talks to the backend's REST, RPC and auth endpoints. It is safe
// for concurrent use; the bearer token is read from its TokenSource on
// every request.
type Client struct {
	base     *url.URL
	apiKey   string
	restPath string
	authPath string
	http     *http.Client
	tokens   TokenSource
	limiter  *rate.Limiter
	log      logging.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient uses hc instead of a private client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the per-request timeout on a copy of the HTTP client, so
// a client passed with WithHTTPClient is left unchanged.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		hc := *c.http
		hc.Timeout = d
		c.http = &hc
	}
}

func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) { c.tokens = ts }
}

// WithPaths overrides the REST and auth path prefixes.
func WithPaths(restPath, authPath string) Option {
	return func(c *Client) {
		if restPath != "" {
			c.restPath = restPath
		}
		if authPath != "" {
			c.authPath = authPath
		}
	}
}

// WithRateLimit throttles outbound requests to rps per second. rps <= 0
// disables throttling.
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

func WithLogger(l logging.Logger) Option {
	return func(c *Client) { c.log = l }
}

// New builds a Client for the backend at baseURL.
func New(baseURL, apiKey string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse backend url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("backend url %q is not absolute", baseURL)
	}

	c := &Client{
		base:     u,
		apiKey:   apiKey,
		restPath: "/rest/v1",
		authPath: "/auth/v1",
		http:     &http.Client{Timeout: 15 * time.Second},
		tokens:   TokenFunc(func() string { return "" }),
		log:      logging.Discard(),
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// request describes one backend call.
type request struct {
	method  string
	path    string
	query   url.Values
	body    any
	prefer  []string
	token   string // overrides the token source when set
	noToken bool   // authorize with the API key only
}

type response struct {
	status int
	header http.Header
	body   []byte
}

func (c *Client) bearer(r request) string {
	switch {
	case r.token != "":
		return r.token
	case r.noToken:
		return c.apiKey
	}
	if t := c.tokens.AccessToken(); t != "" {
		return t
	}
	return c.apiKey
}

func (c *Client) do(ctx context.Context, r request, out any) (*response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	u := *c.base
	u.Path = c.base.Path + r.path
	if len(r.query) > 0 {
		u.RawQuery = r.query.Encode()
	}

	var body io.Reader
	if r.body != nil {
		b, err := json.Marshal(r.body)
		if err != nil {
			return nil, fmt.Errorf("encode %s %s: %w", r.method, r.path, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, u.String(), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set(common.APIKeyHeaderName, c.apiKey)
	}
	if t := c.bearer(r); t != "" {
		req.Header.Set(common.AuthorizationHeaderName, "Bearer "+t)
	}
	if len(r.prefer) > 0 {
		req.Header.Set(common.PreferHeaderName, strings.Join(r.prefer, ","))
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %s %s: %v", common.ErrUnavailable, r.method, r.path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s %s: %v", common.ErrUnavailable, r.method, r.path, err)
	}

	c.log.Debug(ctx, "backend call", "method", r.method, "path", r.path,
		"status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, newAPIError(r.method, r.path, resp.StatusCode, data)
	}

	if out != nil && len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return nil, fmt.Errorf("decode %s %s: %w", r.method, r.path, err)
		}
	}

	return &response{status: resp.StatusCode, header: resp.Header, body: data}, nil
}

// RPC invokes the named remote procedure with params and decodes its answer
// into out (which may be nil).
func (c *Client) RPC(ctx context.Context, name string, params any, out any) error {
	if params == nil {
		params = struct{}{}
	}
	_, err := c.do(ctx, request{
		method: http.MethodPost,
		path:   c.restPath + "/rpc/" + url.PathEscape(name),
		body:   params,
	}, out)
	return err
}
