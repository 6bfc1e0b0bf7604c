package ingest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/AngelCh415/shopads/internal/telemetry"
	"github.com/AngelCh415/shopads/internal/utils"
)

type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// NewHTTPClient returns a plain transport. Zero timeout leaves deadlines to
// the per-attempt context.
func NewHTTPClient(timeout time.Duration) HTTPClient {
	return &http.Client{Timeout: timeout}
}

const (
	DefaultTimeout = 30 * time.Second
	ProbeTimeout   = 10 * time.Second
)

// Notice is emitted before each retry so the caller can surface progress.
type Notice struct {
	API      string
	Endpoint string
	Attempt  int
	Reason   string
	Status   int
	Wait     time.Duration
}

type Notifier func(Notice)

// Call is one logical request. GET params go in the query string, POST
// params in a form body.
type Call struct {
	Method   string
	Endpoint string
	Params   url.Values
	Timeout  time.Duration
}

// Client is a JSON API client with bounded retries, rate-limit backoff and a
// single refresh-and-retry on rejected tokens.
type Client struct {
	api     string
	baseURL string
	httpc   HTTPClient
	auth    Authenticator
	backoff utils.Backoff
	timeout time.Duration
	limiter *rate.Limiter
	notify  Notifier
	sleep   func(context.Context, time.Duration) error
	metrics *telemetry.APIMetrics
	log     zerolog.Logger
}

type Option func(*Client)

func WithHTTPClient(h HTTPClient) Option { return func(c *Client) { c.httpc = h } }
func WithAuthenticator(a Authenticator) Option { return func(c *Client) { c.auth = a } }
func WithBackoff(b utils.Backoff) Option { return func(c *Client) { c.backoff = b } }
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}
func WithLimiter(l *rate.Limiter) Option { return func(c *Client) { c.limiter = l } }
func WithNotifier(n Notifier) Option { return func(c *Client) { c.notify = n } }
func WithMetrics(m *telemetry.APIMetrics) Option { return func(c *Client) { c.metrics = m } }
func WithLogger(l zerolog.Logger) Option { return func(c *Client) { c.log = l } }
func WithSleep(fn func(context.Context, time.Duration) error) Option {
	return func(c *Client) { c.sleep = fn }
}

// NewClient builds a client for one upstream. api labels logs and metrics.
func NewClient(api, baseURL string, opts ...Option) *Client {
	c := &Client{
		api:     api,
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   NewHTTPClient(0),
		backoff: utils.DefaultBackoff(),
		timeout: DefaultTimeout,
		sleep:   utils.Sleep,
		log:     zerolog.Nop(),
	}
	for _, o := range opts {
		o(c)
	}
	c.log = c.log.With().Str("component", "client").Str("api", api).Logger()
	return c
}


// Request runs call under the retry policy and decodes a 2xx body into dst.
func (c *Client) Request(ctx context.Context, call Call, dst any) error {
	if call.Method == "" {
		call.Method = http.MethodGet
	}
	refreshed := false
	for attempt := 0; ; {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return &APIError{API: c.api, Kind: KindNetwork, Attempts: attempt, Err: err}
			}
		}
		params := cloneValues(call.Params)
		header := http.Header{}
		if c.auth != nil {
			if err := c.auth.Authorize(ctx, params, header); err != nil {
				return err
			}
		}

		res, err := c.attempt(ctx, call, params, header)
		if err != nil {
			if ctx.Err() != nil {
				return &APIError{API: c.api, Kind: KindNetwork, Attempts: attempt + 1, Err: ctx.Err()}
			}
			wait, ok := c.backoff.Next(attempt, utils.FailureNetwork)
			if !ok {
				return &APIError{API: c.api, Kind: KindNetwork, Attempts: attempt + 1, Err: err}
			}
			if err := c.pause(ctx, call, Notice{Attempt: attempt + 1, Reason: "network", Wait: wait}); err != nil {
				return &APIError{API: c.api, Kind: KindNetwork, Attempts: attempt + 1, Err: err}
			}
			attempt++
			continue
		}

		switch {
		case res.status >= 200 && res.status < 300:
			if dst == nil || len(res.body) == 0 {
				return nil
			}
			if err := json.Unmarshal(res.body, dst); err != nil {
				return &APIError{API: c.api, Kind: KindUpstream, Status: res.status, Message: "invalid JSON response", Attempts: attempt + 1, Err: err}
			}
			return nil

		case res.status == http.StatusTooManyRequests:
			wait, ok := c.backoff.Next(attempt, utils.FailureRateLimit)
			if !ok {
				return &APIError{API: c.api, Kind: KindRateLimited, Status: res.status, Message: upstreamMessage(res.body), Attempts: attempt + 1}
			}
			if err := c.pause(ctx, call, Notice{Attempt: attempt + 1, Reason: "rate_limit", Status: res.status, Wait: wait}); err != nil {
				return &APIError{API: c.api, Kind: KindRateLimited, Status: res.status, Attempts: attempt + 1, Err: err}
			}
			attempt++

		case (res.status == http.StatusUnauthorized || res.status == http.StatusForbidden) && isTokenError(res.body):
			msg := upstreamMessage(res.body)
			if refreshed || c.auth == nil {
				return &APIError{API: c.api, Kind: KindAuthRejected, Status: res.status, Message: msg, Attempts: attempt + 1}
			}
			refreshed = true
			c.emit(call, Notice{Attempt: attempt + 1, Reason: "token_refresh", Status: res.status})
			if err := c.auth.Recover(ctx); err != nil {
				return &APIError{API: c.api, Kind: KindAuthRejected, Status: res.status, Message: msg, Attempts: attempt + 1, Err: err}
			}

		default:
			return &APIError{API: c.api, Kind: KindUpstream, Status: res.status, Message: upstreamMessage(res.body), Attempts: attempt + 1}
		}
	}
}

func (c *Client) pause(ctx context.Context, call Call, n Notice) error {
	c.emit(call, n)
	return c.sleep(ctx, n.Wait)
}

func (c *Client) emit(call Call, n Notice) {
	n.API = c.api
	n.Endpoint = call.Endpoint
	c.metrics.IncRetry(c.api, n.Reason)
	c.log.Debug().
		Str("endpoint", call.Endpoint).
		Int("attempt", n.Attempt).
		Str("reason", n.Reason).
		Dur("wait", n.Wait).
		Msg("retrying")
	if c.notify != nil {
		c.notify(n)
	}
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v))
	for k, vs := range v {
		out[k] = append([]string(nil), vs...)
	}
	return out
}
