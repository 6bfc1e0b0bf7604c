// Package session replaces process-wide mutable state with an explicit
// per-session context: each session owns its credential cache, manual
// overrides, token manager, fetchers and ingest snapshot.
package session

import (
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/AngelCh415/shopads/internal/auth"
	"github.com/AngelCh415/shopads/internal/config"
	"github.com/AngelCh415/shopads/internal/credentials"
	"github.com/AngelCh415/shopads/internal/ingest"
	"github.com/AngelCh415/shopads/internal/metrics"
	"github.com/AngelCh415/shopads/internal/store"
	"github.com/AngelCh415/shopads/internal/telemetry"
	"github.com/AngelCh415/shopads/internal/utils"
)

const (
	Header    = "X-Session-ID"
	DefaultID = "default"
)

var ErrBadSessionID = errors.New("invalid session id")

// ids end up in file names and cache keys
var validID = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

type Session struct {
	ID        string
	Config    config.Config
	Overrides config.Overrides
	CreatedAt time.Time

	Credentials *credentials.Resolver
	Tokens      *auth.Manager
	Graph       *auth.GraphExchanger // nil without app id/secret
	OAuth       *auth.OAuth          // nil without app id/secret
	Store       *store.MemoryStore
	Metrics     *metrics.Service
	ETL         *ingest.ETL
}

// StorefrontConfigured and AdsConfigured report which ingest sides can run.
func (s *Session) StorefrontConfigured() bool { return s.ETL.Orders() != nil }
func (s *Session) AdsConfigured() bool        { return s.ETL.Ads() != nil }

// Builder assembles sessions from the environment config plus overrides.
type Builder struct {
	Base     config.Config
	Backends *Backends
	HTTP     ingest.HTTPClient
	Metrics  *telemetry.APIMetrics
	Log      zerolog.Logger
}

func (b *Builder) Build(id string, o config.Overrides) (*Session, error) {
	cfg := b.Base.WithOverrides(o)
	log := b.Log.With().Str("session", id).Logger()

	var backend credentials.Store
	if b.Backends != nil {
		st, err := b.Backends.For(id)
		if err != nil {
			return nil, fmt.Errorf("token cache for session %s: %w", id, err)
		}
		backend = st
	}
	resolver := credentials.NewResolver(cfg.Meta.LongLivedToken, backend)

	httpc := b.HTTP
	if httpc == nil {
		httpc = ingest.NewHTTPClient(cfg.App.HTTPTimeout)
	}
	with := func(extra ...ingest.Option) []ingest.Option {
		return append([]ingest.Option{
			ingest.WithHTTPClient(httpc),
			ingest.WithMetrics(b.Metrics),
			ingest.WithLogger(log),
			ingest.WithNotifier(retryLogger(log)),
		}, extra...)
	}
	graphURL := ingest.GraphBaseURL(cfg.Meta.GraphURL, cfg.Meta.APIVersion)

	s := &Session{
		ID:          id,
		Config:      cfg,
		Overrides:   o,
		CreatedAt:   time.Now(),
		Credentials: resolver,
		Store:       store.NewMemoryStore(),
	}

	var exchanger auth.Exchanger
	if cfg.Meta.AppID != "" && cfg.Meta.AppSecret != "" {
		gc := ingest.NewClient("graph_oauth", graphURL, with(ingest.WithTimeout(ingest.ProbeTimeout))...)
		s.Graph = auth.NewGraphExchanger(gc, cfg.Meta.AppID, cfg.Meta.AppSecret)
		exchanger = s.Graph
	}
	s.Tokens = auth.NewManager(resolver, exchanger, cfg.Meta.RefreshBuffer, log, b.Metrics)
	if s.Graph != nil {
		dialog := ingest.GraphBaseURL(cfg.Meta.DialogURL, cfg.Meta.APIVersion)
		s.OAuth = auth.NewOAuth(dialog, cfg.Meta.AppID, cfg.Meta.OAuthRedirectURI, s.Graph, s.Tokens)
	}

	var orders *ingest.OrdersFetcher
	if cfg.WooCommerce.Configured() {
		wc := ingest.NewClient("woocommerce", ingest.WooBaseURL(cfg.WooCommerce.URL, cfg.WooCommerce.APIVersion),
			with(
				ingest.WithAuthenticator(ingest.BasicAuth{Key: cfg.WooCommerce.ConsumerKey, Secret: cfg.WooCommerce.ConsumerSecret}),
				ingest.WithTimeout(cfg.App.HTTPTimeout),
			)...)
		orders = ingest.NewOrdersFetcher(wc, cfg.WooCommerce, log)
	}

	var ads *ingest.AdsFetcher
	if cfg.Meta.AccountID != "" {
		opts := with(
			ingest.WithAuthenticator(ingest.BearerParam{Tokens: s.Tokens}),
			ingest.WithBackoff(utils.NewBackoff(time.Second, 60*time.Second, cfg.Meta.MaxRetries)),
			ingest.WithTimeout(cfg.App.HTTPTimeout),
		)
		if cfg.Meta.RequestsPerSec > 0 {
			opts = append(opts, ingest.WithLimiter(rate.NewLimiter(rate.Limit(cfg.Meta.RequestsPerSec), 1)))
		}
		mc := ingest.NewClient("graph", graphURL, opts...)
		ads = ingest.NewAdsFetcher(mc, cfg.Meta.AccountID, log)
	}

	s.Metrics = metrics.NewService(s.Store, metrics.NewEngine(cfg.Costs.COGSPercent(), cfg.Costs.Tax()))
	s.ETL = ingest.NewETL(orders, ads, s.Store, s.Metrics, httpc, ingest.ETLConfig{
		HistoryDays: cfg.WooCommerce.HistoryDays,
		Sink:        cfg.Sink,
	}, log)
	return s, nil
}

// retryLogger surfaces client retries at warn level.
func retryLogger(log zerolog.Logger) ingest.Notifier {
	return func(n ingest.Notice) {
		log.Warn().
			Str("api", n.API).
			Str("endpoint", n.Endpoint).
			Int("attempt", n.Attempt).
			Str("reason", n.Reason).
			Dur("wait", n.Wait).
			Msg("upstream retry")
	}
}

// Registry holds live sessions keyed by id.
type Registry struct {
	mu       sync.Mutex
	builder  *Builder
	sessions map[string]*Session
}

func NewRegistry(b *Builder) *Registry {
	return &Registry{builder: b, sessions: map[string]*Session{}}
}

// Get returns the session for id, building it from the environment on first
// use. An empty id is the default session.
func (r *Registry) Get(id string) (*Session, error) {
	if id == "" {
		id = DefaultID
	}
	if !validID.MatchString(id) {
		return nil, fmt.Errorf("%w: %q", ErrBadSessionID, id)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok {
		return s, nil
	}
	s, err := r.builder.Build(id, config.Overrides{})
	if err != nil {
		return nil, err
	}
	r.sessions[id] = s
	return s, nil
}

// Configure rebuilds the session with o replacing any earlier overrides.
// The previous ingest snapshot is dropped; the persisted token is kept.
func (r *Registry) Configure(id string, o config.Overrides) (*Session, error) {
	if id == "" {
		id = DefaultID
	}
	if !validID.MatchString(id) {
		return nil, fmt.Errorf("%w: %q", ErrBadSessionID, id)
	}
	s, err := r.builder.Build(id, o)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.sessions[id] = s
	r.mu.Unlock()
	return s, nil
}

// Drop forgets the in-memory session. Persisted tokens are untouched.
func (r *Registry) Drop(id string) {
	if id == "" {
		id = DefaultID
	}
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
