package auth

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/AngelCh415/shopads/internal/credentials"
	"github.com/AngelCh415/shopads/internal/models"
	"github.com/AngelCh415/shopads/internal/telemetry"
)

const DefaultRefreshBuffer = 7 * 24 * time.Hour

// Exchanger trades a token for a fresh long-lived credential.
type Exchanger interface {
	Exchange(ctx context.Context, token string) (models.Credential, error)
}

// Manager hands out a valid bearer token, refreshing it when it enters the
// refresh buffer. Concurrent refreshes collapse into one exchange.
type Manager struct {
	store     credentials.Store
	exchanger Exchanger
	buffer    time.Duration
	clock     func() time.Time
	group     singleflight.Group
	log       zerolog.Logger
	metrics   *telemetry.APIMetrics
}

func NewManager(store credentials.Store, exchanger Exchanger, buffer time.Duration, log zerolog.Logger, m *telemetry.APIMetrics) *Manager {
	if buffer <= 0 {
		buffer = DefaultRefreshBuffer
	}
	return &Manager{
		store:     store,
		exchanger: exchanger,
		buffer:    buffer,
		clock:     time.Now,
		log:       log.With().Str("component", "auth").Logger(),
		metrics:   m,
	}
}

// WithClock overrides the clock for testing.
func (m *Manager) WithClock(clock func() time.Time) *Manager {
	m.clock = clock
	return m
}

func (m *Manager) load(ctx context.Context) *models.Credential {
	c, err := m.store.Load(ctx)
	if err != nil {
		m.log.Warn().Err(err).Msg("stored credential unreadable, treating as unauthenticated")
		return nil
	}
	return c
}

// ValidToken returns a token that is outside the refresh buffer, exchanging
// the current one if needed. Env tokens are returned as-is.
func (m *Manager) ValidToken(ctx context.Context) (string, error) {
	c := m.load(ctx)
	if c == nil {
		return "", unconfigured("set META_LONG_LIVED_TOKEN or complete the OAuth flow")
	}
	if c.Source == models.SourceEnv {
		return c.Token, nil
	}
	if !c.Stale(m.clock(), m.buffer) {
		return c.Token, nil
	}
	m.log.Info().Time("expires_at", c.ExpiresAt).Msg("token inside refresh buffer, exchanging")
	next, err := m.refresh(ctx, c.Token, false)
	if err != nil {
		return "", err
	}
	return next.Token, nil
}

// ForceRefresh exchanges the current token regardless of its expiry. The
// HTTP client calls it when the platform rejects a token.
func (m *Manager) ForceRefresh(ctx context.Context) (string, error) {
	c := m.load(ctx)
	if c == nil {
		return "", unconfigured("no token to refresh")
	}
	next, err := m.refresh(ctx, c.Token, true)
	if err != nil {
		return "", err
	}
	return next.Token, nil
}

func (m *Manager) refresh(ctx context.Context, seen string, force bool) (models.Credential, error) {
	v, err, _ := m.group.Do("refresh", func() (any, error) {
		// another caller may have refreshed while we waited
		if cur := m.load(ctx); cur != nil && cur.Token != seen {
			if force || !cur.Stale(m.clock(), m.buffer) {
				return *cur, nil
			}
		}
		return m.exchange(ctx, seen, "refresh long-lived token")
	})
	if err != nil {
		return models.Credential{}, err
	}
	return v.(models.Credential), nil
}

// ExchangeShortLived turns a short-lived token from the OAuth flow or the
// operator into a persisted long-lived credential.
func (m *Manager) ExchangeShortLived(ctx context.Context, short string) (models.Credential, error) {
	short = strings.TrimSpace(short)
	if short == "" {
		return models.Credential{}, unconfigured("empty token")
	}
	return m.exchange(ctx, short, "exchange short-lived token")
}

func (m *Manager) exchange(ctx context.Context, token, what string) (models.Credential, error) {
	if m.exchanger == nil {
		m.metrics.IncRefresh(false)
		return models.Credential{}, refreshFailed(what, ErrUnconfigured)
	}
	next, err := m.exchanger.Exchange(ctx, token)
	if err != nil {
		m.metrics.IncRefresh(false)
		m.log.Error().Err(err).Msg(what)
		return models.Credential{}, refreshFailed(what, err)
	}
	if !next.Valid() {
		m.metrics.IncRefresh(false)
		m.log.Error().Str("op", what).Time("expires_at", next.ExpiresAt).Msg("invalid exchanged credential")
		return models.Credential{}, refreshFailed(what, errInvalidCredential)
	}
	next.Source = models.SourceExchanged
	if err := m.store.Save(ctx, next); err != nil {
		// the token is still usable for this process
		m.log.Warn().Err(err).Msg("persist exchanged token")
	}
	m.metrics.IncRefresh(true)
	return next, nil
}

// Clear forgets the cached and persisted credential.
func (m *Manager) Clear(ctx context.Context) error {
	return m.store.Clear(ctx)
}

type Status struct {
	Configured   bool                    `json:"configured"`
	Source       models.CredentialSource `json:"source,omitempty"`
	TokenType    string                  `json:"token_type,omitempty"`
	ExpiresAt    *time.Time              `json:"expires_at,omitempty"`
	DaysLeft     int                     `json:"days_left"`
	NeedsRefresh bool                    `json:"needs_refresh"`
}

func (m *Manager) Status(ctx context.Context) Status {
	c := m.load(ctx)
	if c == nil {
		return Status{}
	}
	now := m.clock()
	exp := c.ExpiresAt
	return Status{
		Configured:   true,
		Source:       c.Source,
		TokenType:    c.TokenType,
		ExpiresAt:    &exp,
		DaysLeft:     int(exp.Sub(now).Hours() / 24),
		NeedsRefresh: c.Source != models.SourceEnv && c.Stale(now, m.buffer),
	}
}
