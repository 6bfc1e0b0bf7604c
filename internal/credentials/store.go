// Package credentials loads and persists the ads-platform bearer token.
package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/AngelCh415/shopads/internal/models"
)

// Store is the credential persistence contract. Load returns (nil, nil) when
// nothing is stored; callers treat that as unauthenticated.
type Store interface {
	Load(ctx context.Context) (*models.Credential, error)
	Save(ctx context.Context, c models.Credential) error
	Clear(ctx context.Context) error
}

// envTokenLifetime is how long an operator-supplied token is assumed to live.
// Env tokens are never refreshed, so this only feeds status reporting.
const envTokenLifetime = 365 * 24 * time.Hour

// Resolver layers an in-process cache and the long-lived env token over a
// persisted backend. Resolution order: cache, env, backend.
type Resolver struct {
	mu       sync.RWMutex
	cached   *models.Credential
	envToken string
	backend  Store
	clock    func() time.Time
}

func NewResolver(envToken string, backend Store) *Resolver {
	return &Resolver{
		envToken: strings.TrimSpace(envToken),
		backend:  backend,
		clock:    time.Now,
	}
}

// WithClock overrides the clock for testing.
func (r *Resolver) WithClock(clock func() time.Time) *Resolver {
	r.clock = clock
	return r
}

func (r *Resolver) Load(ctx context.Context) (*models.Credential, error) {
	r.mu.RLock()
	if r.cached != nil {
		c := *r.cached
		r.mu.RUnlock()
		return &c, nil
	}
	r.mu.RUnlock()

	if r.envToken != "" {
		now := r.clock()
		c := models.Credential{
			Token:     r.envToken,
			TokenType: "bearer",
			IssuedAt:  now,
			ExpiresAt: now.Add(envTokenLifetime),
			Source:    models.SourceEnv,
		}
		r.remember(c)
		return &c, nil
	}

	if r.backend == nil {
		return nil, nil
	}
	c, err := r.backend.Load(ctx)
	if err != nil || c == nil {
		return nil, err
	}
	c.Source = models.SourceCache
	r.remember(*c)
	return c, nil
}

func (r *Resolver) Save(ctx context.Context, c models.Credential) error {
	r.remember(c)
	if r.backend == nil {
		return nil
	}
	return r.backend.Save(ctx, c)
}

// Clear drops the cached and persisted credential. The env token, if any,
// is operator-managed and is picked up again by the next Load.
func (r *Resolver) Clear(ctx context.Context) error {
	r.mu.Lock()
	r.cached = nil
	r.mu.Unlock()
	if r.backend == nil {
		return nil
	}
	return r.backend.Clear(ctx)
}

func (r *Resolver) remember(c models.Credential) {
	r.mu.Lock()
	r.cached = &c
	r.mu.Unlock()
}

// record is the persisted JSON shape shared by every backend.
type record struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
	ExpiresAt   string `json:"expires_at"`
	CreatedAt   string `json:"created_at"`
}

func encodeRecord(c models.Credential) ([]byte, error) {
	tt := c.TokenType
	if tt == "" {
		tt = "bearer"
	}
	return json.MarshalIndent(record{
		AccessToken: c.Token,
		TokenType:   tt,
		ExpiresIn:   int64(c.ExpiresAt.Sub(c.IssuedAt) / time.Second),
		ExpiresAt:   c.ExpiresAt.Format(time.RFC3339),
		CreatedAt:   c.IssuedAt.Format(time.RFC3339),
	}, "", "  ")
}

func decodeRecord(b []byte) (*models.Credential, error) {
	var rec record
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, fmt.Errorf("decode token record: %w", err)
	}
	if rec.AccessToken == "" {
		return nil, fmt.Errorf("token record has no access_token")
	}
	expires, err := parseStamp(rec.ExpiresAt)
	if err != nil {
		return nil, fmt.Errorf("token record expires_at: %w", err)
	}
	created, err := parseStamp(rec.CreatedAt)
	if err != nil {
		// older records only carry expires_in
		created = expires.Add(-time.Duration(rec.ExpiresIn) * time.Second)
	}
	tt := rec.TokenType
	if tt == "" {
		tt = "bearer"
	}
	c := &models.Credential{
		Token:     rec.AccessToken,
		TokenType: tt,
		IssuedAt:  created,
		ExpiresAt: expires,
		Source:    models.SourceCache,
	}
	if !c.Valid() {
		return nil, fmt.Errorf("token record expires_at %s is not after created_at %s", rec.ExpiresAt, created.Format(time.RFC3339))
	}
	return c, nil
}

// Records written by earlier tooling used local time without an offset.
var stampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
}

func parseStamp(s string) (time.Time, error) {
	var lastErr error
	for _, layout := range stampLayouts {
		var (
			t   time.Time
			err error
		)
		if layout == time.RFC3339Nano {
			t, err = time.Parse(layout, s)
		} else {
			t, err = time.ParseInLocation(layout, s, time.Local)
		}
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
