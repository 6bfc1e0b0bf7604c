package auth

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AngelCh415/shopads/internal/models"
)

var DefaultScopes = []string{"ads_read", "ads_management", "business_management"}

const stateTTL = 10 * time.Minute

type codeExchanger interface {
	ExchangeCode(ctx context.Context, code, redirectURI string) (string, error)
}

// OAuth runs the authorization-code flow. Issued states are single-use.
type OAuth struct {
	dialogURL   string
	appID       string
	redirectURI string
	scopes      []string
	codes       codeExchanger
	manager     *Manager
	clock       func() time.Time

	mu     sync.Mutex
	states map[string]time.Time
}

// NewOAuth builds the flow; dialogURL is rooted at {dialog host}/{version}.
func NewOAuth(dialogURL, appID, redirectURI string, codes codeExchanger, manager *Manager) *OAuth {
	return &OAuth{
		dialogURL:   strings.TrimRight(dialogURL, "/"),
		appID:       appID,
		redirectURI: redirectURI,
		scopes:      DefaultScopes,
		codes:       codes,
		manager:     manager,
		clock:       time.Now,
		states:      map[string]time.Time{},
	}
}

// AuthorizationURL returns the dialog URL and the CSRF state embedded in it.
func (o *OAuth) AuthorizationURL() (string, string) {
	state := uuid.NewString()
	now := o.clock()

	o.mu.Lock()
	for s, at := range o.states {
		if now.Sub(at) > stateTTL {
			delete(o.states, s)
		}
	}
	o.states[state] = now
	o.mu.Unlock()

	q := url.Values{}
	q.Set("client_id", o.appID)
	q.Set("redirect_uri", o.redirectURI)
	q.Set("scope", strings.Join(o.scopes, ","))
	q.Set("response_type", "code")
	q.Set("state", state)
	return o.dialogURL + "/dialog/oauth?" + q.Encode(), state
}

func (o *OAuth) consume(state string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	at, ok := o.states[state]
	if !ok {
		return false
	}
	delete(o.states, state)
	return o.clock().Sub(at) <= stateTTL
}

// Complete validates state, trades code for a short-lived token and stores
// the long-lived credential it exchanges into.
func (o *OAuth) Complete(ctx context.Context, code, state string) (models.Credential, error) {
	if !o.consume(state) {
		return models.Credential{}, ErrInvalidState
	}
	short, err := o.codes.ExchangeCode(ctx, code, o.redirectURI)
	if err != nil {
		return models.Credential{}, refreshFailed("exchange authorization code", err)
	}
	return o.manager.ExchangeShortLived(ctx, short)
}
