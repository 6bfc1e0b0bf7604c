package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AngelCh415/shopads/internal/ingest"
	"github.com/AngelCh415/shopads/internal/models"
)

func noSleep(context.Context, time.Duration) error { return nil }

func graphExchanger(t *testing.T, h http.HandlerFunc) *GraphExchanger {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c := ingest.NewClient("graph", srv.URL+"/v23.0", ingest.WithSleep(noSleep))
	g := NewGraphExchanger(c, "app", "secret")
	g.clock = func() time.Time { return now }
	return g
}

func TestGraphExchange(t *testing.T) {
	g := graphExchanger(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v23.0/oauth/access_token", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "fb_exchange_token", q.Get("grant_type"))
		assert.Equal(t, "app", q.Get("client_id"))
		assert.Equal(t, "secret", q.Get("client_secret"))
		assert.Equal(t, "short", q.Get("fb_exchange_token"))
		fmt.Fprint(w, `{"access_token":"long","token_type":"bearer","expires_in":3600}`)
	})

	c, err := g.Exchange(context.Background(), "short")
	require.NoError(t, err)
	assert.Equal(t, "long", c.Token)
	assert.Equal(t, now, c.IssuedAt)
	assert.Equal(t, now.Add(time.Hour), c.ExpiresAt)
	assert.Equal(t, models.SourceExchanged, c.Source)
}

func TestGraphExchangeDefaultsExpiry(t *testing.T) {
	g := graphExchanger(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"access_token":"long"}`)
	})

	c, err := g.Exchange(context.Background(), "short")
	require.NoError(t, err)
	assert.Equal(t, "bearer", c.TokenType)
	assert.Equal(t, 5183944*time.Second, c.ExpiresAt.Sub(c.IssuedAt))
}

func TestGraphExchangeRejected(t *testing.T) {
	g := graphExchanger(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"message":"Error validating client secret.","code":1}}`)
	})

	_, err := g.Exchange(context.Background(), "short")
	var apiErr *ingest.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "Error validating client secret.", apiErr.Message)
}

func TestGraphExchangeWithoutToken(t *testing.T) {
	g := graphExchanger(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{}`)
	})

	_, err := g.Exchange(context.Background(), "short")
	assert.Error(t, err)
	_, err = g.ExchangeCode(context.Background(), "code", "http://localhost:8501")
	assert.Error(t, err)

	// nothing was persisted, so there is still no token
	m := newManager(&memStore{}, g)
	_, err = m.ExchangeShortLived(context.Background(), "short")
	assert.ErrorIs(t, err, ErrRefreshFailed)
	_, err = m.ValidToken(context.Background())
	assert.ErrorIs(t, err, ErrUnconfigured)
}

func TestGraphDebug(t *testing.T) {
	g := graphExchanger(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v23.0/debug_token", r.URL.Path)
		assert.Equal(t, "app|secret", r.URL.Query().Get("access_token"))
		assert.Equal(t, "tok", r.URL.Query().Get("input_token"))
		fmt.Fprint(w, `{"data":{"app_id":"app","type":"USER","is_valid":true,"expires_at":1767225600,"scopes":["ads_read"]}}`)
	})

	info, err := g.Debug(context.Background(), "tok")
	require.NoError(t, err)
	assert.True(t, info.Valid)
	assert.Equal(t, []string{"ads_read"}, info.Scopes)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), info.ExpiresAt)
}

type fakeCodes struct {
	gotCode, gotRedirect string
	err                  error
}

func (f *fakeCodes) ExchangeCode(_ context.Context, code, redirectURI string) (string, error) {
	f.gotCode, f.gotRedirect = code, redirectURI
	if f.err != nil {
		return "", f.err
	}
	return "short-" + code, nil
}

func newOAuth(codes codeExchanger, st *memStore) *OAuth {
	o := NewOAuth("https://www.facebook.com/v23.0/", "app", "http://localhost:8501", codes, newManager(st, &fakeExchanger{}))
	o.clock = func() time.Time { return now }
	return o
}

func TestAuthorizationURL(t *testing.T) {
	o := newOAuth(&fakeCodes{}, &memStore{})
	raw, state := o.AuthorizationURL()

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "/v23.0/dialog/oauth", u.Path)
	q := u.Query()
	assert.Equal(t, "app", q.Get("client_id"))
	assert.Equal(t, "http://localhost:8501", q.Get("redirect_uri"))
	assert.Equal(t, "ads_read,ads_management,business_management", q.Get("scope"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, state, q.Get("state"))
	assert.NotEmpty(t, state)
}

func TestOAuthComplete(t *testing.T) {
	st := &memStore{}
	codes := &fakeCodes{}
	o := newOAuth(codes, st)
	_, state := o.AuthorizationURL()

	c, err := o.Complete(context.Background(), "abc", state)
	require.NoError(t, err)
	assert.Equal(t, "abc", codes.gotCode)
	assert.Equal(t, "http://localhost:8501", codes.gotRedirect)
	assert.Equal(t, "short-abc-long", c.Token)
	require.NotNil(t, st.cred)
	assert.Equal(t, models.SourceExchanged, st.cred.Source)

	_, err = o.Complete(context.Background(), "abc", state)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestOAuthRejectsUnknownAndExpiredState(t *testing.T) {
	o := newOAuth(&fakeCodes{}, &memStore{})
	_, err := o.Complete(context.Background(), "abc", "forged")
	assert.ErrorIs(t, err, ErrInvalidState)

	_, state := o.AuthorizationURL()
	o.clock = func() time.Time { return now.Add(stateTTL + time.Minute) }
	_, err = o.Complete(context.Background(), "abc", state)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestOAuthCodeExchangeFailure(t *testing.T) {
	o := newOAuth(&fakeCodes{err: errors.New("bad code")}, &memStore{})
	_, state := o.AuthorizationURL()
	_, err := o.Complete(context.Background(), "abc", state)
	assert.ErrorIs(t, err, ErrRefreshFailed)
}
