package auth

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/AngelCh415/shopads/internal/ingest"
	"github.com/AngelCh415/shopads/internal/models"
)

// DefaultExpiresIn is used when the exchange response omits expires_in.
const DefaultExpiresIn = 5183944 * time.Second

var errNoAccessToken = errors.New("token response has no access_token")

// GraphExchanger talks to the Graph token endpoints with the app id/secret.
type GraphExchanger struct {
	client    *ingest.Client
	appID     string
	appSecret string
	clock     func() time.Time
}

// NewGraphExchanger expects client to be rooted at {graph}/{version}.
func NewGraphExchanger(client *ingest.Client, appID, appSecret string) *GraphExchanger {
	return &GraphExchanger{client: client, appID: appID, appSecret: appSecret, clock: time.Now}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (g *GraphExchanger) Exchange(ctx context.Context, token string) (models.Credential, error) {
	params := url.Values{}
	params.Set("grant_type", "fb_exchange_token")
	params.Set("client_id", g.appID)
	params.Set("client_secret", g.appSecret)
	params.Set("fb_exchange_token", token)

	var out tokenResponse
	if err := g.client.Request(ctx, ingest.Call{Method: http.MethodGet, Endpoint: "oauth/access_token", Params: params}, &out); err != nil {
		return models.Credential{}, err
	}
	if out.AccessToken == "" {
		return models.Credential{}, errNoAccessToken
	}
	return g.credential(out), nil
}

// ExchangeCode trades an OAuth authorization code for a short-lived token.
func (g *GraphExchanger) ExchangeCode(ctx context.Context, code, redirectURI string) (string, error) {
	params := url.Values{}
	params.Set("client_id", g.appID)
	params.Set("client_secret", g.appSecret)
	params.Set("redirect_uri", redirectURI)
	params.Set("code", code)

	var out tokenResponse
	if err := g.client.Request(ctx, ingest.Call{Method: http.MethodGet, Endpoint: "oauth/access_token", Params: params}, &out); err != nil {
		return "", err
	}
	if out.AccessToken == "" {
		return "", errNoAccessToken
	}
	return out.AccessToken, nil
}

func (g *GraphExchanger) credential(out tokenResponse) models.Credential {
	now := g.clock()
	ttl := DefaultExpiresIn
	if out.ExpiresIn > 0 {
		ttl = time.Duration(out.ExpiresIn) * time.Second
	}
	tt := out.TokenType
	if tt == "" {
		tt = "bearer"
	}
	return models.Credential{
		Token:     out.AccessToken,
		TokenType: tt,
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
		Source:    models.SourceExchanged,
	}
}

type TokenInfo struct {
	AppID     string    `json:"app_id"`
	Type      string    `json:"type"`
	Valid     bool      `json:"is_valid"`
	ExpiresAt time.Time `json:"expires_at"`
	Scopes    []string  `json:"scopes"`
}

// Debug inspects token with the app token.
func (g *GraphExchanger) Debug(ctx context.Context, token string) (TokenInfo, error) {
	params := url.Values{}
	params.Set("input_token", token)
	params.Set("access_token", g.appID+"|"+g.appSecret)

	var out struct {
		Data struct {
			AppID     string   `json:"app_id"`
			Type      string   `json:"type"`
			IsValid   bool     `json:"is_valid"`
			ExpiresAt int64    `json:"expires_at"`
			Scopes    []string `json:"scopes"`
		} `json:"data"`
	}
	if err := g.client.Request(ctx, ingest.Call{Method: http.MethodGet, Endpoint: "debug_token", Params: params}, &out); err != nil {
		return TokenInfo{}, err
	}
	info := TokenInfo{
		AppID:  out.Data.AppID,
		Type:   out.Data.Type,
		Valid:  out.Data.IsValid,
		Scopes: out.Data.Scopes,
	}
	if out.Data.ExpiresAt > 0 {
		info.ExpiresAt = time.Unix(out.Data.ExpiresAt, 0).UTC()
	}
	return info, nil
}
