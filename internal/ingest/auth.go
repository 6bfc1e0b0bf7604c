package ingest

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/url"
)

// Authenticator signs each attempt. Recover is called once when the upstream
// rejects the credential; a nil error means the next attempt may succeed.
type Authenticator interface {
	Authorize(ctx context.Context, params url.Values, header http.Header) error
	Recover(ctx context.Context) error
}

// TokenSource is satisfied by auth.Manager.
type TokenSource interface {
	ValidToken(ctx context.Context) (string, error)
	ForceRefresh(ctx context.Context) (string, error)
}

// BearerParam sends the token as the access_token parameter.
type BearerParam struct {
	Tokens TokenSource
}

func (b BearerParam) Authorize(ctx context.Context, params url.Values, _ http.Header) error {
	tok, err := b.Tokens.ValidToken(ctx)
	if err != nil {
		return err
	}
	params.Set("access_token", tok)
	return nil
}

func (b BearerParam) Recover(ctx context.Context) error {
	_, err := b.Tokens.ForceRefresh(ctx)
	return err
}

var errStaticCredentials = errors.New("static credentials cannot be refreshed")

// BasicAuth signs with a consumer key/secret pair.
type BasicAuth struct {
	Key    string
	Secret string
}

func (b BasicAuth) Authorize(_ context.Context, _ url.Values, header http.Header) error {
	header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(b.Key+":"+b.Secret)))
	return nil
}

func (b BasicAuth) Recover(context.Context) error { return errStaticCredentials }
