// Package auth keeps the ads-platform bearer token usable: it exchanges
// short-lived tokens, refreshes long-lived ones before they expire, and runs
// the OAuth code flow.
package auth

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindUnconfigured  Kind = "unconfigured"
	KindRefreshFailed Kind = "refresh_failed"
)

var (
	ErrUnconfigured  = errors.New("auth: no credential configured")
	ErrRefreshFailed = errors.New("auth: token refresh failed")
	ErrInvalidState  = errors.New("auth: unknown or expired oauth state")

	errInvalidCredential = errors.New("exchanged credential has no token or expires before it was issued")
)

// AuthError is returned when no usable token can be produced.
type AuthError struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth %s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("auth %s: %s", e.Kind, e.Message)
}

func (e *AuthError) Unwrap() error { return e.Err }

func (e *AuthError) Is(target error) bool {
	switch target {
	case ErrUnconfigured:
		return e.Kind == KindUnconfigured
	case ErrRefreshFailed:
		return e.Kind == KindRefreshFailed
	}
	return false
}

func unconfigured(msg string) *AuthError {
	return &AuthError{Kind: KindUnconfigured, Message: msg}
}

func refreshFailed(msg string, err error) *AuthError {
	return &AuthError{Kind: KindRefreshFailed, Message: msg, Err: err}
}
