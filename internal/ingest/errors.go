package ingest

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindNetwork      Kind = "network"
	KindRateLimited  Kind = "rate_limited"
	KindAuthRejected Kind = "auth_rejected"
	KindUpstream     Kind = "upstream"
)

var (
	ErrNetwork      = errors.New("upstream unreachable")
	ErrRateLimited  = errors.New("upstream rate limited")
	ErrAuthRejected = errors.New("upstream rejected credentials")
	ErrUpstream     = errors.New("upstream error")
)

// APIError describes a failed upstream call after the retry policy ran.
// Upstream errors carry the status and message unmodified.
type APIError struct {
	API      string
	Kind     Kind
	Status   int
	Message  string
	Attempts int
	Err      error
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.API, e.Kind)
	if e.Status > 0 {
		msg += fmt.Sprintf(" %d", e.Status)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *APIError) Unwrap() error { return e.Err }

func (e *APIError) Is(target error) bool {
	switch target {
	case ErrNetwork:
		return e.Kind == KindNetwork
	case ErrRateLimited:
		return e.Kind == KindRateLimited
	case ErrAuthRejected:
		return e.Kind == KindAuthRejected
	case ErrUpstream:
		return e.Kind == KindUpstream
	}
	return false
}

// ErrInvalidLevel is returned for an unknown insights aggregation level.
var ErrInvalidLevel = errors.New("invalid insights level")
