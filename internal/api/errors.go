package api

import (
	"errors"
	"fmt"
)

// Sentinels matched by FetchError via errors.Is.
var (
	ErrNetworkFailure    = errors.New("network failure")
	ErrHTTPStatus        = errors.New("unexpected http status")
	ErrMalformedResponse = errors.New("malformed response")
)

// ErrorKind classifies a failed fetch.
type ErrorKind int

const (
	NetworkFailure ErrorKind = iota
	HTTPStatus
	MalformedResponse
)

func (k ErrorKind) String() string {
	switch k {
	case NetworkFailure:
		return "network_failure"
	case HTTPStatus:
		return "http_status"
	case MalformedResponse:
		return "malformed_response"
	default:
		return "unknown"
	}
}

// FetchError reports why a snapshot fetch failed.
type FetchError struct {
	Kind       ErrorKind
	StatusCode int // Set for HTTPStatus
	Err        error
}

func (e *FetchError) Error() string {
	switch e.Kind {
	case HTTPStatus:
		return fmt.Sprintf("fetch snapshot: http %d", e.StatusCode)
	default:
		if e.Err == nil {
			return "fetch snapshot: " + e.Kind.String()
		}
		return fmt.Sprintf("fetch snapshot: %s: %v", e.Kind, e.Err)
	}
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for the error's kind.
func (e *FetchError) Is(target error) bool {
	switch target {
	case ErrNetworkFailure:
		return e.Kind == NetworkFailure
	case ErrHTTPStatus:
		return e.Kind == HTTPStatus
	case ErrMalformedResponse:
		return e.Kind == MalformedResponse
	}
	return false
}

// IsRetryable reports whether fetching again later may succeed.
func (e *FetchError) IsRetryable() bool {
	switch e.Kind {
	case NetworkFailure:
		return true
	case HTTPStatus:
		return e.StatusCode >= 500 || e.StatusCode == 429
	default:
		return false
	}
}
