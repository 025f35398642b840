package api

import (
	"context"
	"errors"
)

var (
	ErrNoAPIKey          = errors.New("no API key provided")
	ErrUnavailable       = errors.New("market data unavailable")
	ErrMalformedResponse = errors.New("malformed market data response")
	ErrNotFound          = errors.New("data not found for this ticker")
	ErrRateLimited       = errors.New("rate limited by API")
	ErrAuthFailed        = errors.New("authentication failed")
)

// FailureKind names the class of a market data failure.
type FailureKind string

const (
	FailureNone        FailureKind = ""
	FailureNoKey       FailureKind = "no_key"
	FailureNetwork     FailureKind = "network"
	FailureMalformed   FailureKind = "malformed"
	FailureNotFound    FailureKind = "not_found"
	FailureRateLimited FailureKind = "rate_limited"
	FailureAuth        FailureKind = "auth"
	FailureUnknown     FailureKind = "unknown"
)

// Classify maps an error returned by Client to its FailureKind.
func Classify(err error) FailureKind {
	switch {
	case err == nil:
		return FailureNone
	case errors.Is(err, ErrNoAPIKey):
		return FailureNoKey
	case errors.Is(err, ErrMalformedResponse):
		return FailureMalformed
	case errors.Is(err, ErrNotFound):
		return FailureNotFound
	case errors.Is(err, ErrRateLimited):
		return FailureRateLimited
	case errors.Is(err, ErrAuthFailed):
		return FailureAuth
	case errors.Is(err, ErrUnavailable), errors.Is(err, context.DeadlineExceeded):
		return FailureNetwork
	default:
		return FailureUnknown
	}
}
