package provider

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrorKind classifies a provider failure.
type ErrorKind int

const (
	// KindUnauthorized covers 401/403 and the 200-status second factor signal.
	KindUnauthorized ErrorKind = iota
	// KindStatus is any other non-success HTTP status.
	KindStatus
	// KindTransport is a network level failure; no status is available.
	KindTransport
	// KindDecode means the response body was not what the endpoint promises.
	KindDecode
)

func (k ErrorKind) String() string {
	switch k {
	case KindUnauthorized:
		return "unauthorized"
	case KindStatus:
		return "status"
	case KindTransport:
		return "transport"
	case KindDecode:
		return "decode"
	default:
		return "unknown"
	}
}

// Messages VRChat uses to signal that a second factor is pending.
const (
	EmailChallengeMessage = "Email 2 Factor Authentication verification is required"
	TOTPChallengeMessage  = "2 Factor Authentication verification is required"
)

// Error is returned by every Session method on failure.
type Error struct {
	Op         string
	Kind       ErrorKind
	Status     int
	Message    string
	RetryAfter time.Duration // provider's requested back-off, if it sent one
	Err        error
}

func (e *Error) Error() string {
	if e.Status != 0 && e.RetryAfter > 0 {
		return fmt.Sprintf("vrchat %s: %s (status %d, retry after %s): %s", e.Op, e.Kind, e.Status, e.RetryAfter, e.Message)
	}
	if e.Status != 0 {
		return fmt.Sprintf("vrchat %s: %s (status %d): %s", e.Op, e.Kind, e.Status, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("vrchat %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("vrchat %s: %s: %s", e.Op, e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// AsError extracts a provider Error from err.
func AsError(err error) (*Error, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// IsNotFound reports a 404 from the provider.
func IsNotFound(err error) bool {
	pe, ok := AsError(err)
	return ok && pe.Status == 404
}

// IsOutage reports whether err means VRChat could not answer at all: a
// transport failure, a 5xx or a 429. Rejections such as a wrong password are
// not outages. Errors that are not provider errors count as outages.
func IsOutage(err error) bool {
	if err == nil {
		return false
	}
	pe, ok := AsError(err)
	if !ok {
		return true
	}
	switch pe.Kind {
	case KindTransport:
		return true
	case KindStatus:
		return pe.Status >= 500 || pe.Status == http.StatusTooManyRequests
	default:
		return false
	}
}
