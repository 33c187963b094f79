package govee

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies a device API failure, determining whether it's worth
// retrying and how it's surfaced to the user.
type ErrorKind int

const (
	// ErrorTransient covers timeouts, connection errors and 5xx responses. Retried.
	ErrorTransient ErrorKind = iota
	// ErrorRateLimited is a 429 response. Retried, honoring the server's delay hint.
	ErrorRateLimited
	// ErrorAuth is a rejected API key. Terminal: the user must fix their credentials.
	ErrorAuth
	// ErrorMalformed is any other client error. Terminal; shouldn't occur for
	// valid commands, so it's logged as an internal bug.
	ErrorMalformed
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorRateLimited:
		return "rate limited"
	case ErrorAuth:
		return "authentication failed"
	case ErrorMalformed:
		return "malformed request"
	default:
		return "transient"
	}
}

// Error is a typed Govee API failure.
type Error struct {
	Kind       ErrorKind
	StatusCode int
	RetryAfter time.Duration
	Reason     string
}

func (e *Error) Error() string {
	return fmt.Sprintf("govee: %s: %s", e.Kind, e.Reason)
}

// IsAuthError reports whether err is a terminal authentication failure.
func IsAuthError(err error) bool {
	var deviceErr *Error
	return errors.As(err, &deviceErr) && deviceErr.Kind == ErrorAuth
}
