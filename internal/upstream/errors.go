package upstream

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/sony/gobreaker"
)

// APIError is a non-2xx response from an upstream service, carrying the
// optional detail payload.
type APIError struct {
	StatusCode int    `json:"-"`
	Detail     string `json:"detail,omitempty"`
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("upstream error: status=%d detail=%s", e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("upstream error: status=%d", e.StatusCode)
}

// IsTimeout reports whether err is a timeout-class failure, which gets a
// distinguished user-facing message.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// IsUnavailable reports whether err means the upstream cannot currently be
// reached at all, including an open circuit breaker.
func IsUnavailable(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
