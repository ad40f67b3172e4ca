// Package resilience classifies failures from the search backend and
// model provider, and guards the backend with a circuit breaker.
package resilience

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"
)

// Recoverable reports whether the error is in the retry-class: the
// caller may retry the whole request and reasonably expect success.
// Rate-limit, timeout, and connectivity failures are recoverable;
// malformed input and auth failures are not.
func Recoverable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	// Wrapped errors from HTTP clients and drivers lose their types;
	// fall back to message patterns.
	msg := strings.ToLower(err.Error())
	for _, p := range []string{
		"connection reset by peer",
		"broken pipe",
		"temporary failure in name resolution",
		"no such host",
		"tls handshake timeout",
		"i/o timeout",
		"too many requests",
		"rate limit",
		"overloaded",
		"server closed idle connection",
		"transport connection broken",
	} {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}
