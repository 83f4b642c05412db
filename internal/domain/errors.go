package domain

import "github.com/pkg/errors"

var (
	// ErrNotFound no data exists for the symbol/date. Expected, not exceptional.
	ErrNotFound = errors.New("price not found")
	// ErrRateLimited upstream throttled the request.
	ErrRateLimited = errors.New("upstream rate limited")
	// ErrTransient network failure or 5xx; retried once, then treated as not found.
	ErrTransient = errors.New("transient upstream failure")
	// ErrUnusable symbol is on a provider's known-bad list. Matches ErrNotFound.
	ErrUnusable = errors.WithMessage(ErrNotFound, "symbol is on the unusable list")
	// ErrCacheUnavailable distributed cache backend is unreachable.
	ErrCacheUnavailable = errors.New("cache backend unavailable")
)

// IsNotFound reports whether err means "no usable price" for the caller.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
