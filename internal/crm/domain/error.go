package domain

import "errors"

var (
	ErrNotConfigured       = errors.New("crm_not_configured")
	ErrUpstreamTimeout     = errors.New("upstream_timeout")
	ErrUpstreamUnavailable = errors.New("upstream_unavailable")
)

// IsRetryable reports whether the upstream error is worth retrying with
// backoff. Both timeout and unavailability are transient by contract.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUpstreamTimeout) || errors.Is(err, ErrUpstreamUnavailable)
}
