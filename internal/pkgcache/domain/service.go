package domain

import (
	"context"
	"errors"
)

type Service interface {
	// Sync fetches the profile's ledger from the CRM and replaces the local
	// cache entry wholesale. An unresolved profile is resolved first; when
	// nothing clears the acceptance threshold Sync fails with the identity
	// package's ErrUnresolvedIdentity and the cache is left untouched.
	Sync(ctx context.Context, profileID string) (Snapshot, error)

	// GetCached reads the local cache only. Never touches the CRM; a
	// missing entry returns ErrNotCached.
	GetCached(ctx context.Context, profileID string) (Snapshot, error)
}

var (
	ErrInvalidProfileID = errors.New("invalid_profile_id")
	ErrNotCached        = errors.New("packages_not_cached")
)
