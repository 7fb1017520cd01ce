package domain

import (
	"context"
	"errors"
)

// CandidateInput is the slice of a scored candidate the mapping store needs.
type CandidateInput struct {
	CustomerID   string
	StableHashID string
	Confidence   int
}

type RecordMatchRequest struct {
	ProfileID string
	Candidate CandidateInput
	Method    MatchMethod

	// KeepBelowThreshold persists a below-threshold candidate as an
	// unmatched row for audit purposes instead of discarding it.
	KeepBelowThreshold bool
}

type Service interface {
	// RecordMatch inserts or reactivates the (profile, customer) row and
	// returns the profile's resulting active mapping. Winner selection is
	// delegated to Deduplicate's retention order so one rule governs both
	// paths.
	RecordMatch(context.Context, RecordMatchRequest) (Mapping, error)

	// GetActiveMapping returns the single matched row, or nil when the
	// profile is unresolved. More than one matched row fails fast with
	// ErrMultipleActiveMappings; callers should run Deduplicate and retry.
	GetActiveMapping(ctx context.Context, profileID string) (*Mapping, error)

	// ClearMapping withdraws the active match without creating a new row.
	ClearMapping(ctx context.Context, profileID string) error

	// Deduplicate converges the profile to at most one matched row using
	// the deterministic retention order. Idempotent. The only code path
	// permitted to flip more than one matched flag per operation.
	Deduplicate(ctx context.Context, profileID string) (*Mapping, error)

	// Cleanup deletes unmatched rows for the profile after running
	// Deduplicate. Administrative use only.
	Cleanup(ctx context.Context, profileID string) (int64, error)
}

var (
	ErrInvalidProfileID       = errors.New("invalid_profile_id")
	ErrInvalidCandidate       = errors.New("invalid_candidate")
	ErrBelowThreshold         = errors.New("below_threshold")
	ErrMultipleActiveMappings = errors.New("multiple_active_mappings")
	ErrNotFound               = errors.New("not_found")
)
