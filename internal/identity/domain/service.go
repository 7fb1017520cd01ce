// Package domain defines the identity resolution facade: the one entry
// point that ties profile attributes, directory matching, and the mapping
// store together.
package domain

import (
	"context"
	"errors"

	mappingdomain "github.com/lilasstudio/crmlink/internal/mapping/domain"
	matcherdomain "github.com/lilasstudio/crmlink/internal/matcher/domain"
)

// Resolution is the outcome of a resolve or rematch call.
type Resolution struct {
	ProfileID  string                          `json:"profile_id"`
	Mapping    mappingdomain.Mapping           `json:"mapping"`
	Created    bool                            `json:"created"`
	Candidates []matcherdomain.ScoredCandidate `json:"candidates,omitempty"`
}

type Service interface {
	// ResolveProfile returns the active mapping, establishing one first if
	// the profile is unresolved. Idempotent for an already-resolved profile.
	ResolveProfile(ctx context.Context, profileID string) (Resolution, error)

	// ForceRematch re-runs matching against the directory even when an
	// active mapping exists. The winner is decided by the mapping store's
	// retention order; a rematch that finds nothing above the threshold
	// leaves the existing mapping untouched and returns
	// ErrUnresolvedIdentity.
	ForceRematch(ctx context.Context, profileID string) (Resolution, error)

	// ClearMapping withdraws the profile's active mapping and clears the
	// profile's customer link.
	ClearMapping(ctx context.Context, profileID string) error

	// Deduplicate converges the profile's mapping rows and re-syncs the
	// profile's customer link to the retained winner.
	Deduplicate(ctx context.Context, profileID string) (*mappingdomain.Mapping, error)
}

var ErrUnresolvedIdentity = errors.New("unresolved_identity")
