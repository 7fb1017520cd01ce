// Package domain defines the candidate matching contract.
package domain

import (
	"context"
	"errors"

	crmdomain "github.com/lilasstudio/crmlink/internal/crm/domain"
)

// MatchInput carries a profile's identity attributes, already normalized by
// the matcher before querying the directory.
type MatchInput struct {
	Name  string
	Phone string
	Email string
}

// Signal names the attribute class that contributed to a candidate's score.
const (
	SignalPhoneExact = "phone_exact"
	SignalEmailExact = "email_exact"
	SignalNameFuzzy  = "name_fuzzy"
)

// ScoredCandidate is a directory candidate with its match confidence.
// When several attribute classes agree on the same customer, Confidence is
// the maximum of the contributing scores, never a sum.
type ScoredCandidate struct {
	crmdomain.Candidate
	Confidence int      `json:"confidence"`
	Signals    []string `json:"signals"`
}

// Service produces scored candidates for a profile's identity attributes.
// Read-only against the directory; an empty result is not an error.
type Service interface {
	Match(ctx context.Context, input MatchInput) ([]ScoredCandidate, error)
}

var ErrInsufficientIdentity = errors.New("insufficient_identity")
