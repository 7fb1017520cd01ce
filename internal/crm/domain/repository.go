package domain

import "context"

// Directory is the customer directory query capability consumed by the
// candidate matcher. All methods are read-only against the CRM.
type Directory interface {
	FindByPhone(ctx context.Context, phone string) ([]Candidate, error)
	FindByEmail(ctx context.Context, email string) ([]Candidate, error)
	SearchByName(ctx context.Context, name string) ([]Candidate, error)
}

// Ledger is the package ledger query capability consumed by the package
// synchronizer.
type Ledger interface {
	Packages(ctx context.Context, stableHashID string) ([]PackageRecord, error)
}
