// Package domain contains the typed boundary records for the external CRM.
// The matching core never sees raw CRM payloads; the adapter converts them
// into these types at the edge.
package domain

import "time"

// Candidate is a customer record returned by the directory, already
// normalized by the adapter.
type Candidate struct {
	CustomerID   string
	StableHashID string
	Name         string
	Phone        string
	Email        string
}

// PackageRecord is one prepaid session ledger entry owned by a customer.
type PackageRecord struct {
	PackageName    string
	TotalUnits     int
	RemainingUnits int
	ExpiresAt      *time.Time
}

// QueryAttributes carries the identity attributes a directory lookup may
// filter on. Empty fields are not queried.
type QueryAttributes struct {
	Name  string
	Phone string
	Email string
}
