// Package domain contains the profile-to-customer mapping types. Mapping
// rows are the auditable link attempts owned by this subsystem; at most one
// row per profile is flagged matched at any time.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// MatchMethod records how a mapping was established.
type MatchMethod string

const (
	MatchMethodAuto   MatchMethod = "auto"
	MatchMethodManual MatchMethod = "manual"
)

// Mapping links a profile to a CRM customer with a confidence score.
// Rows are immutable once created except for the Matched flag and
// UpdatedAt; a re-match that lands on a different candidate creates or
// reactivates a different row instead of editing this one.
type Mapping struct {
	ID           snowflake.ID `gorm:"primaryKey" json:"id"`
	ProfileID    snowflake.ID `gorm:"column:profile_id;not null;index;index:idx_mappings_profile_customer,unique" json:"profile_id"`
	CustomerID   string       `gorm:"column:customer_id;not null;index:idx_mappings_profile_customer,unique" json:"customer_id"`
	StableHashID string       `gorm:"column:stable_hash_id;index" json:"stable_hash_id"`
	Method       MatchMethod  `gorm:"column:method;not null" json:"method"`
	Confidence   int          `gorm:"column:confidence;not null" json:"confidence"`
	Matched      bool         `gorm:"column:matched;not null;index" json:"matched"`
	CreatedAt    time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt    time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Mapping) TableName() string { return "customer_mappings" }

// Supersedes reports whether m wins over other under the deterministic
// retention order: higher confidence, then more recently updated, then
// lower id. The id comparison is arbitrary but total, so repeated runs
// converge regardless of input order.
func (m Mapping) Supersedes(other Mapping) bool {
	if m.Confidence != other.Confidence {
		return m.Confidence > other.Confidence
	}
	if !m.UpdatedAt.Equal(other.UpdatedAt) {
		return m.UpdatedAt.After(other.UpdatedAt)
	}
	return m.ID < other.ID
}
