// Package domain contains the local package cache types. The cache mirrors
// the upstream prepaid-session ledger per resolved profile; it is replaced
// wholesale on every sync, never merged.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Snapshot is the cache entry header for one profile. SyncedAt reflects the
// last successful wholesale replacement, including syncs that brought back
// an empty ledger.
type Snapshot struct {
	ID           snowflake.ID `gorm:"primaryKey" json:"id"`
	ProfileID    snowflake.ID `gorm:"column:profile_id;not null;uniqueIndex" json:"profile_id"`
	CustomerID   string       `gorm:"column:customer_id;not null" json:"customer_id"`
	StableHashID string       `gorm:"column:stable_hash_id;not null;index" json:"stable_hash_id"`
	SyncedAt     time.Time    `gorm:"column:synced_at;not null" json:"synced_at"`
	CreatedAt    time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt    time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`

	Items []Item `gorm:"-" json:"items"`
}

func (Snapshot) TableName() string { return "package_snapshots" }

// Item is one cached package row under a snapshot.
type Item struct {
	ID             snowflake.ID `gorm:"primaryKey" json:"id"`
	SnapshotID     snowflake.ID `gorm:"column:snapshot_id;not null;index" json:"snapshot_id"`
	PackageName    string       `gorm:"column:package_name;not null" json:"package_name"`
	TotalUnits     int          `gorm:"column:total_units;not null" json:"total_units"`
	RemainingUnits int          `gorm:"column:remaining_units;not null" json:"remaining_units"`
	ExpiresAt      *time.Time   `gorm:"column:expires_at" json:"expires_at,omitempty"`
	CreatedAt      time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (Item) TableName() string { return "package_items" }

// Usable reports whether the package still has sessions to spend at the
// given instant.
func (i Item) Usable(now time.Time) bool {
	if i.RemainingUnits <= 0 {
		return false
	}
	if i.ExpiresAt != nil && !i.ExpiresAt.After(now) {
		return false
	}
	return true
}
