// Package audit persists the append-only decision trail for identity
// resolution. Entries explain after the fact why a profile is linked to a
// customer, which dedup runs touched it, and when its packages were synced.
package audit

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

const (
	ActionMatchRecorded   = "match.recorded"
	ActionMatchCleared    = "match.cleared"
	ActionDedupRun        = "dedup.run"
	ActionPackageSynced   = "package.synced"
	ActionResyncCompleted = "resync.completed"
)

type Entry struct {
	ID        snowflake.ID      `gorm:"primaryKey" json:"id"`
	Action    string            `gorm:"column:action;not null;index" json:"action"`
	ProfileID snowflake.ID      `gorm:"column:profile_id;index" json:"profile_id"`
	Actor     string            `gorm:"column:actor" json:"actor"`
	Metadata  datatypes.JSONMap `gorm:"column:metadata" json:"metadata"`
	CreatedAt time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (Entry) TableName() string { return "audit_entries" }
