package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Profile is a locally-authenticated identity, created on first successful
// login through any provider. This subsystem reads the id and writes the
// customer link; the authentication flow owns everything else.
type Profile struct {
	ID             snowflake.ID      `gorm:"primaryKey" json:"id"`
	Provider       string            `gorm:"not null;index:idx_profiles_provider_subject,unique" json:"provider"`
	SubjectID      string            `gorm:"column:subject_id;not null;index:idx_profiles_provider_subject,unique" json:"subject_id"`
	PlatformUserID string            `gorm:"column:platform_user_id;index" json:"platform_user_id,omitempty"`
	DisplayName    string            `gorm:"column:display_name" json:"display_name"`
	Phone          string            `gorm:"column:phone" json:"phone,omitempty"`
	Email          string            `gorm:"column:email" json:"email,omitempty"`
	CustomerID     *string           `gorm:"column:customer_id;index" json:"customer_id,omitempty"`
	Metadata       datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'" json:"metadata,omitempty"`
	CreatedAt      time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt      time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Profile) TableName() string { return "profiles" }

// Resolved reports whether the profile currently links to a CRM customer.
func (p Profile) Resolved() bool {
	return p.CustomerID != nil && *p.CustomerID != ""
}
