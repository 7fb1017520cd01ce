package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/lilasstudio/crmlink/pkg/db/pagination"
	"gorm.io/gorm"
)

// ListFilter narrows the profile listing used by the bulk resync driver.
type ListFilter struct {
	OnlyUnresolved bool
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, profile *Profile) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Profile, error)
	FindByProviderSubject(ctx context.Context, db *gorm.DB, provider, subjectID string) (*Profile, error)
	FindByPlatformUserID(ctx context.Context, db *gorm.DB, platformUserID string) (*Profile, error)
	UpdateContact(ctx context.Context, db *gorm.DB, id snowflake.ID, phone, email string) error
	UpdateCustomerLink(ctx context.Context, db *gorm.DB, id snowflake.ID, customerID *string) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter, page pagination.Pagination) ([]*Profile, error)
}
