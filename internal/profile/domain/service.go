package domain

import (
	"context"
	"errors"

	"github.com/lilasstudio/crmlink/pkg/db/pagination"
)

type UpsertLoginRequest struct {
	Provider       string
	SubjectID      string
	PlatformUserID string
	DisplayName    string
}

type CaptureContactRequest struct {
	ProfileID string
	Phone     string
	Email     string
}

type ListProfileRequest struct {
	PageToken      string
	PageSize       int32
	OnlyUnresolved bool
}

type ListProfileResponse struct {
	pagination.PageInfo
	Profiles []Profile `json:"profiles"`
}

type Service interface {
	UpsertLogin(context.Context, UpsertLoginRequest) (Profile, error)
	CaptureContact(context.Context, CaptureContactRequest) (Profile, error)
	GetByID(context.Context, string) (Profile, error)
	GetByPlatformUserID(context.Context, string) (Profile, error)
	List(context.Context, ListProfileRequest) (ListProfileResponse, error)
	AssignCustomer(ctx context.Context, profileID string, customerID string) error
	ClearCustomer(ctx context.Context, profileID string) error
}

var (
	ErrInvalidProvider = errors.New("invalid_provider")
	ErrInvalidSubject  = errors.New("invalid_subject")
	ErrInvalidID       = errors.New("invalid_id")
	ErrInvalidContact  = errors.New("invalid_contact")
	ErrNotFound        = errors.New("not_found")
)
