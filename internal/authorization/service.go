// Package authorization gates the administrative operations: forced
// rematches, mapping withdrawal, dedup sweeps, and bulk resync triggers.
// Read paths are not enforced here.
package authorization

import (
	"context"
	"errors"
)

const (
	ObjectProfile  = "profile"
	ObjectMapping  = "mapping"
	ObjectPackages = "packages"
	ObjectResync   = "resync"
	ObjectAuditLog = "audit_log"
)

const (
	ActionProfileView = "profile.view"

	ActionMappingRematch = "mapping.rematch"
	ActionMappingClear   = "mapping.clear"
	ActionMappingDedup   = "mapping.dedup"
	ActionMappingCleanup = "mapping.cleanup"

	ActionPackagesSync = "packages.sync"

	ActionResyncTrigger = "resync.trigger"

	ActionAuditLogView = "audit_log.view"
)

type Service interface {
	// Authorize checks that the actor may perform action on object.
	// Actors are "system" or "user:<id>".
	Authorize(ctx context.Context, actor, object, action string) error

	// GrantRole binds a user actor to a role ("admin" or "operator").
	GrantRole(ctx context.Context, actor, role string) error
	RevokeRole(ctx context.Context, actor, role string) error
}

var (
	ErrInvalidActor  = errors.New("invalid_actor")
	ErrInvalidObject = errors.New("invalid_object")
	ErrInvalidAction = errors.New("invalid_action")
	ErrInvalidRole   = errors.New("invalid_role")
	ErrForbidden     = errors.New("forbidden")
)
