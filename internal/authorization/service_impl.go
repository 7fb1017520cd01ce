package authorization

import (
	"context"
	_ "embed"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	roleSystem   = "role:system"
	roleAdmin    = "role:admin"
	roleOperator = "role:operator"
)

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
}

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	enforcer.BuildRoleLinks()
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, actor, object, action string) error {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return ErrInvalidActor
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	subject, err := s.resolveSubject(actor)
	if err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(subject, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.log.Info("authorization denied",
			zap.String("actor", actor),
			zap.String("object", object),
			zap.String("action", action),
		)
		return ErrForbidden
	}
	return nil
}

func (s *ServiceImpl) GrantRole(ctx context.Context, actor, role string) error {
	subject, err := s.resolveSubject(actor)
	if err != nil {
		return err
	}
	roleName, err := qualifyRole(role)
	if err != nil {
		return err
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, roleName)
	return err
}

func (s *ServiceImpl) RevokeRole(ctx context.Context, actor, role string) error {
	subject, err := s.resolveSubject(actor)
	if err != nil {
		return err
	}
	roleName, err := qualifyRole(role)
	if err != nil {
		return err
	}
	_, err = s.enforcer.RemoveGroupingPolicy(subject, roleName)
	return err
}

func (s *ServiceImpl) resolveSubject(actor string) (string, error) {
	if actor == "system" {
		if err := s.ensureGrouping("system", roleSystem); err != nil {
			return "", err
		}
		return "system", nil
	}
	if strings.HasPrefix(actor, "user:") {
		raw := strings.TrimPrefix(actor, "user:")
		id, err := snowflake.ParseString(raw)
		if err != nil || id == 0 {
			return "", ErrInvalidActor
		}
		return actor, nil
	}
	return "", ErrInvalidActor
}

func (s *ServiceImpl) ensureGrouping(subject, roleName string) error {
	has, err := s.enforcer.HasGroupingPolicy(subject, roleName)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, roleName)
	return err
}

func qualifyRole(role string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case "admin":
		return roleAdmin, nil
	case "operator":
		return roleOperator, nil
	default:
		return "", ErrInvalidRole
	}
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		// Operators can inspect and trigger per-profile syncs.
		{roleOperator, ObjectProfile, ActionProfileView},
		{roleOperator, ObjectPackages, ActionPackagesSync},
		{roleOperator, ObjectAuditLog, ActionAuditLogView},

		// Admins additionally rewrite identity state.
		{roleAdmin, ObjectProfile, ActionProfileView},
		{roleAdmin, ObjectPackages, ActionPackagesSync},
		{roleAdmin, ObjectAuditLog, ActionAuditLogView},
		{roleAdmin, ObjectMapping, ActionMappingRematch},
		{roleAdmin, ObjectMapping, ActionMappingClear},
		{roleAdmin, ObjectMapping, ActionMappingDedup},
		{roleAdmin, ObjectMapping, ActionMappingCleanup},
		{roleAdmin, ObjectResync, ActionResyncTrigger},

		// The scheduler and internal jobs run as system.
		{roleSystem, ObjectProfile, ActionProfileView},
		{roleSystem, ObjectPackages, ActionPackagesSync},
		{roleSystem, ObjectMapping, ActionMappingDedup},
		{roleSystem, ObjectResync, ActionResyncTrigger},
	}

	for _, policy := range policies {
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}

var Module = fx.Module("authorization",
	fx.Provide(NewEnforcer),
	fx.Provide(NewService),
)
