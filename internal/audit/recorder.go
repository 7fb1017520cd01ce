package audit

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/lilasstudio/crmlink/internal/observability/obscontext"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Recorder appends audit entries. Recording is best-effort: a failed write
// is logged and swallowed so the audited operation itself never fails.
type Recorder interface {
	Record(ctx context.Context, action string, profileID snowflake.ID, metadata map[string]interface{})
}

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
}

type recorder struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
}

func NewRecorder(p Params) Recorder {
	return &recorder{
		db:    p.DB,
		log:   p.Log.Named("audit"),
		genID: p.GenID,
	}
}

func (r *recorder) Record(ctx context.Context, action string, profileID snowflake.ID, metadata map[string]interface{}) {
	actorType, actorID := obscontext.ActorFromContext(ctx)
	actor := actorType
	if actorID != "" {
		actor = actorType + ":" + actorID
	}

	entry := Entry{
		ID:        r.genID.Generate(),
		Action:    action,
		ProfileID: profileID,
		Actor:     actor,
		Metadata:  datatypes.JSONMap(metadata),
		CreatedAt: time.Now().UTC(),
	}

	err := r.db.WithContext(ctx).Exec(
		`INSERT INTO audit_entries (id, action, profile_id, actor, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.Action,
		entry.ProfileID,
		entry.Actor,
		entry.Metadata,
		entry.CreatedAt,
	).Error
	if err != nil {
		r.log.Warn("audit write failed",
			zap.String("action", action),
			zap.String("profile_id", profileID.String()),
			zap.Error(err),
		)
	}
}

var Module = fx.Module("audit",
	fx.Provide(NewRecorder),
)
