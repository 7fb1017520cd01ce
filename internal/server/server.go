package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lilasstudio/crmlink/internal/audit"
	"github.com/lilasstudio/crmlink/internal/authorization"
	"github.com/lilasstudio/crmlink/internal/cache"
	"github.com/lilasstudio/crmlink/internal/clock"
	"github.com/lilasstudio/crmlink/internal/config"
	"github.com/lilasstudio/crmlink/internal/crm"
	"github.com/lilasstudio/crmlink/internal/identity"
	identitydomain "github.com/lilasstudio/crmlink/internal/identity/domain"
	"github.com/lilasstudio/crmlink/internal/mapping"
	mappingdomain "github.com/lilasstudio/crmlink/internal/mapping/domain"
	"github.com/lilasstudio/crmlink/internal/matcher"
	"github.com/lilasstudio/crmlink/internal/observability"
	obsmiddleware "github.com/lilasstudio/crmlink/internal/observability/logger"
	obstracing "github.com/lilasstudio/crmlink/internal/observability/tracing"
	"github.com/lilasstudio/crmlink/internal/pkgcache"
	pkgcachedomain "github.com/lilasstudio/crmlink/internal/pkgcache/domain"
	"github.com/lilasstudio/crmlink/internal/profile"
	profiledomain "github.com/lilasstudio/crmlink/internal/profile/domain"
	"github.com/lilasstudio/crmlink/internal/ratelimit"
	"github.com/lilasstudio/crmlink/internal/resync"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	authorization.Module,
	audit.Module,
	cache.Module,
	ratelimit.Module,
	crm.Module,
	profile.Module,
	matcher.Module,
	mapping.Module,
	identity.Module,
	pkgcache.Module,
	resync.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(ActorMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config) *gin.Engine {
	return NewEngine(obsCfg)
}

func run(lc fx.Lifecycle, r *gin.Engine) {
	srv := &http.Server{
		Addr:    ":8080",
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine        *gin.Engine
	cfg           config.Config
	db            *gorm.DB
	log           *zap.Logger
	clock         clock.Clock
	profileSvc    profiledomain.Service
	identitySvc   identitydomain.Service
	mappingSvc    mappingdomain.Service
	packageSvc    pkgcachedomain.Service
	membership    cache.MembershipViewCache
	authzSvc      authorization.Service
	resyncRunner  *resync.Runner
}

type ServerParams struct {
	fx.In

	Gin          *gin.Engine
	Cfg          config.Config
	DB           *gorm.DB
	Log          *zap.Logger
	Clock        clock.Clock
	ProfileSvc   profiledomain.Service
	IdentitySvc  identitydomain.Service
	MappingSvc   mappingdomain.Service
	PackageSvc   pkgcachedomain.Service
	Membership   cache.MembershipViewCache
	AuthzSvc     authorization.Service
	ResyncRunner *resync.Runner
}

func NewServer(p ServerParams) *Server {
	s := &Server{
		engine:       p.Gin,
		cfg:          p.Cfg,
		db:           p.DB,
		log:          p.Log.Named("server"),
		clock:        p.Clock,
		profileSvc:   p.ProfileSvc,
		identitySvc:  p.IdentitySvc,
		mappingSvc:   p.MappingSvc,
		packageSvc:   p.PackageSvc,
		membership:   p.Membership,
		authzSvc:     p.AuthzSvc,
		resyncRunner: p.ResyncRunner,
	}

	s.registerAPIRoutes()
	s.registerAdminRoutes()

	return s
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	api.GET("/ready", s.Ready)

	// -------- Profiles --------
	api.POST("/profiles", s.UpsertProfile)
	api.GET("/profiles", s.ListProfiles)
	api.GET("/profiles/:id", s.GetProfile)
	api.POST("/profiles/:id/contact", s.CaptureContact)

	// -------- Identity resolution --------
	api.POST("/profiles/:id/resolve", s.ResolveProfile)
	api.GET("/profiles/:id/mapping", s.GetMapping)

	// -------- Packages --------
	api.GET("/profiles/:id/packages", s.GetPackages)
	api.POST("/profiles/:id/packages/sync", s.SyncPackages)

	// -------- Membership view --------
	api.GET("/membership/:platformUserId", s.GetMembership)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/api/admin")

	admin.POST("/profiles/:id/rematch",
		s.RequireAuthz(authorization.ObjectMapping, authorization.ActionMappingRematch), s.ForceRematch)
	admin.DELETE("/profiles/:id/mapping",
		s.RequireAuthz(authorization.ObjectMapping, authorization.ActionMappingClear), s.ClearMapping)
	admin.POST("/profiles/:id/deduplicate",
		s.RequireAuthz(authorization.ObjectMapping, authorization.ActionMappingDedup), s.Deduplicate)
	admin.POST("/profiles/:id/mappings/cleanup",
		s.RequireAuthz(authorization.ObjectMapping, authorization.ActionMappingCleanup), s.CleanupMappings)
	admin.POST("/resync",
		s.RequireAuthz(authorization.ObjectResync, authorization.ActionResyncTrigger), s.TriggerResync)
	admin.POST("/roles",
		s.RequireAuthz(authorization.ObjectMapping, authorization.ActionMappingRematch), s.GrantRole)
	admin.DELETE("/roles",
		s.RequireAuthz(authorization.ObjectMapping, authorization.ActionMappingRematch), s.RevokeRole)
}

// Ready reports database reachability for the readiness probe.
func (s *Server) Ready(c *gin.Context) {
	sqlDB, err := s.db.DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
