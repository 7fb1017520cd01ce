package pkgcache

import (
	"github.com/lilasstudio/crmlink/internal/pkgcache/repository"
	"github.com/lilasstudio/crmlink/internal/pkgcache/service"
	"go.uber.org/fx"
)

var Module = fx.Module("pkgcache.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
