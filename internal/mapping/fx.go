package mapping

import (
	"github.com/lilasstudio/crmlink/internal/mapping/repository"
	"github.com/lilasstudio/crmlink/internal/mapping/service"
	"go.uber.org/fx"
)

var Module = fx.Module("mapping.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
