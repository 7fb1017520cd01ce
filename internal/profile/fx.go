package profile

import (
	"github.com/lilasstudio/crmlink/internal/profile/repository"
	"github.com/lilasstudio/crmlink/internal/profile/service"
	"go.uber.org/fx"
)

var Module = fx.Module("profile.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
