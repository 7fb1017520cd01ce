package crm

import (
	"github.com/lilasstudio/crmlink/internal/config"
	"github.com/lilasstudio/crmlink/internal/crm/client"
	"github.com/lilasstudio/crmlink/internal/crm/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("crm",
	fx.Provide(provideClient),
)

type clientResult struct {
	fx.Out

	Directory domain.Directory
	Ledger    domain.Ledger
}

func provideClient(cfg config.Config, log *zap.Logger) clientResult {
	c := client.New(cfg.CRM, log)
	return clientResult{
		Directory: c,
		Ledger:    c,
	}
}
