package method

import (
	methoddomain "github.com/fitsync/billing/internal/method/domain"
	"github.com/fitsync/billing/internal/method/repository"
	"github.com/fitsync/billing/internal/method/service"
	"github.com/fitsync/billing/internal/portone"
	"go.uber.org/fx"
)

var Module = fx.Module("method",
	fx.Provide(repository.Provide),
	fx.Provide(func(c *portone.Client) methoddomain.KeyGateway { return c }),
	fx.Provide(service.NewService),
)
