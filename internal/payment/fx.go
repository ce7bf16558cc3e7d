package payment

import (
	methoddomain "github.com/fitsync/billing/internal/method/domain"
	paymentdomain "github.com/fitsync/billing/internal/payment/domain"
	"github.com/fitsync/billing/internal/payment/service"
	"github.com/fitsync/billing/internal/portone"
	"go.uber.org/fx"
)

var Module = fx.Module("payment",
	fx.Provide(func(c *portone.Client) paymentdomain.Gateway { return c }),
	fx.Provide(service.NewService),
	fx.Provide(func(s paymentdomain.Service) methoddomain.ScheduleCanceller { return s }),
)
