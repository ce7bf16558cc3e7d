// Package migration applies the schema on startup when enabled.
package migration

import (
	"github.com/fitsync/billing/internal/config"
	methoddomain "github.com/fitsync/billing/internal/method/domain"
	orderdomain "github.com/fitsync/billing/internal/order/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migration",
	fx.Invoke(Run),
)

func Run(cfg config.Config, gdb *gorm.DB, log *zap.Logger) error {
	if !cfg.DBAutoMigrate {
		return nil
	}
	if err := gdb.AutoMigrate(
		&methoddomain.BillingMethod{},
		&orderdomain.PaymentOrder{},
	); err != nil {
		return err
	}
	log.Named("migration").Info("schema migrated")
	return nil
}
