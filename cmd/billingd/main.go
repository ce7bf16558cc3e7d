package main

import (
	"github.com/fitsync/billing/internal/clock"
	"github.com/fitsync/billing/internal/config"
	"github.com/fitsync/billing/internal/method"
	"github.com/fitsync/billing/internal/migration"
	"github.com/fitsync/billing/internal/monitor"
	"github.com/fitsync/billing/internal/order"
	"github.com/fitsync/billing/internal/payment"
	"github.com/fitsync/billing/internal/portone"
	"github.com/fitsync/billing/pkg/db"
	"github.com/fitsync/billing/pkg/id"
	"github.com/fitsync/billing/pkg/log"
	"go.uber.org/fx"
)

func main() {
	fx.New(
		config.Module,
		log.Module,
		clock.Module,
		id.Module,
		db.Module,
		migration.Module,
		portone.Module,
		order.Module,
		method.Module,
		payment.Module,
		monitor.Module,
	).Run()
}
