// Package dbtest opens in-memory databases with the billing schema for tests.
package dbtest

import (
	"testing"

	methoddomain "github.com/fitsync/billing/internal/method/domain"
	orderdomain "github.com/fitsync/billing/internal/order/domain"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func Open(t *testing.T) *gorm.DB {
	t.Helper()

	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := gdb.AutoMigrate(
		&methoddomain.BillingMethod{},
		&orderdomain.PaymentOrder{},
	); err != nil {
		t.Fatalf("migrate schema: %v", err)
	}
	return gdb
}
