package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// StatusUpdate carries the optional fields written alongside a transition
// out of READY.
type StatusUpdate struct {
	PaidAt *time.Time
	// RealizedPaymentID replaces the stored external payment id when the
	// provider reports the id of the payment it actually executed.
	RealizedPaymentID string
	// Payload is the raw provider body that determined the transition.
	Payload datatypes.JSON
}

// Repository persists payment orders. Every mutation out of READY is a
// conditional update; the boolean result reports whether this caller won the
// transition (zero affected rows is a benign race, not an error).
type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, order *PaymentOrder) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*PaymentOrder, error)
	FindByIDForOwner(ctx context.Context, db *gorm.DB, id, ownerID snowflake.ID) (*PaymentOrder, error)

	UpdateStatusFromReady(ctx context.Context, db *gorm.DB, id snowflake.ID, status string, update StatusUpdate, now time.Time) (bool, error)

	BeginReplace(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error)
	FinishReplace(ctx context.Context, db *gorm.DB, order *PaymentOrder, now time.Time) (bool, error)
	// AbortReplace releases a REPLACING claim into the given status: back to
	// READY when the old schedule survived, CANCELLED when it was already
	// revoked and no new one exists.
	AbortReplace(ctx context.Context, db *gorm.DB, id snowflake.ID, status string, now time.Time) (bool, error)

	FindScheduledInWindow(ctx context.Context, db *gorm.DB, from, to time.Time) ([]*PaymentOrder, error)
	// FindReadySchedulesBefore returns READY schedules whose charge time is
	// older than cutoff, for staleness escalation.
	FindReadySchedulesBefore(ctx context.Context, db *gorm.DB, cutoff time.Time) ([]*PaymentOrder, error)
	FindReadySchedulesByMethod(ctx context.Context, db *gorm.DB, methodID snowflake.ID) ([]*PaymentOrder, error)
	FindActiveScheduleByOwner(ctx context.Context, db *gorm.DB, ownerID snowflake.ID) (*PaymentOrder, error)
	FindRecentPaidByOwner(ctx context.Context, db *gorm.DB, ownerID snowflake.ID) (*PaymentOrder, error)
	ListByOwner(ctx context.Context, db *gorm.DB, ownerID snowflake.ID, createdBefore *time.Time, beforeID snowflake.ID, limit int) ([]*PaymentOrder, error)
}
