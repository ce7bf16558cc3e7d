package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/fitsync/billing/internal/portone"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, method *BillingMethod) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*BillingMethod, error)
	FindByIDForOwner(ctx context.Context, db *gorm.DB, id, ownerID snowflake.ID) (*BillingMethod, error)
	FindByOwnerAndFingerprint(ctx context.Context, db *gorm.DB, ownerID snowflake.ID, fingerprint string) (*BillingMethod, error)
	ListByOwner(ctx context.Context, db *gorm.DB, ownerID snowflake.ID) ([]*BillingMethod, error)
	UpdateDisplayName(ctx context.Context, db *gorm.DB, id, ownerID snowflake.ID, displayName string) (bool, error)
	Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error
}

// KeyGateway is the slice of the payment gateway the method store needs.
type KeyGateway interface {
	GetBillingKey(ctx context.Context, billingKey string) (*portone.BillingKeyInfo, error)
	DeleteBillingKey(ctx context.Context, billingKey string) error
}

// ScheduleCanceller cancels every still-pending schedule tied to a method.
// Implemented by the payment orchestrator; deleting a method must not leave
// gateway schedules pointing at a removed key.
type ScheduleCanceller interface {
	CancelSchedulesForMethod(ctx context.Context, methodID, ownerID snowflake.ID) error
}

type RegisterRequest struct {
	OwnerID     snowflake.ID
	BillingKey  string
	DisplayName string
	// ReplaceDuplicate removes a fingerprint-matching existing method before
	// registering. When false a match is rejected with ErrDuplicateMethod.
	ReplaceDuplicate bool
}

type Service interface {
	Register(ctx context.Context, req RegisterRequest) (*BillingMethod, error)
	CheckDuplicate(ctx context.Context, ownerID snowflake.ID, billingKey string) (*BillingMethod, error)
	Rename(ctx context.Context, ownerID, methodID snowflake.ID, displayName string) error
	List(ctx context.Context, ownerID snowflake.ID) ([]*BillingMethod, error)
	KeyInfo(ctx context.Context, ownerID, methodID snowflake.ID) (*portone.BillingKeyInfo, error)
	Delete(ctx context.Context, ownerID, methodID snowflake.ID) error
}
