package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Order types.
const (
	TypeDirect   = "DIRECT"
	TypeSchedule = "SCHEDULE"
)

// Order statuses. REPLACING is a provisional claim taken while a schedule's
// billing method is being swapped; the reconciliation monitor only selects
// READY rows, so a claimed order is invisible to it until the swap settles.
const (
	StatusReady     = "READY"
	StatusPaid      = "PAID"
	StatusFailed    = "FAILED"
	StatusCancelled = "CANCELLED"
	StatusReplacing = "REPLACING"
)

// PaymentOrder is the local ledger row for one charge attempt. Rows are
// written READY before any gateway call and are never deleted; terminal rows
// remain for audit.
type PaymentOrder struct {
	ID         snowflake.ID  `json:"id" gorm:"primaryKey"`
	OwnerID    snowflake.ID  `json:"owner_id" gorm:"not null;index"`
	MethodID   *snowflake.ID `json:"method_id" gorm:"index"`
	PaymentID  string        `json:"payment_id" gorm:"type:text;not null;uniqueIndex"`
	Type       string        `json:"type" gorm:"type:text;not null"`
	Status     string        `json:"status" gorm:"type:text;not null;index"`
	OrderName  string        `json:"order_name" gorm:"type:text;not null"`
	Amount     int64         `json:"amount" gorm:"not null"`
	Currency   string        `json:"currency" gorm:"type:text;not null"`
	ScheduleID *string       `json:"schedule_id" gorm:"type:text"`
	ScheduleAt *time.Time    `json:"schedule_at" gorm:"index"`
	PaidAt     *time.Time    `json:"paid_at"`
	// GatewayPayload is the raw provider body that settled the order.
	GatewayPayload datatypes.JSON `json:"-" gorm:"type:jsonb"`
	CreatedAt      time.Time      `json:"created_at" gorm:"not null"`
	UpdatedAt      time.Time      `json:"updated_at" gorm:"not null"`
}

func (PaymentOrder) TableName() string { return "payment_orders" }
