package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	orderdomain "github.com/fitsync/billing/internal/order/domain"
	"github.com/fitsync/billing/internal/portone"
	"github.com/fitsync/billing/pkg/db/pagination"
)

// Gateway is the slice of the payment provider the orchestrator needs.
type Gateway interface {
	ChargeByKey(ctx context.Context, paymentID string, req portone.ChargeRequest) (*portone.ChargeResponse, error)
	CreateSchedule(ctx context.Context, paymentID string, req portone.CreateScheduleRequest) (*portone.CreateScheduleResponse, error)
	CancelSchedules(ctx context.Context, req portone.CancelSchedulesRequest) (*portone.CancelSchedulesResponse, error)
	GetSchedule(ctx context.Context, scheduleID string) (*portone.GetScheduleResponse, error)
	ChannelKeyFor(provider string) string
	StoreID() string
}

type PayNowRequest struct {
	OwnerID   snowflake.ID
	MethodID  snowflake.ID
	OrderName string
	Amount    int64
	Currency  string
}

type PayNowResult struct {
	Order  *orderdomain.PaymentOrder
	Charge *portone.ChargeResponse
}

type CreateScheduleRequest struct {
	OwnerID   snowflake.ID
	MethodID  snowflake.ID
	OrderName string
	Amount    int64
	Currency  string
	// At is the local wall-clock time the charge should execute, interpreted
	// in the service time zone. It must be strictly in the future.
	At time.Time
}

type SubscriptionStatus struct {
	Active        bool       `json:"active"`
	LastPaidAt    *time.Time `json:"last_paid_at"`
	NextBillingAt *time.Time `json:"next_billing_at"`
}

type Service interface {
	PayNow(ctx context.Context, req PayNowRequest) (*PayNowResult, error)

	CreateSchedule(ctx context.Context, req CreateScheduleRequest) (*orderdomain.PaymentOrder, error)
	CancelSchedule(ctx context.Context, orderID, ownerID snowflake.ID) error
	ReplaceScheduleMethod(ctx context.Context, orderID, ownerID, newMethodID snowflake.ID) (*orderdomain.PaymentOrder, error)
	CancelSchedulesForMethod(ctx context.Context, methodID, ownerID snowflake.ID) error

	// ScheduleNextCycle chains the next billing cycle after a confirmed
	// charge. Called by PayNow and by the reconciliation monitor.
	ScheduleNextCycle(ctx context.Context, prev *orderdomain.PaymentOrder, paidAt time.Time) (*orderdomain.PaymentOrder, error)

	History(ctx context.Context, ownerID snowflake.ID, page pagination.Pagination) ([]*orderdomain.PaymentOrder, *pagination.PageInfo, error)
	RecentOrder(ctx context.Context, ownerID snowflake.ID) (*orderdomain.PaymentOrder, error)
	ScheduledOrder(ctx context.Context, ownerID snowflake.ID) (*orderdomain.PaymentOrder, error)
	SubscriptionStatus(ctx context.Context, ownerID snowflake.ID) (*SubscriptionStatus, error)
}

// CycleDays is the subscription cycle length. The provider has no native
// subscription primitive, so recurring billing chains one-shot schedules.
const CycleDays = 31

// NextCycleAt returns the next cycle's charge time: paidAt plus one cycle,
// normalized to local midnight in loc.
func NextCycleAt(paidAt time.Time, loc *time.Location) time.Time {
	next := paidAt.In(loc).AddDate(0, 0, CycleDays)
	return time.Date(next.Year(), next.Month(), next.Day(), 0, 0, 0, 0, loc)
}
