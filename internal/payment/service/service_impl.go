package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/fitsync/billing/internal/clock"
	"github.com/fitsync/billing/internal/config"
	methoddomain "github.com/fitsync/billing/internal/method/domain"
	obsmetrics "github.com/fitsync/billing/internal/observability/metrics"
	orderdomain "github.com/fitsync/billing/internal/order/domain"
	paymentdomain "github.com/fitsync/billing/internal/payment/domain"
	"github.com/fitsync/billing/internal/portone"
	"github.com/fitsync/billing/pkg/db/pagination"
	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const defaultCurrency = "KRW"

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Cfg     config.Config
	Gateway paymentdomain.Gateway
	Orders  orderdomain.Repository
	Methods methoddomain.Repository
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	cfg     config.Config
	loc     *time.Location
	gateway paymentdomain.Gateway
	orders  orderdomain.Repository
	methods methoddomain.Repository
	metrics *obsmetrics.PaymentMetrics
}

func NewService(p Params) paymentdomain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("payment.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		cfg:     p.Cfg,
		loc:     p.Cfg.Location(),
		gateway: p.Gateway,
		orders:  p.Orders,
		methods: p.Methods,
		metrics: obsmetrics.Payments(),
	}
}

// PayNow charges a stored billing method immediately. The order row is
// written READY before the gateway call so every attempt is locally traceable
// even across a crash; if that write fails, no money moves.
func (s *Service) PayNow(ctx context.Context, req paymentdomain.PayNowRequest) (*paymentdomain.PayNowResult, error) {
	method, err := s.methods.FindByIDForOwner(ctx, s.db, req.MethodID, req.OwnerID)
	if err != nil {
		return nil, err
	}
	if method == nil {
		return nil, methoddomain.ErrMethodNotFound
	}

	now := s.clock.Now().UTC()
	methodID := method.ID
	order := &orderdomain.PaymentOrder{
		ID:        s.genID.Generate(),
		OwnerID:   req.OwnerID,
		MethodID:  &methodID,
		PaymentID: uuid.NewString(),
		Type:      orderdomain.TypeDirect,
		Status:    orderdomain.StatusReady,
		OrderName: req.OrderName,
		Amount:    req.Amount,
		Currency:  currencyOrDefault(req.Currency),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.orders.Insert(ctx, s.db, order); err != nil {
		return nil, err
	}

	charge, err := s.gateway.ChargeByKey(ctx, order.PaymentID, portone.ChargeRequest{
		StoreID:    s.gateway.StoreID(),
		BillingKey: method.BillingKey,
		ChannelKey: s.gateway.ChannelKeyFor(method.Provider),
		OrderName:  order.OrderName,
		Amount:     portone.Amount{Total: order.Amount},
		Currency:   order.Currency,
	})
	if err != nil {
		s.markFailed(ctx, order.ID)
		s.metrics.Charges.WithLabelValues("failed").Inc()
		return nil, err
	}

	paidAt := s.clock.Now().UTC()
	if _, err := s.orders.UpdateStatusFromReady(ctx, s.db, order.ID, orderdomain.StatusPaid,
		orderdomain.StatusUpdate{PaidAt: &paidAt, Payload: datatypes.JSON(charge.Raw)}, paidAt); err != nil {
		return nil, err
	}
	order.Status = orderdomain.StatusPaid
	order.PaidAt = &paidAt
	s.metrics.Charges.WithLabelValues("paid").Inc()

	if s.cfg.AutoScheduleEnabled {
		if _, err := s.ScheduleNextCycle(ctx, order, paidAt); err != nil {
			// The charge itself succeeded; the broken chain surfaces in logs
			// and the owner's subscription status.
			s.log.Error("next cycle scheduling failed",
				zap.Int64("order_id", order.ID.Int64()),
				zap.Error(err),
			)
		}
	}
	return &paymentdomain.PayNowResult{Order: order, Charge: charge}, nil
}

// CreateSchedule registers a deferred charge. The schedule time is validated
// against the service time zone before any gateway call.
func (s *Service) CreateSchedule(ctx context.Context, req paymentdomain.CreateScheduleRequest) (*orderdomain.PaymentOrder, error) {
	at := req.At.In(s.loc)
	if !at.After(s.clock.Now().In(s.loc)) {
		return nil, paymentdomain.ErrInvalidSchedule
	}

	method, err := s.methods.FindByIDForOwner(ctx, s.db, req.MethodID, req.OwnerID)
	if err != nil {
		return nil, err
	}
	if method == nil {
		return nil, methoddomain.ErrMethodNotFound
	}

	pending, err := s.orders.FindReadySchedulesByMethod(ctx, s.db, method.ID)
	if err != nil {
		return nil, err
	}
	if len(pending) > 0 {
		return nil, paymentdomain.ErrScheduleExists
	}

	return s.createSchedule(ctx, method, req.OwnerID, req.OrderName, req.Amount, currencyOrDefault(req.Currency), at)
}

// createSchedule performs the gateway call and persists the READY order.
// The gateway call comes first: a schedule id must exist before anything is
// recorded, and a failed local write triggers a compensating cancellation.
func (s *Service) createSchedule(ctx context.Context, method *methoddomain.BillingMethod, ownerID snowflake.ID, orderName string, amount int64, currency string, at time.Time) (*orderdomain.PaymentOrder, error) {
	paymentID := uuid.NewString()
	resp, err := s.gateway.CreateSchedule(ctx, paymentID, portone.CreateScheduleRequest{
		Payment: portone.SchedulePayment{
			StoreID:    s.gateway.StoreID(),
			BillingKey: method.BillingKey,
			ChannelKey: s.gateway.ChannelKeyFor(method.Provider),
			OrderName:  orderName,
			Amount:     portone.Amount{Total: amount},
			Currency:   currency,
		},
		TimeToPay: at.Format(time.RFC3339),
	})
	if err != nil {
		return nil, err
	}
	scheduleID := resp.Schedule.ID
	if scheduleID == "" {
		return nil, paymentdomain.ErrScheduleIDMissing
	}

	now := s.clock.Now().UTC()
	methodID := method.ID
	scheduleAt := at.UTC()
	order := &orderdomain.PaymentOrder{
		ID:         s.genID.Generate(),
		OwnerID:    ownerID,
		MethodID:   &methodID,
		PaymentID:  paymentID,
		Type:       orderdomain.TypeSchedule,
		Status:     orderdomain.StatusReady,
		OrderName:  orderName,
		Amount:     amount,
		Currency:   currency,
		ScheduleID: &scheduleID,
		ScheduleAt: &scheduleAt,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.orders.Insert(ctx, s.db, order); err != nil {
		if _, cancelErr := s.gateway.CancelSchedules(ctx, portone.CancelSchedulesRequest{
			ScheduleIDs: []string{scheduleID},
		}); cancelErr != nil {
			s.log.Error("compensating cancellation failed, schedule orphaned",
				zap.String("schedule_id", scheduleID),
				zap.Error(cancelErr),
			)
		}
		return nil, err
	}

	s.metrics.SchedulesCreated.Inc()
	s.log.Info("schedule created",
		zap.Int64("order_id", order.ID.Int64()),
		zap.String("schedule_id", scheduleID),
		zap.Time("schedule_at", scheduleAt),
	)
	return order, nil
}

// CancelSchedule revokes a pending schedule. The order is marked CANCELLED
// only after the gateway confirms the exact schedule id was revoked.
func (s *Service) CancelSchedule(ctx context.Context, orderID, ownerID snowflake.ID) error {
	order, err := s.orders.FindByIDForOwner(ctx, s.db, orderID, ownerID)
	if err != nil {
		return err
	}
	if order == nil {
		return orderdomain.ErrOrderNotFound
	}
	if order.Type != orderdomain.TypeSchedule || order.ScheduleID == nil {
		return orderdomain.ErrNotSchedule
	}
	if order.Status != orderdomain.StatusReady {
		return orderdomain.ErrNotReady
	}

	scheduleID := *order.ScheduleID
	resp, err := s.gateway.CancelSchedules(ctx, portone.CancelSchedulesRequest{
		ScheduleIDs: []string{scheduleID},
	})
	if err != nil {
		return err
	}
	if !resp.Revoked(scheduleID) {
		return paymentdomain.ErrScheduleNotRevoked
	}

	updated, err := s.orders.UpdateStatusFromReady(ctx, s.db, order.ID, orderdomain.StatusCancelled,
		orderdomain.StatusUpdate{}, s.clock.Now().UTC())
	if err != nil {
		return err
	}
	if !updated {
		// The monitor saw the revocation first; the row is already terminal.
		s.log.Warn("cancel raced with another transition",
			zap.Int64("order_id", order.ID.Int64()),
		)
		return nil
	}
	s.metrics.SchedulesCancelled.Inc()
	return nil
}

// CancelSchedulesForMethod revokes every pending schedule tied to a method.
// Used before a billing method is deleted.
func (s *Service) CancelSchedulesForMethod(ctx context.Context, methodID, ownerID snowflake.ID) error {
	pending, err := s.orders.FindReadySchedulesByMethod(ctx, s.db, methodID)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}

	scheduleIDs := make([]string, 0, len(pending))
	for _, order := range pending {
		if order.ScheduleID != nil {
			scheduleIDs = append(scheduleIDs, *order.ScheduleID)
		}
	}
	resp, err := s.gateway.CancelSchedules(ctx, portone.CancelSchedulesRequest{
		ScheduleIDs: scheduleIDs,
	})
	if err != nil {
		return err
	}

	now := s.clock.Now().UTC()
	for _, order := range pending {
		if order.ScheduleID == nil || !resp.Revoked(*order.ScheduleID) {
			continue
		}
		if _, err := s.orders.UpdateStatusFromReady(ctx, s.db, order.ID, orderdomain.StatusCancelled,
			orderdomain.StatusUpdate{}, now); err != nil {
			return err
		}
		s.metrics.SchedulesCancelled.Inc()
	}
	for _, id := range scheduleIDs {
		if !resp.Revoked(id) {
			return paymentdomain.ErrScheduleNotRevoked
		}
	}
	return nil
}

// ReplaceScheduleMethod swaps the billing method behind a pending schedule:
// the old gateway schedule is revoked and a new one created at the same time,
// then the order's identifiers are overwritten in place. One logical schedule
// survives the swap without duplicating the ledger. The REPLACING claim keeps
// the reconciliation monitor off the row while the swap is in flight.
func (s *Service) ReplaceScheduleMethod(ctx context.Context, orderID, ownerID, newMethodID snowflake.ID) (*orderdomain.PaymentOrder, error) {
	order, err := s.orders.FindByIDForOwner(ctx, s.db, orderID, ownerID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, orderdomain.ErrOrderNotFound
	}
	if order.Type != orderdomain.TypeSchedule || order.ScheduleID == nil || order.ScheduleAt == nil {
		return nil, orderdomain.ErrNotSchedule
	}

	method, err := s.methods.FindByIDForOwner(ctx, s.db, newMethodID, ownerID)
	if err != nil {
		return nil, err
	}
	if method == nil {
		return nil, methoddomain.ErrMethodNotFound
	}

	now := s.clock.Now().UTC()
	claimed, err := s.orders.BeginReplace(ctx, s.db, order.ID, now)
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, paymentdomain.ErrReplaceConflict
	}

	oldScheduleID := *order.ScheduleID
	resp, err := s.gateway.CancelSchedules(ctx, portone.CancelSchedulesRequest{
		ScheduleIDs: []string{oldScheduleID},
	})
	if err != nil {
		s.releaseReplace(ctx, order.ID, orderdomain.StatusReady)
		return nil, err
	}
	if !resp.Revoked(oldScheduleID) {
		s.releaseReplace(ctx, order.ID, orderdomain.StatusReady)
		return nil, paymentdomain.ErrScheduleNotRevoked
	}

	at := order.ScheduleAt.In(s.loc)
	paymentID := uuid.NewString()
	created, err := s.gateway.CreateSchedule(ctx, paymentID, portone.CreateScheduleRequest{
		Payment: portone.SchedulePayment{
			StoreID:    s.gateway.StoreID(),
			BillingKey: method.BillingKey,
			ChannelKey: s.gateway.ChannelKeyFor(method.Provider),
			OrderName:  order.OrderName,
			Amount:     portone.Amount{Total: order.Amount},
			Currency:   order.Currency,
		},
		TimeToPay: at.Format(time.RFC3339),
	})
	if err != nil {
		// The old schedule is already revoked; READY would claim a live
		// schedule that no longer exists.
		s.releaseReplace(ctx, order.ID, orderdomain.StatusCancelled)
		return nil, err
	}
	newScheduleID := created.Schedule.ID
	if newScheduleID == "" {
		s.releaseReplace(ctx, order.ID, orderdomain.StatusCancelled)
		return nil, paymentdomain.ErrScheduleIDMissing
	}

	order.MethodID = &newMethodID
	order.PaymentID = paymentID
	order.ScheduleID = &newScheduleID
	done, err := s.orders.FinishReplace(ctx, s.db, order, s.clock.Now().UTC())
	if err != nil {
		return nil, err
	}
	if !done {
		s.log.Error("replace claim lost before finish",
			zap.Int64("order_id", order.ID.Int64()),
		)
		return nil, paymentdomain.ErrReplaceConflict
	}
	order.Status = orderdomain.StatusReady
	s.metrics.SchedulesReplaced.Inc()
	return order, nil
}

// ScheduleNextCycle chains the next billing cycle after a confirmed charge.
// Skipped when the method is gone or a pending schedule already exists, so a
// monitor catching up on an old PAID never double-schedules.
func (s *Service) ScheduleNextCycle(ctx context.Context, prev *orderdomain.PaymentOrder, paidAt time.Time) (*orderdomain.PaymentOrder, error) {
	if prev.MethodID == nil {
		return nil, nil
	}
	method, err := s.methods.FindByID(ctx, s.db, *prev.MethodID)
	if err != nil {
		return nil, err
	}
	if method == nil {
		s.log.Info("next cycle skipped, method deleted",
			zap.Int64("order_id", prev.ID.Int64()),
		)
		return nil, nil
	}

	pending, err := s.orders.FindReadySchedulesByMethod(ctx, s.db, method.ID)
	if err != nil {
		return nil, err
	}
	if len(pending) > 0 {
		s.log.Info("next cycle already scheduled",
			zap.Int64("method_id", method.ID.Int64()),
		)
		return nil, nil
	}

	at := paymentdomain.NextCycleAt(paidAt, s.loc)
	return s.createSchedule(ctx, method, prev.OwnerID, prev.OrderName, prev.Amount, prev.Currency, at)
}

func (s *Service) History(ctx context.Context, ownerID snowflake.ID, page pagination.Pagination) ([]*orderdomain.PaymentOrder, *pagination.PageInfo, error) {
	limit := page.PageSize
	if limit <= 0 {
		limit = 10
	}

	var createdBefore *time.Time
	var beforeID snowflake.ID
	if page.PageToken != "" {
		cursor, err := pagination.DecodeCursor(page.PageToken)
		if err != nil {
			return nil, nil, err
		}
		parsed, err := time.Parse(time.RFC3339Nano, cursor.CreatedAt)
		if err != nil {
			return nil, nil, err
		}
		createdBefore = &parsed
		if cursor.ID != "" {
			id, err := snowflake.ParseString(cursor.ID)
			if err != nil {
				return nil, nil, err
			}
			beforeID = id
		}
	}

	items, err := s.orders.ListByOwner(ctx, s.db, ownerID, createdBefore, beforeID, limit+1)
	if err != nil {
		return nil, nil, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, int32(limit), func(order *orderdomain.PaymentOrder) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        order.ID.String(),
			CreatedAt: order.CreatedAt.Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if len(items) > limit {
		items = items[:limit]
	}
	return items, pageInfo, nil
}

func (s *Service) RecentOrder(ctx context.Context, ownerID snowflake.ID) (*orderdomain.PaymentOrder, error) {
	items, err := s.orders.ListByOwner(ctx, s.db, ownerID, nil, 0, 1)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, orderdomain.ErrOrderNotFound
	}
	return items[0], nil
}

func (s *Service) ScheduledOrder(ctx context.Context, ownerID snowflake.ID) (*orderdomain.PaymentOrder, error) {
	order, err := s.orders.FindActiveScheduleByOwner(ctx, s.db, ownerID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, orderdomain.ErrOrderNotFound
	}
	return order, nil
}

// SubscriptionStatus reports whether the owner's billing chain is alive: a
// pending next-cycle schedule, or a charge within the current cycle.
func (s *Service) SubscriptionStatus(ctx context.Context, ownerID snowflake.ID) (*paymentdomain.SubscriptionStatus, error) {
	status := &paymentdomain.SubscriptionStatus{}

	lastPaid, err := s.orders.FindRecentPaidByOwner(ctx, s.db, ownerID)
	if err != nil {
		return nil, err
	}
	if lastPaid != nil {
		status.LastPaidAt = lastPaid.PaidAt
	}

	scheduled, err := s.orders.FindActiveScheduleByOwner(ctx, s.db, ownerID)
	if err != nil {
		return nil, err
	}
	if scheduled != nil {
		status.Active = true
		status.NextBillingAt = scheduled.ScheduleAt
		return status, nil
	}

	if lastPaid != nil && lastPaid.PaidAt != nil {
		cycleEnd := lastPaid.PaidAt.AddDate(0, 0, paymentdomain.CycleDays)
		status.Active = s.clock.Now().UTC().Before(cycleEnd)
	}
	return status, nil
}

func (s *Service) markFailed(ctx context.Context, orderID snowflake.ID) {
	if _, err := s.orders.UpdateStatusFromReady(ctx, s.db, orderID, orderdomain.StatusFailed,
		orderdomain.StatusUpdate{}, s.clock.Now().UTC()); err != nil {
		s.log.Error("failed to mark order failed",
			zap.Int64("order_id", orderID.Int64()),
			zap.Error(err),
		)
	}
}

func (s *Service) releaseReplace(ctx context.Context, orderID snowflake.ID, status string) {
	if _, err := s.orders.AbortReplace(ctx, s.db, orderID, status, s.clock.Now().UTC()); err != nil {
		s.log.Error("failed to release replace claim",
			zap.Int64("order_id", orderID.Int64()),
			zap.String("status", status),
			zap.Error(err),
		)
	}
}

func currencyOrDefault(currency string) string {
	if currency == "" {
		return defaultCurrency
	}
	return currency
}
