// Package monitor converges locally-recorded schedule orders with the
// gateway's authoritative state. It is the only writer that moves SCHEDULE
// orders out of READY asynchronously.
package monitor

import (
	"context"
	"time"

	"github.com/fitsync/billing/internal/clock"
	obsmetrics "github.com/fitsync/billing/internal/observability/metrics"
	orderdomain "github.com/fitsync/billing/internal/order/domain"
	paymentdomain "github.com/fitsync/billing/internal/payment/domain"
	"github.com/fitsync/billing/internal/portone"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Clock    clock.Clock
	Config   Config
	Gateway  paymentdomain.Gateway
	Orders   orderdomain.Repository
	Payments paymentdomain.Service
}

type Monitor struct {
	db       *gorm.DB
	log      *zap.Logger
	cfg      Config
	clock    clock.Clock
	gateway  paymentdomain.Gateway
	orders   orderdomain.Repository
	payments paymentdomain.Service
}

func New(p Params) (*Monitor, error) {
	if p.DB == nil || p.Log == nil || p.Clock == nil || p.Gateway == nil || p.Orders == nil || p.Payments == nil {
		return nil, ErrInvalidConfig
	}
	return &Monitor{
		db:       p.DB,
		log:      p.Log.Named("monitor").With(zap.String("component", "payment_monitor")),
		cfg:      p.Config.withDefaults(),
		clock:    p.Clock,
		gateway:  p.Gateway,
		orders:   p.Orders,
		payments: p.Payments,
	}, nil
}

func (m *Monitor) RunForever(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		m.runTick(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// runTick contains one tick's failures: errors are logged and a panic is
// recovered, so the next tick always starts fresh.
func (m *Monitor) runTick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("reconciliation tick panicked", zap.Any("panic", r))
		}
	}()
	if err := m.RunOnce(ctx); err != nil {
		m.log.Warn("reconciliation tick failed", zap.Error(err))
	}
}

// RunOnce executes one reconciliation tick: poll READY schedules around now,
// converge determined ones, and escalate rows pending far past their charge
// time. One order's failure never aborts the rest of the tick.
func (m *Monitor) RunOnce(ctx context.Context) error {
	mets := obsmetrics.Monitor()
	mets.Ticks.Inc()
	start := time.Now()
	defer func() {
		mets.TickDuration.Observe(time.Since(start).Seconds())
	}()

	now := m.clock.Now().UTC()
	due, err := m.orders.FindScheduledInWindow(ctx, m.db, now.Add(-m.cfg.Window), now.Add(m.cfg.Window))
	if err != nil {
		return err
	}
	stale, err := m.orders.FindReadySchedulesBefore(ctx, m.db, now.Add(-m.cfg.StaleAfter))
	if err != nil {
		return err
	}

	budget := newCallBudget(m.cfg.MaxAPICallsPerTick)
	polled := 0
	total := len(due) + len(stale)

	for _, order := range due {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !m.pollWithBudget(ctx, budget, order, false, &polled, total) {
			return nil
		}
	}
	for _, order := range stale {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !m.pollWithBudget(ctx, budget, order, true, &polled, total) {
			return nil
		}
	}
	return nil
}

// pollWithBudget returns false when the tick's budget is exhausted.
func (m *Monitor) pollWithBudget(ctx context.Context, budget *callBudget, order *orderdomain.PaymentOrder, stale bool, polled *int, total int) bool {
	if !budget.take() {
		deferred := total - *polled
		obsmetrics.Monitor().Deferred.Add(float64(deferred))
		m.log.Info("api budget exhausted, deferring to next tick",
			zap.Int("deferred", deferred),
		)
		return false
	}
	if *polled > 0 && m.cfg.APICallDelay > 0 {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(m.cfg.APICallDelay):
		}
	}
	*polled++
	m.pollOrder(ctx, order, stale)
	return true
}

func (m *Monitor) pollOrder(ctx context.Context, order *orderdomain.PaymentOrder, stale bool) {
	mets := obsmetrics.Monitor()
	if order.ScheduleID == nil {
		m.log.Error("schedule order without schedule id",
			zap.Int64("order_id", order.ID.Int64()),
		)
		return
	}

	sched, err := m.gateway.GetSchedule(ctx, *order.ScheduleID)
	if err != nil {
		mets.GatewayErrors.WithLabelValues("get_schedule").Inc()
		m.log.Warn("schedule poll failed",
			zap.Int64("order_id", order.ID.Int64()),
			zap.String("schedule_id", *order.ScheduleID),
			zap.Error(err),
		)
		return
	}

	switch sched.Status {
	case portone.ScheduleStatusSucceeded:
		m.transition(ctx, order, orderdomain.StatusPaid, sched.RealizedPaymentID(), sched.Raw)
	case portone.ScheduleStatusFailed:
		m.transition(ctx, order, orderdomain.StatusFailed, "", sched.Raw)
	case portone.ScheduleStatusRevoked:
		m.transition(ctx, order, orderdomain.StatusCancelled, "", sched.Raw)
	case portone.ScheduleStatusScheduled, portone.ScheduleStatusPending:
		if stale {
			mets.Stale.Inc()
			m.log.Error("schedule pending past staleness cutoff, failing order",
				zap.Int64("order_id", order.ID.Int64()),
				zap.String("schedule_id", *order.ScheduleID),
				zap.Timep("schedule_at", order.ScheduleAt),
			)
			m.transition(ctx, order, orderdomain.StatusFailed, "", sched.Raw)
		}
		// Not yet executed: no writes.
	default:
		m.log.Warn("unrecognized schedule status",
			zap.Int64("order_id", order.ID.Int64()),
			zap.String("status", sched.Status),
		)
	}
}

// transition applies a determined status inside a short transaction with a
// conditional update. Zero affected rows means another actor already moved
// the order, which is a benign race.
func (m *Monitor) transition(ctx context.Context, order *orderdomain.PaymentOrder, status, realizedPaymentID string, payload []byte) {
	mets := obsmetrics.Monitor()
	now := m.clock.Now().UTC()
	update := orderdomain.StatusUpdate{
		RealizedPaymentID: realizedPaymentID,
		Payload:           datatypes.JSON(payload),
	}
	if status == orderdomain.StatusPaid {
		update.PaidAt = &now
	}

	var updated bool
	err := m.db.Transaction(func(tx *gorm.DB) error {
		current, err := m.orders.FindByID(ctx, tx, order.ID)
		if err != nil {
			return err
		}
		if current == nil || current.Status != orderdomain.StatusReady {
			return nil
		}
		updated, err = m.orders.UpdateStatusFromReady(ctx, tx, order.ID, status, update, now)
		return err
	})
	if err != nil {
		m.log.Error("order transition failed",
			zap.Int64("order_id", order.ID.Int64()),
			zap.String("to", status),
			zap.Error(err),
		)
		return
	}
	if !updated {
		mets.ConflictSkips.Inc()
		m.log.Info("order already transitioned elsewhere",
			zap.Int64("order_id", order.ID.Int64()),
			zap.String("to", status),
		)
		return
	}

	mets.Transitions.WithLabelValues(status).Inc()
	m.log.Info("order converged",
		zap.Int64("order_id", order.ID.Int64()),
		zap.String("to", status),
		zap.String("realized_payment_id", realizedPaymentID),
	)

	if status == orderdomain.StatusPaid {
		order.Status = orderdomain.StatusPaid
		order.PaidAt = &now
		if _, err := m.payments.ScheduleNextCycle(ctx, order, now); err != nil {
			m.log.Error("next cycle scheduling failed",
				zap.Int64("order_id", order.ID.Int64()),
				zap.Error(err),
			)
		}
	}
}
