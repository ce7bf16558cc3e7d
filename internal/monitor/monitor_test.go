package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/fitsync/billing/internal/clock"
	"github.com/fitsync/billing/internal/dbtest"
	orderdomain "github.com/fitsync/billing/internal/order/domain"
	orderrepo "github.com/fitsync/billing/internal/order/repository"
	paymentdomain "github.com/fitsync/billing/internal/payment/domain"
	"github.com/fitsync/billing/internal/portone"
	"github.com/fitsync/billing/pkg/db/pagination"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fakeGateway struct {
	getFn    func(ctx context.Context, scheduleID string) (*portone.GetScheduleResponse, error)
	getCalls int
}

func (g *fakeGateway) ChargeByKey(context.Context, string, portone.ChargeRequest) (*portone.ChargeResponse, error) {
	return nil, errors.New("unexpected charge")
}

func (g *fakeGateway) CreateSchedule(context.Context, string, portone.CreateScheduleRequest) (*portone.CreateScheduleResponse, error) {
	return nil, errors.New("unexpected create")
}

func (g *fakeGateway) CancelSchedules(context.Context, portone.CancelSchedulesRequest) (*portone.CancelSchedulesResponse, error) {
	return nil, errors.New("unexpected cancel")
}

func (g *fakeGateway) GetSchedule(ctx context.Context, scheduleID string) (*portone.GetScheduleResponse, error) {
	g.getCalls++
	return g.getFn(ctx, scheduleID)
}

func (g *fakeGateway) ChannelKeyFor(string) string { return "channel-default" }

func (g *fakeGateway) StoreID() string { return "store-1" }

type fakePayments struct {
	nextCycleCalls []snowflake.ID
}

func (p *fakePayments) PayNow(context.Context, paymentdomain.PayNowRequest) (*paymentdomain.PayNowResult, error) {
	return nil, nil
}
func (p *fakePayments) CreateSchedule(context.Context, paymentdomain.CreateScheduleRequest) (*orderdomain.PaymentOrder, error) {
	return nil, nil
}
func (p *fakePayments) CancelSchedule(context.Context, snowflake.ID, snowflake.ID) error {
	return nil
}
func (p *fakePayments) ReplaceScheduleMethod(context.Context, snowflake.ID, snowflake.ID, snowflake.ID) (*orderdomain.PaymentOrder, error) {
	return nil, nil
}
func (p *fakePayments) CancelSchedulesForMethod(context.Context, snowflake.ID, snowflake.ID) error {
	return nil
}
func (p *fakePayments) ScheduleNextCycle(ctx context.Context, prev *orderdomain.PaymentOrder, paidAt time.Time) (*orderdomain.PaymentOrder, error) {
	p.nextCycleCalls = append(p.nextCycleCalls, prev.ID)
	return nil, nil
}
func (p *fakePayments) History(context.Context, snowflake.ID, pagination.Pagination) ([]*orderdomain.PaymentOrder, *pagination.PageInfo, error) {
	return nil, nil, nil
}
func (p *fakePayments) RecentOrder(context.Context, snowflake.ID) (*orderdomain.PaymentOrder, error) {
	return nil, nil
}
func (p *fakePayments) ScheduledOrder(context.Context, snowflake.ID) (*orderdomain.PaymentOrder, error) {
	return nil, nil
}
func (p *fakePayments) SubscriptionStatus(context.Context, snowflake.ID) (*paymentdomain.SubscriptionStatus, error) {
	return nil, nil
}

type fixture struct {
	db       *gorm.DB
	monitor  *Monitor
	gateway  *fakeGateway
	payments *fakePayments
	clock    *clock.FakeClock
	node     *snowflake.Node
	orders   orderdomain.Repository
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()

	db := dbtest.Open(t)
	node, err := snowflake.NewNode(2)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	fakeClock := clock.NewFakeClock(time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC))
	gateway := &fakeGateway{}
	payments := &fakePayments{}
	orders := orderrepo.Provide()

	m, err := New(Params{
		DB:       db,
		Log:      zap.NewNop(),
		Clock:    fakeClock,
		Config:   cfg,
		Gateway:  gateway,
		Orders:   orders,
		Payments: payments,
	})
	if err != nil {
		t.Fatalf("New monitor: %v", err)
	}
	return &fixture{
		db:       db,
		monitor:  m,
		gateway:  gateway,
		payments: payments,
		clock:    fakeClock,
		node:     node,
		orders:   orders,
	}
}

func (f *fixture) seedSchedule(t *testing.T, scheduleID string, at time.Time) *orderdomain.PaymentOrder {
	t.Helper()
	now := f.clock.Now().UTC()
	atUTC := at.UTC()
	methodID := f.node.Generate()
	order := &orderdomain.PaymentOrder{
		ID:         f.node.Generate(),
		OwnerID:    f.node.Generate(),
		MethodID:   &methodID,
		PaymentID:  "pay-" + f.node.Generate().String(),
		Type:       orderdomain.TypeSchedule,
		Status:     orderdomain.StatusReady,
		OrderName:  "membership",
		Amount:     59000,
		Currency:   "KRW",
		ScheduleID: &scheduleID,
		ScheduleAt: &atUTC,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := f.orders.Insert(context.Background(), f.db, order); err != nil {
		t.Fatalf("seed order: %v", err)
	}
	return order
}

func (f *fixture) loadOrder(t *testing.T, id snowflake.ID) *orderdomain.PaymentOrder {
	t.Helper()
	order, err := f.orders.FindByID(context.Background(), f.db, id)
	if err != nil {
		t.Fatalf("load order: %v", err)
	}
	if order == nil {
		t.Fatalf("order %d not found", id)
	}
	return order
}

func testConfig() Config {
	return Config{
		Interval:           time.Minute,
		MaxAPICallsPerTick: 15,
		APICallDelay:       0,
		Window:             10 * time.Minute,
		StaleAfter:         48 * time.Hour,
	}
}

func TestRunOncePendingLeavesOrderUntouched(t *testing.T) {
	f := newFixture(t, testConfig())
	order := f.seedSchedule(t, "sched-1", f.clock.Now())

	f.gateway.getFn = func(ctx context.Context, scheduleID string) (*portone.GetScheduleResponse, error) {
		return &portone.GetScheduleResponse{Status: portone.ScheduleStatusPending}, nil
	}

	if err := f.monitor.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	stored := f.loadOrder(t, order.ID)
	if stored.Status != orderdomain.StatusReady {
		t.Fatalf("expected READY, got %s", stored.Status)
	}
	if !stored.UpdatedAt.Equal(order.UpdatedAt) {
		t.Error("pending poll must not write the row")
	}
	if len(f.payments.nextCycleCalls) != 0 {
		t.Error("pending poll must not chain a next cycle")
	}
}

func TestRunOnceSucceededConverges(t *testing.T) {
	f := newFixture(t, testConfig())
	order := f.seedSchedule(t, "sched-1", f.clock.Now())

	f.gateway.getFn = func(ctx context.Context, scheduleID string) (*portone.GetScheduleResponse, error) {
		return &portone.GetScheduleResponse{
			Status:   portone.ScheduleStatusSucceeded,
			Payments: []portone.SchedulePayout{{ID: "pay-realized"}},
			Raw:      []byte(`{"status":"SUCCEEDED"}`),
		}, nil
	}

	if err := f.monitor.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	stored := f.loadOrder(t, order.ID)
	if stored.Status != orderdomain.StatusPaid {
		t.Fatalf("expected PAID, got %s", stored.Status)
	}
	if stored.PaidAt == nil {
		t.Error("expected paid_at to be set")
	}
	if stored.PaymentID != "pay-realized" {
		t.Errorf("expected realized payment id, got %q", stored.PaymentID)
	}
	if len(f.payments.nextCycleCalls) != 1 || f.payments.nextCycleCalls[0] != order.ID {
		t.Errorf("expected one next-cycle call for the order, got %v", f.payments.nextCycleCalls)
	}

	// A converged order leaves the polling set; the next tick is a no-op.
	calls := f.gateway.getCalls
	if err := f.monitor.RunOnce(context.Background()); err != nil {
		t.Fatalf("second RunOnce: %v", err)
	}
	if f.gateway.getCalls != calls {
		t.Errorf("terminal order polled again: %d -> %d", calls, f.gateway.getCalls)
	}
}

func TestRunOnceFailedAndRevoked(t *testing.T) {
	f := newFixture(t, testConfig())
	failed := f.seedSchedule(t, "sched-failed", f.clock.Now())
	revoked := f.seedSchedule(t, "sched-revoked", f.clock.Now())

	f.gateway.getFn = func(ctx context.Context, scheduleID string) (*portone.GetScheduleResponse, error) {
		switch scheduleID {
		case "sched-failed":
			return &portone.GetScheduleResponse{Status: portone.ScheduleStatusFailed}, nil
		default:
			return &portone.GetScheduleResponse{Status: portone.ScheduleStatusRevoked}, nil
		}
	}

	if err := f.monitor.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	if got := f.loadOrder(t, failed.ID).Status; got != orderdomain.StatusFailed {
		t.Errorf("expected FAILED, got %s", got)
	}
	if got := f.loadOrder(t, revoked.ID).Status; got != orderdomain.StatusCancelled {
		t.Errorf("expected CANCELLED, got %s", got)
	}
	if len(f.payments.nextCycleCalls) != 0 {
		t.Error("non-paid transitions must not chain a next cycle")
	}
}

func TestRunOnceBenignRace(t *testing.T) {
	f := newFixture(t, testConfig())
	order := f.seedSchedule(t, "sched-1", f.clock.Now())

	f.gateway.getFn = func(ctx context.Context, scheduleID string) (*portone.GetScheduleResponse, error) {
		// Another actor moves the row between the select and the update.
		if err := f.db.Exec(
			`UPDATE payment_orders SET status = ? WHERE id = ?`,
			orderdomain.StatusCancelled, order.ID,
		).Error; err != nil {
			t.Fatalf("race update: %v", err)
		}
		return &portone.GetScheduleResponse{Status: portone.ScheduleStatusSucceeded}, nil
	}

	if err := f.monitor.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	if got := f.loadOrder(t, order.ID).Status; got != orderdomain.StatusCancelled {
		t.Fatalf("lost race must leave the other actor's status, got %s", got)
	}
	if len(f.payments.nextCycleCalls) != 0 {
		t.Error("a lost race must not chain a next cycle")
	}
}

func TestRunOnceBudgetDefers(t *testing.T) {
	cfg := testConfig()
	cfg.MaxAPICallsPerTick = 1
	f := newFixture(t, cfg)
	f.seedSchedule(t, "sched-1", f.clock.Now())
	f.seedSchedule(t, "sched-2", f.clock.Now())

	f.gateway.getFn = func(ctx context.Context, scheduleID string) (*portone.GetScheduleResponse, error) {
		return &portone.GetScheduleResponse{Status: portone.ScheduleStatusPending}, nil
	}

	if err := f.monitor.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if f.gateway.getCalls != 1 {
		t.Fatalf("expected 1 gateway call under budget, got %d", f.gateway.getCalls)
	}
}

func TestRunOnceGatewayErrorScopedToOrder(t *testing.T) {
	f := newFixture(t, testConfig())
	broken := f.seedSchedule(t, "sched-broken", f.clock.Now().Add(-time.Minute))
	healthy := f.seedSchedule(t, "sched-ok", f.clock.Now())

	f.gateway.getFn = func(ctx context.Context, scheduleID string) (*portone.GetScheduleResponse, error) {
		if scheduleID == "sched-broken" {
			return nil, &portone.TransportError{Op: "get_schedule", Err: errors.New("timeout")}
		}
		return &portone.GetScheduleResponse{Status: portone.ScheduleStatusSucceeded}, nil
	}

	if err := f.monitor.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	if got := f.loadOrder(t, broken.ID).Status; got != orderdomain.StatusReady {
		t.Errorf("failed poll must leave order READY, got %s", got)
	}
	if got := f.loadOrder(t, healthy.ID).Status; got != orderdomain.StatusPaid {
		t.Errorf("healthy order must still converge, got %s", got)
	}
}

func TestRunOnceStaleEscalation(t *testing.T) {
	f := newFixture(t, testConfig())
	stale := f.seedSchedule(t, "sched-stale", f.clock.Now().Add(-49*time.Hour))

	f.gateway.getFn = func(ctx context.Context, scheduleID string) (*portone.GetScheduleResponse, error) {
		return &portone.GetScheduleResponse{Status: portone.ScheduleStatusScheduled}, nil
	}

	if err := f.monitor.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	if got := f.loadOrder(t, stale.ID).Status; got != orderdomain.StatusFailed {
		t.Fatalf("expected stale order FAILED, got %s", got)
	}
}

func TestTickPanicContained(t *testing.T) {
	f := newFixture(t, testConfig())
	order := f.seedSchedule(t, "sched-1", f.clock.Now())

	f.gateway.getFn = func(ctx context.Context, scheduleID string) (*portone.GetScheduleResponse, error) {
		panic("gateway blew up")
	}

	// A panicking tick must not escape the loop.
	f.monitor.runTick(context.Background())

	// And the next tick still runs and converges.
	f.gateway.getFn = func(ctx context.Context, scheduleID string) (*portone.GetScheduleResponse, error) {
		return &portone.GetScheduleResponse{Status: portone.ScheduleStatusSucceeded}, nil
	}
	f.monitor.runTick(context.Background())

	if got := f.loadOrder(t, order.ID).Status; got != orderdomain.StatusPaid {
		t.Fatalf("expected PAID after recovered tick, got %s", got)
	}
}

func TestRunOnceReplacingInvisible(t *testing.T) {
	f := newFixture(t, testConfig())
	order := f.seedSchedule(t, "sched-1", f.clock.Now())

	claimed, err := f.orders.BeginReplace(context.Background(), f.db, order.ID, f.clock.Now().UTC())
	if err != nil || !claimed {
		t.Fatalf("claim replace: %v %v", claimed, err)
	}

	f.gateway.getFn = func(ctx context.Context, scheduleID string) (*portone.GetScheduleResponse, error) {
		t.Error("claimed order must not be polled")
		return nil, errors.New("unexpected")
	}

	if err := f.monitor.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if f.gateway.getCalls != 0 {
		t.Fatalf("expected no gateway calls, got %d", f.gateway.getCalls)
	}
}
