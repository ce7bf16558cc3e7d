// Package metrics exposes prometheus instrumentation for the billing core.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// MonitorMetrics covers the reconciliation monitor.
type MonitorMetrics struct {
	Ticks         prometheus.Counter
	TickDuration  prometheus.Histogram
	Transitions   *prometheus.CounterVec
	GatewayErrors *prometheus.CounterVec
	Deferred      prometheus.Counter
	ConflictSkips prometheus.Counter
	Stale         prometheus.Counter
}

// PaymentMetrics covers the request-path orchestrator.
type PaymentMetrics struct {
	Charges            *prometheus.CounterVec
	SchedulesCreated   prometheus.Counter
	SchedulesCancelled prometheus.Counter
	SchedulesReplaced  prometheus.Counter
}

var (
	mu             sync.Mutex
	monitorShared  *MonitorMetrics
	paymentsShared *PaymentMetrics
)

// Monitor returns the shared monitor metric set, registering it on first use.
func Monitor() *MonitorMetrics {
	mu.Lock()
	defer mu.Unlock()
	if monitorShared == nil {
		monitorShared = newMonitorMetrics(prometheus.DefaultRegisterer)
	}
	return monitorShared
}

// Payments returns the shared orchestrator metric set, registering it on first use.
func Payments() *PaymentMetrics {
	mu.Lock()
	defer mu.Unlock()
	if paymentsShared == nil {
		paymentsShared = newPaymentMetrics(prometheus.DefaultRegisterer)
	}
	return paymentsShared
}

func newMonitorMetrics(reg prometheus.Registerer) *MonitorMetrics {
	m := &MonitorMetrics{
		Ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "billing_monitor_ticks_total",
			Help: "Reconciliation ticks executed.",
		}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "billing_monitor_tick_duration_seconds",
			Help:    "Duration of a reconciliation tick.",
			Buckets: prometheus.DefBuckets,
		}),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "billing_order_transitions_total",
			Help: "Order status transitions applied by the monitor.",
		}, []string{"to"}),
		GatewayErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "billing_gateway_errors_total",
			Help: "Gateway call failures by operation.",
		}, []string{"op"}),
		Deferred: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "billing_monitor_deferred_total",
			Help: "Orders deferred to the next tick by the API budget.",
		}),
		ConflictSkips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "billing_monitor_conflict_skips_total",
			Help: "Conditional updates skipped because another actor already transitioned the order.",
		}),
		Stale: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "billing_monitor_stale_escalations_total",
			Help: "Orders escalated after staying pending past the staleness timeout.",
		}),
	}
	reg.MustRegister(m.Ticks, m.TickDuration, m.Transitions, m.GatewayErrors, m.Deferred, m.ConflictSkips, m.Stale)
	return m
}

func newPaymentMetrics(reg prometheus.Registerer) *PaymentMetrics {
	m := &PaymentMetrics{
		Charges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "billing_charges_total",
			Help: "Immediate charges by result.",
		}, []string{"result"}),
		SchedulesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "billing_schedules_created_total",
			Help: "Gateway schedules created.",
		}),
		SchedulesCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "billing_schedules_cancelled_total",
			Help: "Gateway schedules cancelled.",
		}),
		SchedulesReplaced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "billing_schedules_replaced_total",
			Help: "Schedules re-created against a different billing method.",
		}),
	}
	reg.MustRegister(m.Charges, m.SchedulesCreated, m.SchedulesCancelled, m.SchedulesReplaced)
	return m
}
