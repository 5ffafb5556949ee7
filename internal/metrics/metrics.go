package metrics

import (
	"expvar"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	ReconcileRuns   = expvar.NewInt("reconcile_runs")
	ReconcileErrors = expvar.NewInt("reconcile_errors")
	OrdersCreated   = expvar.NewInt("orders_created")
	OrdersChanged   = expvar.NewInt("orders_changed")
	OrdersCanceled  = expvar.NewInt("orders_canceled")
	FillsProcessed  = expvar.NewInt("fills_processed")
	SyncOrders      = expvar.NewInt("position_sync_orders")
)

var (
	compareDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ordersync_compare_duration_seconds",
		Help:    "Duration of one compare pass",
		Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
	}, []string{"symbol"})

	compareErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ordersync_compare_errors_total",
		Help: "Compare passes aborted by an invariant error",
	}, []string{"symbol"})

	orderRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ordersync_order_requests_total",
		Help: "Create/change/cancel requests sent to the broker transport",
	}, []string{"symbol", "action"})

	fillsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ordersync_fills_total",
		Help: "Broker fills processed",
	}, []string{"symbol"})

	positionGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ordersync_position",
		Help: "Actual and desired position per symbol",
	}, []string{"symbol", "kind"})

	syncedGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ordersync_position_synced",
		Help: "1 when the actual position agrees with the desired position",
	}, []string{"symbol"})
)

func init() {
	prometheus.MustRegister(
		compareDuration,
		compareErrors,
		orderRequests,
		fillsTotal,
		positionGauge,
		syncedGauge,
	)
}

// ObserveCompare 记录一次比较（reconcile）过程
func ObserveCompare(symbol string, elapsed time.Duration, err error) {
	ReconcileRuns.Add(1)
	compareDuration.WithLabelValues(symbol).Observe(elapsed.Seconds())
	if err != nil {
		ReconcileErrors.Add(1)
		compareErrors.WithLabelValues(symbol).Inc()
	}
}

// CountOrderRequest 记录发往券商的请求；action: create/change/cancel/sync
func CountOrderRequest(symbol string, action string) {
	switch action {
	case "create":
		OrdersCreated.Add(1)
	case "change":
		OrdersChanged.Add(1)
	case "cancel":
		OrdersCanceled.Add(1)
	case "sync":
		SyncOrders.Add(1)
	}
	orderRequests.WithLabelValues(symbol, action).Inc()
}

// CountFill 记录成交
func CountFill(symbol string) {
	FillsProcessed.Add(1)
	fillsTotal.WithLabelValues(symbol).Inc()
}

// SetPosition 更新持仓指标
func SetPosition(symbol string, actual, desired int64, synced bool) {
	positionGauge.WithLabelValues(symbol, "actual").Set(float64(actual))
	positionGauge.WithLabelValues(symbol, "desired").Set(float64(desired))
	v := 0.0
	if synced {
		v = 1
	}
	syncedGauge.WithLabelValues(symbol).Set(v)
}
