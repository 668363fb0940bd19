package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OrderTransitions counts committed status transitions
	OrderTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dentalflow_order_transitions_total",
		Help: "Committed order status transitions by from and to status",
	}, []string{"from", "to"})

	// OrdersSubmitted counts orders created by submissions
	OrdersSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dentalflow_orders_submitted_total",
		Help: "Orders created by submissions, by source",
	}, []string{"source"})

	// BoardOverdueOrders is the overdue count per column after the last refresh
	BoardOverdueOrders = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "dentalflow_board_overdue_orders",
		Help: "Overdue orders per workflow step at the last board refresh",
	}, []string{"laboratory_id", "step"})

	// BoardRefreshDuration tracks board refresh latency
	BoardRefreshDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dentalflow_board_refresh_seconds",
		Help:    "Board refresh duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~2.5s
	}, []string{"result"})

	// DashboardReportDuration tracks dashboard aggregation latency
	DashboardReportDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dentalflow_dashboard_report_seconds",
		Help:    "Dashboard report duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 10),
	}, []string{"result"})

	// NotificationsFailed counts outbound emails that could not be sent
	NotificationsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dentalflow_notifications_failed_total",
		Help: "Outbound notifications that failed, by kind",
	}, []string{"kind"})
)

// Result labels a duration observation
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
