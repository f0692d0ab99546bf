package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		settlementsTotal,
		settledAmountTotal,
		ordersCompletedTotal,
		refundsTotal,
	)
}

var (
	settlementsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "installment_settlements_total",
			Help: "Settlement attempts by method, entry point and result.",
		},
		[]string{"method", "source", "result"}, // result: ok or the rejection reason
	)

	settledAmountTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "installment_settled_amount_total",
			Help: "The total monetary value of settled installments, labeled by method.",
		},
		[]string{"method"},
	)

	ordersCompletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orders_completed_total",
			Help: "Orders that reached COMPLETED, by reason.",
		},
		[]string{"reason"}, // paid_in_full | free_days
	)

	refundsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_refunds_total",
			Help: "Admin refunds by method.",
		},
		[]string{"method"},
	)
)

func IncSettlement(method, source, result string) {
	settlementsTotal.WithLabelValues(norm(method), norm(source), norm(result)).Inc()
}

func AddSettledAmount(method string, amount int64) {
	settledAmountTotal.WithLabelValues(norm(method)).Add(float64(amount))
}

func IncOrderCompleted(reason string) {
	ordersCompletedTotal.WithLabelValues(norm(reason)).Inc()
}

func IncRefund(method string) {
	refundsTotal.WithLabelValues(norm(method)).Inc()
}
