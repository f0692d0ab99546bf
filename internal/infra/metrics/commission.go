package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(commissionCreditedTotal, notificationsTotal) }

var (
	commissionCreditedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "commission_credited_total",
			Help: "Referral commission credited, split by portion.",
		},
		[]string{"portion"}, // available | locked
	)

	notificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_total",
			Help: "Notifications by kind and delivery status.",
		},
		[]string{"kind", "status"}, // status: sent|error|dropped
	)
)

func AddCommission(available, locked int64) {
	commissionCreditedTotal.WithLabelValues("available").Add(float64(available))
	commissionCreditedTotal.WithLabelValues("locked").Add(float64(locked))
}

func IncNotification(kind, status string) {
	notificationsTotal.WithLabelValues(norm(kind), norm(status)).Inc()
}
