package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		webhookEventsTotal,
		reconcilerActionsTotal,
	)
}

var (
	// outcome: processed|ignored|failed|duplicate
	webhookEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_events_total",
			Help: "Inbound gateway events by event type and outcome.",
		},
		[]string{"event", "outcome"},
	)

	// action: settled|failed|skipped|error
	reconcilerActionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconciler_actions_total",
			Help: "Stale payment attempts handled by the reconciler.",
		},
		[]string{"action"},
	)
)

func IncWebhookEvent(event, outcome string) {
	if event == "" {
		event = "unknown"
	}
	webhookEventsTotal.WithLabelValues(norm(event), norm(outcome)).Inc()
}

func IncReconcilerAction(action string) {
	reconcilerActionsTotal.WithLabelValues(norm(action)).Inc()
}
