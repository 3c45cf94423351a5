package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// ActionsTotal counts session actions by action name and result kind ("ok" on success).
	ActionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "clubchat",
		Name:      "actions_total",
		Help:      "Chat actions performed, by action and result.",
	}, []string{"action", "result"})

	SnapshotsDelivered = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "clubchat",
		Name:      "snapshots_delivered_total",
		Help:      "Chat snapshots delivered to subscribers.",
	})

	SnapshotsSkipped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "clubchat",
		Name:      "snapshots_skipped_total",
		Help:      "Chat refreshes that produced an unchanged snapshot.",
	})

	ActiveSubscriptions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "clubchat",
		Name:      "active_subscriptions",
		Help:      "Open chat subscriptions.",
	})

	ChatsPurged = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "clubchat",
		Name:      "chats_purged_total",
		Help:      "Closed chats deleted by the retention job.",
	})
)

// Register adds all collectors to reg. Pass prometheus.DefaultRegisterer to expose them on /metrics.
func Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{ActionsTotal, SnapshotsDelivered, SnapshotsSkipped, ActiveSubscriptions, ChatsPurged} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}
