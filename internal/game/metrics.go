package game

import (
	"github.com/prometheus/client_golang/prometheus"
)

// ServerMetrics Prometheus-метрики игрового сервера
type ServerMetrics struct {
	activeConnections  prometheus.Gauge
	intentsApplied     prometheus.Counter
	intentsDropped     prometheus.Counter
	tickDuration       prometheus.Histogram
	replicationUpdates prometheus.Counter
}

// NewServerMetrics регистрирует метрики в глобальном реестре Prometheus
func NewServerMetrics() *ServerMetrics {
	sm := &ServerMetrics{
		activeConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "movesync",
			Subsystem: "server",
			Name:      "active_connections",
			Help:      "Количество активных клиентских соединений.",
		}),
		intentsApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "movesync",
			Subsystem: "server",
			Name:      "intents_applied_total",
			Help:      "Интентов движения, применённых к симуляции.",
		}),
		intentsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "movesync",
			Subsystem: "server",
			Name:      "intents_dropped_total",
			Help:      "Интентов, отброшенных (неизвестный отправитель или мусор).",
		}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "movesync",
			Subsystem: "server",
			Name:      "tick_duration_seconds",
			Help:      "Длительность одного тика симуляции.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 12),
		}),
		replicationUpdates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "movesync",
			Subsystem: "server",
			Name:      "replication_updates_total",
			Help:      "Разосланных обновлений позиций.",
		}),
	}

	prometheus.MustRegister(
		sm.activeConnections,
		sm.intentsApplied,
		sm.intentsDropped,
		sm.tickDuration,
		sm.replicationUpdates,
	)
	return sm
}
