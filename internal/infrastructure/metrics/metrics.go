// Package metrics 客户端核心的 prometheus 指标
// 使用独立的 Registry，避免与宿主进程的默认注册表冲突
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "kama_chat_client"

// 事件处理结果
const (
	OutcomeApplied   = "applied"
	OutcomeNotified  = "notified"
	OutcomeDuplicate = "duplicate"
	OutcomeDropped   = "dropped"
)

var (
	Registry = prometheus.NewRegistry()

	EventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Realtime events processed, by event name and outcome.",
		},
		[]string{"event", "outcome"},
	)

	ReconnectsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnects_total",
			Help:      "Automatic reconnect attempts after a transport drop.",
		},
	)

	HandlerPanics = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handler_panics_total",
			Help:      "Event handlers that panicked and were recovered.",
		},
	)

	UnreadTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "unread_total",
			Help:      "Unread notifications across all conversations.",
		},
	)
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		EventsTotal,
		ReconnectsTotal,
		HandlerPanics,
		UnreadTotal,
	)
}

// Handler /metrics 处理器
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
