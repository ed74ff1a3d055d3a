// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionFramesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campaign_session_frames_received_total",
			Help: "Inbound stream frames by classified kind",
		},
		[]string{"kind"},
	)

	SessionReconnects = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campaign_session_reconnects_total",
			Help: "Reconnect attempts scheduled after an unexpected closure",
		},
		[]string{"outcome"},
	)

	SessionTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campaign_session_transitions_total",
			Help: "Session state transitions",
		},
		[]string{"from", "to"},
	)

	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "campaign_sessions_active",
			Help: "Sessions currently connecting or streaming",
		},
	)

	GatewayRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campaign_gateway_requests_total",
			Help: "Gateway requests by operation and outcome",
		},
		[]string{"operation", "status"},
	)

	GatewayRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "campaign_gateway_request_duration_seconds",
			Help:    "Duration of gateway requests in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		},
		[]string{"operation"},
	)

	EmailCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campaign_email_cache_lookups_total",
			Help: "Email cache lookups by result",
		},
		[]string{"backend", "result"},
	)

	PipelineTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campaign_pipeline_transitions_total",
			Help: "Pipeline stage transitions",
		},
		[]string{"direction", "stage"},
	)
)
