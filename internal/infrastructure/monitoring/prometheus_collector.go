package monitoring

import (
	"time"

	"watchparty/internal/core/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusCollector exports session and transport metrics. Party IDs are
// never used as labels.
type PrometheusCollector struct {
	sessionsActive prometheus.Gauge
	sessionsJoined prometheus.Counter
	sessionsLeft   *prometheus.CounterVec

	playbackPushes   *prometheus.CounterVec
	driftCorrections *prometheus.CounterVec
	driftSeconds     prometheus.Histogram

	chatMessages prometheus.Counter
	reactions    prometheus.Counter

	wsConnections prometheus.Gauge
	wsMessages    *prometheus.CounterVec

	httpDuration *prometheus.HistogramVec
}

// NewPrometheusCollector registers its metrics with reg. Tests pass a fresh
// registry; the binaries pass prometheus.DefaultRegisterer.
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	factory := promauto.With(reg)

	return &PrometheusCollector{
		sessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "watchparty_sessions_active",
			Help: "Number of party sessions currently joined on this instance",
		}),

		sessionsJoined: factory.NewCounter(prometheus.CounterOpts{
			Name: "watchparty_sessions_joined_total",
			Help: "Total number of successful joins",
		}),

		sessionsLeft: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "watchparty_sessions_left_total",
			Help: "Total number of sessions that left, by reason",
		}, []string{"reason"}),

		playbackPushes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "watchparty_playback_pushes_total",
			Help: "Authoritative playback writes by the party creator",
		}, []string{"result"}),

		driftCorrections: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "watchparty_drift_corrections_total",
			Help: "Local playback corrections applied by followers",
		}, []string{"reason"}),

		driftSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "watchparty_drift_seconds",
			Help:    "Absolute drift observed when a correction was applied",
			Buckets: []float64{0.5, 1, 2, 3, 5, 10, 30, 60, 300},
		}),

		chatMessages: factory.NewCounter(prometheus.CounterOpts{
			Name: "watchparty_chat_messages_total",
			Help: "Chat messages stored",
		}),

		reactions: factory.NewCounter(prometheus.CounterOpts{
			Name: "watchparty_reactions_total",
			Help: "Reactions broadcast",
		}),

		wsConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "watchparty_websocket_connections",
			Help: "Open WebSocket connections",
		}),

		wsMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "watchparty_websocket_messages_total",
			Help: "WebSocket messages by direction and type",
		}, []string{"direction", "type"}),

		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "watchparty_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
}

func (p *PrometheusCollector) RecordSessionJoined(partyID domain.PartyID) {
	p.sessionsActive.Inc()
	p.sessionsJoined.Inc()
}

func (p *PrometheusCollector) RecordSessionLeft(partyID domain.PartyID, reason string) {
	p.sessionsActive.Dec()
	p.sessionsLeft.WithLabelValues(reason).Inc()
}

func (p *PrometheusCollector) RecordPlaybackPush(partyID domain.PartyID, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	p.playbackPushes.WithLabelValues(result).Inc()
}

func (p *PrometheusCollector) RecordDriftCorrection(partyID domain.PartyID, reason string, driftSeconds float64) {
	p.driftCorrections.WithLabelValues(reason).Inc()
	p.driftSeconds.Observe(driftSeconds)
}

func (p *PrometheusCollector) RecordChatMessage(partyID domain.PartyID) {
	p.chatMessages.Inc()
}

func (p *PrometheusCollector) RecordReaction(partyID domain.PartyID) {
	p.reactions.Inc()
}

func (p *PrometheusCollector) RecordConnectionOpened() {
	p.wsConnections.Inc()
}

func (p *PrometheusCollector) RecordConnectionClosed() {
	p.wsConnections.Dec()
}

func (p *PrometheusCollector) RecordWebSocketMessage(direction, messageType string) {
	p.wsMessages.WithLabelValues(direction, messageType).Inc()
}

func (p *PrometheusCollector) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	p.httpDuration.WithLabelValues(method, route, statusClass(status)).Observe(duration.Seconds())
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
