package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds the Prometheus instruments for the signaling core.
// A nil *Collector is valid and records nothing, so wiring stays optional.
type Collector struct {
	roomsActive      prometheus.Gauge
	viewersConnected prometheus.Gauge
	messagesRouted   *prometheus.CounterVec
	errorsSent       *prometheus.CounterVec

	candidatesBuffered prometheus.Counter
	candidatesDrained  prometheus.Counter
}

// NewCollector registers the lanpeek collectors with the default registry.
func NewCollector() *Collector {
	return &Collector{
		roomsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "lanpeek_rooms_active",
			Help: "Number of currently registered rooms",
		}),

		viewersConnected: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "lanpeek_viewers_connected",
			Help: "Number of viewers currently joined across all rooms",
		}),

		messagesRouted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lanpeek_signal_messages_total",
			Help: "Signaling messages routed, by message type",
		}, []string{"type"}),

		errorsSent: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lanpeek_signal_errors_total",
			Help: "Protocol errors reported to senders, by reason",
		}, []string{"reason"}),

		candidatesBuffered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lanpeek_candidates_buffered_total",
			Help: "ICE candidates buffered while a negotiation was incomplete",
		}),

		candidatesDrained: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lanpeek_candidates_drained_total",
			Help: "Buffered ICE candidates replayed after negotiation completed",
		}),
	}
}

func (c *Collector) RoomCreated() {
	if c != nil {
		c.roomsActive.Inc()
	}
}

func (c *Collector) RoomClosed() {
	if c != nil {
		c.roomsActive.Dec()
	}
}

func (c *Collector) ViewerJoined() {
	if c != nil {
		c.viewersConnected.Inc()
	}
}

func (c *Collector) ViewerLeft() {
	if c != nil {
		c.viewersConnected.Dec()
	}
}

func (c *Collector) MessageRouted(msgType string) {
	if c != nil {
		c.messagesRouted.WithLabelValues(msgType).Inc()
	}
}

func (c *Collector) ErrorSent(reason string) {
	if c != nil {
		c.errorsSent.WithLabelValues(reason).Inc()
	}
}

func (c *Collector) CandidateBuffered() {
	if c != nil {
		c.candidatesBuffered.Inc()
	}
}

func (c *Collector) CandidatesDrained(n int) {
	if c != nil {
		c.candidatesDrained.Add(float64(n))
	}
}
