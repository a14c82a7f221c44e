package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector exposes session counters to Prometheus. It implements the
// service-layer recorder so the core stays free of metrics plumbing.
type Collector struct {
	viewersConnected prometheus.Gauge
	admissionsTotal  prometheus.Counter
	rejectionsTotal  *prometheus.CounterVec

	broadcastErrors   prometheus.Counter
	notificationsSent prometheus.Counter
	trackReplacements prometheus.Counter
	watchdogRefreshes prometheus.Counter
	signalReconnects  prometheus.Counter
}

func NewCollector() *Collector {
	return &Collector{
		viewersConnected: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "nido_viewers_connected",
			Help: "Number of currently admitted viewers",
		}),

		admissionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "nido_viewer_admissions_total",
			Help: "Total number of admitted viewer sessions",
		}),

		rejectionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "nido_viewer_rejections_total",
			Help: "Total number of rejected admission attempts",
		}, []string{"reason"}),

		broadcastErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "nido_broadcast_errors_total",
			Help: "Total number of failed command deliveries during broadcast",
		}),

		notificationsSent: promauto.NewCounter(prometheus.CounterOpts{
			Name: "nido_notifications_sent_total",
			Help: "Total number of alert notifications broadcast to viewers",
		}),

		trackReplacements: promauto.NewCounter(prometheus.CounterOpts{
			Name: "nido_track_replacements_total",
			Help: "Total number of media track swaps across live senders",
		}),

		watchdogRefreshes: promauto.NewCounter(prometheus.CounterOpts{
			Name: "nido_watchdog_refreshes_total",
			Help: "Total number of stream refresh requests sent by the stall watchdog",
		}),

		signalReconnects: promauto.NewCounter(prometheus.CounterOpts{
			Name: "nido_signal_reconnects_total",
			Help: "Total number of session reconnection attempts after transport loss",
		}),
	}
}

func (c *Collector) ViewerAdmitted() {
	c.admissionsTotal.Inc()
	c.viewersConnected.Inc()
}

func (c *Collector) ViewerRejected(reason string) {
	c.rejectionsTotal.WithLabelValues(reason).Inc()
}

func (c *Collector) ViewerRemoved() {
	c.viewersConnected.Dec()
}

func (c *Collector) BroadcastError() {
	c.broadcastErrors.Inc()
}

func (c *Collector) NotificationSent() {
	c.notificationsSent.Inc()
}

func (c *Collector) TrackReplaced() {
	c.trackReplacements.Inc()
}

func (c *Collector) WatchdogRefreshSent() {
	c.watchdogRefreshes.Inc()
}

func (c *Collector) SignalReconnect() {
	c.signalReconnects.Inc()
}
