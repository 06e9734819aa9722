// SPDX-License-Identifier: MIT
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Gauges mirror the hub's live state and are refreshed after every
	// mutation, so /metrics and /health agree.
	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "flowlink_active_sessions",
		Help: "Number of live (non-expired) sessions",
	})

	activeConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "flowlink_active_connections",
		Help: "Number of open websocket connections",
	})

	directoryEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "flowlink_directory_entries",
		Help: "Number of devices in the global directory",
	})

	framesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flowlink_frames_total",
		Help: "Websocket frames processed by message type and direction",
	}, []string{"type", "direction"}) // direction=in|out

	fanoutDeliveredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flowlink_fanout_delivered_total",
		Help: "Messages delivered during fan-out by kind",
	}, []string{"kind"}) // kind=session|group|nearby|unicast

	fanoutSkippedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flowlink_fanout_skipped_total",
		Help: "Fan-out recipients skipped because no live connection was attached",
	}, []string{"kind"})

	sendQueueDrops = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flowlink_send_queue_drops_total",
		Help: "Connections dropped because their send queue overflowed",
	})

	sessionsExpiredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flowlink_sessions_expired_total",
		Help: "Sessions removed by reason",
	}, []string{"reason"}) // reason=ttl|owner_left|emptied

	directoryPurgedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flowlink_directory_entries_purged_total",
		Help: "Directory entries removed after the offline grace window",
	})

	protocolErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flowlink_protocol_errors_total",
		Help: "Error frames sent to clients by reason",
	}, []string{"reason"}) // reason=invalid_format|missing_fields|invalid_code|target_offline|user_offline|unknown_type|not_found
)

func SetActiveSessions(n int) { activeSessions.Set(float64(n)) }

func SetActiveConnections(n int) { activeConnections.Set(float64(n)) }

func SetDirectoryEntries(n int) { directoryEntries.Set(float64(n)) }

// IncFrameIn records one inbound frame. Callers must map unrecognized
// client types to "unknown" to keep the label set bounded.
func IncFrameIn(msgType string) { framesTotal.WithLabelValues(msgType, "in").Inc() }

func IncFrameOut(msgType string) { framesTotal.WithLabelValues(msgType, "out").Inc() }

func AddFanout(kind string, delivered, skipped int) {
	if delivered > 0 {
		fanoutDeliveredTotal.WithLabelValues(kind).Add(float64(delivered))
	}
	if skipped > 0 {
		fanoutSkippedTotal.WithLabelValues(kind).Add(float64(skipped))
	}
}

func IncSendQueueDrop() { sendQueueDrops.Inc() }

func IncSessionExpired(reason string) { sessionsExpiredTotal.WithLabelValues(reason).Inc() }

func IncDirectoryPurged() { directoryPurgedTotal.Inc() }

func IncProtocolError(reason string) { protocolErrorsTotal.WithLabelValues(reason).Inc() }
