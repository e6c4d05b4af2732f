package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus metrics for an RTPS participant.
var (
	participantsDiscovered = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rtps_participants_discovered_total",
		Help: "Total number of remote participants discovered via SPDP",
	})

	participantsLost = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rtps_participants_lost_total",
		Help: "Total number of remote participants tombstoned after lease expiry",
	})

	participantsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "rtps_participants_active",
		Help: "Current number of known remote participants",
	})

	endpointsMatched = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rtps_endpoints_matched_total",
		Help: "Total number of reader/writer matches formed by SEDP",
	}, []string{"kind"})

	endpointsUnmatched = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rtps_endpoints_unmatched_total",
		Help: "Total number of reader/writer matches torn down",
	}, []string{"kind"})

	qosIncompatible = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rtps_qos_incompatible_total",
		Help: "Total number of endpoint matches suppressed by incompatible QoS",
	}, []string{"policy"})

	submessagesSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rtps_submessages_sent_total",
		Help: "Total number of submessages transmitted, by kind",
	}, []string{"kind"})

	submessagesReceived = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rtps_submessages_received_total",
		Help: "Total number of submessages received, by kind",
	}, []string{"kind"})

	bytesSent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rtps_bytes_sent_total",
		Help: "Total number of bytes transmitted on the wire",
	})

	bytesReceived = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rtps_bytes_received_total",
		Help: "Total number of bytes received from the wire",
	})

	cpuUsagePercent = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "rtps_cpu_usage_percent",
		Help: "Current CPU usage percentage",
	})

	memoryUsageBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "rtps_memory_usage_bytes",
		Help: "Current Go heap allocation in bytes",
	})

	goroutinesActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "rtps_goroutines_active",
		Help: "Current number of active goroutines",
	})

	capacityRejections = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rtps_capacity_rejections_total",
		Help: "Total number of admissions rejected by the resource guard, by reason",
	}, []string{"reason"})

	capacityHeadroom = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "rtps_capacity_headroom_percent",
		Help: "Available resource headroom before the reject threshold",
	}, []string{"resource"})
)

func init() {
	prometheus.MustRegister(
		participantsDiscovered,
		participantsLost,
		participantsActive,
		endpointsMatched,
		endpointsUnmatched,
		qosIncompatible,
		submessagesSent,
		submessagesReceived,
		bytesSent,
		bytesReceived,
		cpuUsagePercent,
		memoryUsageBytes,
		goroutinesActive,
		capacityRejections,
		capacityHeadroom,
	)
}

// Handler returns the HTTP handler that serves metrics for scraping.
func Handler() http.Handler {
	return promhttp.Handler()
}

func IncrementParticipantDiscovered() { participantsDiscovered.Inc() }
func IncrementParticipantLost()       { participantsLost.Inc() }
func SetParticipantsActive(n int)     { participantsActive.Set(float64(n)) }

func IncrementEndpointMatched(kind string)   { endpointsMatched.WithLabelValues(kind).Inc() }
func IncrementEndpointUnmatched(kind string) { endpointsUnmatched.WithLabelValues(kind).Inc() }
func IncrementQosIncompatible(policy string) { qosIncompatible.WithLabelValues(policy).Inc() }

func IncrementSubmessageSent(kind string)     { submessagesSent.WithLabelValues(kind).Inc() }
func IncrementSubmessageReceived(kind string) { submessagesReceived.WithLabelValues(kind).Inc() }

func AddBytesSent(n int)     { bytesSent.Add(float64(n)) }
func AddBytesReceived(n int) { bytesReceived.Add(float64(n)) }

func SetCPUUsagePercent(pct float64) { cpuUsagePercent.Set(pct) }
func SetMemoryUsageBytes(b int64)    { memoryUsageBytes.Set(float64(b)) }
func SetGoroutinesActive(n int)      { goroutinesActive.Set(float64(n)) }

func IncrementCapacityRejection(reason string) { capacityRejections.WithLabelValues(reason).Inc() }

func UpdateCapacityHeadroom(cpuHeadroom, memHeadroom float64) {
	capacityHeadroom.WithLabelValues("cpu").Set(cpuHeadroom)
	capacityHeadroom.WithLabelValues("memory").Set(memHeadroom)
}
