// Package hmetrics exposes Prometheus metrics
// for the reliable delivery protocol traffic.
package hmetrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DataSent counts samples sent on the data path, first transmissions only.
var DataSent = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "heron",
	Name:      "data_sent_total",
	Help:      "Total samples sent, excluding retransmissions.",
})

// DataReceived counts samples received, duplicates included.
var DataReceived = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "heron",
	Name:      "data_received_total",
	Help:      "Total samples received, duplicates included.",
})

// Retransmissions counts samples re-sent in response to ACKNACKs.
var Retransmissions = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "heron",
	Name:      "retransmissions_total",
	Help:      "Total samples retransmitted on ACKNACK request.",
})

// HeartbeatsSent counts outbound HEARTBEATs.
var HeartbeatsSent = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "heron",
	Name:      "heartbeats_sent_total",
	Help:      "Total HEARTBEAT submessages sent.",
})

// HeartbeatsReceived counts inbound HEARTBEATs by decision outcome.
var HeartbeatsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "heron",
	Name:      "heartbeats_received_total",
	Help:      "Total HEARTBEAT submessages received, by decision.",
}, []string{"decision"})

// AckNacksSent counts outbound ACKNACKs.
var AckNacksSent = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "heron",
	Name:      "acknacks_sent_total",
	Help:      "Total ACKNACK submessages sent.",
})

// AckNacksReceived counts inbound ACKNACKs, dropped ones included.
var AckNacksReceived = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "heron",
	Name:      "acknacks_received_total",
	Help:      "Total ACKNACK submessages received.",
})

// GapsSent counts outbound GAPs announcing unrecoverable sequences.
var GapsSent = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "heron",
	Name:      "gaps_sent_total",
	Help:      "Total GAP submessages sent.",
})

// MatchedReaders tracks matched readers across writer endpoints.
var MatchedReaders = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "heron",
	Name:      "matched_readers",
	Help:      "Currently matched remote readers.",
})

// MatchedWriters tracks matched writers across reader endpoints.
var MatchedWriters = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "heron",
	Name:      "matched_writers",
	Help:      "Currently matched remote writers.",
})

// LeasesExpired counts peers evicted by lease expiry.
var LeasesExpired = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "heron",
	Name:      "leases_expired_total",
	Help:      "Total peers evicted after lease expiry.",
})
