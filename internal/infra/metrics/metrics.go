// Package metrics provides Prometheus metrics for sharer.
// Counters and gauges for wire traffic, routing, membership, queries and
// health.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Wire ───────────────────────────────────────────────────────────────────

// MessagesReceived tracks decoded inbound messages by type.
var MessagesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "sharer",
	Name:      "messages_received_total",
	Help:      "Total inbound wire messages by type.",
}, []string{"type"})

// MessagesSent tracks outbound messages by type.
var MessagesSent = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "sharer",
	Name:      "messages_sent_total",
	Help:      "Total outbound wire messages by type.",
}, []string{"type"})

// SendFailures tracks messages the transport gave up on.
var SendFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "sharer",
	Name:      "send_failures_total",
	Help:      "Total failed sends by message type.",
}, []string{"type"})

// MessagesDropped tracks discarded messages by reason (protocol, ttl, stopped, oversize).
var MessagesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "sharer",
	Name:      "messages_dropped_total",
	Help:      "Total dropped messages by reason.",
}, []string{"reason"})

// SendRetries tracks transport-level resend attempts.
var SendRetries = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "sharer",
	Name:      "send_retries_total",
	Help:      "Total transport resend attempts.",
})

// ─── Routing ────────────────────────────────────────────────────────────────

// HopsForwarded tracks search clones sent to neighbours by type.
var HopsForwarded = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "sharer",
	Name:      "hops_forwarded_total",
	Help:      "Total search messages forwarded to neighbours.",
}, []string{"type"})

// FanOut tracks how many targets a routing decision produced.
var FanOut = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "sharer",
	Name:      "routing_fan_out",
	Help:      "Number of neighbours selected per routing decision.",
	Buckets:   []float64{0, 1, 2, 3, 5, 8, 13},
})

// SearchHits tracks SER_OK replies, by whether this node produced or
// received them.
var SearchHits = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "sharer",
	Name:      "search_hits_total",
	Help:      "Total search hits by direction.",
}, []string{"direction"})

// HitHopCount tracks the distance at which hits were found.
var HitHopCount = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "sharer",
	Name:      "search_hit_hops",
	Help:      "Hop count of received search hits.",
	Buckets:   []float64{0, 1, 2, 3, 4, 5, 8},
})

// ─── Membership ─────────────────────────────────────────────────────────────

// Neighbours tracks routing table size per category.
var Neighbours = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "sharer",
	Name:      "neighbours",
	Help:      "Known neighbours per routing table category.",
}, []string{"category"})

// SuperPeer is 1 while this node is a super peer.
var SuperPeer = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "sharer",
	Name:      "super_peer",
	Help:      "1 when this node is a super peer, 0 otherwise.",
})

// RoleChanges tracks promotions and demotions.
var RoleChanges = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "sharer",
	Name:      "role_changes_total",
	Help:      "Total role transitions by direction.",
}, []string{"direction"})

// MembershipEvents tracks join/leave traffic outcomes.
var MembershipEvents = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "sharer",
	Name:      "membership_events_total",
	Help:      "Total membership events by kind.",
}, []string{"event"})

// ─── Heartbeat ──────────────────────────────────────────────────────────────

// HeartbeatRounds tracks heartbeat ticks.
var HeartbeatRounds = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "sharer",
	Name:      "heartbeat_rounds_total",
	Help:      "Total heartbeat rounds.",
})

// NodesCollected tracks inactive nodes removed by garbage collection.
var NodesCollected = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "sharer",
	Name:      "nodes_collected_total",
	Help:      "Total inactive nodes removed from the routing table.",
})

// ─── Queries ────────────────────────────────────────────────────────────────

// QueriesStarted tracks searches originated by this node.
var QueriesStarted = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "sharer",
	Name:      "queries_started_total",
	Help:      "Total searches originated by this node.",
})

// OwnedResources tracks the size of the local catalog.
var OwnedResources = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "sharer",
	Name:      "owned_resources",
	Help:      "Number of resources this node serves.",
})

// ─── Bootstrap ──────────────────────────────────────────────────────────────

// BootstrapNodes tracks registered nodes on a bootstrap server.
var BootstrapNodes = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "sharer",
	Name:      "bootstrap_nodes",
	Help:      "Nodes registered with this bootstrap server.",
})

// ─── Health ─────────────────────────────────────────────────────────────────

// HealthCheckStatus tracks health check results (1=healthy, 0=unhealthy).
var HealthCheckStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "sharer",
	Name:      "health_check_status",
	Help:      "Health check result per component (1=healthy, 0=unhealthy).",
}, []string{"check"})

// HealthRecoveries tracks auto-recovery attempts.
var HealthRecoveries = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "sharer",
	Name:      "health_recoveries_total",
	Help:      "Total auto-recovery attempts per check.",
}, []string{"check"})
