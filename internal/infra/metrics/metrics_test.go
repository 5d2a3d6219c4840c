package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func gatheredNames(t *testing.T) map[string]bool {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("Gather() error: %v", err)
	}
	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	return names
}

func TestWireCounters(t *testing.T) {
	MessagesReceived.WithLabelValues("SER").Inc()
	MessagesSent.WithLabelValues("SEROK").Inc()
	SendFailures.WithLabelValues("JOIN").Inc()
	MessagesDropped.WithLabelValues("ttl").Inc()
	SendRetries.Inc()

	names := gatheredNames(t)
	for _, name := range []string{
		"sharer_messages_received_total",
		"sharer_messages_sent_total",
		"sharer_send_failures_total",
		"sharer_messages_dropped_total",
		"sharer_send_retries_total",
	} {
		if !names[name] {
			t.Errorf("metric %q not found", name)
		}
	}
}

func TestRoutingMetrics(t *testing.T) {
	HopsForwarded.WithLabelValues("SER").Add(3)
	FanOut.Observe(3)
	SearchHits.WithLabelValues("received").Inc()
	HitHopCount.Observe(2)

	names := gatheredNames(t)
	for _, name := range []string{
		"sharer_hops_forwarded_total",
		"sharer_routing_fan_out",
		"sharer_search_hits_total",
		"sharer_search_hit_hops",
	} {
		if !names[name] {
			t.Errorf("metric %q not found", name)
		}
	}
}

func TestMembershipMetrics(t *testing.T) {
	Neighbours.WithLabelValues("unstructured").Set(4)
	SuperPeer.Set(1)
	RoleChanges.WithLabelValues("promote").Inc()
	MembershipEvents.WithLabelValues("join").Inc()
	HeartbeatRounds.Inc()
	NodesCollected.Add(2)

	names := gatheredNames(t)
	for _, name := range []string{
		"sharer_neighbours",
		"sharer_super_peer",
		"sharer_role_changes_total",
		"sharer_membership_events_total",
		"sharer_heartbeat_rounds_total",
		"sharer_nodes_collected_total",
	} {
		if !names[name] {
			t.Errorf("metric %q not found", name)
		}
	}
}

func TestHealthMetrics(t *testing.T) {
	HealthCheckStatus.WithLabelValues("sqlite").Set(1)
	HealthRecoveries.WithLabelValues("overlay").Inc()

	names := gatheredNames(t)
	if !names["sharer_health_check_status"] {
		t.Error("sharer_health_check_status not found")
	}
	if !names["sharer_health_recoveries_total"] {
		t.Error("sharer_health_recoveries_total not found")
	}
}
