// Package strategy selects the neighbours a routed message is forwarded to.
//
// Strategies are pure: they read table snapshots and never mutate the table
// or the message. Dead neighbours never appear in a result.
package strategy

import (
	"fmt"
	"strings"

	"golang.org/x/exp/rand"

	"github.com/tutu-network/sharer/internal/domain"
	"github.com/tutu-network/sharer/internal/routing/table"
	"github.com/tutu-network/sharer/internal/wire"
)

// Func picks forwarding targets for m, which arrived from from. A nil from
// means this node originated the message.
type Func func(t *table.Table, from *domain.Node, m *wire.Message) []domain.Node

// Kind names a strategy in configuration.
type Kind int

const (
	UnstructuredFlooding Kind = iota
	UnstructuredRandomWalk
	SuperPeerFlooding
	SuperPeerRandomWalk
)

var kindNames = map[Kind]string{
	UnstructuredFlooding:   "unstructured_flooding",
	UnstructuredRandomWalk: "unstructured_random_walk",
	SuperPeerFlooding:      "super_peer_flooding",
	SuperPeerRandomWalk:    "super_peer_random_walk",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// IsRandomWalk reports whether k forwards to a single neighbour.
func (k Kind) IsRandomWalk() bool {
	return k == UnstructuredRandomWalk || k == SuperPeerRandomWalk
}

// ParseKind resolves a configured strategy name.
func ParseKind(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown routing strategy %q", s)
}

// Kinds lists every strategy name.
func Kinds() []string {
	return []string{
		UnstructuredFlooding.String(),
		UnstructuredRandomWalk.String(),
		SuperPeerFlooding.String(),
		SuperPeerRandomWalk.String(),
	}
}

// For returns the strategy implementation for k.
func For(k Kind) Func {
	switch k {
	case UnstructuredRandomWalk:
		return UnstructuredRandomWalkFunc
	case SuperPeerFlooding:
		return SuperPeerFloodingFunc
	case SuperPeerRandomWalk:
		return SuperPeerRandomWalkFunc
	default:
		return UnstructuredFloodingFunc
	}
}

// ─── Unstructured ───────────────────────────────────────────────────────────

// UnstructuredFloodingFunc returns every alive mesh neighbour except from.
func UnstructuredFloodingFunc(t *table.Table, from *domain.Node, _ *wire.Message) []domain.Node {
	return exclude(t.AliveUnstructured(), from)
}

// UnstructuredRandomWalkFunc returns one uniformly chosen alive mesh
// neighbour other than from.
func UnstructuredRandomWalkFunc(t *table.Table, from *domain.Node, m *wire.Message) []domain.Node {
	return pickOne(UnstructuredFloodingFunc(t, from, m))
}

// ─── Super peer ─────────────────────────────────────────────────────────────

// SuperPeerFloodingFunc sends an ordinary peer's traffic to its super peer.
// A super peer answers from its aggregated index when it can and floods
// the backbone otherwise. With no backbone left it floods the mesh.
func SuperPeerFloodingFunc(t *table.Table, from *domain.Node, m *wire.Message) []domain.Node {
	if !t.IsSuperPeer() {
		if sp, ok := assignedSuperPeer(t, from); ok {
			return []domain.Node{sp}
		}
		return UnstructuredRandomWalkFunc(t, from, m)
	}
	if owners := aggregatedOwners(t, from, m); len(owners) > 0 {
		return owners
	}
	if backbone := exclude(t.AliveSuperPeers(), from); len(backbone) > 0 {
		return backbone
	}
	return UnstructuredFloodingFunc(t, from, m)
}

// SuperPeerRandomWalkFunc is SuperPeerFloodingFunc narrowed to a single
// target on super peers.
func SuperPeerRandomWalkFunc(t *table.Table, from *domain.Node, m *wire.Message) []domain.Node {
	if !t.IsSuperPeer() {
		return SuperPeerFloodingFunc(t, from, m)
	}
	if owners := aggregatedOwners(t, from, m); len(owners) > 0 {
		return pickOne(owners)
	}
	if backbone := exclude(t.AliveSuperPeers(), from); len(backbone) > 0 {
		return pickOne(backbone)
	}
	return UnstructuredRandomWalkFunc(t, from, m)
}

func assignedSuperPeer(t *table.Table, from *domain.Node) (domain.Node, bool) {
	sp, ok := t.AssignedSuperPeer()
	if !ok || !sp.Alive() {
		return domain.Node{}, false
	}
	if from != nil && sp.Is(*from) {
		return domain.Node{}, false
	}
	return sp, true
}

// aggregatedOwners resolves the owners of a SER query from the aggregated
// index of a super peer.
func aggregatedOwners(t *table.Table, from *domain.Node, m *wire.Message) []domain.Node {
	agg := t.Aggregated()
	if agg == nil || m == nil || m.Type != wire.TypeSer {
		return nil
	}
	var out []domain.Node
	for _, a := range agg.Owners(m.Field(wire.SerFileName)) {
		n, ok := t.Get(a)
		if !ok || !n.Alive() {
			continue
		}
		out = append(out, n)
	}
	return exclude(out, from)
}

// ─── Helpers ────────────────────────────────────────────────────────────────

func exclude(nodes []domain.Node, from *domain.Node) []domain.Node {
	if from == nil {
		return nodes
	}
	out := make([]domain.Node, 0, len(nodes))
	for _, n := range nodes {
		if !n.Is(*from) {
			out = append(out, n)
		}
	}
	return out
}

func pickOne(nodes []domain.Node) []domain.Node {
	if len(nodes) == 0 {
		return nil
	}
	return []domain.Node{nodes[rand.Intn(len(nodes))]}
}
