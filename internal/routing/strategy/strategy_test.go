package strategy

import (
	"testing"

	"github.com/tutu-network/sharer/internal/domain"
	"github.com/tutu-network/sharer/internal/routing/table"
	"github.com/tutu-network/sharer/internal/wire"
)

var (
	self = domain.Address{IP: "127.0.0.1", Port: 5000}
	boot = domain.Address{IP: "127.0.0.1", Port: 55555}
	a    = domain.Address{IP: "127.0.0.1", Port: 5001}
	b    = domain.Address{IP: "127.0.0.1", Port: 5002}
	c    = domain.Address{IP: "127.0.0.1", Port: 5003}
	dead = domain.Address{IP: "127.0.0.1", Port: 5004}
)

// newMesh returns an ordinary table with a, b, c alive and one inactive node.
func newMesh(t *testing.T) *table.Table {
	t.Helper()
	tb := table.New(self, boot, table.Limits{})
	for _, n := range []domain.Address{a, b, c, dead} {
		if err := tb.AddUnstructured(n); err != nil {
			t.Fatalf("AddUnstructured(%v): %v", n, err)
		}
	}
	tb.SetState(dead, domain.NodeInactive)
	return tb
}

func nodePtr(addr domain.Address) *domain.Node {
	n := domain.NewNode(addr)
	return &n
}

func addrs(nodes []domain.Node) map[domain.Address]bool {
	out := make(map[domain.Address]bool, len(nodes))
	for _, n := range nodes {
		out[n.Address] = true
	}
	return out
}

func search(query string) *wire.Message {
	return wire.NewSer(self, query)
}

func TestUnstructuredFlooding(t *testing.T) {
	tb := newMesh(t)

	all := UnstructuredFloodingFunc(tb, nil, search("x"))
	if got := addrs(all); len(got) != 3 || !got[a] || !got[b] || !got[c] {
		t.Errorf("flood from nil = %v, want [a b c]", all)
	}

	got := addrs(UnstructuredFloodingFunc(tb, nodePtr(b), search("x")))
	if len(got) != 2 || got[b] {
		t.Errorf("flood from b = %v, want [a c]", got)
	}
}

func TestUnstructuredRandomWalk(t *testing.T) {
	tb := newMesh(t)
	from := nodePtr(a)

	for i := 0; i < 50; i++ {
		got := UnstructuredRandomWalkFunc(tb, from, search("x"))
		if len(got) != 1 {
			t.Fatalf("random walk returned %d nodes, want 1", len(got))
		}
		if got[0].Address == a || got[0].Address == dead {
			t.Fatalf("random walk returned %v", got[0])
		}
	}

	lonely := table.New(self, boot, table.Limits{})
	lonely.AddUnstructured(a)
	if got := UnstructuredRandomWalkFunc(lonely, from, search("x")); len(got) != 0 {
		t.Errorf("random walk with no candidates = %v, want empty", got)
	}
}

func TestSuperPeerOnOrdinaryTable(t *testing.T) {
	tb := newMesh(t)
	tb.SetAssignedSuperPeer(b)

	for _, fn := range []Func{SuperPeerFloodingFunc, SuperPeerRandomWalkFunc} {
		got := fn(tb, nil, search("x"))
		if len(got) != 1 || got[0].Address != b {
			t.Errorf("super-peer strategy with assigned b = %v, want [b]", got)
		}
	}

	// Dead super peer falls back to a random mesh neighbour.
	tb.SetState(b, domain.NodeInactive)
	got := SuperPeerFloodingFunc(tb, nil, search("x"))
	if len(got) != 1 || got[0].Address == b || got[0].Address == dead {
		t.Errorf("fallback = %v, want one alive mesh neighbour", got)
	}
}

func TestSuperPeerOnSuperTable(t *testing.T) {
	sp := newMesh(t).Promote()
	sp.AddAssignedOrdinary(a)
	sp.AddAssignedOrdinary(b)
	sp.AddSuperPeer(c)
	sp.Aggregated().AddNode("Iron Man 2", a)
	sp.Aggregated().AddNode("Iron Man 3", b)

	flood := addrs(SuperPeerFloodingFunc(sp, nil, search("Iron Man")))
	if len(flood) != 2 || !flood[a] || !flood[b] {
		t.Errorf("flood with owners = %v, want {a b}", flood)
	}

	for i := 0; i < 20; i++ {
		rw := SuperPeerRandomWalkFunc(sp, nil, search("Iron Man"))
		if len(rw) != 1 || (rw[0].Address != a && rw[0].Address != b) {
			t.Fatalf("random walk with owners = %v, want one of {a b}", rw)
		}
	}

	// No owner: go to the backbone.
	got := SuperPeerFloodingFunc(sp, nil, search("Thor"))
	if len(got) != 1 || got[0].Address != c {
		t.Errorf("flood without owners = %v, want [c]", got)
	}

	// Backbone exhausted: fall back to the alive mesh, minus the sender.
	flood = addrs(SuperPeerFloodingFunc(sp, nodePtr(c), search("Thor")))
	if len(flood) != 2 || !flood[a] || !flood[b] {
		t.Errorf("flood from the only backbone peer = %v, want mesh {a b}", flood)
	}
	for i := 0; i < 20; i++ {
		rw := SuperPeerRandomWalkFunc(sp, nodePtr(c), search("Thor"))
		if len(rw) != 1 || rw[0].Address == c || rw[0].Address == dead {
			t.Fatalf("random walk from the only backbone peer = %v, want one of {a b}", rw)
		}
	}
}

func TestSuperPeerWithoutBackbone_UsesMesh(t *testing.T) {
	sp := table.New(self, boot, table.Limits{}).Promote()
	sp.AddUnstructured(a)

	for _, fn := range []Func{SuperPeerFloodingFunc, SuperPeerRandomWalkFunc} {
		got := fn(sp, nil, search("Iron Man"))
		if len(got) != 1 || got[0].Address != a {
			t.Errorf("lone super peer = %v, want [a]", got)
		}
		if got := fn(sp, nodePtr(a), search("Iron Man")); len(got) != 0 {
			t.Errorf("lone super peer from its only neighbour = %v, want empty", got)
		}
	}
}

func TestDeadNodesNeverSelected(t *testing.T) {
	sp := newMesh(t).Promote()
	sp.AddSuperPeer(dead)
	sp.AddAssignedOrdinary(dead)
	sp.SetState(dead, domain.NodeInactive)
	sp.Aggregated().AddNode("Iron Man", dead)

	for _, k := range []Kind{UnstructuredFlooding, UnstructuredRandomWalk, SuperPeerFlooding, SuperPeerRandomWalk} {
		for _, n := range For(k)(sp, nil, search("Iron Man")) {
			if n.Address == dead {
				t.Errorf("%v selected a dead node", k)
			}
		}
	}
}

func TestParseKind(t *testing.T) {
	for _, name := range Kinds() {
		k, err := ParseKind(name)
		if err != nil {
			t.Errorf("ParseKind(%q): %v", name, err)
			continue
		}
		if k.String() != name {
			t.Errorf("ParseKind(%q).String() = %q", name, k.String())
		}
	}
	if _, err := ParseKind("gossip"); err == nil {
		t.Error("ParseKind(gossip) should fail")
	}
}
