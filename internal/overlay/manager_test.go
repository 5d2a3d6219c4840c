package overlay

import (
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/tutu-network/sharer/internal/domain"
	"github.com/tutu-network/sharer/internal/infra/network"
	"github.com/tutu-network/sharer/internal/resource"
	"github.com/tutu-network/sharer/internal/routing"
	"github.com/tutu-network/sharer/internal/routing/strategy"
	"github.com/tutu-network/sharer/internal/routing/table"
	"github.com/tutu-network/sharer/internal/wire"
)

var (
	addr1 = domain.Address{IP: "10.0.0.1", Port: 5001}
	addr2 = domain.Address{IP: "10.0.0.2", Port: 5002}
	addr3 = domain.Address{IP: "10.0.0.3", Port: 5003}
	boot  = domain.Address{IP: "10.0.0.254", Port: wire.DefaultBootstrap}
)

type peer struct {
	router  *routing.Router
	manager *Manager
}

func newTestPeer(t *testing.T, hub *network.Hub, self domain.Address, limits table.Limits, owned ...string) peer {
	t.Helper()
	idx := resource.NewIndex()
	for _, name := range owned {
		idx.Add(resource.OwnedResource{Name: name})
	}
	r := routing.New(routing.Config{
		Self:      self,
		Bootstrap: boot,
		TTL:       3,
		Strategy:  strategy.UnstructuredFlooding,
		Limits:    limits,
	}, hub.Transport(self), idx)
	r.Start(t.Context())
	t.Cleanup(r.Shutdown)

	// Long timeout keeps background searches from promoting mid-test.
	m := NewManager(Config{Username: "test", SerSuperPeerTimeout: time.Hour}, r)
	t.Cleanup(m.Stop)
	return peer{router: r, manager: m}
}

func link(t *testing.T, a, b peer) {
	t.Helper()
	if err := a.router.Table().AddUnstructured(b.router.Self()); err != nil {
		t.Fatalf("link: %v", err)
	}
	if err := b.router.Table().AddUnstructured(a.router.Self()); err != nil {
		t.Fatalf("link: %v", err)
	}
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

type frames struct {
	mu   sync.Mutex
	msgs []*wire.Message
}

func (f *frames) OnMessageReceived(_ domain.Address, payload []byte) {
	m, err := wire.Parse(payload)
	if err != nil {
		return
	}
	f.mu.Lock()
	f.msgs = append(f.msgs, m)
	f.mu.Unlock()
}

func (f *frames) OnMessageSendFailed(domain.Address, []byte) {}

func (f *frames) types() []wire.Type {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]wire.Type, 0, len(f.msgs))
	for _, m := range f.msgs {
		out = append(out, m.Type)
	}
	return out
}

// ─── Bootstrap ──────────────────────────────────────────────────────────────

func TestRegOK_FirstNodePromotes(t *testing.T) {
	hub := network.NewHub()
	p := newTestPeer(t, hub, addr1, table.DefaultLimits())

	p.manager.OnMessage(boot, wire.New(wire.TypeRegOK, "0"))

	if !p.router.Table().IsSuperPeer() {
		t.Error("first node in the network should promote itself")
	}
}

func TestRegOK_JoinsListedNodes(t *testing.T) {
	hub := network.NewHub()
	p1 := newTestPeer(t, hub, addr1, table.DefaultLimits())
	p2 := newTestPeer(t, hub, addr2, table.DefaultLimits())
	p3 := newTestPeer(t, hub, addr3, table.DefaultLimits())

	p1.manager.OnMessage(boot, wire.New(wire.TypeRegOK, "2",
		addr2.IP, addr2.PortString(), addr3.IP, addr3.PortString()))
	hub.Wait()

	for _, a := range []domain.Address{addr2, addr3} {
		if !p1.router.Table().HasUnstructured(a) {
			t.Errorf("p1 missing neighbour %v", a)
		}
	}
	if !p2.router.Table().HasUnstructured(addr1) || !p3.router.Table().HasUnstructured(addr1) {
		t.Error("joined nodes should record p1")
	}
}

func TestRegOK_OccupiedIsRecorded(t *testing.T) {
	hub := network.NewHub()
	p := newTestPeer(t, hub, addr1, table.DefaultLimits())

	p.manager.OnMessage(boot, wire.New(wire.TypeRegOK, wire.RegOKAlreadyOccupied))

	if !p.manager.PortOccupied() {
		t.Error("PortOccupied() = false after 9997")
	}
	if p.router.Table().IsSuperPeer() {
		t.Error("an error REGOK must not promote")
	}
}

// ─── Mesh ───────────────────────────────────────────────────────────────────

func TestJoin_FullRedirectsToNeighbour(t *testing.T) {
	hub := network.NewHub()
	p1 := newTestPeer(t, hub, addr1, table.Limits{})
	p2 := newTestPeer(t, hub, addr2, table.Limits{MaxUnstructured: 1})
	p3 := newTestPeer(t, hub, addr3, table.Limits{})
	link(t, p2, p3)

	p1.manager.join(addr2)
	hub.Wait()

	tb := p1.router.Table()
	if tb.HasUnstructured(addr2) {
		t.Error("full node accepted the join")
	}
	if !tb.HasUnstructured(addr3) {
		t.Error("p1 should have followed the redirect to p3")
	}
	if !p3.router.Table().HasUnstructured(addr1) {
		t.Error("p3 should have accepted p1")
	}
}

func TestJoin_AdvertisesSuperPeer(t *testing.T) {
	hub := network.NewHub()
	p1 := newTestPeer(t, hub, addr1, table.DefaultLimits(), "Iron Man")
	p2 := newTestPeer(t, hub, addr2, table.DefaultLimits())
	p2.router.Promote()

	p1.manager.join(addr2)
	hub.Wait()

	sp, ok := p1.router.Table().AssignedSuperPeer()
	if !ok || sp.Address != addr2 {
		t.Errorf("assigned super peer = %v (%v), want %v", sp, ok, addr2)
	}
	if got := p2.router.Table().Aggregated().Owners("iron man"); len(got) != 1 || got[0] != addr1 {
		t.Errorf("aggregated owners = %v, want [%v]", got, addr1)
	}
}

func TestStop_LeavesNeighbours(t *testing.T) {
	hub := network.NewHub()
	p1 := newTestPeer(t, hub, addr1, table.DefaultLimits())
	p2 := newTestPeer(t, hub, addr2, table.DefaultLimits())
	link(t, p1, p2)

	p1.manager.Stop()
	hub.Wait()

	if p2.router.Table().HasUnstructured(addr1) {
		t.Error("LEAVE did not remove p1 from p2")
	}
	p1.manager.Stop() // one-way
}

func TestListUnstructuredConnections_JoinsSuggested(t *testing.T) {
	hub := network.NewHub()
	p1 := newTestPeer(t, hub, addr1, table.DefaultLimits())
	p2 := newTestPeer(t, hub, addr2, table.DefaultLimits())
	newTestPeer(t, hub, addr3, table.DefaultLimits())
	link(t, p1, p2)
	p2.router.Table().AddUnstructured(addr3)

	p1.router.SendMessage(addr2, wire.NewAddressed(wire.TypeListUnstructuredConnections, addr1))
	hub.Wait()

	if !p1.router.Table().HasUnstructured(addr3) {
		t.Errorf("p1 neighbours = %v, want p3 added", p1.router.Table().Unstructured())
	}
}

func TestAddressLists_BadCountsAreDropped(t *testing.T) {
	tests := []struct {
		name string
		msg  *wire.Message
	}{
		{"list negative", wire.New(wire.TypeListUnstructuredConnectionsOK, addr2.IP, addr2.PortString(), "-1")},
		{"list huge", wire.New(wire.TypeListUnstructuredConnectionsOK, addr2.IP, addr2.PortString(), "99999", addr3.IP, addr3.PortString())},
		{"super list negative", wire.New(wire.TypeListSuperPeerConnectionsOK, addr2.IP, addr2.PortString(), "-1")},
		{"regok negative", wire.New(wire.TypeRegOK, "-1")},
		{"regok huge", wire.New(wire.TypeRegOK, "99999", addr3.IP, addr3.PortString())},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hub := network.NewHub()
			p := newTestPeer(t, hub, addr1, table.DefaultLimits())
			newTestPeer(t, hub, addr3, table.DefaultLimits())

			p.router.OnMessageReceived(addr2, tt.msg.Bytes())
			hub.Wait()

			if n := len(p.router.Table().Unstructured()); n != 0 {
				t.Errorf("neighbours = %d, want 0", n)
			}
			if p.router.Table().IsSuperPeer() {
				t.Error("a malformed REGOK must not promote")
			}
		})
	}
}

// ─── Super peers ────────────────────────────────────────────────────────────

func TestJoinSuperPeer_AssignsAndAggregates(t *testing.T) {
	hub := network.NewHub()
	p1 := newTestPeer(t, hub, addr1, table.DefaultLimits(), "Iron Man", "Hulk")
	p2 := newTestPeer(t, hub, addr2, table.DefaultLimits())
	p2.router.Promote()

	p1.manager.connectToSuperPeer(addr2)
	hub.Wait()

	if sp, ok := p1.router.Table().AssignedSuperPeer(); !ok || sp.Address != addr2 {
		t.Fatalf("assigned super peer = %v (%v), want %v", sp, ok, addr2)
	}
	tb := p2.router.Table()
	if !tb.IsAssignedOrdinary(addr1) || !tb.HasUnstructured(addr1) {
		t.Errorf("super peer snapshot = %+v, want p1 assigned and in the mesh", tb.Snapshot())
	}
	if n := tb.Aggregated().Len(); n != 2 {
		t.Errorf("aggregated entries = %d, want 2", n)
	}
}

func TestJoinSuperPeer_LargeCatalogFitsOneFrame(t *testing.T) {
	owned := make([]string, 1000)
	for i := range owned {
		owned[i] = "shared_resource_" + strconv.Itoa(i)
	}
	hub := network.NewHub()
	p1 := newTestPeer(t, hub, addr1, table.DefaultLimits(), owned...)
	p2 := newTestPeer(t, hub, addr2, table.DefaultLimits())
	p2.router.Promote()

	p1.manager.connectToSuperPeer(addr2)
	hub.Wait()

	if sp, ok := p1.router.Table().AssignedSuperPeer(); !ok || sp.Address != addr2 {
		t.Fatalf("assigned super peer = %v (%v), want %v", sp, ok, addr2)
	}
	n := p2.router.Table().Aggregated().Len()
	if n == 0 || n >= len(owned) {
		t.Errorf("aggregated entries = %d, want a truncated non-empty list", n)
	}
}

func TestJoinSuperPeer_NotSuperPeerRefuses(t *testing.T) {
	hub := network.NewHub()
	p1 := newTestPeer(t, hub, addr1, table.DefaultLimits())
	newTestPeer(t, hub, addr2, table.DefaultLimits())

	p1.manager.connectToSuperPeer(addr2)
	hub.Wait()

	if _, ok := p1.router.Table().AssignedSuperPeer(); ok {
		t.Error("an ordinary peer must not accept assignment")
	}
	if !p1.manager.Searching() {
		t.Error("a refused join should start a super peer search")
	}
}

func TestJoinSuperPeer_FullPromotesAndJoinsBackbone(t *testing.T) {
	hub := network.NewHub()
	p1 := newTestPeer(t, hub, addr1, table.DefaultLimits())
	p2 := newTestPeer(t, hub, addr2, table.Limits{MaxAssignedOrdinary: 1})
	p2.router.Promote()
	if err := p2.router.Table().AddAssignedOrdinary(addr3); err != nil {
		t.Fatalf("AddAssignedOrdinary: %v", err)
	}

	p1.manager.connectToSuperPeer(addr2)
	hub.Wait()

	if !p1.router.Table().IsSuperPeer() {
		t.Fatal("p1 should promote when the only super peer is full")
	}
	if !p1.router.Table().HasSuperPeer(addr2) || !p2.router.Table().HasSuperPeer(addr1) {
		t.Error("promoted p1 should join the backbone with p2")
	}
}

func TestListResourcesOK_IgnoredFromUnassigned(t *testing.T) {
	hub := network.NewHub()
	p := newTestPeer(t, hub, addr1, table.DefaultLimits())
	p.router.Promote()

	p.manager.OnMessage(addr2, wire.NewAddressed(wire.TypeListResourcesOK, addr2, "1", "Hulk"))
	if n := p.router.Table().Aggregated().Len(); n != 0 {
		t.Errorf("aggregated entries = %d, want 0", n)
	}

	p.router.Table().AddAssignedOrdinary(addr2)
	p.manager.OnMessage(addr2, wire.NewAddressed(wire.TypeListResourcesOK, addr2, "1", "Hulk"))
	if got := p.router.Table().Aggregated().Owners("hulk"); len(got) != 1 {
		t.Errorf("owners = %v, want [%v]", got, addr2)
	}
}

func TestSearchForSuperPeer_TimeoutPromotes(t *testing.T) {
	hub := network.NewHub()
	p := newTestPeer(t, hub, addr1, table.DefaultLimits())
	p.manager.cfg.SerSuperPeerTimeout = 10 * time.Millisecond

	p.manager.SearchForSuperPeer()
	eventually(t, "self promotion", func() bool { return p.router.Table().IsSuperPeer() })

	if p.manager.Searching() {
		t.Error("search still pending after promotion")
	}
}

func TestSearchForSuperPeer_FindsNeighbour(t *testing.T) {
	hub := network.NewHub()
	p1 := newTestPeer(t, hub, addr1, table.DefaultLimits())
	p2 := newTestPeer(t, hub, addr2, table.DefaultLimits())
	link(t, p1, p2)
	p2.router.Promote()
	p1.manager.cfg.SerSuperPeerTimeout = 50 * time.Millisecond

	p1.manager.SearchForSuperPeer()
	eventually(t, "assignment", func() bool {
		sp, ok := p1.router.Table().AssignedSuperPeer()
		return ok && sp.Address == addr2
	})
	time.Sleep(150 * time.Millisecond)

	if p1.router.Table().IsSuperPeer() {
		t.Error("answered search must not time out into promotion")
	}
}

// ─── Gossip ─────────────────────────────────────────────────────────────────

func TestGossip_IsolatedReregisters(t *testing.T) {
	hub := network.NewHub()
	rec := &frames{}
	hub.Transport(boot).SetListener(rec)
	p := newTestPeer(t, hub, addr1, table.DefaultLimits())

	p.manager.Gossip()
	hub.Wait()

	seen := map[wire.Type]int{}
	for _, typ := range rec.types() {
		seen[typ]++
	}
	if seen[wire.TypeUnreg] != 1 || seen[wire.TypeReg] != 1 {
		t.Errorf("bootstrap saw %v, want one UNREG and one REG", rec.types())
	}
}

func TestGossip_SuperPeerCollectsResources(t *testing.T) {
	hub := network.NewHub()
	p1 := newTestPeer(t, hub, addr1, table.DefaultLimits(), "Iron Man")
	p2 := newTestPeer(t, hub, addr2, table.DefaultLimits())
	p2.router.Promote()
	p2.router.Table().AddAssignedOrdinary(addr1)
	p1.router.Table().AddUnstructured(addr2)
	p1.router.Table().SetAssignedSuperPeer(addr2)

	p1.router.Resources().Add(resource.OwnedResource{Name: "Hulk"})
	p2.manager.Gossip()
	hub.Wait()

	if got := p2.router.Table().Aggregated().Owners("hulk"); len(got) != 1 || got[0] != addr1 {
		t.Errorf("owners of hulk = %v, want [%v]", got, addr1)
	}
}
