// Package overlay maintains this peer's place in the network: bootstrap
// registration, mesh joins and leaves, super-peer discovery and assignment,
// gossip that grows the mesh, and the queries this node originates.
package overlay

import (
	"context"
	"log"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/exp/rand"

	"github.com/tutu-network/sharer/internal/domain"
	"github.com/tutu-network/sharer/internal/infra/metrics"
	"github.com/tutu-network/sharer/internal/routing"
	"github.com/tutu-network/sharer/internal/routing/table"
	"github.com/tutu-network/sharer/internal/wire"
)

// Debug enables a log line per membership decision.
var Debug bool

// Config holds overlay settings.
type Config struct {
	Username            string
	GossipInterval      time.Duration
	SerSuperPeerTimeout time.Duration
}

// DefaultConfig returns production overlay defaults.
func DefaultConfig() Config {
	return Config{
		Username:            "sharer",
		GossipInterval:      30 * time.Second,
		SerSuperPeerTimeout: 5 * time.Second,
	}
}

// Manager runs the membership state machine on top of a Router.
type Manager struct {
	cfg    Config
	router *routing.Router

	mu             sync.Mutex
	searchDelay    *time.Timer
	searchTimeout  *time.Timer
	fullSuperPeers map[domain.Address]struct{}
	portOccupied   bool

	stopped atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewManager creates a manager and registers it with r.
func NewManager(cfg Config, r *routing.Router) *Manager {
	if cfg.SerSuperPeerTimeout <= 0 {
		cfg.SerSuperPeerTimeout = DefaultConfig().SerSuperPeerTimeout
	}
	if cfg.Username == "" {
		cfg.Username = DefaultConfig().Username
	}
	m := &Manager{
		cfg:            cfg,
		router:         r,
		fullSuperPeers: make(map[domain.Address]struct{}),
	}
	r.AddListener(m)
	return m
}

// Start registers with the bootstrap server and starts gossiping.
func (m *Manager) Start(ctx context.Context) error {
	ctx, m.cancel = context.WithCancel(ctx)
	if err := m.Register(); err != nil {
		return err
	}
	if m.cfg.GossipInterval > 0 {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			ticker := time.NewTicker(m.cfg.GossipInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					m.Gossip()
				}
			}
		}()
	}
	return nil
}

// Stop leaves every neighbour, unregisters and cancels pending timers.
// It is one-way.
func (m *Manager) Stop() {
	if !m.stopped.CompareAndSwap(false, true) {
		return
	}
	if m.cancel != nil {
		m.cancel()
	}
	m.CancelSearch()

	leave := wire.NewAddressed(wire.TypeLeave, m.self())
	for _, n := range m.router.Table().All() {
		m.router.SendMessage(n.Address, leave)
	}
	m.Unregister()
	m.wg.Wait()
	log.Printf("[overlay] left the network")
}

func (m *Manager) self() domain.Address { return m.router.Self() }

// PortOccupied reports whether the bootstrap server refused our address.
func (m *Manager) PortOccupied() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.portOccupied
}

// AliveNeighbours counts known nodes that are not inactive.
func (m *Manager) AliveNeighbours() int {
	n := 0
	for _, node := range m.router.Table().All() {
		if node.Alive() {
			n++
		}
	}
	return n
}

// ─── Bootstrap ──────────────────────────────────────────────────────────────

// Register announces this node to the bootstrap server.
func (m *Manager) Register() error {
	self := m.self()
	return m.router.SendToBootstrap(wire.New(wire.TypeReg, self.IP, self.PortString(), m.cfg.Username))
}

// Unregister removes this node from the bootstrap server.
func (m *Manager) Unregister() error {
	self := m.self()
	return m.router.SendToBootstrap(wire.New(wire.TypeUnreg, self.IP, self.PortString(), m.cfg.Username))
}

func (m *Manager) handleRegOK(msg *wire.Message) {
	value := msg.Field(wire.RegOKCount)
	switch value {
	case wire.RegOKAlreadyOccupied:
		m.mu.Lock()
		m.portOccupied = true
		m.mu.Unlock()
		log.Printf("[overlay] bootstrap reports %s occupied by another user", m.self())
		return
	case wire.RegOKAlreadyRegistered:
		log.Printf("[overlay] already registered with bootstrap")
		return
	case wire.RegOKFull:
		log.Printf("[overlay] bootstrap server is full")
		return
	case wire.RegOKError:
		log.Printf("[overlay] bootstrap rejected registration")
		return
	}

	count, err := msg.Int(wire.RegOKCount)
	if err != nil {
		log.Printf("[overlay] bad REGOK: %v", err)
		return
	}
	m.mu.Lock()
	m.portOccupied = false
	m.mu.Unlock()
	if count == 0 {
		log.Printf("[overlay] first node in the network")
		m.SelfPromote(false)
		return
	}

	peers, err := msg.Addresses(wire.RegOKAddrStart, count)
	if err != nil {
		log.Printf("[overlay] bad REGOK: %v", err)
		return
	}
	for _, p := range pickAddresses(peers, wire.RegOKMaxListed) {
		m.join(p)
	}
}

func (m *Manager) handleUnregOK(msg *wire.Message) {
	if msg.Field(wire.UnregOKValue) != wire.ValueSuccess {
		log.Printf("[overlay] bootstrap could not unregister %s", m.self())
	}
}

// ─── Mesh membership ────────────────────────────────────────────────────────

func (m *Manager) join(to domain.Address) {
	if to == m.self() || m.router.Table().HasUnstructured(to) {
		return
	}
	m.router.SendMessage(to, wire.NewAddressed(wire.TypeJoin, m.self()))
}

func (m *Manager) handleJoin(from domain.Address, msg *wire.Message) {
	joiner, err := msg.Address(wire.JoinIP)
	if err != nil {
		joiner = from
	}
	t := m.router.Table()
	self := m.self()

	limit := t.Limits().MaxUnstructured
	if t.HasUnstructured(joiner) || limit <= 0 || len(t.AliveUnstructured()) < limit {
		if err := t.AddUnstructured(joiner); err != nil {
			log.Printf("[overlay] rejected JOIN from %s: %v", joiner, err)
			m.router.SendMessage(joiner, wire.New(wire.TypeJoinOK, wire.JoinOKError, self.IP, self.PortString()))
			return
		}
		metrics.MembershipEvents.WithLabelValues("join").Inc()
		reply := wire.New(wire.TypeJoinOK, wire.ValueSuccess, self.IP, self.PortString())
		if sp, ok := m.knownSuperPeer(t); ok {
			reply.Fields = append(reply.Fields, sp.IP, sp.PortString())
		}
		m.router.SendMessage(joiner, reply)
		return
	}

	reply := wire.New(wire.TypeJoinOK, wire.JoinOKFull, self.IP, self.PortString())
	var candidates []domain.Address
	for _, n := range t.AliveUnstructured() {
		if n.Address != joiner {
			candidates = append(candidates, n.Address)
		}
	}
	if len(candidates) > 0 {
		alt := candidates[rand.Intn(len(candidates))]
		reply.Fields = append(reply.Fields, alt.IP, alt.PortString())
	}
	metrics.MembershipEvents.WithLabelValues("join_full").Inc()
	m.router.SendMessage(joiner, reply)
}

// knownSuperPeer is the super peer this node advertises to joiners.
func (m *Manager) knownSuperPeer(t *table.Table) (domain.Address, bool) {
	if t.IsSuperPeer() {
		return m.self(), true
	}
	if sp, ok := t.AssignedSuperPeer(); ok {
		return sp.Address, true
	}
	return domain.Address{}, false
}

func (m *Manager) handleJoinOK(msg *wire.Message) {
	peer, err := msg.Address(wire.JoinOKIP)
	if err != nil {
		log.Printf("[overlay] bad JOINOK: %v", err)
		return
	}
	t := m.router.Table()

	switch msg.Field(wire.JoinOKValue) {
	case wire.ValueSuccess:
		if err := t.AddUnstructured(peer); err != nil {
			log.Printf("[overlay] could not keep %s: %v", peer, err)
			return
		}
		if Debug {
			log.Printf("[overlay] joined %s", peer)
		}
		sp, advertised := domain.Address{}, false
		if msg.Has(wire.JoinOKSuperPeerPort) {
			if a, err := msg.Address(wire.JoinOKSuperPeerIP); err == nil && a != m.self() {
				sp, advertised = a, true
			}
		}
		if t.IsSuperPeer() {
			if advertised && !t.HasSuperPeer(sp) {
				m.connectToSuperPeer(sp)
			}
			return
		}
		if _, ok := t.AssignedSuperPeer(); ok {
			return
		}
		if advertised {
			m.connectToSuperPeer(sp)
		} else {
			m.SearchForSuperPeer()
		}
	case wire.JoinOKFull:
		if msg.Has(wire.JoinOKNewPort) {
			if alt, err := msg.Address(wire.JoinOKNewIP); err == nil {
				m.join(alt)
			}
		}
	default:
		log.Printf("[overlay] %s refused JOIN", peer)
	}
}

func (m *Manager) handleLeave(from domain.Address, msg *wire.Message) {
	peer, err := msg.Address(wire.LeaveIP)
	if err != nil {
		peer = from
	}
	value := wire.ValueSuccess
	if !m.router.Table().RemoveFromAll(peer) {
		value = wire.LeaveOKError
	}
	metrics.MembershipEvents.WithLabelValues("leave").Inc()
	self := m.self()
	m.router.SendMessage(peer, wire.New(wire.TypeLeaveOK, value, self.IP, self.PortString()))
}

func (m *Manager) handleLeaveOK(msg *wire.Message) {
	peer, err := msg.Address(wire.LeaveOKIP)
	if err != nil {
		return
	}
	m.router.Table().RemoveFromAll(peer)
}

// ─── Super peers ────────────────────────────────────────────────────────────

// SearchForSuperPeer waits a random delay in [t, 2t), routes SER_SUPER_PEER
// and self-promotes if no super peer answers within t. A search already in
// progress is left alone.
func (m *Manager) SearchForSuperPeer() {
	if m.stopped.Load() {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.searchDelay != nil || m.searchTimeout != nil {
		return
	}

	timeout := m.cfg.SerSuperPeerTimeout
	delay := timeout + time.Duration(rand.Int63n(int64(timeout)))
	m.searchDelay = time.AfterFunc(delay, func() {
		m.mu.Lock()
		if m.searchDelay == nil {
			m.mu.Unlock()
			return
		}
		m.searchDelay = nil
		t := m.router.Table()
		if _, ok := t.AssignedSuperPeer(); ok || m.stopped.Load() {
			m.mu.Unlock()
			return
		}
		m.searchTimeout = time.AfterFunc(timeout, m.searchTimedOut)
		m.mu.Unlock()

		log.Printf("[overlay] searching for a super peer")
		m.router.Route(nil, wire.NewSerSuperPeer(m.self()))
	})
}

func (m *Manager) searchTimedOut() {
	m.mu.Lock()
	if m.searchTimeout == nil {
		m.mu.Unlock()
		return
	}
	m.searchTimeout = nil
	m.mu.Unlock()

	log.Printf("[overlay] super peer search timed out")
	m.SelfPromote(false)
}

// CancelSearch stops a pending super-peer search.
func (m *Manager) CancelSearch() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.searchDelay != nil {
		m.searchDelay.Stop()
		m.searchDelay = nil
	}
	if m.searchTimeout != nil {
		m.searchTimeout.Stop()
		m.searchTimeout = nil
	}
}

// Searching reports whether a super-peer search is pending.
func (m *Manager) Searching() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.searchDelay != nil || m.searchTimeout != nil
}

// SelfPromote turns this node into a super peer. With joinCached it also
// offers itself to every super peer that previously reported being full.
func (m *Manager) SelfPromote(joinCached bool) {
	if m.stopped.Load() {
		return
	}
	m.CancelSearch()
	m.router.Promote()
	if !joinCached {
		return
	}
	for _, sp := range m.cachedFull() {
		m.connectToSuperPeer(sp)
	}
}

// Demote turns this node back into an ordinary peer and looks for a
// super peer to report to.
func (m *Manager) Demote() {
	if m.router.Demote() {
		m.SearchForSuperPeer()
	}
}

func (m *Manager) connectToSuperPeer(sp domain.Address) {
	if sp == m.self() {
		return
	}
	t := m.router.Table()
	self := m.self()
	msg := wire.New(wire.TypeJoinSuperPeer, self.IP, self.PortString(), t.Role().String())
	if t.IsSuperPeer() {
		msg.Fields = append(msg.Fields, "0")
	} else {
		names := m.router.Resources().Names()
		msg.Fields = append(msg.Fields, strconv.Itoa(len(names)))
		msg.Fields = append(msg.Fields, names...)
		if n := msg.FitCounted(wire.JoinSuperPeerResourceCount, wire.JoinSuperPeerResourceStart); n > 0 {
			log.Printf("[overlay] announcing %d of %d resources to %s", len(names)-n, len(names), sp)
		}
	}
	m.router.SendMessage(sp, msg)
}

func (m *Manager) handleSerSuperPeerOK(msg *wire.Message) {
	sp, err := msg.Address(wire.SerSuperPeerOKIP)
	if err != nil {
		log.Printf("[overlay] bad SERSUPERPEEROK: %v", err)
		return
	}
	m.CancelSearch()
	if Debug {
		log.Printf("[overlay] found super peer %s", sp)
	}
	m.connectToSuperPeer(sp)
}

func (m *Manager) handleJoinSuperPeer(from domain.Address, msg *wire.Message) {
	joiner, err := msg.Address(wire.JoinSuperPeerSourceIP)
	if err != nil {
		joiner = from
	}
	self := m.self()
	reply := func(value string, extra ...string) {
		fields := append([]string{value, self.IP, self.PortString()}, extra...)
		m.router.SendMessage(joiner, wire.New(wire.TypeJoinSuperPeerOK, fields...))
	}

	t := m.router.Table()
	if !t.IsSuperPeer() {
		reply(wire.JoinSuperPeerOKNotSuperPeer)
		return
	}
	role, err := table.ParseRole(msg.Field(wire.JoinSuperPeerSourceRole))
	if err != nil {
		log.Printf("[overlay] bad JOINSUPERPEER from %s: %v", joiner, err)
		return
	}

	if role == table.RoleOrdinary {
		names, err := msg.Counted(wire.JoinSuperPeerResourceCount)
		if err != nil {
			log.Printf("[overlay] bad JOINSUPERPEER from %s: %v", joiner, err)
			return
		}
		if err := t.AddAssignedOrdinary(joiner); err == nil {
			agg := t.Aggregated()
			agg.RemoveNodeFromAll(joiner)
			agg.AddAll(names, joiner)
			metrics.MembershipEvents.WithLabelValues("assign").Inc()
			reply(wire.ValueSuccess)
			return
		}
	} else if err := t.AddSuperPeer(joiner); err == nil {
		metrics.MembershipEvents.WithLabelValues("backbone").Inc()
		reply(wire.ValueSuccess)
		return
	}

	// Full: point the joiner at another backbone peer we have not seen full.
	var candidates []domain.Address
	for _, n := range t.AliveSuperPeers() {
		if n.Address != joiner && !m.isCachedFull(n.Address) {
			candidates = append(candidates, n.Address)
		}
	}
	if len(candidates) == 0 {
		reply(wire.JoinSuperPeerOKFullNoOneElse)
		return
	}
	alt := candidates[rand.Intn(len(candidates))]
	reply(wire.JoinSuperPeerOKFull, alt.IP, alt.PortString())
}

func (m *Manager) handleJoinSuperPeerOK(msg *wire.Message) {
	sp, err := msg.Address(wire.JoinSuperPeerOKIP)
	if err != nil {
		log.Printf("[overlay] bad JOINSUPERPEEROK: %v", err)
		return
	}

	switch msg.Field(wire.JoinSuperPeerOKValue) {
	case wire.ValueSuccess:
		m.uncacheFull(sp)
		t := m.router.Table()
		if t.IsSuperPeer() {
			if err := t.AddSuperPeer(sp); err != nil {
				log.Printf("[overlay] could not add backbone peer %s: %v", sp, err)
			}
			return
		}
		if err := t.SetAssignedSuperPeer(sp); err != nil {
			log.Printf("[overlay] could not assign super peer %s: %v", sp, err)
			return
		}
		log.Printf("[overlay] assigned to super peer %s", sp)
	case wire.JoinSuperPeerOKNotSuperPeer:
		m.SearchForSuperPeer()
	case wire.JoinSuperPeerOKFull:
		m.cacheFull(sp)
		alt, err := msg.Address(wire.JoinSuperPeerOKNewIP)
		if err != nil || alt == m.self() || m.isCachedFull(alt) {
			m.SelfPromote(true)
			return
		}
		m.connectToSuperPeer(alt)
	case wire.JoinSuperPeerOKFullNoOneElse:
		m.cacheFull(sp)
		m.SelfPromote(true)
	}
}

func (m *Manager) cacheFull(a domain.Address) {
	m.mu.Lock()
	m.fullSuperPeers[a] = struct{}{}
	m.mu.Unlock()
}

func (m *Manager) uncacheFull(a domain.Address) {
	m.mu.Lock()
	delete(m.fullSuperPeers, a)
	m.mu.Unlock()
}

func (m *Manager) isCachedFull(a domain.Address) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.fullSuperPeers[a]
	return ok
}

func (m *Manager) cachedFull() []domain.Address {
	m.mu.Lock()
	out := make([]domain.Address, 0, len(m.fullSuperPeers))
	for a := range m.fullSuperPeers {
		out = append(out, a)
	}
	m.mu.Unlock()
	domain.SortAddresses(out)
	return out
}

// ─── Lists ──────────────────────────────────────────────────────────────────

func (m *Manager) handleListResources(from domain.Address, msg *wire.Message) {
	to, err := msg.Address(wire.ListRequestIP)
	if err != nil {
		to = from
	}
	names := m.router.Resources().Names()
	reply := wire.NewAddressed(wire.TypeListResourcesOK, m.self(), strconv.Itoa(len(names)))
	reply.Fields = append(reply.Fields, names...)
	if n := reply.FitCounted(wire.ListOKCount, wire.ListOKEntryStart); n > 0 {
		log.Printf("[overlay] listing %d of %d resources to %s", len(names)-n, len(names), to)
	}
	m.router.SendMessage(to, reply)
}

func (m *Manager) handleListResourcesOK(msg *wire.Message) {
	t := m.router.Table()
	if !t.IsSuperPeer() {
		return
	}
	peer, err := msg.Address(wire.ListOKIP)
	if err != nil {
		return
	}
	if !t.IsAssignedOrdinary(peer) {
		if Debug {
			log.Printf("[overlay] ignored resource list from unassigned %s", peer)
		}
		return
	}
	names, err := msg.Counted(wire.ListOKCount)
	if err != nil {
		log.Printf("[overlay] bad LISTRESOURCESOK from %s: %v", peer, err)
		return
	}
	agg := t.Aggregated()
	agg.RemoveNodeFromAll(peer)
	agg.AddAll(names, peer)
}

func (m *Manager) handleListConnections(from domain.Address, msg *wire.Message, okType wire.Type) {
	to, err := msg.Address(wire.ListRequestIP)
	if err != nil {
		to = from
	}
	t := m.router.Table()
	reply := wire.NewAddressed(okType, m.self())

	var pool []domain.Node
	if okType == wire.TypeListSuperPeerConnectionsOK {
		if !t.IsSuperPeer() {
			reply.Fields = append(reply.Fields, wire.ListSuperPeerConnectionsNotSuperPeer)
			m.router.SendMessage(to, reply)
			return
		}
		pool = t.AliveSuperPeers()
	} else {
		pool = t.AliveUnstructured()
	}

	var addrs []domain.Address
	for _, n := range pool {
		if n.Address != to {
			addrs = append(addrs, n.Address)
		}
	}
	picked := pickAddresses(addrs, wire.ListMaxCount)
	reply.Fields = append(reply.Fields, strconv.Itoa(len(picked)))
	for _, a := range picked {
		reply.Fields = append(reply.Fields, a.IP, a.PortString())
	}
	m.router.SendMessage(to, reply)
}

func (m *Manager) handleListConnectionsOK(msg *wire.Message) {
	if msg.Field(wire.ListOKCount) == wire.ListSuperPeerConnectionsNotSuperPeer &&
		msg.Type == wire.TypeListSuperPeerConnectionsOK {
		return
	}
	count, err := msg.Int(wire.ListOKCount)
	if err != nil {
		return
	}
	addrs, err := msg.Addresses(wire.ListOKEntryStart, count)
	if err != nil {
		log.Printf("[overlay] bad %s: %v", msg.Type, err)
		return
	}
	t := m.router.Table()
	for _, a := range addrs {
		if msg.Type == wire.TypeListSuperPeerConnectionsOK {
			if a != m.self() && !t.HasSuperPeer(a) {
				m.connectToSuperPeer(a)
			}
			continue
		}
		m.join(a)
	}
}

// ─── Gossip ─────────────────────────────────────────────────────────────────

// Gossip runs one round of mesh maintenance.
func (m *Manager) Gossip() {
	if m.stopped.Load() {
		return
	}
	t := m.router.Table()

	if t.Len() == 0 {
		log.Printf("[overlay] isolated, re-registering with bootstrap")
		m.Unregister()
		m.Register()
		return
	}

	self := m.self()
	if alive := t.AliveUnstructured(); len(alive) > 0 && len(alive) < t.Limits().MaxUnstructured {
		target := alive[rand.Intn(len(alive))]
		m.router.SendMessage(target.Address, wire.NewAddressed(wire.TypeListUnstructuredConnections, self))
	}

	if t.IsSuperPeer() {
		backbone := t.AliveSuperPeers()
		switch {
		case len(backbone) == 0:
			m.SearchForSuperPeer()
		case len(backbone) < t.Limits().MaxSuperPeers:
			target := backbone[rand.Intn(len(backbone))]
			m.router.SendMessage(target.Address, wire.NewAddressed(wire.TypeListSuperPeerConnections, self))
		}
		for _, n := range t.AssignedOrdinary() {
			m.router.SendMessage(n.Address, wire.NewAddressed(wire.TypeListResources, self))
		}
		return
	}

	if _, ok := t.AssignedSuperPeer(); !ok {
		m.SearchForSuperPeer()
	}
}

// ─── Router listener ────────────────────────────────────────────────────────

// OnMessage implements routing.Listener.
func (m *Manager) OnMessage(from domain.Address, msg *wire.Message) {
	if m.stopped.Load() {
		return
	}
	switch msg.Type {
	case wire.TypeRegOK:
		m.handleRegOK(msg)
	case wire.TypeUnregOK:
		m.handleUnregOK(msg)
	case wire.TypeEchoOK:
	case wire.TypeJoin:
		m.handleJoin(from, msg)
	case wire.TypeJoinOK:
		m.handleJoinOK(msg)
	case wire.TypeLeave:
		m.handleLeave(from, msg)
	case wire.TypeLeaveOK:
		m.handleLeaveOK(msg)
	case wire.TypeSerSuperPeerOK:
		m.handleSerSuperPeerOK(msg)
	case wire.TypeJoinSuperPeer:
		m.handleJoinSuperPeer(from, msg)
	case wire.TypeJoinSuperPeerOK:
		m.handleJoinSuperPeerOK(msg)
	case wire.TypeListResources:
		m.handleListResources(from, msg)
	case wire.TypeListResourcesOK:
		m.handleListResourcesOK(msg)
	case wire.TypeListUnstructuredConnections:
		m.handleListConnections(from, msg, wire.TypeListUnstructuredConnectionsOK)
	case wire.TypeListSuperPeerConnections:
		m.handleListConnections(from, msg, wire.TypeListSuperPeerConnectionsOK)
	case wire.TypeListUnstructuredConnectionsOK, wire.TypeListSuperPeerConnectionsOK:
		m.handleListConnectionsOK(msg)
	default:
		if Debug {
			log.Printf("[overlay] ignored %s from %s", msg.Type, from)
		}
	}
}

// OnSendFailed implements routing.Listener.
func (m *Manager) OnSendFailed(to domain.Address, msg *wire.Message) {
	if m.stopped.Load() {
		return
	}
	if msg.Type == wire.TypeJoinSuperPeer {
		log.Printf("[overlay] super peer %s unreachable", to)
		m.SearchForSuperPeer()
	}
}

// pickAddresses returns up to n distinct addresses chosen uniformly.
func pickAddresses(addrs []domain.Address, n int) []domain.Address {
	if len(addrs) <= n {
		return addrs
	}
	out := make([]domain.Address, 0, n)
	for _, i := range rand.Perm(len(addrs))[:n] {
		out = append(out, addrs[i])
	}
	return out
}
