// Package table holds the per-role neighbour sets of a peer.
//
// An ordinary peer keeps an unstructured set and optionally an assigned super
// peer. A super peer keeps the same unstructured set plus a super-peer
// backbone, the ordinary peers assigned to it, and the aggregated index of
// their resources. Every category has its own lock; no method holds two
// category locks at once.
package table

import (
	"fmt"
	"strings"
	"sync"

	"github.com/tutu-network/sharer/internal/domain"
	"github.com/tutu-network/sharer/internal/resource"
)

// Role is the variant of a routing table.
type Role int

const (
	RoleOrdinary Role = iota
	RoleSuperPeer
)

// String returns the wire representation used in JOIN_SUPER_PEER.
func (r Role) String() string {
	if r == RoleSuperPeer {
		return "SUPER_PEER"
	}
	return "ORDINARY_PEER"
}

// ParseRole resolves a wire role token.
func ParseRole(s string) (Role, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ORDINARY_PEER", "ORDINARY":
		return RoleOrdinary, nil
	case "SUPER_PEER", "SUPER":
		return RoleSuperPeer, nil
	default:
		return RoleOrdinary, fmt.Errorf("%w: unknown role %q", domain.ErrProtocol, s)
	}
}

// Limits bounds each neighbour category. Zero means unbounded.
type Limits struct {
	MaxUnstructured     int
	MaxSuperPeers       int
	MaxAssignedOrdinary int
}

// DefaultLimits mirrors the defaults of a freshly configured node.
func DefaultLimits() Limits {
	return Limits{MaxUnstructured: 5, MaxSuperPeers: 3, MaxAssignedOrdinary: 5}
}

// ─── Node sets ──────────────────────────────────────────────────────────────

type nodeSet struct {
	mu    sync.RWMutex
	addrs map[domain.Address]struct{}
}

func newNodeSet() *nodeSet {
	return &nodeSet{addrs: make(map[domain.Address]struct{})}
}

// add inserts a; it fails with ErrNeighbourLimit when full and a is new.
func (s *nodeSet) add(a domain.Address, max int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.addrs[a]; ok {
		return false, nil
	}
	if max > 0 && len(s.addrs) >= max {
		return false, domain.ErrNeighbourLimit
	}
	s.addrs[a] = struct{}{}
	return true, nil
}

func (s *nodeSet) remove(a domain.Address) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.addrs[a]; !ok {
		return false
	}
	delete(s.addrs, a)
	return true
}

func (s *nodeSet) has(a domain.Address) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.addrs[a]
	return ok
}

func (s *nodeSet) list() []domain.Address {
	s.mu.RLock()
	out := make([]domain.Address, 0, len(s.addrs))
	for a := range s.addrs {
		out = append(out, a)
	}
	s.mu.RUnlock()
	domain.SortAddresses(out)
	return out
}

func (s *nodeSet) len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.addrs)
}

func (s *nodeSet) clear() {
	s.mu.Lock()
	s.addrs = make(map[domain.Address]struct{})
	s.mu.Unlock()
}

// liveness records the heartbeat state of every known address.
type liveness struct {
	mu     sync.RWMutex
	states map[domain.Address]domain.NodeState
}

func newLiveness() *liveness {
	return &liveness{states: make(map[domain.Address]domain.NodeState)}
}

func (l *liveness) get(a domain.Address) domain.NodeState {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.states[a] // zero value is NodeActive
}

func (l *liveness) set(a domain.Address, s domain.NodeState) {
	l.mu.Lock()
	l.states[a] = s
	l.mu.Unlock()
}

func (l *liveness) touch(a domain.Address) {
	l.mu.Lock()
	if _, ok := l.states[a]; !ok {
		l.states[a] = domain.NodeActive
	}
	l.mu.Unlock()
}

func (l *liveness) forget(a domain.Address) {
	l.mu.Lock()
	delete(l.states, a)
	l.mu.Unlock()
}

// ─── Table ──────────────────────────────────────────────────────────────────

// Table is one variant of a peer's routing state. The variant never changes
// in place; Promote and Demote return a new table sharing the unstructured
// set and liveness records.
type Table struct {
	role      Role
	self      domain.Address
	bootstrap domain.Address
	limits    Limits

	unstructured *nodeSet
	live         *liveness

	// Ordinary variant.
	spMu              sync.RWMutex
	assignedSuperPeer *domain.Address

	// Super-peer variant.
	superPeers *nodeSet
	assigned   *nodeSet
	aggregated *resource.Aggregated
}

// New returns an empty ordinary-peer table.
func New(self, bootstrap domain.Address, limits Limits) *Table {
	return &Table{
		role:         RoleOrdinary,
		self:         self,
		bootstrap:    bootstrap,
		limits:       limits,
		unstructured: newNodeSet(),
		live:         newLiveness(),
	}
}

// NewSuperPeer returns an empty super-peer table.
func NewSuperPeer(self, bootstrap domain.Address, limits Limits) *Table {
	return New(self, bootstrap, limits).Promote()
}

func (t *Table) Role() Role                { return t.role }
func (t *Table) IsSuperPeer() bool         { return t.role == RoleSuperPeer }
func (t *Table) Self() domain.Address      { return t.self }
func (t *Table) Bootstrap() domain.Address { return t.bootstrap }
func (t *Table) Limits() Limits            { return t.limits }

// Promote returns a super-peer table with the same unstructured set and
// empty super-peer categories. A super-peer table promotes to itself.
func (t *Table) Promote() *Table {
	if t.role == RoleSuperPeer {
		return t
	}
	return &Table{
		role:         RoleSuperPeer,
		self:         t.self,
		bootstrap:    t.bootstrap,
		limits:       t.limits,
		unstructured: t.unstructured,
		live:         t.live,
		superPeers:   newNodeSet(),
		assigned:     newNodeSet(),
		aggregated:   resource.NewAggregated(),
	}
}

// Demote returns an ordinary table with the same unstructured set. The
// backbone, the assigned peers and the aggregated index are dropped.
func (t *Table) Demote() *Table {
	if t.role == RoleOrdinary {
		return t
	}
	t.aggregated.Clear()
	return &Table{
		role:         RoleOrdinary,
		self:         t.self,
		bootstrap:    t.bootstrap,
		limits:       t.limits,
		unstructured: t.unstructured,
		live:         t.live,
	}
}

func (t *Table) check(a domain.Address) error {
	if a == t.self {
		return domain.ErrSelfNode
	}
	if a.IsZero() {
		return domain.ErrInvalidAddress
	}
	return nil
}

// ─── Unstructured ───────────────────────────────────────────────────────────

// AddUnstructured adds a mesh neighbour. Re-adding a known address is a no-op.
func (t *Table) AddUnstructured(a domain.Address) error {
	if err := t.check(a); err != nil {
		return err
	}
	added, err := t.unstructured.add(a, t.limits.MaxUnstructured)
	if err != nil {
		return err
	}
	if added {
		t.live.set(a, domain.NodeActive)
	}
	return nil
}

// RemoveUnstructured drops a mesh neighbour. On a super peer it also
// unassigns the node so assigned peers stay a subset of the mesh.
func (t *Table) RemoveUnstructured(a domain.Address) bool {
	ok := t.unstructured.remove(a)
	if t.role == RoleSuperPeer && t.assigned.remove(a) {
		t.aggregated.RemoveNodeFromAll(a)
	}
	t.forgetIfUnknown(a)
	return ok
}

// HasUnstructured reports whether a is a mesh neighbour.
func (t *Table) HasUnstructured(a domain.Address) bool {
	return t.unstructured.has(a)
}

// Unstructured returns a snapshot of the mesh neighbours.
func (t *Table) Unstructured() []domain.Node {
	return t.nodes(t.unstructured.list())
}

// AliveUnstructured returns the mesh neighbours that are not inactive.
func (t *Table) AliveUnstructured() []domain.Node {
	return alive(t.Unstructured())
}

// ─── Ordinary variant ───────────────────────────────────────────────────────

// AssignedSuperPeer returns the super peer this ordinary peer reports to.
func (t *Table) AssignedSuperPeer() (domain.Node, bool) {
	t.spMu.RLock()
	defer t.spMu.RUnlock()
	if t.assignedSuperPeer == nil {
		return domain.Node{}, false
	}
	a := *t.assignedSuperPeer
	return domain.Node{Address: a, State: t.live.get(a)}, true
}

// SetAssignedSuperPeer assigns this ordinary peer to a.
func (t *Table) SetAssignedSuperPeer(a domain.Address) error {
	if t.role != RoleOrdinary {
		return domain.ErrWrongRole
	}
	if err := t.check(a); err != nil {
		return err
	}
	t.spMu.Lock()
	t.assignedSuperPeer = &a
	t.spMu.Unlock()
	t.live.touch(a)
	return nil
}

// ClearAssignedSuperPeer unassigns the super peer if it is a; a zero
// address clears unconditionally.
func (t *Table) ClearAssignedSuperPeer(a domain.Address) bool {
	t.spMu.Lock()
	defer t.spMu.Unlock()
	if t.assignedSuperPeer == nil {
		return false
	}
	if !a.IsZero() && *t.assignedSuperPeer != a {
		return false
	}
	t.assignedSuperPeer = nil
	return true
}

// ─── Super-peer variant ─────────────────────────────────────────────────────

// AddSuperPeer adds a backbone neighbour.
func (t *Table) AddSuperPeer(a domain.Address) error {
	if t.role != RoleSuperPeer {
		return domain.ErrWrongRole
	}
	if err := t.check(a); err != nil {
		return err
	}
	added, err := t.superPeers.add(a, t.limits.MaxSuperPeers)
	if err != nil {
		return err
	}
	if added {
		t.live.set(a, domain.NodeActive)
	}
	return nil
}

// RemoveSuperPeer drops a backbone neighbour.
func (t *Table) RemoveSuperPeer(a domain.Address) bool {
	if t.role != RoleSuperPeer {
		return false
	}
	ok := t.superPeers.remove(a)
	t.forgetIfUnknown(a)
	return ok
}

// HasSuperPeer reports whether a is on the backbone.
func (t *Table) HasSuperPeer(a domain.Address) bool {
	return t.role == RoleSuperPeer && t.superPeers.has(a)
}

// SuperPeers returns a snapshot of the backbone. Empty on ordinary tables.
func (t *Table) SuperPeers() []domain.Node {
	if t.role != RoleSuperPeer {
		return nil
	}
	return t.nodes(t.superPeers.list())
}

// AliveSuperPeers returns the backbone neighbours that are not inactive.
func (t *Table) AliveSuperPeers() []domain.Node {
	return alive(t.SuperPeers())
}

// AddAssignedOrdinary assigns an ordinary peer to this super peer. The peer
// also joins the unstructured set, bypassing its limit.
func (t *Table) AddAssignedOrdinary(a domain.Address) error {
	if t.role != RoleSuperPeer {
		return domain.ErrWrongRole
	}
	if err := t.check(a); err != nil {
		return err
	}
	if _, err := t.assigned.add(a, t.limits.MaxAssignedOrdinary); err != nil {
		return err
	}
	t.unstructured.add(a, 0)
	t.live.set(a, domain.NodeActive)
	return nil
}

// RemoveAssignedOrdinary unassigns a and drops its aggregated resources. It
// stays in the unstructured set.
func (t *Table) RemoveAssignedOrdinary(a domain.Address) bool {
	if t.role != RoleSuperPeer {
		return false
	}
	ok := t.assigned.remove(a)
	if ok {
		t.aggregated.RemoveNodeFromAll(a)
	}
	return ok
}

// IsAssignedOrdinary reports whether a is assigned to this super peer.
func (t *Table) IsAssignedOrdinary(a domain.Address) bool {
	return t.role == RoleSuperPeer && t.assigned.has(a)
}

// AssignedOrdinary returns a snapshot of the assigned ordinary peers.
func (t *Table) AssignedOrdinary() []domain.Node {
	if t.role != RoleSuperPeer {
		return nil
	}
	return t.nodes(t.assigned.list())
}

// AssignedOrdinaryCount returns the number of assigned peers.
func (t *Table) AssignedOrdinaryCount() int {
	if t.role != RoleSuperPeer {
		return 0
	}
	return t.assigned.len()
}

// Aggregated returns the index of assigned peers' resources, or nil on an
// ordinary table.
func (t *Table) Aggregated() *resource.Aggregated {
	return t.aggregated
}

// ─── Whole table ────────────────────────────────────────────────────────────

// Get looks a up in every category.
func (t *Table) Get(a domain.Address) (domain.Node, bool) {
	if !t.known(a) {
		return domain.Node{}, false
	}
	return domain.Node{Address: a, State: t.live.get(a)}, true
}

// All returns every distinct known node.
func (t *Table) All() []domain.Node {
	seen := make(map[domain.Address]struct{})
	var addrs []domain.Address
	add := func(list []domain.Address) {
		for _, a := range list {
			if _, ok := seen[a]; !ok {
				seen[a] = struct{}{}
				addrs = append(addrs, a)
			}
		}
	}
	add(t.unstructured.list())
	if t.role == RoleSuperPeer {
		add(t.superPeers.list())
		add(t.assigned.list())
	}
	if sp, ok := t.AssignedSuperPeer(); ok {
		add([]domain.Address{sp.Address})
	}
	domain.SortAddresses(addrs)
	return t.nodes(addrs)
}

// Len returns the number of distinct known nodes.
func (t *Table) Len() int {
	return len(t.All())
}

// SetState updates the liveness of a known node.
func (t *Table) SetState(a domain.Address, s domain.NodeState) bool {
	if !t.known(a) {
		return false
	}
	t.live.set(a, s)
	return true
}

// Age advances every known node one heartbeat round and returns the nodes
// to probe.
func (t *Table) Age() []domain.Node {
	nodes := t.All()
	for i := range nodes {
		nodes[i].State = nodes[i].State.Next()
		t.live.set(nodes[i].Address, nodes[i].State)
	}
	return nodes
}

// RemoveFromAll drops a from every category, clears it as the assigned
// super peer and removes its aggregated resources.
func (t *Table) RemoveFromAll(a domain.Address) bool {
	removed := t.unstructured.remove(a)
	if t.role == RoleSuperPeer {
		if t.superPeers.remove(a) {
			removed = true
		}
		if t.assigned.remove(a) {
			removed = true
		}
		t.aggregated.RemoveNodeFromAll(a)
	}
	if t.ClearAssignedSuperPeer(a) {
		removed = true
	}
	t.live.forget(a)
	return removed
}

// CollectGarbage removes every inactive node and returns their addresses.
func (t *Table) CollectGarbage() []domain.Address {
	var dead []domain.Address
	for _, n := range t.All() {
		if !n.Alive() {
			t.RemoveFromAll(n.Address)
			dead = append(dead, n.Address)
		}
	}
	return dead
}

// Clear empties every category.
func (t *Table) Clear() {
	t.unstructured.clear()
	if t.role == RoleSuperPeer {
		t.superPeers.clear()
		t.assigned.clear()
		t.aggregated.Clear()
	}
	t.ClearAssignedSuperPeer(domain.Address{})
	t.live.mu.Lock()
	t.live.states = make(map[domain.Address]domain.NodeState)
	t.live.mu.Unlock()
}

// Snapshot is a serialisable view of the table.
type Snapshot struct {
	Role              string        `json:"role"`
	Unstructured      []domain.Node `json:"unstructured"`
	SuperPeers        []domain.Node `json:"super_peers,omitempty"`
	AssignedOrdinary  []domain.Node `json:"assigned_ordinary,omitempty"`
	AssignedSuperPeer *domain.Node  `json:"assigned_super_peer,omitempty"`
}

// Snapshot returns a copy of every category.
func (t *Table) Snapshot() Snapshot {
	s := Snapshot{
		Role:             t.role.String(),
		Unstructured:     t.Unstructured(),
		SuperPeers:       t.SuperPeers(),
		AssignedOrdinary: t.AssignedOrdinary(),
	}
	if sp, ok := t.AssignedSuperPeer(); ok {
		s.AssignedSuperPeer = &sp
	}
	return s
}

func (t *Table) known(a domain.Address) bool {
	if t.unstructured.has(a) {
		return true
	}
	if t.role == RoleSuperPeer && (t.superPeers.has(a) || t.assigned.has(a)) {
		return true
	}
	t.spMu.RLock()
	defer t.spMu.RUnlock()
	return t.assignedSuperPeer != nil && *t.assignedSuperPeer == a
}

func (t *Table) forgetIfUnknown(a domain.Address) {
	if !t.known(a) {
		t.live.forget(a)
	}
}

func (t *Table) nodes(addrs []domain.Address) []domain.Node {
	out := make([]domain.Node, len(addrs))
	for i, a := range addrs {
		out[i] = domain.Node{Address: a, State: t.live.get(a)}
	}
	return out
}

func alive(nodes []domain.Node) []domain.Node {
	out := nodes[:0]
	for _, n := range nodes {
		if n.Alive() {
			out = append(out, n)
		}
	}
	return out
}
