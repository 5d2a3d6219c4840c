// Package routing ties the transport to the routing table.
//
// The Router decodes inbound traffic, answers heartbeats, enforces the hop
// limit on searches, answers searches from the local catalog and fans
// searches out through the configured strategy. Every other message type is
// handed to registered listeners, normally the overlay manager.
package routing

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tutu-network/sharer/internal/domain"
	"github.com/tutu-network/sharer/internal/infra/metrics"
	"github.com/tutu-network/sharer/internal/resource"
	"github.com/tutu-network/sharer/internal/routing/strategy"
	"github.com/tutu-network/sharer/internal/routing/table"
	"github.com/tutu-network/sharer/internal/wire"
)

// Debug enables a log line per message in and out.
var Debug bool

// Config holds router settings.
type Config struct {
	Self              domain.Address
	Bootstrap         domain.Address
	TTL               int
	Strategy          strategy.Kind
	Limits            table.Limits
	HeartbeatInterval time.Duration
	GCInterval        time.Duration
	SuperPeer         bool // start with a super-peer table
}

// Listener receives the traffic the router does not handle itself.
type Listener interface {
	OnMessage(from domain.Address, m *wire.Message)
	OnSendFailed(to domain.Address, m *wire.Message)
}

// Hit is one SER_OK addressed to this node.
type Hit struct {
	Query     string         `json:"query"`
	Owner     domain.Address `json:"owner"`
	FileNames []string       `json:"file_names"`
	HopCount  int            `json:"hop_count"`
}

// SearchListener receives search hits.
type SearchListener interface {
	OnSearchHit(h Hit)
}

// Router is the message switch of a peer.
type Router struct {
	cfg       Config
	transport domain.Transport
	bootstrap domain.Transport
	resources *resource.Index
	route     strategy.Func

	tableMu sync.RWMutex
	table   *table.Table

	listenersMu     sync.RWMutex
	listeners       []Listener
	searchListeners []SearchListener

	stopped atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a router over tr serving resources from idx.
func New(cfg Config, tr domain.Transport, idx *resource.Index) *Router {
	if cfg.TTL <= 0 {
		cfg.TTL = 5
	}
	tb := table.New(cfg.Self, cfg.Bootstrap, cfg.Limits)
	if cfg.SuperPeer {
		tb = tb.Promote()
	}
	return &Router{
		cfg:       cfg,
		transport: tr,
		bootstrap: tr,
		resources: idx,
		route:     strategy.For(cfg.Strategy),
		table:     tb,
	}
}

// SetBootstrapTransport routes bootstrap traffic over a separate transport.
// It must be called before Start.
func (r *Router) SetBootstrapTransport(tr domain.Transport) {
	if tr != nil {
		r.bootstrap = tr
	}
}

// Start installs the router as the transport listener and starts the
// heartbeat and garbage collection loops.
func (r *Router) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	r.transport.SetListener(r)
	if r.bootstrap != r.transport {
		r.bootstrap.SetListener(r)
	}

	if r.cfg.HeartbeatInterval > 0 {
		r.wg.Add(1)
		go r.loop(ctx, r.cfg.HeartbeatInterval, r.Heartbeat)
	}
	if r.cfg.GCInterval > 0 {
		r.wg.Add(1)
		go r.loop(ctx, r.cfg.GCInterval, r.CollectGarbage)
	}
	r.updateGauges()
	log.Printf("[router] started at %s as %s (strategy=%s ttl=%d)",
		r.cfg.Self, r.Table().Role(), r.cfg.Strategy, r.cfg.TTL)
}

// Shutdown stops the loops and detaches from the transport. It is one-way.
func (r *Router) Shutdown() {
	if !r.stopped.CompareAndSwap(false, true) {
		return
	}
	if r.cancel != nil {
		r.cancel()
	}
	r.transport.SetListener(nil)
	if r.bootstrap != r.transport {
		r.bootstrap.SetListener(nil)
	}
	r.wg.Wait()
	log.Printf("[router] stopped")
}

// Stopped reports whether Shutdown has been called.
func (r *Router) Stopped() bool { return r.stopped.Load() }

func (r *Router) loop(ctx context.Context, every time.Duration, fn func()) {
	defer r.wg.Done()
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}

// ─── Accessors ──────────────────────────────────────────────────────────────

// Table returns the current routing table variant.
func (r *Router) Table() *table.Table {
	r.tableMu.RLock()
	defer r.tableMu.RUnlock()
	return r.table
}

// Self returns this node's address.
func (r *Router) Self() domain.Address { return r.cfg.Self }

// Config returns the router settings.
func (r *Router) Config() Config { return r.cfg }

// Resources returns the owned-resource catalog.
func (r *Router) Resources() *resource.Index { return r.resources }

// AddListener registers a membership listener.
func (r *Router) AddListener(l Listener) {
	r.listenersMu.Lock()
	r.listeners = append(r.listeners, l)
	r.listenersMu.Unlock()
}

// AddSearchListener registers a search hit listener.
func (r *Router) AddSearchListener(l SearchListener) {
	r.listenersMu.Lock()
	r.searchListeners = append(r.searchListeners, l)
	r.listenersMu.Unlock()
}

// ─── Role transitions ───────────────────────────────────────────────────────

// Promote swaps in a super-peer table. It reports whether the role changed.
func (r *Router) Promote() bool {
	r.tableMu.Lock()
	if r.table.IsSuperPeer() {
		r.tableMu.Unlock()
		return false
	}
	r.table = r.table.Promote()
	r.tableMu.Unlock()

	metrics.RoleChanges.WithLabelValues("promote").Inc()
	r.updateGauges()
	log.Printf("[router] promoted to super peer")
	return true
}

// Demote swaps in an ordinary table. It reports whether the role changed.
func (r *Router) Demote() bool {
	r.tableMu.Lock()
	if !r.table.IsSuperPeer() {
		r.tableMu.Unlock()
		return false
	}
	r.table = r.table.Demote()
	r.tableMu.Unlock()

	metrics.RoleChanges.WithLabelValues("demote").Inc()
	r.updateGauges()
	log.Printf("[router] demoted to ordinary peer")
	return true
}

// ─── Sending ────────────────────────────────────────────────────────────────

// SendMessage hands m to the transport for delivery to to.
func (r *Router) SendMessage(to domain.Address, m *wire.Message) error {
	return r.send(r.transport, to, m)
}

// SendToBootstrap sends m to the configured bootstrap server.
func (r *Router) SendToBootstrap(m *wire.Message) error {
	return r.send(r.bootstrap, r.cfg.Bootstrap, m)
}

func (r *Router) send(tr domain.Transport, to domain.Address, m *wire.Message) error {
	if r.stopped.Load() {
		return domain.ErrRouterStopped
	}
	if Debug {
		log.Printf("[router] -> %s %s", to, m)
	}
	payload, err := m.Encode()
	if err != nil {
		metrics.MessagesDropped.WithLabelValues("oversize").Inc()
		log.Printf("[router] not sending to %s: %v", to, err)
		return err
	}
	metrics.MessagesSent.WithLabelValues(m.Type.String()).Inc()
	tr.SendMessage(to, payload)
	return nil
}

// ─── Inbound ────────────────────────────────────────────────────────────────

// OnMessageReceived implements domain.TransportListener.
func (r *Router) OnMessageReceived(from domain.Address, payload []byte) {
	if r.stopped.Load() {
		metrics.MessagesDropped.WithLabelValues("stopped").Inc()
		return
	}
	m, err := wire.Parse(payload)
	if err != nil {
		metrics.MessagesDropped.WithLabelValues("protocol").Inc()
		log.Printf("[router] dropped message from %s: %v", from, err)
		return
	}
	metrics.MessagesReceived.WithLabelValues(m.Type.String()).Inc()
	if Debug {
		log.Printf("[router] <- %s %s", from, m)
	}

	t := r.Table()
	fromNode, known := t.Get(from)
	if known {
		t.SetState(from, domain.NodeActive)
		fromNode.State = domain.NodeActive
	} else {
		fromNode = domain.NewNode(from)
	}

	switch m.Type {
	case wire.TypeSer, wire.TypeSerSuperPeer:
		r.Route(&fromNode, m)
	case wire.TypeSerOK:
		r.handleSerOK(m)
	case wire.TypeHeartbeat:
		r.handleHeartbeat(from, m)
	case wire.TypeHeartbeatOK:
		r.handleHeartbeatOK(from, m)
	default:
		r.listenersMu.RLock()
		listeners := r.listeners
		r.listenersMu.RUnlock()
		for _, l := range listeners {
			l.OnMessage(from, m)
		}
	}
}

// OnMessageSendFailed implements domain.TransportListener.
func (r *Router) OnMessageSendFailed(to domain.Address, payload []byte) {
	if r.stopped.Load() {
		return
	}
	m, err := wire.Parse(payload)
	if err != nil {
		return
	}
	metrics.SendFailures.WithLabelValues(m.Type.String()).Inc()
	log.Printf("[router] send of %s to %s failed", m.Type, to)

	t := r.Table()
	switch m.Type {
	case wire.TypeSer, wire.TypeSerSuperPeer:
		r.retrySearch(t, to, m)
		return
	case wire.TypeSerOK, wire.TypeSerSuperPeerOK, wire.TypeHeartbeatOK:
		return
	case wire.TypeJoin, wire.TypeHeartbeat:
		if t.RemoveFromAll(to) {
			log.Printf("[router] removed unreachable neighbour %s", to)
			r.updateGauges()
		}
	}

	r.listenersMu.RLock()
	listeners := r.listeners
	r.listenersMu.RUnlock()
	for _, l := range listeners {
		l.OnSendFailed(to, m)
	}
}

// retrySearch demotes the liveness of a neighbour a search could not reach.
// Random walks would otherwise die at that hop, so the walk is re-routed
// around it with the hop it had before the failed forward.
func (r *Router) retrySearch(t *table.Table, to domain.Address, m *wire.Message) {
	failed, known := t.Get(to)
	if !known {
		return
	}
	failed.State = failed.State.Next()
	t.SetState(to, failed.State)
	if !r.cfg.Strategy.IsRandomWalk() {
		return
	}

	idx, _ := wire.HopIndex(m.Type)
	hop, err := m.Int(idx)
	if err != nil {
		return
	}
	retry := m.Clone()
	retry.Set(idx, strconv.Itoa(hop-1))
	log.Printf("[router] retrying %s around %s", m.Type, to)
	r.Route(&failed, retry)
}

// ─── Search routing ─────────────────────────────────────────────────────────

// Route processes a search. from is the neighbour it arrived from, or nil
// when this node originates it.
func (r *Router) Route(from *domain.Node, m *wire.Message) {
	if r.stopped.Load() {
		return
	}
	switch m.Type {
	case wire.TypeSer:
		r.routeSer(from, m)
	case wire.TypeSerSuperPeer:
		r.routeSerSuperPeer(from, m)
	default:
		log.Printf("[router] not routing message of type %s", m.Type)
	}
}

func (r *Router) routeSer(from *domain.Node, m *wire.Message) {
	source, err := m.Address(wire.SerSourceIP)
	if err != nil {
		r.dropMalformed(m, err)
		return
	}
	hop, err := m.Int(wire.SerHopCount)
	if err != nil {
		r.dropMalformed(m, err)
		return
	}
	query := m.Field(wire.SerFileName)

	if owned := r.resources.Find(query); len(owned) > 0 {
		names := make([]string, len(owned))
		for i, o := range owned {
			names[i] = o.Name
		}
		metrics.SearchHits.WithLabelValues("served").Inc()
		if source == r.cfg.Self {
			r.emitHit(Hit{Query: query, Owner: r.cfg.Self, FileNames: names, HopCount: hop})
			return
		}
		reply := wire.NewSerOK(r.cfg.Self, hop, query, names)
		if n := reply.FitCounted(wire.SerOKFileCount, wire.SerOKFileStart); n > 0 {
			log.Printf("[router] SEROK for %q lists %d of %d matches", query, len(names)-n, len(names))
		}
		r.SendMessage(source, reply)
		return
	}

	r.forward(r.Table(), from, m, wire.SerHopCount, hop)
}

func (r *Router) routeSerSuperPeer(from *domain.Node, m *wire.Message) {
	source, err := m.Address(wire.SerSuperPeerSourceIP)
	if err != nil {
		r.dropMalformed(m, err)
		return
	}
	hop, err := m.Int(wire.SerSuperPeerHopCount)
	if err != nil {
		r.dropMalformed(m, err)
		return
	}

	t := r.Table()
	if t.IsSuperPeer() && source != r.cfg.Self {
		reply := wire.NewAddressed(wire.TypeSerSuperPeerOK, r.cfg.Self, strconv.Itoa(hop))
		r.SendMessage(source, reply)
		return
	}
	r.forward(t, from, m, wire.SerSuperPeerHopCount, hop)
}

// forward bumps the hop count and sends one clone per selected neighbour.
func (r *Router) forward(t *table.Table, from *domain.Node, m *wire.Message, hopIdx, hop int) {
	hop++
	m.Set(hopIdx, strconv.Itoa(hop))
	if hop > r.cfg.TTL {
		metrics.MessagesDropped.WithLabelValues("ttl").Inc()
		if Debug {
			log.Printf("[router] dropped %s: hop %d exceeds ttl %d", m, hop, r.cfg.TTL)
		}
		return
	}

	targets := r.route(t, from, m)
	if len(targets) == 0 && m.Type == wire.TypeSerSuperPeer && t.IsSuperPeer() {
		// A super peer without backbone neighbours discovers others
		// through the mesh.
		targets = strategy.UnstructuredRandomWalkFunc(t, from, m)
	}
	metrics.FanOut.Observe(float64(len(targets)))

	for _, n := range targets {
		metrics.HopsForwarded.WithLabelValues(m.Type.String()).Inc()
		r.SendMessage(n.Address, m.Clone())
	}
}

func (r *Router) handleSerOK(m *wire.Message) {
	owner, err := m.Address(wire.SerOKIP)
	if err != nil {
		r.dropMalformed(m, err)
		return
	}
	count, err := m.Int(wire.SerOKFileCount)
	if err != nil {
		r.dropMalformed(m, err)
		return
	}
	hop, err := m.Int(wire.SerOKHopCount)
	if err != nil {
		r.dropMalformed(m, err)
		return
	}
	if count < 0 || !m.Has(wire.SerOKFileStart+count-1) {
		r.dropMalformed(m, fmt.Errorf("%w: %d file names announced", domain.ErrMissingField, count))
		return
	}
	names := make([]string, count)
	copy(names, m.Fields[wire.SerOKFileStart:wire.SerOKFileStart+count])

	r.emitHit(Hit{
		Query:     m.Field(wire.SerOKQuery),
		Owner:     owner,
		FileNames: names,
		HopCount:  hop,
	})
}

func (r *Router) emitHit(h Hit) {
	metrics.SearchHits.WithLabelValues("received").Inc()
	metrics.HitHopCount.Observe(float64(h.HopCount))

	r.listenersMu.RLock()
	listeners := r.searchListeners
	r.listenersMu.RUnlock()
	for _, l := range listeners {
		l.OnSearchHit(h)
	}
}

func (r *Router) dropMalformed(m *wire.Message, err error) {
	metrics.MessagesDropped.WithLabelValues("protocol").Inc()
	log.Printf("[router] dropped %s: %v", m.Type, err)
}

// ─── Liveness ───────────────────────────────────────────────────────────────

func (r *Router) handleHeartbeat(from domain.Address, m *wire.Message) {
	peer, err := m.Address(wire.HeartbeatIP)
	if err != nil {
		peer = from
	}
	r.Table().SetState(peer, domain.NodeActive)
	r.SendMessage(peer, wire.NewAddressed(wire.TypeHeartbeatOK, r.cfg.Self))
}

func (r *Router) handleHeartbeatOK(from domain.Address, m *wire.Message) {
	peer, err := m.Address(wire.HeartbeatIP)
	if err != nil {
		peer = from
	}
	r.Table().SetState(peer, domain.NodeActive)
}

// Heartbeat ages every known node one round and probes it.
func (r *Router) Heartbeat() {
	nodes := r.Table().Age()
	metrics.HeartbeatRounds.Inc()
	for _, n := range nodes {
		r.SendMessage(n.Address, wire.NewAddressed(wire.TypeHeartbeat, r.cfg.Self))
	}
	r.updateGauges()
}

// CollectGarbage removes nodes that missed enough heartbeats.
func (r *Router) CollectGarbage() {
	dead := r.Table().CollectGarbage()
	if len(dead) == 0 {
		return
	}
	metrics.NodesCollected.Add(float64(len(dead)))
	log.Printf("[router] collected %d inactive nodes: %v", len(dead), dead)
	r.updateGauges()
}

func (r *Router) updateGauges() {
	t := r.Table()
	metrics.Neighbours.WithLabelValues("unstructured").Set(float64(len(t.Unstructured())))
	metrics.Neighbours.WithLabelValues("super_peer").Set(float64(len(t.SuperPeers())))
	metrics.Neighbours.WithLabelValues("assigned_ordinary").Set(float64(t.AssignedOrdinaryCount()))
	if t.IsSuperPeer() {
		metrics.SuperPeer.Set(1)
	} else {
		metrics.SuperPeer.Set(0)
	}
}
