// Package bootstrap implements the rendezvous server that hands joining
// peers a few existing members to connect to.
package bootstrap

import (
	"strconv"
	"sync"

	"golang.org/x/exp/rand"

	"github.com/tutu-network/sharer/internal/domain"
	"github.com/tutu-network/sharer/internal/infra/metrics"
	"github.com/tutu-network/sharer/internal/wire"
)

// DefaultMaxNodes bounds the registry when no limit is configured.
const DefaultMaxNodes = 1000

// Node is one registered peer.
type Node struct {
	Address  domain.Address `json:"address"`
	Username string         `json:"username"`
}

// Registry is the bootstrap membership list. It holds no sockets.
type Registry struct {
	mu       sync.Mutex
	maxNodes int
	nodes    []Node
}

// NewRegistry returns an empty registry holding at most maxNodes peers.
func NewRegistry(maxNodes int) *Registry {
	if maxNodes <= 0 {
		maxNodes = DefaultMaxNodes
	}
	return &Registry{maxNodes: maxNodes}
}

// Register adds a peer and returns the REG_OK to send back.
func (r *Registry) Register(ip, port, username string) *wire.Message {
	addr, err := domain.NewAddress(ip, port)
	if err != nil || username == "" {
		return wire.New(wire.TypeRegOK, wire.RegOKError)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, n := range r.nodes {
		if n.Address != addr {
			continue
		}
		if n.Username == username {
			return wire.New(wire.TypeRegOK, wire.RegOKAlreadyRegistered)
		}
		return wire.New(wire.TypeRegOK, wire.RegOKAlreadyOccupied)
	}
	if len(r.nodes) >= r.maxNodes {
		return wire.New(wire.TypeRegOK, wire.RegOKFull)
	}

	listed := r.pick(wire.RegOKMaxListed)
	reply := wire.New(wire.TypeRegOK, strconv.Itoa(len(listed)))
	for _, n := range listed {
		reply.Fields = append(reply.Fields, n.Address.IP, n.Address.PortString())
	}
	r.nodes = append(r.nodes, Node{Address: addr, Username: username})
	metrics.BootstrapNodes.Set(float64(len(r.nodes)))
	return reply
}

// pick returns up to n distinct registered nodes: all of them when there
// are at most n, a uniform random choice otherwise.
func (r *Registry) pick(n int) []Node {
	if len(r.nodes) <= n {
		out := make([]Node, len(r.nodes))
		copy(out, r.nodes)
		return out
	}
	out := make([]Node, 0, n)
	for _, i := range rand.Perm(len(r.nodes))[:n] {
		out = append(out, r.nodes[i])
	}
	return out
}

// Unregister removes a peer and returns the UNREG_OK to send back.
func (r *Registry) Unregister(ip, port string) *wire.Message {
	addr, err := domain.NewAddress(ip, port)
	if err != nil {
		return wire.New(wire.TypeUnregOK, wire.UnregOKError)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for i, n := range r.nodes {
		if n.Address == addr {
			r.nodes = append(r.nodes[:i], r.nodes[i+1:]...)
			metrics.BootstrapNodes.Set(float64(len(r.nodes)))
			return wire.New(wire.TypeUnregOK, wire.ValueSuccess)
		}
	}
	return wire.New(wire.TypeUnregOK, wire.UnregOKError)
}

// Echo answers a liveness probe.
func (r *Registry) Echo() *wire.Message {
	return wire.New(wire.TypeEchoOK, wire.ValueSuccess)
}

// Handle dispatches one request. It returns nil for messages the bootstrap
// server does not answer.
func (r *Registry) Handle(m *wire.Message) *wire.Message {
	switch m.Type {
	case wire.TypeReg:
		return r.Register(m.Field(wire.RegIP), m.Field(wire.RegPort), m.Field(wire.RegUsername))
	case wire.TypeUnreg:
		return r.Unregister(m.Field(wire.RegIP), m.Field(wire.RegPort))
	case wire.TypeEcho:
		return r.Echo()
	}
	return nil
}

// Nodes returns the registered peers in registration order.
func (r *Registry) Nodes() []Node {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Node, len(r.nodes))
	copy(out, r.nodes)
	return out
}

// Len returns the number of registered peers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.nodes)
}

// Clear forgets every registration.
func (r *Registry) Clear() {
	r.mu.Lock()
	r.nodes = nil
	r.mu.Unlock()
	metrics.BootstrapNodes.Set(0)
}
