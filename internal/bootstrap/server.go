package bootstrap

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/tutu-network/sharer/internal/domain"
	"github.com/tutu-network/sharer/internal/infra/metrics"
	"github.com/tutu-network/sharer/internal/infra/network"
	"github.com/tutu-network/sharer/internal/wire"
)

// Server serves a Registry over UDP. Replies go to the datagram's source.
type Server struct {
	addr     domain.Address
	opts     network.Options
	registry *Registry

	mu sync.Mutex
	tr *network.UDPTransport
}

// NewServer creates a server for addr. Nothing is bound until Start.
func NewServer(addr domain.Address, maxNodes int, opts network.Options) *Server {
	return &Server{addr: addr, opts: opts, registry: NewRegistry(maxNodes)}
}

// Start binds the socket. The server stops when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tr != nil {
		return nil
	}
	tr, err := network.ListenUDP(s.addr, s.opts)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	tr.SetListener(s)
	s.tr = tr
	s.addr = tr.Addr()
	log.Printf("[bootstrap] serving on %s (max %d nodes)", s.addr, s.registry.maxNodes)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// Stop closes the socket and forgets every registration.
func (s *Server) Stop() {
	s.mu.Lock()
	tr := s.tr
	s.tr = nil
	s.mu.Unlock()
	if tr == nil {
		return
	}
	tr.Close()
	s.registry.Clear()
	log.Printf("[bootstrap] stopped")
}

// Addr returns the bound address.
func (s *Server) Addr() domain.Address {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Running reports whether the socket is bound.
func (s *Server) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tr != nil && s.tr.Listening()
}

// Nodes returns the registered peers.
func (s *Server) Nodes() []Node { return s.registry.Nodes() }

// Registry exposes the underlying registry.
func (s *Server) Registry() *Registry { return s.registry }

// OnMessageReceived implements domain.TransportListener.
func (s *Server) OnMessageReceived(from domain.Address, payload []byte) {
	m, err := wire.Parse(payload)
	if err != nil {
		metrics.MessagesDropped.WithLabelValues("malformed").Inc()
		log.Printf("[bootstrap] dropped frame from %s: %v", from, err)
		return
	}
	metrics.MessagesReceived.WithLabelValues(m.Type.String()).Inc()

	reply := s.registry.Handle(m)
	if reply == nil {
		log.Printf("[bootstrap] ignored %s from %s", m.Type, from)
		return
	}
	log.Printf("[bootstrap] %s from %s -> %s", m, from, reply)

	s.mu.Lock()
	tr := s.tr
	s.mu.Unlock()
	if tr == nil {
		return
	}
	metrics.MessagesSent.WithLabelValues(reply.Type.String()).Inc()
	tr.SendMessage(from, reply.Bytes())
}

// OnMessageSendFailed implements domain.TransportListener.
func (s *Server) OnMessageSendFailed(to domain.Address, _ []byte) {
	metrics.SendFailures.WithLabelValues("bootstrap").Inc()
	log.Printf("[bootstrap] reply to %s failed", to)
}
