package network

import (
	"sync"

	"github.com/tutu-network/sharer/internal/domain"
)

// Hub connects Loopback transports in-process.
type Hub struct {
	mu    sync.RWMutex
	nodes map[domain.Address]*Loopback
	down  map[domain.Address]bool
	wg    sync.WaitGroup
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{
		nodes: make(map[domain.Address]*Loopback),
		down:  make(map[domain.Address]bool),
	}
}

// Transport returns the loopback transport at addr, creating it if needed.
func (h *Hub) Transport(addr domain.Address) *Loopback {
	h.mu.Lock()
	defer h.mu.Unlock()
	if l, ok := h.nodes[addr]; ok {
		return l
	}
	l := &Loopback{hub: h, addr: addr}
	h.nodes[addr] = l
	return l
}

// Disconnect makes every later send to addr fail.
func (h *Hub) Disconnect(addr domain.Address) {
	h.mu.Lock()
	h.down[addr] = true
	h.mu.Unlock()
}

// Reconnect undoes Disconnect.
func (h *Hub) Reconnect(addr domain.Address) {
	h.mu.Lock()
	delete(h.down, addr)
	h.mu.Unlock()
}

// Wait blocks until every frame in flight, including frames sent while
// handling other frames, has been delivered.
func (h *Hub) Wait() {
	h.wg.Wait()
}

func (h *Hub) lookup(addr domain.Address) *Loopback {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.down[addr] {
		return nil
	}
	return h.nodes[addr]
}

// Loopback is an in-process domain.Transport.
type Loopback struct {
	hub  *Hub
	addr domain.Address

	mu       sync.RWMutex
	listener domain.TransportListener
}

// Addr returns the loopback address.
func (l *Loopback) Addr() domain.Address { return l.addr }

// SetListener installs the inbound listener. nil unregisters.
func (l *Loopback) SetListener(tl domain.TransportListener) {
	l.mu.Lock()
	l.listener = tl
	l.mu.Unlock()
}

func (l *Loopback) currentListener() domain.TransportListener {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.listener
}

// SendMessage delivers payload to the transport registered at to.
func (l *Loopback) SendMessage(to domain.Address, payload []byte) {
	frame := make([]byte, len(payload))
	copy(frame, payload)

	l.hub.wg.Add(1)
	go func() {
		defer l.hub.wg.Done()
		dst := l.hub.lookup(to)
		if dst == nil {
			if tl := l.currentListener(); tl != nil {
				tl.OnMessageSendFailed(to, frame)
			}
			return
		}
		if tl := dst.currentListener(); tl != nil {
			tl.OnMessageReceived(l.addr, frame)
		}
	}()
}
