// Package network provides the peer transports.
//
// UDPTransport and TCPTransport carry encoded wire frames between peers.
// Loopback connects transports in-process. All of them satisfy
// domain.Transport: sends never block the caller, inbound frames are handed
// to the listener on their own goroutine, and a frame that cannot be
// delivered after its retries is reported through OnMessageSendFailed.
package network

import (
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tutu-network/sharer/internal/domain"
	"github.com/tutu-network/sharer/internal/infra/metrics"
)

// maxFrame bounds an inbound frame. The four-digit length header caps
// well-formed frames at 9999 bytes.
const maxFrame = 65535

// Options configures a socket transport.
type Options struct {
	Workers int           // Concurrent inbound handlers
	Timeout time.Duration // Dial, read and write deadline
	Retry   RetryConfig
}

// DefaultOptions returns production transport defaults.
func DefaultOptions() Options {
	return Options{
		Workers: 16,
		Timeout: 5 * time.Second,
		Retry:   DefaultRetryConfig(),
	}
}

// base is the listener, worker and retry plumbing shared by socket
// transports.
type base struct {
	name  string
	addr  domain.Address
	opts  Options
	write func(to domain.Address, payload []byte) error

	listenerMu sync.RWMutex
	listener   domain.TransportListener

	sem     chan struct{}
	retries *RetryQueue
	closed  atomic.Bool
	done    chan struct{}
	wg      sync.WaitGroup

	// sendMu orders wg.Add in SendMessage before the Wait in Close.
	sendMu sync.RWMutex
}

func newBase(name string, addr domain.Address, opts Options) *base {
	if opts.Workers <= 0 {
		opts.Workers = DefaultOptions().Workers
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultOptions().Timeout
	}
	return &base{
		name:    name,
		addr:    addr,
		opts:    opts,
		sem:     make(chan struct{}, opts.Workers),
		retries: NewRetryQueue(opts.Retry),
		done:    make(chan struct{}),
	}
}

// Addr returns the address peers use to reach this transport.
func (b *base) Addr() domain.Address { return b.addr }

// SetListener installs the inbound listener. nil unregisters.
func (b *base) SetListener(l domain.TransportListener) {
	b.listenerMu.Lock()
	b.listener = l
	b.listenerMu.Unlock()
}

func (b *base) currentListener() domain.TransportListener {
	b.listenerMu.RLock()
	defer b.listenerMu.RUnlock()
	return b.listener
}

// SendMessage queues payload for delivery to to.
func (b *base) SendMessage(to domain.Address, payload []byte) {
	b.sendMu.RLock()
	if b.closed.Load() {
		b.sendMu.RUnlock()
		return
	}
	b.wg.Add(1)
	b.sendMu.RUnlock()
	go func() {
		defer b.wg.Done()
		if err := b.write(to, payload); err != nil {
			b.failed(RetryEntry{To: to, Payload: payload}, err)
		}
	}()
}

// deliver hands an inbound frame to the listener, bounded by the worker
// semaphore.
func (b *base) deliver(from domain.Address, payload []byte) {
	select {
	case b.sem <- struct{}{}:
	case <-b.done:
		return
	}
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer func() { <-b.sem }()
		if l := b.currentListener(); l != nil {
			l.OnMessageReceived(from, payload)
		}
	}()
}

// failed queues a resend or reports the frame as undeliverable.
func (b *base) failed(e RetryEntry, err error) {
	e.Error = err.Error()
	if !b.closed.Load() && b.retries.ScheduleRetry(e) {
		return
	}
	log.Printf("[transport] %s send to %s failed: %v", b.name, e.To, err)
	if l := b.currentListener(); l != nil {
		l.OnMessageSendFailed(e.To, e.Payload)
	}
}

// retryLoop resends due frames until the transport closes.
func (b *base) retryLoop() {
	defer b.wg.Done()
	interval := b.opts.Retry.BaseDelay / 2
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-b.done:
			return
		case <-ticker.C:
			for _, e := range b.retries.DrainReady() {
				metrics.SendRetries.Inc()
				if err := b.write(e.To, e.Payload); err != nil {
					b.failed(e, err)
				}
			}
		}
	}
}

// shutdown stops background work. It reports false if already closed.
func (b *base) shutdown() bool {
	b.sendMu.Lock()
	defer b.sendMu.Unlock()
	if !b.closed.CompareAndSwap(false, true) {
		return false
	}
	close(b.done)
	return true
}
