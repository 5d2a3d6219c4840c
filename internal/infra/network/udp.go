package network

import (
	"errors"
	"fmt"
	"log"
	"net"
	"time"

	"github.com/tutu-network/sharer/internal/domain"
)

// UDPTransport sends one frame per datagram over a single socket.
type UDPTransport struct {
	*base
	conn *net.UDPConn
}

// ListenUDP binds addr. A zero port picks an ephemeral one, reflected by Addr.
func ListenUDP(addr domain.Address, opts Options) (*UDPTransport, error) {
	laddr, err := net.ResolveUDPAddr("udp", addr.String())
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, fmt.Errorf("listen udp %s: %w", addr, err)
	}
	if addr.Port == 0 {
		addr.Port = conn.LocalAddr().(*net.UDPAddr).Port
	}

	t := &UDPTransport{base: newBase("udp", addr, opts), conn: conn}
	t.write = t.writeTo
	t.wg.Add(2)
	go t.readLoop()
	go t.retryLoop()
	log.Printf("[transport] udp listening on %s", addr)
	return t, nil
}

func (t *UDPTransport) writeTo(to domain.Address, payload []byte) error {
	raddr, err := net.ResolveUDPAddr("udp", to.String())
	if err != nil {
		return err
	}
	if err := t.conn.SetWriteDeadline(time.Now().Add(t.opts.Timeout)); err != nil {
		return err
	}
	_, err = t.conn.WriteToUDP(payload, raddr)
	return err
}

func (t *UDPTransport) readLoop() {
	defer t.wg.Done()
	buf := make([]byte, maxFrame)
	for {
		n, raddr, err := t.conn.ReadFromUDP(buf)
		if err != nil {
			if t.closed.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			log.Printf("[transport] udp read: %v", err)
			continue
		}
		payload := make([]byte, n)
		copy(payload, buf[:n])
		t.deliver(domain.Address{IP: raddr.IP.String(), Port: raddr.Port}, payload)
	}
}

// Listening reports whether the socket is open.
func (t *UDPTransport) Listening() bool { return !t.closed.Load() }

// Close shuts the socket and waits for in-flight handlers.
func (t *UDPTransport) Close() error {
	if !t.shutdown() {
		return nil
	}
	err := t.conn.Close()
	t.wg.Wait()
	return err
}
