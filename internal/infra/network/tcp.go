package network

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"strings"
	"time"

	"github.com/tutu-network/sharer/internal/domain"
)

// TCPTransport opens one connection per frame: dial, write, close. Every
// connection starts with a line naming the sender's listening address,
// followed by the frame. The receiving side reports that address as the
// sender, since the dialing port is ephemeral, and reads the rest of the
// connection to EOF as a single frame.
type TCPTransport struct {
	*base
	ln net.Listener
}

// ListenTCP binds addr. A zero port picks an ephemeral one, reflected by Addr.
func ListenTCP(addr domain.Address, opts Options) (*TCPTransport, error) {
	ln, err := net.Listen("tcp", addr.String())
	if err != nil {
		return nil, fmt.Errorf("listen tcp %s: %w", addr, err)
	}
	if addr.Port == 0 {
		addr.Port = ln.Addr().(*net.TCPAddr).Port
	}

	t := &TCPTransport{base: newBase("tcp", addr, opts), ln: ln}
	t.write = t.dial
	t.wg.Add(2)
	go t.acceptLoop()
	go t.retryLoop()
	log.Printf("[transport] tcp listening on %s", addr)
	return t, nil
}

func (t *TCPTransport) dial(to domain.Address, payload []byte) error {
	conn, err := net.DialTimeout("tcp", to.String(), t.opts.Timeout)
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := conn.SetWriteDeadline(time.Now().Add(t.opts.Timeout)); err != nil {
		return err
	}
	msg := make([]byte, 0, len(payload)+32)
	msg = fmt.Appendf(msg, "%s %d\n", t.addr.IP, t.addr.Port)
	msg = append(msg, payload...)
	_, err = conn.Write(msg)
	return err
}

func (t *TCPTransport) acceptLoop() {
	defer t.wg.Done()
	for {
		conn, err := t.ln.Accept()
		if err != nil {
			if t.closed.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			log.Printf("[transport] tcp accept: %v", err)
			continue
		}
		t.wg.Add(1)
		go t.read(conn)
	}
}

func (t *TCPTransport) read(conn net.Conn) {
	defer t.wg.Done()
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(t.opts.Timeout))
	r := bufio.NewReader(io.LimitReader(conn, maxFrame))
	line, err := r.ReadString('\n')
	if err != nil {
		if !errors.Is(err, io.EOF) || line != "" {
			log.Printf("[transport] tcp read from %s: %v", conn.RemoteAddr(), err)
		}
		return
	}
	from, err := senderAddress(line, conn.RemoteAddr())
	if err != nil {
		log.Printf("[transport] tcp sender line from %s: %v", conn.RemoteAddr(), err)
		return
	}
	payload, err := io.ReadAll(r)
	if err != nil {
		log.Printf("[transport] tcp read from %s: %v", from, err)
		return
	}
	if len(payload) == 0 {
		return
	}
	t.deliver(from, payload)
}

// senderAddress parses an "ip port" sender line. An unspecified ip is
// replaced by the connection's remote ip.
func senderAddress(line string, remote net.Addr) (domain.Address, error) {
	parts := strings.Fields(line)
	if len(parts) != 2 {
		return domain.Address{}, fmt.Errorf("%w: sender line %q", domain.ErrInvalidAddress, strings.TrimSpace(line))
	}
	from, err := domain.NewAddress(parts[0], parts[1])
	if err != nil {
		return domain.Address{}, err
	}
	if ip := net.ParseIP(from.IP); ip != nil && ip.IsUnspecified() {
		if raddr, ok := remote.(*net.TCPAddr); ok {
			from.IP = raddr.IP.String()
		}
	}
	return from, nil
}

// Listening reports whether the listener is open.
func (t *TCPTransport) Listening() bool { return !t.closed.Load() }

// Close stops accepting and waits for in-flight handlers.
func (t *TCPTransport) Close() error {
	if !t.shutdown() {
		return nil
	}
	err := t.ln.Close()
	t.wg.Wait()
	return err
}
