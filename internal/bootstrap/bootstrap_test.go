package bootstrap

import (
	"context"
	"testing"
	"time"

	"github.com/tutu-network/sharer/internal/domain"
	"github.com/tutu-network/sharer/internal/infra/network"
	"github.com/tutu-network/sharer/internal/wire"
)

// ─── Registry ───────────────────────────────────────────────────────────────

func TestRegister_ListsPriorNodes(t *testing.T) {
	r := NewRegistry(10)

	tests := []struct {
		port      string
		wantCount string
		wantLen   int
	}{
		{"5001", "0", 1},
		{"5002", "1", 3},
		{"5003", "2", 5},
		{"5004", "2", 5},
		{"5005", "2", 5},
	}
	for _, tt := range tests {
		t.Run(tt.port, func(t *testing.T) {
			got := r.Register("127.0.0.1", tt.port, "user"+tt.port)
			if got.Type != wire.TypeRegOK {
				t.Fatalf("type = %v, want REGOK", got.Type)
			}
			if got.Field(wire.RegOKCount) != tt.wantCount || len(got.Fields) != tt.wantLen {
				t.Errorf("reply = %v, want count %s", got, tt.wantCount)
			}
		})
	}
	if r.Len() != 5 {
		t.Errorf("Len() = %d, want 5", r.Len())
	}
}

func TestRegister_SecondListsExactlyFirst(t *testing.T) {
	r := NewRegistry(0)
	r.Register("10.0.0.1", "5001", "a")

	got := r.Register("10.0.0.2", "5002", "b")
	addrs, err := got.Addresses(wire.RegOKAddrStart, 1)
	if err != nil {
		t.Fatalf("Addresses: %v", err)
	}
	want := domain.Address{IP: "10.0.0.1", Port: 5001}
	if got.Field(wire.RegOKCount) != "1" || addrs[0] != want {
		t.Errorf("reply = %v, want exactly %v", got, want)
	}
}

func TestRegister_RandomPairIsDistinct(t *testing.T) {
	r := NewRegistry(0)
	for _, p := range []string{"5001", "5002", "5003", "5004"} {
		r.Register("10.0.0.1", p, "u"+p)
	}
	for i := 0; i < 50; i++ {
		got := r.Register("10.0.0.9", "6000", "x")
		addrs, err := got.Addresses(wire.RegOKAddrStart, 2)
		if err != nil {
			t.Fatalf("Addresses: %v", err)
		}
		if addrs[0] == addrs[1] {
			t.Fatalf("reply %v lists the same node twice", got)
		}
		r.Unregister("10.0.0.9", "6000")
	}
}

func TestRegister_Errors(t *testing.T) {
	tests := []struct {
		name           string
		ip, port, user string
		want           string
	}{
		{"same user", "10.0.0.1", "5001", "a", wire.RegOKAlreadyRegistered},
		{"other user", "10.0.0.1", "5001", "b", wire.RegOKAlreadyOccupied},
		{"bad port", "10.0.0.1", "x", "a", wire.RegOKError},
		{"no user", "10.0.0.3", "5003", "", wire.RegOKError},
		{"full", "10.0.0.2", "5002", "c", wire.RegOKFull},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry(1)
			r.Register("10.0.0.1", "5001", "a")
			if got := r.Register(tt.ip, tt.port, tt.user); got.Field(wire.RegOKCount) != tt.want {
				t.Errorf("reply = %v, want %s", got, tt.want)
			}
			if r.Len() != 1 {
				t.Errorf("Len() = %d, want 1", r.Len())
			}
		})
	}
}

func TestUnregister(t *testing.T) {
	r := NewRegistry(0)
	r.Register("10.0.0.1", "5001", "a")

	if got := r.Unregister("10.0.0.1", "5001"); got.Field(wire.UnregOKValue) != wire.ValueSuccess {
		t.Errorf("Unregister = %v, want 0", got)
	}
	if got := r.Unregister("10.0.0.1", "5001"); got.Field(wire.UnregOKValue) != wire.UnregOKError {
		t.Errorf("second Unregister = %v, want 9999", got)
	}
	if got := r.Register("10.0.0.5", "5005", "e"); got.Field(wire.RegOKCount) != "0" {
		t.Errorf("register after unregister = %v, want empty list", got)
	}
}

func TestHandle(t *testing.T) {
	r := NewRegistry(0)
	if got := r.Handle(wire.New(wire.TypeEcho)); got == nil || got.Type != wire.TypeEchoOK {
		t.Errorf("ECHO -> %v, want ECHOOK", got)
	}
	if got := r.Handle(wire.New(wire.TypeJoin, "10.0.0.1", "5001")); got != nil {
		t.Errorf("JOIN -> %v, want no reply", got)
	}
}

// ─── Server ─────────────────────────────────────────────────────────────────

type replies chan *wire.Message

func (r replies) OnMessageReceived(_ domain.Address, payload []byte) {
	if m, err := wire.Parse(payload); err == nil {
		r <- m
	}
}

func (r replies) OnMessageSendFailed(domain.Address, []byte) {}

func (r replies) next(t *testing.T) *wire.Message {
	t.Helper()
	select {
	case m := <-r:
		return m
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for bootstrap reply")
		return nil
	}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	s := NewServer(domain.Address{IP: "127.0.0.1"}, 10, network.DefaultOptions())
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		cancel()
		s.Stop()
	})
	return s
}

func newTestClient(t *testing.T) (*network.UDPTransport, replies) {
	t.Helper()
	tr, err := network.ListenUDP(domain.Address{IP: "127.0.0.1"}, network.DefaultOptions())
	if err != nil {
		t.Fatalf("ListenUDP: %v", err)
	}
	t.Cleanup(func() { tr.Close() })
	ch := make(replies, 4)
	tr.SetListener(ch)
	return tr, ch
}

func TestServer_RegisterOverUDP(t *testing.T) {
	s := newTestServer(t)
	c1, r1 := newTestClient(t)
	c2, r2 := newTestClient(t)

	reg := func(c *network.UDPTransport, user string) {
		a := c.Addr()
		c.SendMessage(s.Addr(), wire.New(wire.TypeReg, a.IP, a.PortString(), user).Bytes())
	}

	reg(c1, "one")
	if got := r1.next(t); got.Field(wire.RegOKCount) != "0" {
		t.Fatalf("first REGOK = %v, want 0", got)
	}

	reg(c2, "two")
	got := r2.next(t)
	addrs, err := got.Addresses(wire.RegOKAddrStart, 1)
	if err != nil || got.Field(wire.RegOKCount) != "1" || addrs[0] != c1.Addr() {
		t.Errorf("second REGOK = %v, want exactly %v", got, c1.Addr())
	}

	if n := len(s.Nodes()); n != 2 {
		t.Errorf("Nodes() = %d, want 2", n)
	}

	a := c1.Addr()
	c1.SendMessage(s.Addr(), wire.New(wire.TypeUnreg, a.IP, a.PortString(), "one").Bytes())
	if got := r1.next(t); got.Type != wire.TypeUnregOK || got.Field(wire.UnregOKValue) != "0" {
		t.Errorf("UNROK = %v", got)
	}
}

func TestServer_StopClearsRegistry(t *testing.T) {
	s := newTestServer(t)
	s.Registry().Register("10.0.0.1", "5001", "a")

	s.Stop()
	s.Stop()

	if s.Running() || len(s.Nodes()) != 0 {
		t.Errorf("after Stop running=%v nodes=%v", s.Running(), s.Nodes())
	}
}
