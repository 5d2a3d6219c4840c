// Package domain holds the pure overlay types shared by every layer.
// A Node is a peer in the overlay, identified solely by its address.
package domain

import (
	"fmt"
	"net"
	"sort"
	"strconv"
)

// Address is the (ip, port) identity of a peer.
type Address struct {
	IP   string `json:"ip"`
	Port int    `json:"port"`
}

// NewAddress builds an address from an ip and a decimal port string.
func NewAddress(ip, port string) (Address, error) {
	p, err := strconv.Atoi(port)
	if err != nil || p < 0 || p > 65535 {
		return Address{}, fmt.Errorf("%w: port %q", ErrInvalidAddress, port)
	}
	if ip == "" {
		return Address{}, fmt.Errorf("%w: empty ip", ErrInvalidAddress)
	}
	return Address{IP: ip, Port: p}, nil
}

// ParseAddress parses "host:port".
func ParseAddress(s string) (Address, error) {
	host, port, err := net.SplitHostPort(s)
	if err != nil {
		return Address{}, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	return NewAddress(host, port)
}

// String returns "ip:port".
func (a Address) String() string {
	return net.JoinHostPort(a.IP, strconv.Itoa(a.Port))
}

// PortString returns the port in its wire representation.
func (a Address) PortString() string {
	return strconv.Itoa(a.Port)
}

// IsZero reports whether the address is unset.
func (a Address) IsZero() bool {
	return a.IP == "" && a.Port == 0
}

// NodeState tracks heartbeat liveness.
type NodeState int

const (
	NodeActive NodeState = iota
	NodePendingInactivation
	NodeInactive
)

func (s NodeState) String() string {
	switch s {
	case NodeActive:
		return "ACTIVE"
	case NodePendingInactivation:
		return "PENDING_INACTIVATION"
	case NodeInactive:
		return "INACTIVE"
	default:
		return "UNKNOWN"
	}
}

func (s NodeState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *NodeState) UnmarshalText(b []byte) error {
	switch string(b) {
	case "ACTIVE":
		*s = NodeActive
	case "PENDING_INACTIVATION":
		*s = NodePendingInactivation
	case "INACTIVE":
		*s = NodeInactive
	default:
		return fmt.Errorf("node state %q: %w", b, ErrProtocol)
	}
	return nil
}

// Next returns the state after one unanswered heartbeat round.
func (s NodeState) Next() NodeState {
	switch s {
	case NodeActive:
		return NodePendingInactivation
	default:
		return NodeInactive
	}
}

// Node is a snapshot of a known peer. Equality is by Address only; State is
// mutable liveness owned by the routing table.
type Node struct {
	Address
	State NodeState `json:"state"`
}

// NewNode returns an active node at addr.
func NewNode(addr Address) Node {
	return Node{Address: addr, State: NodeActive}
}

// Alive returns true until the node has missed enough heartbeats to be
// garbage collected.
func (n Node) Alive() bool {
	return n.State != NodeInactive
}

// Is reports whether n and o denote the same peer.
func (n Node) Is(o Node) bool {
	return n.Address == o.Address
}

func (n Node) String() string {
	return n.Address.String()
}

// SortAddresses orders addresses by ip then port.
func SortAddresses(addrs []Address) {
	sort.Slice(addrs, func(i, j int) bool { return addrs[i].less(addrs[j]) })
}

// SortNodes orders nodes by address.
func SortNodes(nodes []Node) {
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Address.less(nodes[j].Address) })
}

func (a Address) less(o Address) bool {
	if a.IP != o.IP {
		return a.IP < o.IP
	}
	return a.Port < o.Port
}
