package wire

import (
	"fmt"
	"strconv"

	"github.com/tutu-network/sharer/internal/domain"
)

// NewAddressed creates a message whose first two fields are addr.
func NewAddressed(t Type, addr domain.Address, extra ...string) *Message {
	fields := make([]string, 0, 2+len(extra))
	fields = append(fields, addr.IP, addr.PortString())
	fields = append(fields, extra...)
	return New(t, fields...)
}

// NewSer creates a search originating at source.
func NewSer(source domain.Address, query string) *Message {
	return New(TypeSer, source.IP, source.PortString(), query, strconv.Itoa(InitialHopCount))
}

// NewSerOK creates a search hit reply from owner.
func NewSerOK(owner domain.Address, hopCount int, query string, names []string) *Message {
	fields := make([]string, 0, SerOKFileStart+len(names))
	fields = append(fields,
		strconv.Itoa(len(names)),
		owner.IP, owner.PortString(),
		strconv.Itoa(hopCount),
		query,
	)
	fields = append(fields, names...)
	return New(TypeSerOK, fields...)
}

// NewSerSuperPeer creates a super-peer discovery query.
func NewSerSuperPeer(source domain.Address) *Message {
	return New(TypeSerSuperPeer, source.IP, source.PortString(), strconv.Itoa(InitialHopCount))
}

// HopIndex returns the hop-count field index for a search type.
func HopIndex(t Type) (int, bool) {
	switch t {
	case TypeSer:
		return SerHopCount, true
	case TypeSerSuperPeer:
		return SerSuperPeerHopCount, true
	default:
		return 0, false
	}
}

// SourceIndex returns the index of the embedded originator address.
func SourceIndex(t Type) (int, bool) {
	switch t {
	case TypeSer:
		return SerSourceIP, true
	case TypeSerSuperPeer:
		return SerSuperPeerSourceIP, true
	default:
		return 0, false
	}
}

// Counted reads a count field at i followed by count string entries.
func (m *Message) Counted(i int) ([]string, error) {
	n, err := m.Int(i)
	if err != nil {
		return nil, err
	}
	if n < 0 || n > len(m.Fields) || !m.Has(i+n) {
		return nil, domain.ErrMissingField
	}
	out := make([]string, n)
	copy(out, m.Fields[i+1:i+1+n])
	return out, nil
}

// Addresses reads count (ip, port) pairs starting at start.
// The count comes off the wire, so it is checked against the fields present
// before anything is allocated.
func (m *Message) Addresses(start, count int) ([]domain.Address, error) {
	if count == 0 {
		return nil, nil
	}
	if count < 0 || start < 0 || count > (len(m.Fields)-start)/2 {
		return nil, fmt.Errorf("%w: %s announces %d addresses at %d", domain.ErrMissingField, m.Type, count, start)
	}
	addrs := make([]domain.Address, 0, count)
	for k := 0; k < count; k++ {
		a, err := m.Address(start + 2*k)
		if err != nil {
			return nil, err
		}
		addrs = append(addrs, a)
	}
	return addrs, nil
}
