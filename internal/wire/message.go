package wire

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tutu-network/sharer/internal/domain"
)

const (
	separator  = ' '
	quote      = '"'
	headerSize = 5 // four length digits plus one separator

	// MaxFrameSize is the largest frame a four digit header can describe.
	MaxFrameSize = 9999
)

// Message is a typed, ordered list of string fields.
type Message struct {
	Type   Type
	Fields []string
}

// New creates a message of type t with the given fields.
func New(t Type, fields ...string) *Message {
	return &Message{Type: t, Fields: fields}
}

// Field returns field i, or "" when the message is shorter.
func (m *Message) Field(i int) string {
	if i < 0 || i >= len(m.Fields) {
		return ""
	}
	return m.Fields[i]
}

// Has reports whether field i is present.
func (m *Message) Has(i int) bool {
	return i >= 0 && i < len(m.Fields)
}

// Int parses field i as a decimal integer.
func (m *Message) Int(i int) (int, error) {
	if !m.Has(i) {
		return 0, fmt.Errorf("%w: %s field %d", domain.ErrMissingField, m.Type, i)
	}
	n, err := strconv.Atoi(m.Fields[i])
	if err != nil {
		return 0, fmt.Errorf("%w: %s field %d: %v", domain.ErrProtocol, m.Type, i, err)
	}
	return n, nil
}

// Address reads an (ip, port) pair starting at field i.
func (m *Message) Address(i int) (domain.Address, error) {
	if !m.Has(i + 1) {
		return domain.Address{}, fmt.Errorf("%w: %s address at %d", domain.ErrMissingField, m.Type, i)
	}
	return domain.NewAddress(m.Fields[i], m.Fields[i+1])
}

// Set writes field i, growing the field list with empty fields if needed.
func (m *Message) Set(i int, v string) {
	for len(m.Fields) <= i {
		m.Fields = append(m.Fields, "")
	}
	m.Fields[i] = v
}

// Clone returns a deep copy. Forwarders mutate the copy per hop.
func (m *Message) Clone() *Message {
	fields := make([]string, len(m.Fields))
	copy(fields, m.Fields)
	return &Message{Type: m.Type, Fields: fields}
}

// Equal compares type and fields.
func (m *Message) Equal(o *Message) bool {
	if m == nil || o == nil {
		return m == o
	}
	if m.Type != o.Type || len(m.Fields) != len(o.Fields) {
		return false
	}
	for i := range m.Fields {
		if m.Fields[i] != o.Fields[i] {
			return false
		}
	}
	return true
}

// Bytes serializes the message. The length prefix is computed on every call.
// Use Encode when the frame goes on the wire.
func (m *Message) Bytes() []byte {
	return []byte(m.String())
}

// Encode serializes the message, failing with domain.ErrFrameTooLarge when
// the frame does not fit the length header.
func (m *Message) Encode() ([]byte, error) {
	if n := m.Size(); n > MaxFrameSize {
		return nil, fmt.Errorf("%w: %s is %d bytes", domain.ErrFrameTooLarge, m.Type, n)
	}
	return m.Bytes(), nil
}

// Size returns the serialized frame length counted the way the header counts it.
func (m *Message) Size() int {
	n := headerSize + len(m.Type.String())
	for _, f := range m.Fields {
		n += fieldSize(f)
	}
	return n
}

// FitCounted drops trailing list entries, which start at field start, until
// the frame fits MaxFrameSize, and rewrites the entry count at countIdx. It
// returns the number of entries dropped.
func (m *Message) FitCounted(countIdx, start int) int {
	size := m.Size()
	if size <= MaxFrameSize || !m.Has(countIdx) {
		return 0
	}
	dropped := 0
	for size > MaxFrameSize && len(m.Fields) > start {
		last := len(m.Fields) - 1
		size -= fieldSize(m.Fields[last])
		m.Fields = m.Fields[:last]
		dropped++
	}
	m.Fields[countIdx] = strconv.Itoa(max(len(m.Fields)-start, 0))
	return dropped
}

func fieldSize(f string) int {
	if f == "" || strings.ContainsRune(f, separator) {
		return len(f) + 3
	}
	return len(f) + 1
}

// String returns the serialized frame.
func (m *Message) String() string {
	var body strings.Builder
	body.WriteString(m.Type.String())
	for _, f := range m.Fields {
		body.WriteByte(separator)
		if f == "" || strings.ContainsRune(f, separator) {
			body.WriteByte(quote)
			body.WriteString(f)
			body.WriteByte(quote)
		} else {
			body.WriteString(f)
		}
	}
	return fmt.Sprintf("%04d %s", body.Len()+headerSize, body.String())
}

// Parse decodes a frame. Any error wraps domain.ErrProtocol; callers drop the
// message.
func Parse(raw []byte) (*Message, error) {
	s := strings.TrimRight(string(raw), "\r\n\x00")

	if len(s) < 4 {
		return nil, fmt.Errorf("%w: %w", domain.ErrProtocol, domain.ErrTruncated)
	}
	length, err := strconv.Atoi(s[:4])
	if err != nil || length < 0 {
		return nil, fmt.Errorf("%w: length header %q", domain.ErrProtocol, s[:4])
	}
	if len(s) < headerSize || s[4] != separator {
		return nil, fmt.Errorf("%w: %w", domain.ErrProtocol, domain.ErrTruncated)
	}
	if length > len(s) {
		return nil, fmt.Errorf("%w: %w: header says %d bytes, got %d",
			domain.ErrProtocol, domain.ErrTruncated, length, len(s))
	}

	rest := s[headerSize:]
	token := rest
	if i := strings.IndexByte(rest, separator); i >= 0 {
		token, rest = rest[:i], rest[i+1:]
	} else {
		rest = ""
	}
	if token == "" {
		return nil, fmt.Errorf("%w: missing type", domain.ErrProtocol)
	}
	t, ok := LookupType(token)
	if !ok {
		return nil, fmt.Errorf("%w: %w: %q", domain.ErrProtocol, domain.ErrUnknownType, token)
	}

	fields, err := splitFields(rest)
	if err != nil {
		return nil, err
	}
	return &Message{Type: t, Fields: fields}, nil
}

// splitFields tokenizes on unquoted separators. Runs of separators between
// unquoted fields are collapsed.
func splitFields(s string) ([]string, error) {
	var fields []string
	i := 0
	for i < len(s) {
		switch s[i] {
		case separator:
			i++
		case quote:
			end := strings.IndexByte(s[i+1:], quote)
			if end < 0 {
				return nil, fmt.Errorf("%w: %w", domain.ErrProtocol, domain.ErrUnterminatedQuote)
			}
			fields = append(fields, s[i+1:i+1+end])
			i += end + 2
			if i < len(s) && s[i] != separator {
				return nil, fmt.Errorf("%w: text after closing quote at %d", domain.ErrProtocol, i)
			}
		default:
			end := strings.IndexByte(s[i:], separator)
			if end < 0 {
				fields = append(fields, s[i:])
				i = len(s)
			} else {
				fields = append(fields, s[i:i+end])
				i += end
			}
		}
	}
	return fields, nil
}
