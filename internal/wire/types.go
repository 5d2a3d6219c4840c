// Package wire implements the overlay's text protocol.
//
// Every message travels as
//
//	"<4-digit length> <TYPE> <field> <field> ..."
//
// where the length counts the whole frame including the four digits and the
// separator that follows them. Fields that contain the separator (or are
// empty) are wrapped in double quotes.
package wire

// Type is the closed catalog of message types. Values are never renumbered.
type Type int

const (
	TypeUnknown Type = iota
	TypeReg
	TypeRegOK
	TypeUnreg
	TypeUnregOK
	TypeEcho
	TypeEchoOK
	TypeJoin
	TypeJoinOK
	TypeLeave
	TypeLeaveOK
	TypeSer
	TypeSerOK
	TypeSerSuperPeer
	TypeSerSuperPeerOK
	TypeJoinSuperPeer
	TypeJoinSuperPeerOK
	TypeHeartbeat
	TypeHeartbeatOK
	TypeListResources
	TypeListResourcesOK
	TypeListUnstructuredConnections
	TypeListUnstructuredConnectionsOK
	TypeListSuperPeerConnections
	TypeListSuperPeerConnectionsOK
	TypeError
)

var tokens = map[Type]string{
	TypeReg:                           "REG",
	TypeRegOK:                         "REGOK",
	TypeUnreg:                         "UNREG",
	TypeUnregOK:                       "UNROK",
	TypeEcho:                          "ECHO",
	TypeEchoOK:                        "ECHOOK",
	TypeJoin:                          "JOIN",
	TypeJoinOK:                        "JOINOK",
	TypeLeave:                         "LEAVE",
	TypeLeaveOK:                       "LEAVEOK",
	TypeSer:                           "SER",
	TypeSerOK:                         "SEROK",
	TypeSerSuperPeer:                  "SERSUPERPEER",
	TypeSerSuperPeerOK:                "SERSUPERPEEROK",
	TypeJoinSuperPeer:                 "JOINSUPERPEER",
	TypeJoinSuperPeerOK:               "JOINSUPERPEEROK",
	TypeHeartbeat:                     "HEARTBEAT",
	TypeHeartbeatOK:                   "HEARTBEATOK",
	TypeListResources:                 "LISTRESOURCES",
	TypeListResourcesOK:               "LISTRESOURCESOK",
	TypeListUnstructuredConnections:   "LISTUNSTRUCTUREDCONNECTIONS",
	TypeListUnstructuredConnectionsOK: "LISTUNSTRUCTUREDCONNECTIONSOK",
	TypeListSuperPeerConnections:      "LISTSUPERPEERCONNECTIONS",
	TypeListSuperPeerConnectionsOK:    "LISTSUPERPEERCONNECTIONSOK",
	TypeError:                         "ERROR",
}

var byToken = func() map[string]Type {
	m := make(map[string]Type, len(tokens))
	for t, s := range tokens {
		m[s] = t
	}
	return m
}()

// String returns the wire token for t.
func (t Type) String() string {
	if s, ok := tokens[t]; ok {
		return s
	}
	return "UNKNOWN"
}

// LookupType resolves a wire token.
func LookupType(token string) (Type, bool) {
	t, ok := byToken[token]
	return t, ok
}

// IsSearch reports whether t is a query that the router forwards hop by hop.
func (t Type) IsSearch() bool {
	return t == TypeSer || t == TypeSerSuperPeer
}

// ─── Field layouts ──────────────────────────────────────────────────────────

// REG / UNREG
const (
	RegIP       = 0
	RegPort     = 1
	RegUsername = 2
)

// REG_OK, short replies and requests that only carry an address.
const (
	RegOKCount       = 0
	RegOKAddrStart   = 1
	RegOKMaxListed   = 2
	UnregOKValue     = 0
	EchoOKValue      = 0
	JoinIP           = 0
	JoinPort         = 1
	LeaveIP          = 0
	LeavePort        = 1
	HeartbeatIP      = 0
	HeartbeatPort    = 1
	ListRequestIP    = 0
	ListRequestPort  = 1
	InitialHopCount  = 0
	DefaultBootstrap = 55555
)

// JOIN_OK
const (
	JoinOKValue         = 0
	JoinOKIP            = 1
	JoinOKPort          = 2
	JoinOKSuperPeerIP   = 3
	JoinOKSuperPeerPort = 4
	JoinOKNewIP         = 3
	JoinOKNewPort       = 4
)

// LEAVE_OK
const (
	LeaveOKValue = 0
	LeaveOKIP    = 1
	LeaveOKPort  = 2
)

// SER
const (
	SerSourceIP   = 0
	SerSourcePort = 1
	SerFileName   = 2
	SerHopCount   = 3
)

// SER_OK
const (
	SerOKFileCount = 0
	SerOKIP        = 1
	SerOKPort      = 2
	SerOKHopCount  = 3
	SerOKQuery     = 4
	SerOKFileStart = 5
)

// SER_SUPER_PEER / SER_SUPER_PEER_OK
const (
	SerSuperPeerSourceIP   = 0
	SerSuperPeerSourcePort = 1
	SerSuperPeerHopCount   = 2

	SerSuperPeerOKIP       = 0
	SerSuperPeerOKPort     = 1
	SerSuperPeerOKHopCount = 2
)

// JOIN_SUPER_PEER
const (
	JoinSuperPeerSourceIP      = 0
	JoinSuperPeerSourcePort    = 1
	JoinSuperPeerSourceRole    = 2
	JoinSuperPeerResourceCount = 3
	JoinSuperPeerResourceStart = 4
)

// JOIN_SUPER_PEER_OK
const (
	JoinSuperPeerOKValue   = 0
	JoinSuperPeerOKIP      = 1
	JoinSuperPeerOKPort    = 2
	JoinSuperPeerOKNewIP   = 3
	JoinSuperPeerOKNewPort = 4
)

// LIST_*_OK
const (
	ListOKIP         = 0
	ListOKPort       = 1
	ListOKCount      = 2
	ListOKEntryStart = 3
	ListMaxCount     = 2
)

// ─── Sentinel values ────────────────────────────────────────────────────────

const (
	ValueSuccess = "0"

	JoinOKFull  = "9998"
	JoinOKError = "9999"

	LeaveOKError = "9999"

	RegOKFull              = "9996"
	RegOKAlreadyOccupied   = "9997"
	RegOKAlreadyRegistered = "9998"
	RegOKError             = "9999"

	UnregOKError = "9999"

	JoinSuperPeerOKNotSuperPeer  = "9997"
	JoinSuperPeerOKFull          = "9998"
	JoinSuperPeerOKFullNoOneElse = "9999"

	ListSuperPeerConnectionsNotSuperPeer = "9999"

	NotFoundIP   = "0.0.0.0"
	NotFoundPort = "0"
)
