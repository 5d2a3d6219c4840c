package domain

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors are pure. No infrastructure dependency.

var (
	// Wire protocol errors
	ErrProtocol          = errors.New("malformed wire message")
	ErrTruncated         = errors.New("wire message shorter than its header")
	ErrUnknownType       = errors.New("unknown wire message type")
	ErrUnterminatedQuote = errors.New("unterminated quoted field")
	ErrMissingField      = errors.New("wire message field missing")
	ErrFrameTooLarge     = errors.New("wire message exceeds the maximum frame size")

	// Addressing
	ErrInvalidAddress = errors.New("invalid peer address")

	// Routing table errors
	ErrSelfNode       = errors.New("cannot add this node as its own neighbour")
	ErrNeighbourLimit = errors.New("neighbour limit reached")
	ErrWrongRole      = errors.New("operation not valid for the current peer role")
	ErrNodeNotFound   = errors.New("node not in routing table")

	// Lifecycle errors
	ErrRouterStopped   = errors.New("router has been shut down")
	ErrTransportClosed = errors.New("transport is closed")

	// Resource and query errors
	ErrResourceNotFound = errors.New("resource not found")
	ErrQueryEmpty       = errors.New("query string is empty")

	// Configuration
	ErrInvalidConfig = errors.New("invalid configuration")
)
