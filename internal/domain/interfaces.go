package domain

// ─── Service Interfaces ─────────────────────────────────────────────────────
// These interfaces define boundaries between layers.
// Infrastructure implements them; the routing layer depends on them.

// Transport moves encoded wire messages between peers. SendMessage never
// blocks on delivery; failures are reported through the listener.
type Transport interface {
	// SendMessage queues payload for delivery to the peer at to.
	SendMessage(to Address, payload []byte)

	// SetListener installs the sole inbound listener. nil unregisters.
	SetListener(l TransportListener)

	// Addr is the address peers use to reach this transport.
	Addr() Address
}

// TransportListener receives inbound traffic and delivery failures.
type TransportListener interface {
	OnMessageReceived(from Address, payload []byte)
	OnMessageSendFailed(to Address, payload []byte)
}
