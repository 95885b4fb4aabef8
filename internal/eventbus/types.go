package eventbus

// Event types published by the session manager and delivery path.
const (
	TypeStatusChanged      = "session.status_changed"
	TypePairingCode        = "session.pairing_code"
	TypeReconnectScheduled = "session.reconnect_scheduled"
	TypeInboundMessage     = "session.inbound_message"
	TypeStorageFailed      = "session.storage_failed"
	TypeDelivered          = "delivery.sent"
	TypeDeliveryFailed     = "delivery.failed"
)
