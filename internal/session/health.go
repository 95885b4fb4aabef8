package session

// Health reports whether a session in status s can deliver messages. It is
// pure and never blocks.
func Health(s Status) error {
	switch s {
	case StatusConnected:
		return nil
	case StatusConnecting:
		return newError(KindNotReady, "Client is still connecting to the messaging network.", nil)
	case StatusRestartRequired:
		return newError(KindNotReady, "Client is restarting the connection.", nil)
	case StatusAwaitingPairing:
		return newError(KindLoggedOut, "Client is awaiting pairing. Pair it using the pairing code.", nil)
	case StatusLoggedOut:
		return newError(KindLoggedOut, "Client was logged out, re-pair required.", nil)
	case StatusErrorConnectionClosed:
		return newError(KindUnexpected, "Connection closed while connecting to the messaging network.", nil)
	case StatusErrorConnectionLost:
		return newError(KindUnexpected, "Connection lost while connecting to the messaging network.", nil)
	case StatusErrorConnectionReplaced:
		return newError(KindUnexpected, "Connection replaced by another session.", nil)
	case StatusErrorTimedOut:
		return newError(KindUnexpected, "Connection to the messaging network timed out.", nil)
	case StatusError:
		return newError(KindUnexpected, "Unexpected error while connecting to the messaging network.", nil)
	default:
		return newError(KindUnexpected, "Unknown session status "+s.String()+".", nil)
	}
}
