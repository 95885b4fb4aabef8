package session

import (
	"fmt"

	"wafa/internal/transport"
)

// Status is the connection state of the session. Only the manager's event
// loop writes it.
type Status int32

const (
	StatusConnecting Status = iota
	StatusConnected
	StatusAwaitingPairing
	StatusRestartRequired
	StatusError
	StatusErrorConnectionClosed
	StatusErrorConnectionLost
	StatusErrorConnectionReplaced
	StatusErrorTimedOut
	StatusLoggedOut
)

var statusNames = [...]string{
	StatusConnecting:              "CONNECTING",
	StatusConnected:               "CONNECTED",
	StatusAwaitingPairing:         "AWAITING_PAIRING",
	StatusRestartRequired:         "RESTART_REQUIRED",
	StatusError:                   "ERROR",
	StatusErrorConnectionClosed:   "ERROR_CONNECTION_CLOSED",
	StatusErrorConnectionLost:     "ERROR_CONNECTION_LOST",
	StatusErrorConnectionReplaced: "ERROR_CONNECTION_REPLACED",
	StatusErrorTimedOut:           "ERROR_TIMED_OUT",
	StatusLoggedOut:               "LOGGED_OUT",
}

func (s Status) String() string {
	if s >= 0 && int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("STATUS(%d)", int32(s))
}

// AllStatuses lists every status in declaration order.
func AllStatuses() []Status {
	out := make([]Status, len(statusNames))
	for i := range statusNames {
		out[i] = Status(i)
	}
	return out
}

func statusLabels() []string {
	out := make([]string, len(statusNames))
	copy(out, statusNames[:])
	return out
}

// disconnectStatus maps close reasons to their refined status. Reasons not
// listed here leave the generic StatusError in place. LoggedOut is handled
// separately because it wipes the credential store.
var disconnectStatus = map[transport.DisconnectReason]Status{
	transport.ReasonConnectionClosed:   StatusErrorConnectionClosed,
	transport.ReasonConnectionLost:     StatusErrorConnectionLost,
	transport.ReasonConnectionReplaced: StatusErrorConnectionReplaced,
	transport.ReasonTimedOut:           StatusErrorTimedOut,
	transport.ReasonRestartRequired:    StatusRestartRequired,
}
