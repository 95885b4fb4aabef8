// Package transport defines the boundary between the session manager and a
// messaging network provider.
//
// A Dialer opens a Socket. The socket reports everything that happens to it
// as Events on one channel and closes that channel when it is done.
package transport

import (
	"context"
	"errors"
	"fmt"

	"wafa/internal/storage"
)

// DisconnectReason is the provider's close code.
type DisconnectReason int

const (
	ReasonConnectionClosed    DisconnectReason = 428
	ReasonConnectionLost      DisconnectReason = 408
	ReasonConnectionReplaced  DisconnectReason = 440
	ReasonTimedOut            DisconnectReason = 504
	ReasonLoggedOut           DisconnectReason = 401
	ReasonBadSession          DisconnectReason = 500
	ReasonRestartRequired     DisconnectReason = 515
	ReasonForbidden           DisconnectReason = 403
	ReasonMultideviceMismatch DisconnectReason = 411
	ReasonUnavailableService  DisconnectReason = 503
)

var reasonNames = map[DisconnectReason]string{
	ReasonConnectionClosed:    "connection_closed",
	ReasonConnectionLost:      "connection_lost",
	ReasonConnectionReplaced:  "connection_replaced",
	ReasonTimedOut:            "timed_out",
	ReasonLoggedOut:           "logged_out",
	ReasonBadSession:          "bad_session",
	ReasonRestartRequired:     "restart_required",
	ReasonForbidden:           "forbidden",
	ReasonMultideviceMismatch: "multidevice_mismatch",
	ReasonUnavailableService:  "unavailable_service",
}

func (r DisconnectReason) String() string {
	if s, ok := reasonNames[r]; ok {
		return s
	}
	return fmt.Sprintf("reason_%d", int(r))
}

// DisconnectError carries the close reason. Err may be nil.
type DisconnectError struct {
	Reason DisconnectReason
	Err    error
}

func (e *DisconnectError) Error() string {
	if e.Err == nil {
		return "disconnected: " + e.Reason.String()
	}
	return "disconnected: " + e.Reason.String() + ": " + e.Err.Error()
}

func (e *DisconnectError) Unwrap() error { return e.Err }

// ReasonOf extracts the close reason from err, if any.
func ReasonOf(err error) (DisconnectReason, bool) {
	var de *DisconnectError
	if errors.As(err, &de) {
		return de.Reason, true
	}
	return 0, false
}

type Phase string

const (
	PhaseConnecting Phase = "connecting"
	PhaseOpen       Phase = "open"
	PhaseClose      Phase = "close"
)

// ConnectionUpdate reports a pairing code, a phase change, or both. Phase is
// empty when only a pairing code is reported. Disconnect is set on close.
type ConnectionUpdate struct {
	PairingCode string
	Phase       Phase
	Disconnect  *DisconnectError
}

type BatchKind string

const (
	BatchNotify BatchKind = "notify"
	BatchAppend BatchKind = "append"
)

// InboundMessage is a raw received message. Destination and text each have
// two possible sources; either may be absent.
type InboundMessage struct {
	ID           string
	RemoteID     string
	RemoteIDAlt  string
	FromMe       bool
	Conversation *string
	ExtendedText *string
}

type MessageBatch struct {
	Kind     BatchKind
	Messages []InboundMessage
}

// Event is one socket notification. Exactly one field is set.
type Event struct {
	Creds      *storage.Credentials
	Connection *ConnectionUpdate
	Messages   *MessageBatch
}

// KeyStore is the slice of the credential store a socket may use.
type KeyStore interface {
	Get(ctx context.Context, category string, ids []string) (map[string]storage.KeyRecord, error)
	Set(ctx context.Context, updates storage.Updates) error
}

// Auth is what a socket needs to authenticate.
type Auth struct {
	Creds *storage.Credentials
	Keys  KeyStore
}

type Dialer interface {
	// Dial starts a connection attempt and returns at once. Progress and
	// failure arrive as events on the socket.
	Dial(ctx context.Context, auth Auth) (Socket, error)
}

type Socket interface {
	Events() <-chan Event
	Send(ctx context.Context, destination string, p Payload) error
	Close() error
}

type PayloadKind string

const (
	PayloadText     PayloadKind = "text"
	PayloadImage    PayloadKind = "image"
	PayloadVideo    PayloadKind = "video"
	PayloadAudio    PayloadKind = "audio"
	PayloadDocument PayloadKind = "document"
)

// Format of Text and Caption.
type Format string

const (
	FormatPlain Format = ""
	FormatHTML  Format = "html"
)

// Payload is one outgoing message. Text is used by PayloadText; Caption by
// image, video and document.
type Payload struct {
	Kind     PayloadKind
	Text     string
	Caption  string
	Data     []byte
	FileName string
	MIMEType string
	Format   Format
}
