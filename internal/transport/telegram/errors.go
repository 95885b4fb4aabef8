package telegram

import (
	"context"
	"errors"
	"net"
	"strings"

	tele "gopkg.in/telebot.v4"

	"wafa/internal/transport"
)

// classify maps a Bot API or network failure to a disconnect reason.
func classify(err error) transport.DisconnectReason {
	if err == nil {
		return transport.ReasonConnectionClosed
	}
	var te *tele.Error
	if errors.As(err, &te) {
		switch te.Code {
		case 401, 404:
			// 404 on getMe means the token is unknown.
			return transport.ReasonLoggedOut
		case 403:
			return transport.ReasonForbidden
		case 409:
			return transport.ReasonConnectionReplaced
		case 500, 502:
			return transport.ReasonUnavailableService
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return transport.ReasonTimedOut
	}
	var ne net.Error
	if errors.As(err, &ne) {
		if ne.Timeout() {
			return transport.ReasonTimedOut
		}
		return transport.ReasonConnectionLost
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "unauthorized"):
		return transport.ReasonLoggedOut
	case strings.Contains(msg, "conflict"), strings.Contains(msg, "terminated by other getupdates"):
		return transport.ReasonConnectionReplaced
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline exceeded"):
		return transport.ReasonTimedOut
	case strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "connection reset"),
		strings.Contains(msg, "no such host"),
		strings.Contains(msg, "eof"):
		return transport.ReasonConnectionLost
	case strings.Contains(msg, "bad gateway"), strings.Contains(msg, "service unavailable"):
		return transport.ReasonUnavailableService
	}
	return transport.ReasonConnectionClosed
}
