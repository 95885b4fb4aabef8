package app

import (
	"github.com/coreos/go-systemd/v22/daemon"

	"wafa/pkg/logx"
)

// sdNotifier reports readiness and status to systemd when enabled. Outside
// a systemd unit every call is a no-op.
type sdNotifier struct {
	enabled bool
	log     logx.Logger
}

func (n sdNotifier) notify(state string) {
	if !n.enabled {
		return
	}
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		n.log.Warn("sd_notify failed", logx.String("state", state), logx.Err(err))
		return
	}
	if !sent {
		n.log.Debug("sd_notify skipped (no NOTIFY_SOCKET)")
	}
}

func (n sdNotifier) Ready()               { n.notify(daemon.SdNotifyReady) }
func (n sdNotifier) Stopping()            { n.notify(daemon.SdNotifyStopping) }
func (n sdNotifier) Status(status string) { n.notify("STATUS=" + status) }
