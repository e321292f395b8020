package app

import (
	"github.com/coreos/go-systemd/v22/daemon"

	logx "agentcron/pkg/logx"
)

// sdNotify reports state to systemd when running under Type=notify.
// Outside systemd it is a no-op.
func sdNotify(log logx.Logger, state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		log.Warn("sd_notify failed", logx.String("state", state), logx.Err(err))
		return
	}
	if sent {
		log.Debug("sd_notify sent", logx.String("state", state))
	}
}
