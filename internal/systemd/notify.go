// Package systemd integrates with the service manager when the server
// runs as a unit. All calls are no-ops outside systemd.
package systemd

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"github.com/camkit/camserver/internal/logging"
)

// NotifyReady tells the service manager startup has finished.
func NotifyReady() {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyReady)
	if err != nil {
		logging.GetLogger("systemd").Warn("ready notification failed", "error", err)
		return
	}
	if sent {
		logging.GetLogger("systemd").Debug("ready notification sent")
	}
}

// NotifyStopping tells the service manager shutdown has begun.
func NotifyStopping() {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
}

// RunWatchdog pings the systemd watchdog at half the configured
// interval until ctx is cancelled. Returns immediately when no
// watchdog is configured.
func RunWatchdog(ctx context.Context) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval == 0 {
		return
	}

	log := logging.GetLogger("systemd")
	log.Info("watchdog enabled", "interval", interval)
	tick := time.NewTicker(interval / 2)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
		}
	}
}
