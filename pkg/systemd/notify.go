// Package systemd reports service state to systemd over the notify socket.
// Every call is a no-op when the process was not started by systemd.
package systemd

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

// notify is swapped in tests.
var notify = daemon.SdNotify

// Ready sends READY=1. sent is false outside systemd.
func Ready() (sent bool, err error) { return notify(false, daemon.SdNotifyReady) }

// Stopping sends STOPPING=1.
func Stopping() (sent bool, err error) { return notify(false, daemon.SdNotifyStopping) }

// Status sends a free-form STATUS= line shown by systemctl status.
func Status(msg string) (sent bool, err error) { return notify(false, "STATUS="+msg) }

// Watchdog pings WATCHDOG=1 at half the configured WatchdogSec until ctx
// ends. It returns immediately when the unit has no watchdog.
func Watchdog(ctx context.Context) error {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval <= 0 {
		return err
	}
	t := time.NewTicker(interval / 2)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if _, err := notify(false, daemon.SdNotifyWatchdog); err != nil {
				return err
			}
		}
	}
}
