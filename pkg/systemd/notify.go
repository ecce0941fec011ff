// Package systemd reports service state to the service manager when the
// process runs as a Type=notify unit. Outside systemd every call is a no-op.
package systemd

import (
	"github.com/coreos/go-systemd/v22/daemon"
)

// Ready tells systemd start-up is complete. It reports false when no
// notification socket is configured.
func Ready() (bool, error) {
	return daemon.SdNotify(false, daemon.SdNotifyReady)
}

// Stopping tells systemd the service is shutting down.
func Stopping() (bool, error) {
	return daemon.SdNotify(false, daemon.SdNotifyStopping)
}

// Status publishes a free-form status line shown by "systemctl status".
func Status(msg string) (bool, error) {
	return daemon.SdNotify(false, "STATUS="+msg)
}
