package node

import (
	"fmt"
	"net"

	"github.com/coreos/go-systemd/activation"
	"github.com/coreos/go-systemd/daemon"
	"go.uber.org/zap"
)

func getSDListeners() ([]net.Listener, error) {
	// Socket activation keeps the API socket open while systemd restarts the process.
	listeners, err := activation.Listeners()
	if err != nil {
		return nil, fmt.Errorf("cannot retrieve listeners: %v", err)
	}
	if len(listeners) != 1 {
		return nil, fmt.Errorf("unexpected number of sockets passed by systemd (%d != 1)", len(listeners))
	}
	return listeners, nil
}

// NotifySystemdReady tells systemd the node is up. It is a no-op when not running under a Type=notify unit.
func NotifySystemdReady(logger *zap.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyReady)
	if err != nil {
		logger.Warn("failed to notify systemd", zap.Error(err))
		return
	}
	if sent {
		logger.Debug("notified systemd of readiness")
	}
}
