package common

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
)

// ListenSysExit cancels the node context on SIGTERM or SIGINT. A second signal exits the process immediately.
func ListenSysExit(logger *zap.Logger, ctxCancel context.CancelFunc) {
	sigC := make(chan os.Signal, 2)
	signal.Notify(sigC, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-sigC
		logger.Info("xerc: received signal, shutting down", zap.Stringer("signal", sig))
		ctxCancel()

		sig = <-sigC
		logger.Warn("xerc: received second signal, exiting immediately", zap.Stringer("signal", sig))
		os.Exit(1)
	}()
}
