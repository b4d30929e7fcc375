// Package signal cancels contexts on process interrupts
package signal

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/celestiaorg/testbed/internal/logger"
)

// exit is replaced in tests
var exit = os.Exit

// WatchInterrupt returns a context cancelled on the first SIGINT or SIGTERM. If the process is
// still running forceShutdownDelay later, it exits with status 1. A zero delay never forces.
func WatchInterrupt(ctx context.Context, forceShutdownDelay time.Duration) (context.Context, context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	ctx, cancel := context.WithCancel(ctx)

	go func() {
		defer signal.Stop(sigs)
		select {
		case sig := <-sigs:
			logger.Warnf("Received %s, cancelling in-flight operations", sig)
			cancel()
		case <-ctx.Done():
			return
		}

		if forceShutdownDelay <= 0 {
			return
		}
		timer := time.NewTimer(forceShutdownDelay)
		defer timer.Stop()
		select {
		case <-timer.C:
			logger.Warnf("Still running %s after interrupt, exiting immediately", forceShutdownDelay)
			exit(1)
		case <-sigs:
			logger.Warn("Second interrupt received, exiting immediately")
			exit(1)
		}
	}()

	return ctx, cancel
}
