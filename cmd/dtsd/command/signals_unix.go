//go:build !windows

package command

import (
	"context"
	"os"
	"os/signal"

	"golang.org/x/sys/unix"
)

// watchSignals cancels ctx's context on SIGINT/SIGTERM (ordinary
// shutdown) and on SIGUSR1/SIGUSR2, the reference daemon's
// shutdownDTS/abort signals (spec.md §5). dtsd has no persistent
// per-signal distinction beyond "stop": both drive the same context
// cancellation that every queue manager and the RPC server already
// select on.
func watchSignals(cancel context.CancelFunc) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, unix.SIGTERM, unix.SIGUSR1, unix.SIGUSR2)
	go func() {
		<-ch
		cancel()
	}()
}
