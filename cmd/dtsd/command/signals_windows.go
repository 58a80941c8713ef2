//go:build windows

package command

import (
	"context"
	"os"
	"os/signal"
)

// watchSignals cancels ctx's context on SIGINT (os.Interrupt) only;
// SIGTERM is not watched here. Windows has no
// SIGUSR1/SIGUSR2 equivalent; shutdownDTS/abort there are reached
// through the RPC verbs only.
func watchSignals(cancel context.CancelFunc) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt)
	go func() {
		<-ch
		cancel()
	}()
}
