package cli

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// SetupSignalHandler returns a context that is canceled on SIGINT or
// SIGTERM. A second signal exits the process immediately. Call stop to
// release the signal subscription.
func SetupSignalHandler(parent context.Context) (ctx context.Context, stop func()) {
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		select {
		case <-sigChan:
			cancel()
		case <-done:
			return
		}
		select {
		case <-sigChan:
			os.Exit(ExitFailure)
		case <-done:
		}
	}()

	var once sync.Once
	return ctx, func() {
		once.Do(func() {
			signal.Stop(sigChan)
			close(done)
			cancel()
		})
	}
}

// HandleReload calls reload on every SIGHUP until ctx is canceled. The
// subscription is active when HandleReload returns.
func HandleReload(ctx context.Context, reload func()) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)

	go func() {
		defer signal.Stop(hup)
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				reload()
			}
		}
	}()
}
