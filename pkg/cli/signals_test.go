package cli

import (
	"context"
	"os"
	"syscall"
	"testing"
	"time"
)

func TestSetupSignalHandler_NotCanceledInitially(t *testing.T) {
	ctx, stop := SetupSignalHandler(context.Background())
	defer stop()

	select {
	case <-ctx.Done():
		t.Fatal("context canceled before any signal")
	case <-time.After(10 * time.Millisecond):
	}
}

func TestSetupSignalHandler_Stop(t *testing.T) {
	ctx, stop := SetupSignalHandler(context.Background())
	stop()
	stop()

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("expected stop to cancel the context")
	}
}

func TestSetupSignalHandler_ParentCancel(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	ctx, stop := SetupSignalHandler(parent)
	defer stop()

	cancel()
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("expected parent cancellation to propagate")
	}
}

func TestSetupSignalHandler_SIGTERM(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping signal delivery in short mode")
	}
	ctx, stop := SetupSignalHandler(context.Background())
	defer stop()

	p, err := os.FindProcess(os.Getpid())
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Signal(syscall.SIGTERM); err != nil {
		t.Skipf("cannot signal own process: %v", err)
	}

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("context not canceled after SIGTERM")
	}
}

func TestHandleReload_SIGHUP(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping signal delivery in short mode")
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan struct{}, 1)
	HandleReload(ctx, func() { reloaded <- struct{}{} })

	p, err := os.FindProcess(os.Getpid())
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Signal(syscall.SIGHUP); err != nil {
		t.Skipf("cannot signal own process: %v", err)
	}

	select {
	case <-reloaded:
	case <-time.After(2 * time.Second):
		t.Fatal("reload not called after SIGHUP")
	}
}
