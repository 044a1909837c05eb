package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"bdscan/internal/scan"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd := newRootCommand()
	if err := cmd.ExecuteContext(ctx); err != nil {
		os.Exit(reportError(err))
	}
}

// reportError prints err and returns the process exit code.
func reportError(err error) int {
	switch {
	case errors.Is(err, scan.ErrCancelled):
		fmt.Fprintln(os.Stderr, err)
		return 130
	case errors.Is(err, context.Canceled):
		return 130
	default:
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
}
