// File: cmd/fetchbridge/main.go
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/xkilldash9x/fetchbridge/cmd"
	"github.com/xkilldash9x/fetchbridge/internal/observability"
)

// main is the entry point of the application.
func main() {
	defer observability.Sync()

	// Shut down gracefully on SIGINT and SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cmd.Execute(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			os.Exit(0)
		}
		os.Exit(1)
	}
}
