package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/user/goszakup-scraper/cmd/goszakup/commands"
)

func main() {
	// First SIGINT/SIGTERM cancels the context for a graceful stop; a
	// second one kills the process the hard way.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	commands.ExecuteContext(ctx)
}
