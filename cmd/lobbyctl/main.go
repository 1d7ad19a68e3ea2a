// Package main runs the lobby command-line client.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/louisbranch/tycoon.lobby/internal/cmd/lobbyctl"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := lobbyctl.Execute(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
