package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/latticectl/lattice/cmd/latticectl/commands"
	"github.com/latticectl/lattice/internal/telemetry"
)

// Version information, set via ldflags during build.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

func main() {
	log, err := telemetry.NewLogger(telemetry.DefaultConfig().Logging)
	if err != nil {
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("received interrupt signal, shutting down")
		cancel()
	}()

	if err := commands.Execute(ctx, log, Version, Commit, BuildDate); err != nil {
		log.WithError(err).Error("command execution failed")
		os.Exit(1)
	}
}
