package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"mirrord.dev/launch/internal/application/ports"
	"mirrord.dev/launch/internal/interfaces/cli"
	"mirrord.dev/launch/internal/interfaces/di"
)

func main() {
	container, err := di.NewContainer()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize application: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = cli.Execute(ctx, container.GetCLIContainer())

	if shutdownErr := container.Shutdown(context.Background()); shutdownErr != nil {
		container.Logger.LogError(shutdownErr, "Error during shutdown", nil)
	}
	if err != nil {
		if ctx.Err() != nil {
			container.Logger.Log(ports.LogLevelInfo, "Interrupted, launches stopped", nil)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
