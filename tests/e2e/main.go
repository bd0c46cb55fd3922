package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/grovetools/tend/pkg/app"
	"github.com/grovetools/tend/pkg/harness"
)

func main() {
	// A list of all E2E scenarios for remit.
	scenarios := []*harness.Scenario{
		VersionScenario(),
		BanksScenario(),
		FeeScenario(),
		// Configuration scenarios
		ConfigBankTableScenario(),
		ConfigInvalidModeScenario(),
		// Session record scenarios
		SessionsListScenario(),
		SessionsPruneScenario(),
		// HTTP API scenarios
		ServeDemoScenario(),
	}

	// Setup signal handling for graceful shutdown.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\nReceived interrupt signal, shutting down...")
		cancel()
	}()

	if err := app.Execute(ctx, scenarios); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
