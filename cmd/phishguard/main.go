package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/phishguard/phishguard/internal/adapters/msgapi"
	"github.com/phishguard/phishguard/internal/core"
	"github.com/phishguard/phishguard/internal/di"
	"github.com/phishguard/phishguard/internal/maintenance"
)

func main() {
	// Build the dependency injection container
	container, err := di.BuildContainer()
	if err != nil {
		fmt.Printf("Failed to build dependency container: %v\n", err)
		os.Exit(1)
	}

	// Run the application
	if err := container.Invoke(run); err != nil {
		fmt.Printf("Application error: %v\n", err)
		os.Exit(1)
	}
}

// run is the main application function that gets all dependencies injected
func run(
	logger *zap.Logger,
	server *msgapi.Server,
	scheduler *maintenance.Scheduler,
	cache core.ResultCache,
	store core.KeyValueStore,
) error {
	defer logger.Sync()

	// Start the message API
	if err := server.Start(); err != nil {
		logger.Fatal("Failed to start message API", zap.Error(err))
		return err
	}

	// Start periodic maintenance
	scheduler.Start()

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	<-sigCh
	logger.Info("Shutting down...")

	scheduler.Stop()

	if err := server.Stop(); err != nil {
		logger.Error("Failed to stop message API", zap.Error(err))
	}

	// Close any resources that need closing
	if closer, ok := cache.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			logger.Error("Failed to close result cache", zap.Error(err))
		}
	}
	if closer, ok := store.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			logger.Error("Failed to close key-value store", zap.Error(err))
		}
	}

	logger.Info("Shutdown complete")
	return nil
}
