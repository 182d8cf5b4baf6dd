package cmd

import (
	"context"
	"fmt"
	"log"
	"time"

	"stockbet/config"
	"stockbet/database"
	"stockbet/events"
	"stockbet/repository"
	"stockbet/service"
)

// Run initializes and starts the application
func Run(ctx context.Context) error {
	log.Println("Starting stockbet...")

	// Load configuration
	cfg := config.Get()

	// Initialize database connection
	log.Println("Connecting to database...")
	db, err := database.NewConnection(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	log.Println("Database connection established successfully")

	// Initialize event bus
	eventBus := events.NewBus()

	// Initialize unit of work factory
	uowFactory := repository.NewUnitOfWorkFactory(db, eventBus)

	// Initialize services
	log.Println("Initializing services...")
	marketService := service.NewMarketService(uowFactory)
	settlementService := service.NewSettlementService(uowFactory, cfg)
	log.Println("Services initialized successfully")

	// Start the settlement worker
	worker := service.NewSettlementWorker(marketService, settlementService, cfg.SettleInterval)
	stopWorker := worker.Start(ctx)

	// Wait for context cancellation
	log.Printf("Settlement engine is running in %s mode...", cfg.Environment)
	<-ctx.Done()

	// Cleanup resources
	log.Println("Shutting down...")
	stopWorker()

	// Give cleanup operations time to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Close database connection
	log.Println("Closing database connection...")
	db.Close()

	select {
	case <-shutdownCtx.Done():
		log.Println("Shutdown timeout exceeded")
	case <-time.After(1 * time.Second):
		log.Println("Shutdown completed")
	}

	return nil
}
