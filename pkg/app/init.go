package app

import (
	"context"
	"log"
	"log/slog"

	"go-batchd/pkg/config"
	"go-batchd/pkg/database"
	"go-batchd/pkg/logging"

	"github.com/joho/godotenv"
)

// AppContext holds the shared application context and dependencies
type AppContext struct {
	DB               *database.SQL
	Redis            *database.Redis
	TelemetryManager *logging.TelemetryManager
	ServiceName      string
	shutdownFuncs    []func(context.Context) error
}

// InitializeApp initializes common application dependencies
func InitializeApp(serviceName string) (*AppContext, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found or error loading it: %v", err)
	}

	ctx := context.Background()

	// Initialize telemetry
	telemetryManager := logging.NewTelemetryManager()
	if err := telemetryManager.Initialize(ctx); err != nil {
		log.Printf("Warning: Failed to initialize telemetry: %v", err)
		// Continue without telemetry rather than failing
	}

	// The relational store is the coordination point for all workers, so
	// a failed connection is fatal.
	db, err := database.NewSQL(ctx)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		return nil, err
	}

	if config.GetBoolEnv("DATABASE_AUTO_MIGRATE", true) {
		if err := database.RunMigrations(db); err != nil {
			slog.Error("Failed to run database migrations", "error", err)
			db.Close()
			return nil, err
		}
	}

	redis, err := database.NewRedis(ctx)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		// Continue without Redis - status caching degrades to direct reads
	}

	appCtx := &AppContext{
		DB:               db,
		Redis:            redis,
		TelemetryManager: telemetryManager,
		ServiceName:      serviceName,
	}

	// Register shutdown functions
	appCtx.shutdownFuncs = append(appCtx.shutdownFuncs, func(ctx context.Context) error {
		return db.Close()
	})
	if redis != nil {
		appCtx.shutdownFuncs = append(appCtx.shutdownFuncs, func(ctx context.Context) error {
			return redis.Close()
		})
	}
	if telemetryManager != nil {
		appCtx.shutdownFuncs = append(appCtx.shutdownFuncs, telemetryManager.Shutdown)
	}

	return appCtx, nil
}

// Shutdown gracefully shuts down all application dependencies
func (a *AppContext) Shutdown(ctx context.Context) error {
	slog.Info("Shutting down application", "service", a.ServiceName)

	for _, shutdown := range a.shutdownFuncs {
		if err := shutdown(ctx); err != nil {
			slog.Error("Error during shutdown", "error", err)
		}
	}

	slog.Info("Application shutdown completed", "service", a.ServiceName)
	return nil
}

// GetPort returns the port from environment or default
func GetPort(defaultPort string) string {
	return config.GetEnv("PORT", defaultPort)
}

// IsProduction returns true if running in production environment
func IsProduction() bool {
	env := config.GetEnv("ENVIRONMENT", "development")
	return env == "production"
}

// IsDevelopment returns true if running in development environment
func IsDevelopment() bool {
	return !IsProduction()
}
