package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"time"

	"go-batchd/pkg/database"

	"github.com/golang-migrate/migrate/v4"
	"github.com/joho/godotenv"
)

func main() {
	// Define command flags
	var (
		command = flag.String("command", "up", "Migration command: up, down, version, force")
		steps   = flag.Int("steps", 0, "Number of migrations to roll back (for down command)")
		target  = flag.Int("target", -1, "Target version (for force command)")
	)

	flag.Parse()

	// Load environment variables from .env file (optional)
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found or error loading it: %v", err)
	}

	// Initialize context
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	// Connect to the database (just for the migration run)
	db, err := database.NewSQL(ctx)
	if err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	defer db.Close()

	m, err := database.NewMigrator(db)
	if err != nil {
		log.Fatalf("❌ Failed to initialize migrator: %v", err)
	}

	// Execute command
	switch *command {
	case "up":
		fmt.Println("🚀 Running database migrations...")
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			log.Fatalf("❌ Migration failed: %v", err)
		}
		fmt.Println("✅ All migrations completed successfully")

	case "down":
		if *steps == 0 {
			*steps = 1 // Default to rolling back 1 migration
		}
		fmt.Printf("🔄 Rolling back %d migration(s)...\n", *steps)
		if err := m.Steps(-*steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			log.Fatalf("❌ Rollback failed: %v", err)
		}
		fmt.Println("✅ Rollback completed successfully")

	case "version":
		v, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			fmt.Println("📋 No migrations applied yet")
			return
		}
		if err != nil {
			log.Fatalf("❌ Failed to get migration version: %v", err)
		}
		fmt.Printf("📋 Current version: %d (dirty: %v)\n", v, dirty)

	case "force":
		// Recover from a dirty migration state by pinning the version.
		if *target < 0 {
			log.Fatal("❌ Target version is required for force command")
		}
		if err := m.Force(*target); err != nil {
			log.Fatalf("❌ Force failed: %v", err)
		}
		fmt.Printf("✅ Forced schema version to %d\n", *target)

	default:
		log.Fatalf("❌ Unknown command: %s", *command)
	}
}
