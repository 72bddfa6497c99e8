package main

import (
	"log"

	"office-realtime/internal/config"
	"office-realtime/internal/database"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	logger := config.NewLogger(cfg.Log)

	if !cfg.Database.Enabled() {
		log.Fatal("DB_DRIVER must be set to run migrations")
	}

	logger.Info("Starting database migration...", "driver", cfg.Database.Driver)

	db, err := database.NewConnection(cfg.Database, logger)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		log.Fatal("Failed to get database instance:", err)
	}
	defer sqlDB.Close()

	logger.Info("Running GORM auto-migration...")
	if err := database.Migrate(db); err != nil {
		log.Fatal("Migration failed:", err)
	}

	logger.Info("Database migration completed successfully!")
}
