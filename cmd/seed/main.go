package main

import (
	"context"
	"flag"
	"log"

	"office-realtime/internal/config"
	"office-realtime/internal/database"
	"office-realtime/internal/models"
	"office-realtime/internal/repositories"
	"office-realtime/internal/services"
	"office-realtime/internal/ws"
)

// Demo assignments for a secretary account in local environments.
var demoAssignments = []struct {
	class ws.EntityClass
	id    string
}{
	{ws.EntityPractice, "P1"},
	{ws.EntityPractice, "P2"},
	{ws.EntityClient, "C1"},
}

func main() {
	userID := flag.String("user", "2", "user id that receives the demo assignments")
	grantedBy := flag.String("granted-by", "1", "user id recorded as grantor")
	revoke := flag.Bool("revoke", false, "remove the demo assignments instead of granting them")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	logger := config.NewLogger(cfg.Log)

	if !cfg.Database.Enabled() {
		log.Fatal("DB_DRIVER must be set to seed the database")
	}

	logger.Info("Starting database seeding...")

	db, err := database.NewConnection(cfg.Database, logger)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatal("Migration failed:", err)
	}

	repo := repositories.NewAccessRepository(db)
	ctx := context.Background()
	for _, a := range demoAssignments {
		if *revoke {
			if err := repo.Revoke(ctx, *userID, string(a.class), a.id); err != nil {
				logger.Warn("Failed to revoke access", "userID", *userID, "class", a.class, "entityID", a.id, "error", err)
				continue
			}
			logger.Info("Revoked access", "userID", *userID, "class", a.class, "entityID", a.id)
			continue
		}
		assignment := &models.AccessAssignment{
			UserID:      *userID,
			EntityClass: string(a.class),
			EntityID:    a.id,
			GrantedBy:   *grantedBy,
		}
		if err := repo.Grant(ctx, assignment); err != nil {
			logger.Warn("Failed to grant access", "userID", *userID, "class", a.class, "entityID", a.id, "error", err)
			continue
		}
		logger.Info("Granted access", "userID", *userID, "class", a.class, "entityID", a.id)
	}

	// Cached decisions would otherwise outlive the change for ACCESS_CACHE_TTL.
	if cfg.Redis.Enabled() {
		redisClient, err := database.NewRedisConnection(cfg.Redis, logger)
		if err != nil {
			log.Fatal("Failed to connect to Redis:", err)
		}
		defer redisClient.Close()
		cache := services.NewRedisService(redisClient, cfg.Redis.PresenceTTL)
		if err := cache.InvalidateAccess(ctx, *userID); err != nil {
			logger.Warn("Failed to invalidate cached access", "userID", *userID, "error", err)
		}
	}

	assignments, err := repo.ListForUser(ctx, *userID)
	if err != nil {
		log.Fatal("Failed to list assignments:", err)
	}
	for _, a := range assignments {
		logger.Info("Assignment", "userID", a.UserID, "class", a.EntityClass, "entityID", a.EntityID, "grantedBy", a.GrantedBy)
	}

	logger.Info("Database seeding completed successfully!", "assignments", len(assignments))
}
