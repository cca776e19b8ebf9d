package main

import (
	"context"
	"log"
	"time"

	"github.com/joho/godotenv"

	"justgov/internal/config"
	"justgov/internal/database"
	"justgov/internal/repository"
)

// Retention window for revoked rows. Revoked sessions stay around for a while
// as an audit trail of rotations and theft responses.
const keepRevoked = 30 * 24 * time.Hour

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using environment")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}

	sessions := repository.NewSessionRepository(db)
	deleted, err := sessions.DeleteExpired(context.Background(), keepRevoked)
	if err != nil {
		log.Fatalf("cleanup user_sessions failed: %v", err)
	}

	log.Printf("auth cleanup completed: user_sessions=%d", deleted)
}
