package main

import (
	"context"
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"justgov/internal/cache"
	"justgov/internal/config"
	"justgov/internal/database"
	"justgov/internal/domain"
	"justgov/internal/middleware"
	"justgov/internal/modules/auth"
	"justgov/internal/pkg/hasher"
	jwtsvc "justgov/internal/pkg/jwt"
	"justgov/internal/ratelimit"
	"justgov/internal/repository"
)

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
	if err := db.AutoMigrate(&domain.User{}, &domain.Session{}); err != nil {
		log.Fatalf("migrate failed: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		// Redis only backs the grace window and the rate limiter; both
		// degrade without it, so we warn instead of failing startup.
		log.Printf("redis unavailable at %s: %v", cfg.RedisAddr, err)
	}
	cancel()

	userRepo := repository.NewUserRepository(db)
	sessionRepo := repository.NewSessionRepository(db)

	j := jwtsvc.New(cfg.JWTSecret, cfg.JWTAccessTTL)
	h := hasher.New(cfg.RefreshTokenPepper)
	replay := cache.New(rdb)
	limiter := ratelimit.New(rdb)

	authService := auth.NewService(userRepo, sessionRepo, j, h, replay, limiter, cfg)
	authHandler := auth.NewHandler(authService, limiter, cfg)

	r := gin.Default()
	r.Use(middleware.CORS())
	r.Use(middleware.ErrorLogger())

	v1 := r.Group("/api/v1")
	{
		// public
		authHandler.RegisterPublicRoutes(v1)

		// protected
		protected := v1.Group("/")
		protected.Use(middleware.JWTAuth(j))
		{
			authHandler.RegisterProtectedRoutes(protected)
		}
	}

	if err := r.Run(":8080"); err != nil {
		log.Fatal(err)
	}
}
