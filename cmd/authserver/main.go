package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/auth-sso/backend/internal/config"
	delivery "github.com/auth-sso/backend/internal/delivery/http"
	"github.com/auth-sso/backend/internal/middleware"
	"github.com/auth-sso/backend/internal/repository/postgres"
	"github.com/auth-sso/backend/internal/token"
	"github.com/auth-sso/backend/internal/usecase"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("Auth service starting...")

	cfg := config.Load()
	log.Printf("Server configured on port %s", cfg.Server.Port)

	// Connect to PostgreSQL with retry
	var pool *pgxpool.Pool
	for attempt := 1; attempt <= 5; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		var err error
		pool, err = pgxpool.New(ctx, cfg.Database.URL)
		if err == nil {
			if pingErr := pool.Ping(ctx); pingErr == nil {
				cancel()
				log.Println("Connected to PostgreSQL")
				break
			} else {
				pool.Close()
				log.Printf("Attempt %d: Failed to ping database: %v", attempt, pingErr)
			}
		} else {
			log.Printf("Attempt %d: Failed to connect to database: %v", attempt, err)
		}
		cancel()
		if attempt == 5 {
			log.Fatalf("Could not connect to database after 5 attempts")
		}
		time.Sleep(time.Duration(attempt) * 2 * time.Second)
	}
	defer pool.Close()

	migrateCtx, migrateCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := postgres.RunMigrations(migrateCtx, cfg.Database.URL); err != nil {
		migrateCancel()
		log.Fatalf("Migrations failed: %v", err)
	}
	migrateCancel()
	log.Println("Migrations applied")

	// Repositories
	userRepo := postgres.NewUserRepository(pool)
	tokenRepo := postgres.NewRefreshTokenRepository(pool)
	eventRepo := postgres.NewLoginEventRepository(pool)

	// Token issuer shares its config with the gateway's local verifier.
	issuer := token.NewIssuer(token.Config{
		Secret:          cfg.Token.Secret,
		Issuer:          cfg.Token.Issuer,
		Audience:        cfg.Token.Audience,
		AccessTokenTTL:  cfg.Token.AccessTokenTTL,
		RefreshTokenTTL: cfg.Token.RefreshTokenTTL,
	})

	authUsecase := usecase.NewAuthUsecase(userRepo, tokenRepo, eventRepo, issuer, nil)

	handler := delivery.NewHandler(authUsecase)
	authMiddleware := middleware.NewAuthMiddleware(issuer)
	router := delivery.NewRouter(handler, authMiddleware, cfg.CORS.AllowedOrigins)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Printf("Auth service listening on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	fmt.Println()
	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped gracefully")
}
