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

	"github.com/auth-sso/backend/internal/config"
	"github.com/auth-sso/backend/internal/gateway"
	"github.com/auth-sso/backend/internal/token"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("Gateway starting...")

	cfg := config.Load()

	// Same signing config as the auth service; tokens we can verify here
	// never leave the process.
	issuer := token.NewIssuer(token.Config{
		Secret:          cfg.Token.Secret,
		Issuer:          cfg.Token.Issuer,
		Audience:        cfg.Token.Audience,
		AccessTokenTTL:  cfg.Token.AccessTokenTTL,
		RefreshTokenTTL: cfg.Token.RefreshTokenTTL,
	})

	client := gateway.NewValidationClient(cfg.Gateway.AuthBaseURL, cfg.Gateway.ValidateTimeout)
	verifier := gateway.NewVerifier(issuer, client, cfg.Gateway.FailOpen)

	if cfg.Gateway.FailOpen {
		log.Println("Verification policy: fail-open (unverified requests are forwarded without identity)")
	} else {
		log.Println("Verification policy: fail-closed")
	}
	for _, route := range cfg.Gateway.Routes {
		log.Printf("Route %s -> %s", route.Prefix, route.Target)
	}

	router, err := gateway.NewRouter(verifier, cfg.Gateway.Routes)
	if err != nil {
		log.Fatalf("Invalid route table: %v", err)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Gateway.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Printf("Gateway listening on port %s", cfg.Gateway.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	fmt.Println()
	log.Println("Shutting down gateway...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Gateway stopped gracefully")
}
