package main

import (
	"context"   // Startup and shutdown deadlines
	"errors"    // Server close detection
	"net/http"  // HTTP server
	"os"        // Signals
	"os/signal" // Graceful shutdown
	"syscall"   // SIGTERM
	"time"      // Timeouts

	"credit_ledger/internal/api"        // Custom package for API handlers
	"credit_ledger/internal/app"        // Shared runtime wiring
	"credit_ledger/internal/chat"       // Chat-completion client
	"credit_ledger/internal/config"     // Custom package for configuration
	"credit_ledger/internal/generate"   // Metered generation
	"credit_ledger/internal/middleware" // Custom package for middleware

	"github.com/gin-gonic/gin"   // Gin web framework
	"github.com/sirupsen/logrus" // Logrus for structured logging
)

// Main function to set up and run the server
func main() {
	cfg, err := config.LoadConfig() // Load configuration
	if err != nil {
		logrus.Fatalf("invalid configuration: %v", err)
	}
	app.SetupLogging(cfg) // Setup logger

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Connect store, cache and Firebase
	startCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	rt, err := app.Open(startCtx, cfg)
	cancel()
	if err != nil {
		logrus.Fatalf("startup failed: %v", err)
	}
	defer rt.Close()
	l := rt.Ledger(cfg)

	deps := api.Deps{
		Config:  cfg,
		Ledger:  l,
		Cache:   rt.Cache,
		Limiter: middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
	}

	// Metered generation is enabled by an API key
	if cfg.ChatAPIKey != "" {
		client := chat.NewClient(cfg.ChatBaseURL, cfg.ChatAPIKey, 5*time.Minute)
		deps.Generator = generate.NewService(l, client, generate.Options{
			Model:      cfg.ChatModel,
			MaxTokens:  cfg.ChatMaxTokens,
			TokenPrice: cfg.ChatTokenPrice,
		})
	} else {
		logrus.Warn("CHAT_API_KEY not set, /generate is disabled")
	}

	// Firebase ID tokens identify users in firebase auth mode
	if cfg.AuthMode == config.AuthFirebase {
		authClient, err := rt.Firebase.Auth(ctx)
		if err != nil {
			logrus.Fatalf("failed to create Firebase auth client: %v", err)
		}
		deps.Verifier = authClient
	}

	stopCleanup := make(chan struct{})
	defer close(stopCleanup)
	deps.Limiter.StartCleanup(10*time.Minute, stopCleanup)

	// Set Mode to Release if in production
	if cfg.IsProd {
		gin.SetMode(gin.ReleaseMode)
	}
	r := api.NewRouter(deps)

	// Set trusted proxies for Gin
	if err := r.SetTrustedProxies([]string{"127.0.0.1"}); err != nil {
		logrus.Fatalf("failed to set trusted proxies: %v", err)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.AppPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logrus.WithFields(logrus.Fields{
			"port":    cfg.AppPort,
			"backend": cfg.StoreBackend,
			"auth":    cfg.AuthMode,
		}).Info("Server running")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatalf("server failed: %v", err)
		}
	}()

	<-ctx.Done()
	logrus.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.Errorf("shutdown error: %v", err)
	}
}
