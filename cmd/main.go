/*
Package main is the entry point for the Text Relay server.

It is responsible for loading configuration, initializing the global logging system,
choosing the credential store, wiring the history log and broadcast bus into the relay server,
setting up the HTTP server, and gracefully handling operating system interrupt signals
(SIGINT, SIGTERM) to ensure a smooth server shutdown.
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"textrelay/internal/app/bus"
	"textrelay/internal/app/chat"
	"textrelay/internal/app/db"
	"textrelay/internal/app/history"
	"textrelay/internal/app/user"
	"textrelay/internal/configs"
	"textrelay/internal/handler"
	"textrelay/internal/pkg/logx"
)

func main() {
	// A missing .env file is fine, the environment may already be set.
	_ = godotenv.Load()

	// Load configuration from environment variables
	cfg, err := configs.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize global logger
	logx.InitGlobalLogger(cfg.IsDevelopment())
	logx.Logger().Info().
		Str("environment", cfg.Environment).
		Int("port", cfg.Port).
		Strs("allowed_origins", cfg.AllowedOrigins).
		Int("bus_capacity", cfg.BusCapacity).
		Int("history_capacity", cfg.HistoryCapacity).
		Dur("auth_timeout", cfg.AuthTimeout).
		Dur("idle_timeout", cfg.IdleTimeout).
		Bool("database", cfg.DatabaseDSN != "").
		Msg("Configuration loaded successfully")

	// Create a context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Choose the credential store
	var store user.Store
	if cfg.DatabaseDSN != "" {
		pool, err := db.NewPool(cfg.DatabaseDSN)
		if err != nil {
			logx.Fatal(err, "Failed to initialize database")
		}
		defer pool.Close()

		store = user.NewPostgresStore(pool)
		logx.Info("Using PostgreSQL credential store")
	} else {
		store = user.NewMemoryStore()
		logx.Info("Using in-memory credential store")
	}

	// Initialize the relay server
	relay := chat.NewServer(
		store,
		history.New(cfg.HistoryCapacity),
		bus.New(cfg.BusCapacity),
		chat.Options{AuthTimeout: cfg.AuthTimeout, IdleTimeout: cfg.IdleTimeout},
	)

	// Setup HTTP server and routes
	router, stopLimiters := handler.Router(&handler.AppDeps{Server: relay, Config: cfg})
	defer stopLimiters()

	serverAddr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:              serverAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logx.Info(fmt.Sprintf("Text Relay server starting on http://localhost%s", serverAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logx.Fatal(err, "Server failed to start")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server with a timeout of 5 seconds.
	<-ctx.Done()
	logx.Info("Received shutdown signal. Starting graceful shutdown...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	// Hijacked WebSocket connections are not tracked by http.Server, close them first.
	if err := relay.Shutdown(shutdownCtx); err != nil {
		logx.Error(err, "Relay sessions did not finish in time")
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		logx.Fatal(err, "Server forced to shutdown")
	}

	logx.Info("Server gracefully stopped.")
}
