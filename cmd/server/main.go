/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the fund claim adjudication server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env and parse command-line flags
  2. Configure structured logging
  3. Initialize SQLite store and seed fund configuration
  4. Build the claims and membership services
  5. Configure HTTP router
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (default: 8080)
  -db      SQLite database path (default: fund.db)
           Use ":memory:" for in-memory database
  -config  Fund configuration JSON (tiers, scales, limits);
           built-in defaults when omitted

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/fund.db"

  # Run with a custom fund configuration
  ./server -config="./config/fund.json"

ENVIRONMENT:
  LOG_LEVEL: debug, info, warn, error (default: info)
  Loaded from .env when present.

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/warp/fund-engine/api"
	"github.com/warp/fund-engine/claims"
	"github.com/warp/fund-engine/factory"
	"github.com/warp/fund-engine/membership"
	"github.com/warp/fund-engine/pkg/logging"
	"github.com/warp/fund-engine/store/sqlite"
)

func main() {
	// .env is optional; flags and environment still apply without it.
	_ = godotenv.Load()

	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "fund.db", "SQLite database path")
	configPath := flag.String("config", "", "fund configuration JSON (defaults built in)")
	flag.Parse()

	logging.Setup()

	store, err := sqlite.New(*dbPath)
	if err != nil {
		slog.Error("failed to initialize database", "error", err, "path", *dbPath)
		os.Exit(1)
	}
	defer store.Close()

	// Seed tiers, scales and limits. Seeding is an upsert, so restarting
	// against an existing database refreshes the configuration in place.
	configData := factory.DefaultConfigJSON()
	if *configPath != "" {
		configData, err = os.ReadFile(*configPath)
		if err != nil {
			slog.Error("failed to read fund configuration", "error", err, "path", *configPath)
			os.Exit(1)
		}
	}
	if err := factory.Seed(context.Background(), store, configData); err != nil {
		slog.Error("failed to seed fund configuration", "error", err)
		os.Exit(1)
	}

	claimSvc := claims.NewService(store, nil, nil)
	memberSvc := membership.NewService(store, nil)

	handler := api.NewHandler(claimSvc, memberSvc, store)
	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", fmt.Sprintf("http://localhost:%d", *port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		slog.Error("forced shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("server stopped")
}
