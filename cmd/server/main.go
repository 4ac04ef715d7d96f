package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/cors"

	"github.com/legalops/caseledger/internal/config"
	"github.com/legalops/caseledger/internal/db"
	"github.com/legalops/caseledger/internal/export"
	"github.com/legalops/caseledger/internal/ledger"
	"github.com/legalops/caseledger/internal/middleware"
	"github.com/legalops/caseledger/internal/repository"
)

func main() {
	// Create context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Load configuration
	cfg, err := config.Load(".")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Setup database connection
	conn, err := db.NewConnection(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer conn.Close()

	// Run migrations
	if err := db.RunMigrations(cfg.Database, "./migrations"); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Create repositories
	versionRepo := repository.NewVersionRepository(conn)
	exportJobRepo := repository.NewExportJobRepository(conn)

	// Create services
	ledgerService := ledger.NewService(versionRepo)
	exportService := export.NewService(versionRepo, exportJobRepo,
		export.WithExportDirectory(cfg.Export.Directory),
		export.WithJobTimeout(cfg.Export.JobTimeout),
	)

	// Setup CORS
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.HTTP.AllowedOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
	})

	wrap := func(h http.Handler) http.Handler {
		return corsHandler.Handler(middleware.LoggingMiddleware(middleware.ActorMiddleware(h)))
	}

	mux := http.NewServeMux()
	mux.Handle("/api/versions", wrap(ledger.NewHTTPHandler(ledgerService)))
	mux.Handle("/api/versions/", wrap(ledger.NewHTTPHandler(ledgerService)))
	mux.Handle("/api/exports", wrap(export.NewHTTPHandler(exportService)))
	mux.Handle("/api/exports/", wrap(export.NewHTTPHandler(exportService)))

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Starting audit ledger server on %s", cfg.HTTP.Addr)
		log.Printf("Version ledger endpoint available at http://localhost%s/api/versions", cfg.HTTP.Addr)
		log.Printf("Export endpoint available at http://localhost%s/api/exports", cfg.HTTP.Addr)

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
