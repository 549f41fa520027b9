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

	"github.com/common-nighthawk/go-figure"
	"github.com/dom/dataroom/internal/api"
	"github.com/dom/dataroom/internal/config"
	"github.com/dom/dataroom/internal/events"
	"github.com/dom/dataroom/internal/logging"
	"github.com/dom/dataroom/internal/repository/database"
	"github.com/dom/dataroom/internal/service"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gorm.io/gorm/logger"
)

const (
	shutdownTimeout = 30 * time.Second
	// Partials older than this cannot belong to a running import.
	stalePartialAge = time.Hour
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context())
		},
	}
}

func serve(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logging.New(cfg.LogLevel, cfg.LogFormat)
	if cfg.IsDevelopment() {
		figure.NewFigure("dataroom", "cybermedium", true).Print()
		fmt.Println()
	}

	// Initialize database
	db, err := database.NewConnection(cfg.DatabaseURL, gormLogLevel(cfg))
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	// Initialize repositories
	repos := database.NewRepositories(db)

	// Initialize events hub
	hub := events.NewHub(log.WithField("component", "events"))
	go hub.Run()
	defer hub.Stop()

	// Initialize services
	infra, err := service.NewInfrastructure(ctx, cfg, hub, log)
	if err != nil {
		return err
	}
	services := service.NewServices(repos, infra, cfg, log)

	if _, err := infra.Store.SweepPartials(stalePartialAge); err != nil {
		log.WithError(err).Warn("Failed to sweep partial files")
	}
	if _, err := services.Tokens.PurgeExpired(ctx); err != nil {
		log.WithError(err).Warn("Failed to purge expired sessions")
	}

	// Initialize router
	router := api.NewRouter(services, hub, cfg, log)

	srv := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Imports and downloads stream for as long as a transfer may take.
		WriteTimeout: cfg.TransferTimeout + time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithFields(logrus.Fields{
			"port":        cfg.Port,
			"environment": cfg.Environment,
			"upload_dir":  infra.Store.Root(),
		}).Info("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-errCh:
		return fmt.Errorf("failed to start server: %w", err)
	case <-quit:
	}

	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info("Server stopped")
	return nil
}

func gormLogLevel(cfg *config.Config) logger.LogLevel {
	if cfg.IsDevelopment() {
		return logger.Info
	}
	return logger.Warn
}
