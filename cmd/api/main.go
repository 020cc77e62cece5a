package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/timmy/gifsearch/internal/api"
	"github.com/timmy/gifsearch/internal/api/middleware"
	"github.com/timmy/gifsearch/internal/app"
	"github.com/timmy/gifsearch/internal/config"
	"github.com/timmy/gifsearch/internal/logger"
	"github.com/timmy/gifsearch/internal/metrics"
	"github.com/timmy/gifsearch/internal/service"
)

func main() {
	// Support CONFIG_PATH environment variable for production deployments
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	appLogger := app.NewLogger(&cfg.Log, "gifsearch-api")
	defer logger.Sync()

	metrics.Register(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	components, err := app.New(ctx, cfg, appLogger)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize application")
	}
	defer components.Close()

	sessions := service.NewSessionManager(
		components.Fetcher,
		components.Favorites,
		components.EngineConfig(),
		cfg.Search.SessionIdleTTL,
		appLogger,
	)
	reaperDone := make(chan struct{})
	go func() {
		defer close(reaperDone)
		sessions.Run(ctx, time.Minute)
	}()

	router := api.SetupRouter(&api.RouterConfig{
		Mode: cfg.Server.Mode,
		CORS: middleware.CORSConfig{
			AllowedOrigins:  cfg.Server.CORS.AllowedOrigins,
			AllowAllOrigins: cfg.Server.CORS.AllowAllOrigins,
		},
		Sessions:  sessions,
		Favorites: components.Favorites,
		DB:        components.DB,
		Logger:    appLogger,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		appLogger.WithFields(logger.Fields{
			"port": cfg.Server.Port,
			"mode": cfg.Server.Mode,
		}).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.WithError(err).Fatal("Failed to start server")
		}
	}()

	<-ctx.Done()
	appLogger.Info("Shutting down server...")

	// Closing sessions first ends open event streams.
	<-reaperDone

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Error("Server forced to shutdown")
	}

	appLogger.Info("Server exited")
}
