// Package app wires configuration into the running components shared by
// the API server and the CLI.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/timmy/gifsearch/internal/config"
	"github.com/timmy/gifsearch/internal/logger"
	"github.com/timmy/gifsearch/internal/repository"
	"github.com/timmy/gifsearch/internal/service"
	"github.com/timmy/gifsearch/internal/storage"
	"github.com/timmy/gifsearch/internal/tenor"
)

// App holds the long-lived components built from a Config.
type App struct {
	Config    *config.Config
	Logger    *logger.Logger
	DB        *sql.DB
	Client    *tenor.Client
	Fetcher   service.ResultFetcher
	Favorites *service.FavoriteService
}

// NewLogger builds the process logger from the log section and installs it
// as the default.
func NewLogger(cfg *config.LogConfig, serviceName string) *logger.Logger {
	log := logger.New(&logger.Config{
		Level:       cfg.Level,
		Format:      cfg.Format,
		Output:      os.Stdout,
		ServiceName: serviceName,
		Environment: cfg.Environment,
		File:        cfg.File,
		FileOnly:    cfg.FileOnly,
		MaxSize:     cfg.MaxSize,
		MaxBackups:  cfg.MaxBackups,
		MaxAge:      cfg.MaxAge,
		Compress:    cfg.Compress,
	})
	logger.SetDefaultLogger(log)
	return log
}

// New connects the database, object storage and search provider.
// Parameters:
//   - ctx: context for startup I/O such as bucket checks.
//   - cfg: loaded configuration.
//   - log: process logger.
//
// Returns:
//   - *App: wired components; call Close when done.
//   - error: non-nil if any component fails to start.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	db, err := repository.InitDB(&cfg.Database, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB instance: %w", err)
	}

	var objectStorage storage.ObjectStorage
	if cfg.Storage.Enabled() {
		objectStorage, err = storage.NewStorage(&storage.Config{
			Type:      storage.StorageType(cfg.Storage.Type),
			Endpoint:  cfg.Storage.Endpoint,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			UseSSL:    cfg.Storage.UseSSL,
			Bucket:    cfg.Storage.Bucket,
			Region:    cfg.Storage.Region,
			PublicURL: cfg.Storage.PublicURL,
		})
		if err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
		if err := objectStorage.EnsureBucket(ctx); err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("failed to ensure storage bucket: %w", err)
		}
		log.WithFields(logger.Fields{
			"type":   cfg.Storage.Type,
			"bucket": cfg.Storage.Bucket,
		}).Info("Favorite payloads stored in object storage")
	}

	client := tenor.NewClient(&tenor.ClientConfig{
		BaseURL:   cfg.Tenor.BaseURL,
		Timeout:   cfg.Tenor.Timeout,
		RateLimit: cfg.Tenor.RateLimit,
		RateBurst: cfg.Tenor.RateBurst,
		Builder: tenor.NewQueryBuilder(tenor.BuilderConfig{
			DefaultTerm: cfg.Search.DefaultTerm,
			APIKey:      cfg.Tenor.APIKey,
			ClientKey:   cfg.Tenor.ClientKey,
			MediaFilter: cfg.Tenor.MediaFilter,
			Locale:      cfg.Tenor.Locale,
			Limit:       cfg.Tenor.Limit,
		}),
	})
	if cfg.Tenor.APIKey == "" {
		log.Warn("TENOR_API_KEY is not set, searches will be rejected by the provider")
	}

	favorites := service.NewFavoriteService(
		repository.NewFavoriteRepository(db),
		client,
		objectStorage,
		log,
		&service.FavoriteServiceConfig{StoragePrefix: cfg.Storage.Prefix},
	)

	return &App{
		Config:    cfg,
		Logger:    log,
		DB:        sqlDB,
		Client:    client,
		Fetcher:   tenor.NewCachedFetcher(client, cfg.Tenor.CacheTTL),
		Favorites: favorites,
	}, nil
}

// EngineConfig returns the per-session settings from the search section.
func (a *App) EngineConfig() service.EngineConfig {
	return service.EngineConfig{
		DefaultTerm:       a.Config.Search.DefaultTerm,
		Debounce:          a.Config.Search.Debounce,
		RunOnStart:        a.Config.Search.RunOnStart,
		RollbackOnFailure: a.Config.Search.RollbackOnFailure,
	}
}

// Close releases the database connection.
func (a *App) Close() error {
	return a.DB.Close()
}
