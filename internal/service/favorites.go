package service

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"

	"github.com/timmy/gifsearch/internal/domain"
	"github.com/timmy/gifsearch/internal/logger"
	"github.com/timmy/gifsearch/internal/metrics"
	"github.com/timmy/gifsearch/internal/repository"
	"github.com/timmy/gifsearch/internal/storage"
	_ "golang.org/x/image/webp"
)

// PayloadDownloader fetches the raw media of an item.
type PayloadDownloader interface {
	Download(ctx context.Context, mediaURL string) ([]byte, string, error)
}

// FavoriteServiceConfig holds configuration for favorite persistence.
type FavoriteServiceConfig struct {
	// StoragePrefix is the object key prefix used when object storage is set.
	StoragePrefix string
}

// FavoriteService implements FavoriteStore over the favorites table. When a
// downloader is set, favoriting caches the media payload either inline or in
// object storage.
type FavoriteService struct {
	repo       *repository.FavoriteRepository
	downloader PayloadDownloader
	storage    storage.ObjectStorage
	prefix     string
	logger     *logger.Logger
}

// NewFavoriteService creates a new favorite service.
// Parameters:
//   - repo: favorites repository.
//   - downloader: optional payload source; nil skips payload caching.
//   - objectStorage: optional payload store; nil keeps payloads inline.
//   - log: logger instance.
//   - cfg: service configuration.
//
// Returns:
//   - *FavoriteService: initialized service.
func NewFavoriteService(
	repo *repository.FavoriteRepository,
	downloader PayloadDownloader,
	objectStorage storage.ObjectStorage,
	log *logger.Logger,
	cfg *FavoriteServiceConfig,
) *FavoriteService {
	prefix := "favorites"
	if cfg != nil && cfg.StoragePrefix != "" {
		prefix = cfg.StoragePrefix
	}
	if log == nil {
		log = logger.GetDefault()
	}
	return &FavoriteService{
		repo:       repo,
		downloader: downloader,
		storage:    objectStorage,
		prefix:     prefix,
		logger:     log,
	}
}

// log returns the service logger carrying the request and session IDs found in ctx
func (s *FavoriteService) log(ctx context.Context) *logger.Logger {
	fields := logger.Fields{logger.FieldComponent: "favorites"}
	if id := logger.GetRequestID(ctx); id != "" {
		fields[logger.FieldRequestID] = id
	}
	if id := logger.GetSessionID(ctx); id != "" {
		fields[logger.FieldSessionID] = id
	}
	return s.logger.WithFields(fields)
}

// Add records item as a favorite. A payload download failure is logged and
// the favorite is stored without one.
func (s *FavoriteService) Add(ctx context.Context, item domain.Item) error {
	rec := domain.NewFavoriteRecord(item)
	rec.Payload = nil

	body, contentType := item.Payload, ""
	if len(body) == 0 {
		body, contentType = s.fetchPayload(ctx, item)
	}
	if len(body) > 0 {
		if !item.Dimensions.Known() {
			if cfg, _, err := image.DecodeConfig(bytes.NewReader(body)); err == nil {
				rec.Width, rec.Height = cfg.Width, cfg.Height
			}
		}
		rec.ContentType = contentType
		s.storePayload(ctx, rec, body)
	}

	if err := s.repo.Create(ctx, rec); err != nil {
		metrics.FavoriteWritesTotal.WithLabelValues("add", "error").Inc()
		if rec.StorageKey != "" {
			_ = s.storage.Delete(ctx, rec.StorageKey)
		}
		return err
	}
	metrics.FavoriteWritesTotal.WithLabelValues("add", "ok").Inc()

	s.log(ctx).WithFields(logger.Fields{
		logger.FieldItemID: item.ID,
		logger.FieldSize:   len(body),
	}).Info("Favorite added")
	return nil
}

func (s *FavoriteService) fetchPayload(ctx context.Context, item domain.Item) ([]byte, string) {
	if s.downloader == nil {
		return nil, ""
	}
	src := item.MediaURL
	if src == "" {
		src = item.URL
	}
	if src == "" {
		return nil, ""
	}

	body, contentType, err := s.downloader.Download(ctx, src)
	if err != nil {
		s.log(ctx).WithField(logger.FieldItemID, item.ID).WithError(err).Warn("Failed to download payload, storing favorite without it")
		return nil, ""
	}
	return body, contentType
}

// storePayload uploads body to object storage when configured and falls
// back to keeping it inline.
func (s *FavoriteService) storePayload(ctx context.Context, rec *domain.FavoriteRecord, body []byte) {
	if s.storage == nil {
		rec.Payload = body
		return
	}

	key := storage.PayloadKey(s.prefix, rec.ID, rec.ContentType)
	contentType := rec.ContentType
	if contentType == "" {
		contentType = "image/gif"
	}
	if err := s.storage.Upload(ctx, key, bytes.NewReader(body), int64(len(body)), contentType); err != nil {
		s.log(ctx).WithField(logger.FieldItemID, rec.ID).WithError(err).Warn("Failed to upload payload, keeping it inline")
		rec.Payload = body
		return
	}
	rec.StorageKey = key
}

// Remove deletes a favorite and its stored payload. Removing an unknown id
// is not an error.
func (s *FavoriteService) Remove(ctx context.Context, id string) error {
	removed, err := s.repo.Delete(ctx, id)
	if err != nil {
		metrics.FavoriteWritesTotal.WithLabelValues("remove", "error").Inc()
		return err
	}
	metrics.FavoriteWritesTotal.WithLabelValues("remove", "ok").Inc()

	if removed != nil && removed.StorageKey != "" && s.storage != nil {
		if err := s.storage.Delete(ctx, removed.StorageKey); err != nil {
			s.log(ctx).WithFields(logger.Fields{
				logger.FieldItemID: id,
				"key":              removed.StorageKey,
			}).WithError(err).Warn("Failed to delete payload object")
		}
	}

	s.log(ctx).WithField(logger.FieldItemID, id).Info("Favorite removed")
	return nil
}

// Contains reports whether id is a favorite.
func (s *FavoriteService) Contains(ctx context.Context, id string) (bool, error) {
	return s.repo.Exists(ctx, id)
}

// ContainsAny returns the favorited subset of ids.
func (s *FavoriteService) ContainsAny(ctx context.Context, ids []string) (map[string]bool, error) {
	return s.repo.ExistingIDs(ctx, ids)
}

// ListAll returns every favorite as an item, newest first. Payloads are not
// loaded; use Payload for that.
func (s *FavoriteService) ListAll(ctx context.Context) ([]domain.Item, error) {
	recs, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]domain.Item, len(recs))
	for i := range recs {
		items[i] = recs[i].ToItem()
	}
	return items, nil
}

// Payload returns the cached media of a favorite.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: favorite ID.
//
// Returns:
//   - []byte: payload bytes.
//   - string: content type, defaulting to image/gif.
//   - error: wraps domain.ErrNotFound if the favorite or its payload is missing.
func (s *FavoriteService) Payload(ctx context.Context, id string) ([]byte, string, error) {
	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, "", err
	}

	contentType := rec.ContentType
	if contentType == "" {
		contentType = "image/gif"
	}

	if !rec.HasPayload() || (len(rec.Payload) == 0 && s.storage == nil) {
		return nil, "", fmt.Errorf("payload for favorite %s: %w", id, domain.ErrNotFound)
	}
	if len(rec.Payload) > 0 {
		return rec.Payload, contentType, nil
	}

	rc, err := s.storage.Download(ctx, rec.StorageKey)
	if err != nil {
		return nil, "", err
	}
	defer rc.Close()

	body, err := io.ReadAll(rc)
	if err != nil {
		return nil, "", fmt.Errorf("%w: read payload %s: %v", domain.ErrStorage, id, err)
	}
	return body, contentType, nil
}

// PayloadURL returns the public object-storage URL of a favorite's payload,
// or "" when the payload is inline or the bucket is private.
func (s *FavoriteService) PayloadURL(ctx context.Context, id string) (string, error) {
	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	if rec.StorageKey == "" || s.storage == nil {
		return "", nil
	}
	return s.storage.GetURL(rec.StorageKey), nil
}
