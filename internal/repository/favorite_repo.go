package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/timmy/gifsearch/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FavoriteRepository persists favorite records.
type FavoriteRepository struct {
	db *gorm.DB
}

// NewFavoriteRepository creates a new FavoriteRepository.
func NewFavoriteRepository(db *gorm.DB) *FavoriteRepository {
	return &FavoriteRepository{db: db}
}

// Create inserts a favorite record. Inserting an id that is already
// present is a no-op, so favoriting twice keeps the original timestamp.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - rec: record to persist.
//
// Returns:
//   - error: wraps domain.ErrStorage if the insert fails.
func (r *FavoriteRepository) Create(ctx context.Context, rec *domain.FavoriteRecord) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoNothing: true,
	}).Create(rec).Error
	if err != nil {
		return fmt.Errorf("%w: create favorite %s: %v", domain.ErrStorage, rec.ID, err)
	}
	return nil
}

// GetByID retrieves a favorite including its inline payload.
// Returns an error wrapping domain.ErrNotFound when absent.
func (r *FavoriteRepository) GetByID(ctx context.Context, id string) (*domain.FavoriteRecord, error) {
	var rec domain.FavoriteRecord
	if err := r.db.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("favorite %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("%w: get favorite %s: %v", domain.ErrStorage, id, err)
	}
	return &rec, nil
}

// Delete removes a favorite and returns the removed record, or nil if
// nothing was stored under id.
func (r *FavoriteRepository) Delete(ctx context.Context, id string) (*domain.FavoriteRecord, error) {
	var removed *domain.FavoriteRecord
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec domain.FavoriteRecord
		if err := tx.Omit("payload").First(&rec, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		if err := tx.Delete(&domain.FavoriteRecord{}, "id = ?", id).Error; err != nil {
			return err
		}
		removed = &rec
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: delete favorite %s: %v", domain.ErrStorage, id, err)
	}
	return removed, nil
}

// Exists checks whether id is a favorite.
func (r *FavoriteRepository) Exists(ctx context.Context, id string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.FavoriteRecord{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, fmt.Errorf("%w: check favorite %s: %v", domain.ErrStorage, id, err)
	}
	return count > 0, nil
}

// ExistingIDs returns the subset of ids that are favorites, in one query.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - ids: candidate IDs.
//
// Returns:
//   - map[string]bool: set of favorited IDs (never nil).
//   - error: wraps domain.ErrStorage if the query fails.
func (r *FavoriteRepository) ExistingIDs(ctx context.Context, ids []string) (map[string]bool, error) {
	set := make(map[string]bool, len(ids))
	if len(ids) == 0 {
		return set, nil
	}
	var found []string
	if err := r.db.WithContext(ctx).Model(&domain.FavoriteRecord{}).
		Where("id IN ?", ids).
		Pluck("id", &found).Error; err != nil {
		return nil, fmt.Errorf("%w: lookup favorites: %v", domain.ErrStorage, err)
	}
	for _, id := range found {
		set[id] = true
	}
	return set, nil
}

// List returns all favorites, most recently created first. Inline payloads
// are not loaded.
func (r *FavoriteRepository) List(ctx context.Context) ([]domain.FavoriteRecord, error) {
	var recs []domain.FavoriteRecord
	if err := r.db.WithContext(ctx).
		Omit("payload").
		Order("created_at DESC").
		Order("id DESC").
		Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("%w: list favorites: %v", domain.ErrStorage, err)
	}
	return recs, nil
}
