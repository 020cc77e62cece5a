package service

import (
	"context"

	"github.com/timmy/gifsearch/internal/domain"
)

// ResultFetcher performs one search round trip and returns a page of items
// plus the continuation cursor. It does not retry.
type ResultFetcher interface {
	Fetch(ctx context.Context, term, cursor string) (*domain.Page, error)
}

// FavoriteStore is the durable favorite membership set.
type FavoriteStore interface {
	Add(ctx context.Context, item domain.Item) error
	Remove(ctx context.Context, id string) error
	Contains(ctx context.Context, id string) (bool, error)
	// ContainsAny returns the subset of ids that are favorites.
	ContainsAny(ctx context.Context, ids []string) (map[string]bool, error)
	// ListAll returns every favorite, newest first.
	ListAll(ctx context.Context) ([]domain.Item, error)
}
