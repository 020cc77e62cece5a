package tenor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/gifsearch/internal/domain"
)

type countingFetcher struct {
	calls int
	err   error
}

func (f *countingFetcher) Fetch(_ context.Context, term, cursor string) (*domain.Page, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Page{
		Items:      []domain.Item{{ID: term + "-" + cursor}},
		NextCursor: cursor + "+",
	}, nil
}

func TestCachedFetcher_HitsCache(t *testing.T) {
	next := &countingFetcher{}
	f := NewCachedFetcher(next, time.Minute)
	ctx := context.Background()

	first, err := f.Fetch(ctx, "cats", "")
	require.NoError(t, err)
	second, err := f.Fetch(ctx, " Cats ", "")
	require.NoError(t, err)

	assert.Equal(t, 1, next.calls)
	assert.Equal(t, first.Items, second.Items)

	_, err = f.Fetch(ctx, "cats", "p2")
	require.NoError(t, err)
	assert.Equal(t, 2, next.calls)
}

func TestCachedFetcher_ReturnsCopies(t *testing.T) {
	f := NewCachedFetcher(&countingFetcher{}, time.Minute)
	ctx := context.Background()

	first, err := f.Fetch(ctx, "cats", "")
	require.NoError(t, err)
	first.Items[0].IsFavorite = true

	second, err := f.Fetch(ctx, "cats", "")
	require.NoError(t, err)
	assert.False(t, second.Items[0].IsFavorite)
}

func TestCachedFetcher_DoesNotCacheErrors(t *testing.T) {
	next := &countingFetcher{err: errors.New("boom")}
	f := NewCachedFetcher(next, time.Minute)

	_, err := f.Fetch(context.Background(), "cats", "")
	assert.Error(t, err)
	_, err = f.Fetch(context.Background(), "cats", "")
	assert.Error(t, err)
	assert.Equal(t, 2, next.calls)
}

func TestCachedFetcher_Disabled(t *testing.T) {
	next := &countingFetcher{}
	f := NewCachedFetcher(next, 0)

	_, _ = f.Fetch(context.Background(), "cats", "")
	_, _ = f.Fetch(context.Background(), "cats", "")
	assert.Equal(t, 2, next.calls)
}
