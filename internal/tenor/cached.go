package tenor

import (
	"context"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/timmy/gifsearch/internal/domain"
	"github.com/timmy/gifsearch/internal/metrics"
)

// Fetcher is the page-fetching half of Client.
type Fetcher interface {
	Fetch(ctx context.Context, term, cursor string) (*domain.Page, error)
}

// CachedFetcher memoizes successful pages by (term, cursor) for a short TTL,
// so scrolling back into a recently searched term does not hit the provider.
type CachedFetcher struct {
	next  Fetcher
	cache *cache.Cache
}

// NewCachedFetcher wraps next with a page cache. A non-positive ttl returns
// a fetcher that never caches.
func NewCachedFetcher(next Fetcher, ttl time.Duration) *CachedFetcher {
	if ttl <= 0 {
		return &CachedFetcher{next: next}
	}
	return &CachedFetcher{
		next:  next,
		cache: cache.New(ttl, 2*ttl),
	}
}

// Fetch returns a cached page when present, otherwise delegates.
func (f *CachedFetcher) Fetch(ctx context.Context, term, cursor string) (*domain.Page, error) {
	if f.cache == nil {
		return f.next.Fetch(ctx, term, cursor)
	}

	key := cacheKey(term, cursor)
	if v, ok := f.cache.Get(key); ok {
		metrics.PageCacheTotal.WithLabelValues("hit").Inc()
		page := v.(*domain.Page)
		return &domain.Page{Items: domain.CloneItems(page.Items), NextCursor: page.NextCursor}, nil
	}
	metrics.PageCacheTotal.WithLabelValues("miss").Inc()

	page, err := f.next.Fetch(ctx, term, cursor)
	if err != nil {
		return nil, err
	}
	f.cache.SetDefault(key, &domain.Page{Items: domain.CloneItems(page.Items), NextCursor: page.NextCursor})
	return page, nil
}

func cacheKey(term, cursor string) string {
	return strings.ToLower(strings.TrimSpace(term)) + "\x00" + cursor
}
