package service

import (
	"context"

	"github.com/timmy/gifsearch/internal/domain"
)

// Merge folds an incoming page into the existing result set.
// When sameContext is false the incoming page replaces existing. Otherwise
// the page is appended and later duplicates are dropped, so the first
// occurrence of every id keeps its position.
func Merge(existing, incoming []domain.Item, sameContext bool) []domain.Item {
	if !sameContext {
		existing = nil
	}

	merged := make([]domain.Item, 0, len(existing)+len(incoming))
	seen := make(map[string]struct{}, len(existing)+len(incoming))
	for _, batch := range [][]domain.Item{existing, incoming} {
		for _, item := range batch {
			if _, dup := seen[item.ID]; dup {
				continue
			}
			seen[item.ID] = struct{}{}
			merged = append(merged, item)
		}
	}
	return merged
}

// AnnotateFavorites sets IsFavorite on a copy of items from one batch
// membership query.
// Parameters:
//   - ctx: context for the store read.
//   - items: items to annotate; not modified.
//   - store: authoritative favorite membership.
//
// Returns:
//   - []domain.Item: annotated copy.
//   - error: store failure; items are then returned unannotated.
func AnnotateFavorites(ctx context.Context, items []domain.Item, store FavoriteStore) ([]domain.Item, error) {
	out := domain.CloneItems(items)
	if len(out) == 0 || store == nil {
		return out, nil
	}

	favorites, err := store.ContainsAny(ctx, domain.IDs(out))
	if err != nil {
		return out, err
	}
	applyFavorites(out, favorites, nil, nil)
	return out, nil
}

// applyFavorites writes membership into items in place. Only ids in queried
// are touched (nil means all of them) and ids in skip are left alone. It
// reports whether any flag changed.
func applyFavorites(items []domain.Item, favorites map[string]bool, queried map[string]struct{}, skip map[string]int) bool {
	changed := false
	for i := range items {
		if queried != nil {
			if _, ok := queried[items[i].ID]; !ok {
				continue
			}
		}
		if _, pending := skip[items[i].ID]; pending {
			continue
		}
		fav := favorites[items[i].ID]
		if items[i].IsFavorite != fav {
			items[i].IsFavorite = fav
			changed = true
		}
	}
	return changed
}

func idSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
