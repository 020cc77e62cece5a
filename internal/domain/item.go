package domain

// Dimensions holds the pixel size of a GIF. (0,0) means unknown.
type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Known reports whether both sides are set.
func (d Dimensions) Known() bool {
	return d.Width > 0 && d.Height > 0
}

// Item is a single search result.
// Identity is defined by ID alone; every other field may differ between
// two copies of the same logical item.
type Item struct {
	ID         string     `json:"id"`
	URL        string     `json:"url"`
	MediaURL   string     `json:"media_url,omitempty"`
	Dimensions Dimensions `json:"dimensions"`
	IsFavorite bool       `json:"is_favorite"`
	// Payload is only present for items materialized from local storage.
	Payload []byte `json:"-"`
}

// Page is one page returned by a result fetcher.
// An empty NextCursor means there are no further pages.
type Page struct {
	Items      []Item
	NextCursor string
}

// HasMore reports whether a continuation page exists.
func (p *Page) HasMore() bool {
	return p != nil && p.NextCursor != ""
}

// IDs returns the item IDs in order.
func IDs(items []Item) []string {
	ids := make([]string, len(items))
	for i, item := range items {
		ids[i] = item.ID
	}
	return ids
}

// CloneItems returns a copy of items that does not share the backing array.
func CloneItems(items []Item) []Item {
	if items == nil {
		return []Item{}
	}
	out := make([]Item, len(items))
	copy(out, items)
	return out
}
