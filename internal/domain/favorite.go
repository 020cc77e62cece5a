package domain

import "time"

// FavoriteRecord is the persisted form of a favorited item.
// Records are created on favorite and deleted on unfavorite; CreatedAt
// drives the newest-first ordering of the favorites list.
type FavoriteRecord struct {
	ID          string    `gorm:"type:text;primaryKey" json:"id"`
	URL         string    `gorm:"type:text;not null" json:"url"`
	MediaURL    string    `gorm:"type:text" json:"media_url,omitempty"`
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	Payload     []byte    `json:"-"`
	StorageKey  string    `gorm:"type:text" json:"storage_key,omitempty"`
	ContentType string    `gorm:"type:text" json:"content_type,omitempty"`
	CreatedAt   time.Time `gorm:"index:idx_favorites_created_at" json:"created_at"`
}

// TableName returns the database table name for FavoriteRecord.
func (FavoriteRecord) TableName() string {
	return "favorites"
}

// NewFavoriteRecord builds a record from an item. CreatedAt is left for
// the repository to fill.
func NewFavoriteRecord(item Item) *FavoriteRecord {
	return &FavoriteRecord{
		ID:       item.ID,
		URL:      item.URL,
		MediaURL: item.MediaURL,
		Width:    item.Dimensions.Width,
		Height:   item.Dimensions.Height,
		Payload:  item.Payload,
	}
}

// HasPayload reports whether the record carries a cached payload, either
// inline or in object storage.
func (r *FavoriteRecord) HasPayload() bool {
	return len(r.Payload) > 0 || r.StorageKey != ""
}

// ToItem reconstructs the item. Items read back from storage are always
// favorites.
func (r *FavoriteRecord) ToItem() Item {
	return Item{
		ID:       r.ID,
		URL:      r.URL,
		MediaURL: r.MediaURL,
		Dimensions: Dimensions{
			Width:  r.Width,
			Height: r.Height,
		},
		IsFavorite: true,
		Payload:    r.Payload,
	}
}
