package storage

import (
	"context"
	"io"
	"mime"
	"path"
	"strings"
)

// ObjectStorage stores favorite payloads outside the database.
type ObjectStorage interface {
	// EnsureBucket creates the bucket if it is missing
	EnsureBucket(ctx context.Context) error

	// Upload uploads an object to storage
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error

	// Download downloads an object from storage
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	// GetURL returns the public URL of an object, or "" when the bucket is
	// not served publicly
	GetURL(key string) string

	// Delete deletes an object from storage
	Delete(ctx context.Context, key string) error

	// Exists checks if an object exists
	Exists(ctx context.Context, key string) (bool, error)
}

// PayloadKey builds the object key for an item's payload, e.g.
// "favorites/12345.gif".
func PayloadKey(prefix, itemID, contentType string) string {
	ext := ".gif"
	if contentType != "" {
		if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
			switch mediaType {
			case "image/webp":
				ext = ".webp"
			case "video/mp4":
				ext = ".mp4"
			}
		}
	}
	name := strings.ReplaceAll(itemID, "/", "_") + ext
	if prefix == "" {
		return name
	}
	return path.Join(strings.Trim(prefix, "/"), name)
}
