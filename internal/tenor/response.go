package tenor

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/timmy/gifsearch/internal/domain"
)

// searchResponse is the Tenor v2 /search body.
type searchResponse struct {
	Results []tenorGIF `json:"results"`
	Next    string     `json:"next"`
	Error   *apiError  `json:"error,omitempty"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

type tenorGIF struct {
	ID           string                 `json:"id"`
	ItemURL      string                 `json:"itemurl"`
	MediaFormats map[string]mediaObject `json:"media_formats"`
}

type mediaObject struct {
	URL  string `json:"url"`
	Dims []int  `json:"dims"`
	Size int64  `json:"size"`
}

// decodeSearchResponse parses a search body into a page.
func decodeSearchResponse(body []byte, mediaFilter string) (*domain.Page, error) {
	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDecoding, err)
	}
	if resp.Results == nil {
		return nil, fmt.Errorf("%w: response has no results field", domain.ErrDecoding)
	}

	items := make([]domain.Item, 0, len(resp.Results))
	for _, gif := range resp.Results {
		item, err := gif.toDomain(mediaFilter)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	return &domain.Page{
		Items:      items,
		NextCursor: resp.Next,
	}, nil
}

func (g tenorGIF) toDomain(mediaFilter string) (domain.Item, error) {
	if g.ID == "" {
		return domain.Item{}, fmt.Errorf("%w: result without id", domain.ErrDecoding)
	}
	itemURL, err := gifItemURL(g.ItemURL)
	if err != nil {
		return domain.Item{}, fmt.Errorf("%w: item %s: %v", domain.ErrDecoding, g.ID, err)
	}

	item := domain.Item{
		ID:  g.ID,
		URL: itemURL,
	}
	if media, ok := g.MediaFormats[mediaFilter]; ok {
		item.MediaURL = media.URL
		if len(media.Dims) == 2 && media.Dims[0] >= 0 && media.Dims[1] >= 0 {
			item.Dimensions = domain.Dimensions{Width: media.Dims[0], Height: media.Dims[1]}
		}
	}
	return item, nil
}

// gifItemURL appends the .gif extension to the item page URL, which makes
// tenor.com serve the raw GIF.
func gifItemURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("itemurl %q is not absolute", raw)
	}
	if !strings.HasSuffix(u.Path, ".gif") {
		u.Path = strings.TrimSuffix(u.Path, "/") + ".gif"
	}
	return u.String(), nil
}

// decodeAPIError extracts the provider's error message, if any.
func decodeAPIError(body []byte) string {
	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil || resp.Error == nil {
		return ""
	}
	return resp.Error.Message
}
