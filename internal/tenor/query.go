package tenor

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/timmy/gifsearch/internal/domain"
)

// BuilderConfig holds the fixed parts of every search query.
type BuilderConfig struct {
	DefaultTerm string
	APIKey      string
	ClientKey   string
	MediaFilter string
	Locale      string
	Limit       int
}

// QueryBuilder turns a search term and cursor into a Query.
// It is safe for concurrent use; it holds no mutable state.
type QueryBuilder struct {
	cfg BuilderConfig
}

// NewQueryBuilder creates a QueryBuilder, filling in the media filter when unset.
func NewQueryBuilder(cfg BuilderConfig) *QueryBuilder {
	if cfg.MediaFilter == "" {
		cfg.MediaFilter = "gif"
	}
	cfg.DefaultTerm = strings.TrimSpace(cfg.DefaultTerm)
	return &QueryBuilder{cfg: cfg}
}

// Query is an immutable description of one search request.
type Query struct {
	Term        string
	Pos         string
	MediaFilter string
	APIKey      string
	ClientKey   string
	Locale      string
	Limit       int
}

// Build returns the query for term at cursor. An empty cursor asks for the
// first page.
// Parameters:
//   - term: raw search term; trimmed, empty falls back to the default term.
//   - cursor: continuation token from the previous page, or empty.
//
// Returns:
//   - Query: request descriptor.
//   - error: domain.ErrNoResults when the term is empty and no default exists.
func (b *QueryBuilder) Build(term, cursor string) (Query, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		term = b.cfg.DefaultTerm
	}
	if term == "" {
		return Query{}, fmt.Errorf("%w: empty term and no default configured", domain.ErrNoResults)
	}

	return Query{
		Term:        term,
		Pos:         cursor,
		MediaFilter: b.cfg.MediaFilter,
		APIKey:      b.cfg.APIKey,
		ClientKey:   b.cfg.ClientKey,
		Locale:      b.cfg.Locale,
		Limit:       b.cfg.Limit,
	}, nil
}

// Values renders the query as Tenor v2 search parameters.
func (q Query) Values() url.Values {
	v := url.Values{}
	v.Set("q", q.Term)
	v.Set("key", q.APIKey)
	v.Set("media_filter", q.MediaFilter)
	if q.Pos != "" {
		v.Set("pos", q.Pos)
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.ClientKey != "" {
		v.Set("client_key", q.ClientKey)
	}
	if q.Locale != "" {
		v.Set("locale", q.Locale)
	}
	return v
}
