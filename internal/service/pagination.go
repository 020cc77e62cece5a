package service

// FetchPlan describes the next request for a term.
type FetchPlan struct {
	Term   string
	Cursor string
}

// Continuation reports whether the plan resumes an existing result set.
func (p FetchPlan) Continuation() bool {
	return p.Cursor != ""
}

// PaginationCoordinator tracks the continuation cursor of the last searched
// term. It is not safe for concurrent use; the owning engine loop
// serializes access.
type PaginationCoordinator struct {
	lastTerm   string
	hasLast    bool
	nextCursor string
}

// NewPaginationCoordinator returns a coordinator with no search recorded.
func NewPaginationCoordinator() *PaginationCoordinator {
	return &PaginationCoordinator{}
}

// PlanFetch decides whether a fetch for term continues the current search
// or starts a fresh one. A fresh plan discards continuation state held for
// any other term.
func (c *PaginationCoordinator) PlanFetch(term string) FetchPlan {
	if c.hasLast && c.lastTerm == term && c.nextCursor != "" {
		return FetchPlan{Term: term, Cursor: c.nextCursor}
	}
	if c.lastTerm != term {
		c.nextCursor = ""
	}
	return FetchPlan{Term: term}
}

// RecordResult stores the cursor returned for term. An empty cursor marks
// the end of results.
func (c *PaginationCoordinator) RecordResult(term, cursor string) {
	c.lastTerm = term
	c.hasLast = true
	c.nextCursor = cursor
}

// HasMore reports whether a continuation page exists for term.
func (c *PaginationCoordinator) HasMore(term string) bool {
	return c.hasLast && c.lastTerm == term && c.nextCursor != ""
}

// Reset forgets the last search, so the next plan is always fresh.
func (c *PaginationCoordinator) Reset() {
	c.lastTerm = ""
	c.hasLast = false
	c.nextCursor = ""
}
