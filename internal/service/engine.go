package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/timmy/gifsearch/internal/domain"
	"github.com/timmy/gifsearch/internal/logger"
	"github.com/timmy/gifsearch/internal/metrics"
)

// ErrEngineClosed is returned by Send after Close.
var ErrEngineClosed = errors.New("search session closed")

const (
	eventBufferSize = 64
	// favoriteWriteTimeout bounds a detached favorite write.
	favoriteWriteTimeout = 30 * time.Second
)

// EngineConfig holds per-session behaviour.
type EngineConfig struct {
	DefaultTerm       string
	Debounce          time.Duration
	RunOnStart        bool
	RollbackOnFailure bool
}

// Engine is the search session state machine. A single goroutine owns all
// session state; fetches and favorite writes run off that goroutine and post
// their completions back to it.
type Engine struct {
	fetcher ResultFetcher
	store   FavoriteStore
	cfg     EngineConfig

	ctx    context.Context
	cancel context.CancelFunc
	events chan Event
	inbox  chan any
	done   chan struct{}

	mu          sync.RWMutex
	snapshot    ViewState
	subscribers map[chan ViewState]struct{}
	closed      bool

	// Owned by the loop goroutine.
	coordinator    *PaginationCoordinator
	kind           StateKind
	term           string
	items          []domain.Item
	lastRaw        string
	hasLastRaw     bool
	searched       bool
	generation     uint64
	debounceSeq    uint64
	debounceTimer  *time.Timer
	fetchCancel    context.CancelFunc
	loadingMore    bool
	pendingToggles map[string]int
	annotateSeq    uint64
	annotateLatest uint64
	version        uint64
}

type debounceFired struct {
	seq uint64
}

type fetchDone struct {
	generation   uint64
	plan         FetchPlan
	continuation bool
	items        []domain.Item
	nextCursor   string
	err          error
}

type toggleDone struct {
	generation uint64
	id         string
	favorite   bool
	err        error
}

type annotateDone struct {
	generation uint64
	seq        uint64
	ids        []string
	favorites  map[string]bool
	err        error
}

// NewEngine creates a session engine and starts its loop. The loop stops
// when ctx is cancelled or Close is called.
// Parameters:
//   - ctx: parent context; its logger fields are inherited.
//   - fetcher: page source.
//   - store: favorite membership.
//   - cfg: session behaviour.
//
// Returns:
//   - *Engine: running engine.
func NewEngine(ctx context.Context, fetcher ResultFetcher, store FavoriteStore, cfg EngineConfig) *Engine {
	ctx, cancel := context.WithCancel(ctx)
	e := &Engine{
		fetcher:        fetcher,
		store:          store,
		cfg:            cfg,
		ctx:            ctx,
		cancel:         cancel,
		events:         make(chan Event, eventBufferSize),
		inbox:          make(chan any, eventBufferSize),
		done:           make(chan struct{}),
		subscribers:    make(map[chan ViewState]struct{}),
		coordinator:    NewPaginationCoordinator(),
		kind:           StateIdle,
		pendingToggles: make(map[string]int),
	}
	if cfg.RunOnStart {
		e.kind = StateLoading
		e.term = strings.TrimSpace(cfg.DefaultTerm)
	}
	e.snapshot = e.buildSnapshot()

	go e.run()
	return e
}

// Send queues an input event. It returns ErrEngineClosed when the engine
// stopped before the event could be handled.
func (e *Engine) Send(ev Event) error {
	if e.ctx.Err() != nil {
		return ErrEngineClosed
	}
	select {
	case e.events <- ev:
	case <-e.ctx.Done():
		return ErrEngineClosed
	}
	// A close racing the send may leave the event queued but never read.
	if e.ctx.Err() != nil {
		return ErrEngineClosed
	}
	return nil
}

// State returns the latest snapshot.
func (e *Engine) State() ViewState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.snapshot
}

// Subscribe returns a channel that always holds the most recent snapshot;
// a slow reader skips intermediate states. The channel is primed with the
// current state and closed when the engine stops or cancel is called.
func (e *Engine) Subscribe() (<-chan ViewState, func()) {
	ch := make(chan ViewState, 1)

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	ch <- e.snapshot
	e.subscribers[ch] = struct{}{}
	e.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			if _, ok := e.subscribers[ch]; ok {
				delete(e.subscribers, ch)
				close(ch)
			}
		})
	}
}

// Done is closed once the loop has stopped.
func (e *Engine) Done() <-chan struct{} {
	return e.done
}

// Close stops the loop and waits for it to exit.
func (e *Engine) Close() {
	e.cancel()
	<-e.done
}

func (e *Engine) log() *logger.Logger {
	return logger.FromContext(e.ctx).WithField(logger.FieldComponent, "engine")
}

func (e *Engine) run() {
	defer e.shutdown()

	if e.cfg.RunOnStart {
		e.onAppeared()
	}

	for {
		select {
		case <-e.ctx.Done():
			return
		case ev := <-e.events:
			e.handleEvent(ev)
		case msg := <-e.inbox:
			e.handleCompletion(msg)
		}
	}
}

func (e *Engine) shutdown() {
	e.stopPending()

	e.mu.Lock()
	e.closed = true
	for ch := range e.subscribers {
		close(ch)
	}
	e.subscribers = nil
	e.mu.Unlock()

	close(e.done)
}

// post delivers a completion to the loop unless the engine has stopped.
func (e *Engine) post(msg any) {
	select {
	case e.inbox <- msg:
	case <-e.ctx.Done():
	}
}

func (e *Engine) handleEvent(ev Event) {
	metrics.SessionEventsTotal.WithLabelValues(string(ev.Type)).Inc()

	switch ev.Type {
	case EventTermChanged:
		e.onTermChanged(ev.Term)
	case EventLoadMore:
		e.onLoadMore()
	case EventItemToggled:
		e.onItemToggled(ev.ItemID)
	case EventAppearedInitial:
		e.onAppeared()
	default:
		e.log().WithField("type", ev.Type).Warn("Ignoring unknown event")
	}
}

func (e *Engine) handleCompletion(msg any) {
	switch m := msg.(type) {
	case debounceFired:
		if m.seq == e.debounceSeq && e.kind == StateLoading {
			e.debounceTimer = nil
			e.startFetch(false)
		}
	case fetchDone:
		e.onFetchDone(m)
	case toggleDone:
		e.onToggleDone(m)
	case annotateDone:
		e.onAnnotateDone(m)
	}
}

func (e *Engine) onTermChanged(raw string) {
	if e.hasLastRaw && raw == e.lastRaw {
		return
	}
	e.lastRaw, e.hasLastRaw = raw, true

	term := strings.TrimSpace(raw)
	if term == "" {
		e.abandon()
		e.term = ""
		e.kind = StateIdle
		e.emit()
		return
	}

	e.searched = true
	e.beginSearch(term, e.cfg.Debounce)
}

func (e *Engine) onAppeared() {
	if e.searched {
		return
	}
	e.searched = true

	term := strings.TrimSpace(e.cfg.DefaultTerm)
	if term == "" {
		e.kind = StateIdle
		e.emit()
		return
	}
	e.beginSearch(term, 0)
}

// beginSearch resets the session for term, emits Loading and schedules a
// fresh fetch after delay.
func (e *Engine) beginSearch(term string, delay time.Duration) {
	e.abandon()
	e.term = term
	e.kind = StateLoading
	e.emit()

	if delay <= 0 {
		e.startFetch(false)
		return
	}
	seq := e.debounceSeq
	e.debounceTimer = time.AfterFunc(delay, func() {
		e.post(debounceFired{seq: seq})
	})
}

// abandon drops all state tied to the current term. Completions from the
// old generation arrive stale and are discarded.
func (e *Engine) abandon() {
	e.stopPending()
	e.generation++
	e.items = nil
	e.loadingMore = false
	e.coordinator.Reset()
}

func (e *Engine) stopPending() {
	e.debounceSeq++
	if e.debounceTimer != nil {
		e.debounceTimer.Stop()
		e.debounceTimer = nil
	}
	if e.fetchCancel != nil {
		e.fetchCancel()
		e.fetchCancel = nil
	}
}

func (e *Engine) onLoadMore() {
	if e.kind != StateResults || e.loadingMore || !e.coordinator.HasMore(e.term) {
		return
	}
	e.loadingMore = true
	e.startFetch(true)
	e.emit()
}

func (e *Engine) startFetch(continuation bool) {
	plan := e.coordinator.PlanFetch(e.term)
	gen := e.generation

	if e.fetchCancel != nil {
		e.fetchCancel()
	}
	ctx, cancel := context.WithCancel(e.ctx)
	e.fetchCancel = cancel

	log := e.log().WithFields(logger.Fields{
		logger.FieldTerm: plan.Term,
		"cursor":         plan.Cursor,
		"continuation":   continuation,
	})
	log.Debug("Fetching page")

	go func() {
		defer cancel()
		done := fetchDone{generation: gen, plan: plan, continuation: continuation}

		page, err := e.fetcher.Fetch(ctx, plan.Term, plan.Cursor)
		if err != nil {
			done.err = err
			e.post(done)
			return
		}

		items, err := AnnotateFavorites(ctx, page.Items, e.store)
		if err != nil {
			log.WithError(err).Warn("Failed to annotate favorites, surfacing page unannotated")
		}
		done.items = items
		done.nextCursor = page.NextCursor
		e.post(done)
	}()
}

func (e *Engine) onFetchDone(m fetchDone) {
	if m.generation != e.generation || m.plan.Term != e.term {
		metrics.StaleResultsTotal.Inc()
		e.log().WithField(logger.FieldTerm, m.plan.Term).Debug("Discarding stale result")
		return
	}
	e.fetchCancel = nil
	if m.continuation {
		e.loadingMore = false
	}

	if m.err != nil {
		entry := e.log().WithFields(logger.Fields{
			logger.FieldTerm: m.plan.Term,
			"cursor":         m.plan.Cursor,
		}).WithError(m.err)
		if domain.IsFetchFailure(m.err) {
			entry.Warn("Search fetch failed")
		} else {
			entry.Error("Search fetch failed unexpectedly")
		}
		e.generation++
		e.items = nil
		e.coordinator.Reset()
		e.kind = StateError
		// Retyping the failed term is how the user retries.
		e.hasLastRaw = false
		e.emit()
		return
	}

	e.coordinator.RecordResult(m.plan.Term, m.nextCursor)
	e.items = Merge(e.items, m.items, m.continuation)
	e.kind = StateResults
	e.log().WithFields(logger.Fields{
		logger.FieldTerm:  m.plan.Term,
		logger.FieldCount: len(e.items),
	}).Debug("Results updated")
	e.emit()
}

func (e *Engine) onItemToggled(id string) {
	if e.kind != StateResults {
		return
	}
	idx := -1
	for i := range e.items {
		if e.items[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		e.log().WithField(logger.FieldItemID, id).Debug("Toggle for unknown item ignored")
		return
	}

	// Copy on write; emitted snapshots share nothing with e.items.
	e.items = domain.CloneItems(e.items)
	e.items[idx].IsFavorite = !e.items[idx].IsFavorite
	item := e.items[idx]
	e.pendingToggles[id]++
	e.emit()

	gen := e.generation
	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(e.ctx), favoriteWriteTimeout)
		defer cancel()

		var err error
		if item.IsFavorite {
			err = e.store.Add(ctx, item)
		} else {
			err = e.store.Remove(ctx, item.ID)
		}
		e.post(toggleDone{generation: gen, id: item.ID, favorite: item.IsFavorite, err: err})
	}()
}

func (e *Engine) onToggleDone(m toggleDone) {
	if n := e.pendingToggles[m.id] - 1; n > 0 {
		e.pendingToggles[m.id] = n
	} else {
		delete(e.pendingToggles, m.id)
	}

	if m.err != nil {
		e.log().WithField(logger.FieldItemID, m.id).WithError(m.err).Warn("Failed to persist favorite")
		if e.cfg.RollbackOnFailure && m.generation == e.generation {
			e.rollback(m.id, m.favorite)
		}
		return
	}

	if e.kind != StateResults || len(e.items) == 0 {
		return
	}
	e.annotateSeq++
	gen, seq := e.generation, e.annotateSeq
	ids := domain.IDs(e.items)
	go func() {
		favorites, err := e.store.ContainsAny(e.ctx, ids)
		e.post(annotateDone{generation: gen, seq: seq, ids: ids, favorites: favorites, err: err})
	}()
}

// rollback reverts an optimistic flag unless another toggle for the same id
// is still in flight.
func (e *Engine) rollback(id string, attempted bool) {
	if _, pending := e.pendingToggles[id]; pending || e.kind != StateResults {
		return
	}
	for i := range e.items {
		if e.items[i].ID == id && e.items[i].IsFavorite == attempted {
			e.items = domain.CloneItems(e.items)
			e.items[i].IsFavorite = !attempted
			e.emit()
			return
		}
	}
}

// onAnnotateDone applies a membership refresh. Answers older than one
// already applied are dropped, and only the ids that were queried are
// touched; items merged since then carry their own page annotation.
func (e *Engine) onAnnotateDone(m annotateDone) {
	if m.generation != e.generation || m.seq <= e.annotateLatest || e.kind != StateResults {
		metrics.StaleResultsTotal.Inc()
		return
	}
	if m.err != nil {
		e.log().WithError(m.err).Warn("Failed to refresh favorite flags")
		return
	}
	e.annotateLatest = m.seq
	items := domain.CloneItems(e.items)
	if applyFavorites(items, m.favorites, idSet(m.ids), e.pendingToggles) {
		e.items = items
		e.emit()
	}
}

func (e *Engine) buildSnapshot() ViewState {
	s := ViewState{
		Kind:    e.kind,
		Term:    e.term,
		Items:   []domain.Item{},
		Version: e.version,
	}
	switch e.kind {
	case StateIdle:
		info := IdleInfo
		s.Info = &info
	case StateError:
		info := ErrorInfo
		s.Info = &info
	case StateResults:
		s.Items = domain.CloneItems(e.items)
		s.HasMore = e.coordinator.HasMore(e.term)
		s.LoadingMore = e.loadingMore
	}
	return s
}

// emit publishes the current state to State and every subscriber.
func (e *Engine) emit() {
	e.version++
	s := e.buildSnapshot()

	e.mu.Lock()
	defer e.mu.Unlock()
	e.snapshot = s
	for ch := range e.subscribers {
		select {
		case <-ch:
		default:
		}
		ch <- s
	}
}
