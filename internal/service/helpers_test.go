package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"github.com/timmy/gifsearch/internal/domain"
)

// memStore is an in-memory FavoriteStore.
type memStore struct {
	mu          sync.Mutex
	ids         map[string]time.Time
	addErr      error
	addGate     chan struct{}
	removeErr   error
	containsErr error
	// containsGate holds back the answer of the next ContainsAny call.
	containsGate chan struct{}
	adds        []string
	removes     []string
	batches     int
}

func newMemStore() *memStore {
	return &memStore{ids: map[string]time.Time{}}
}

func (s *memStore) Add(_ context.Context, item domain.Item) error {
	if s.addGate != nil {
		<-s.addGate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.adds = append(s.adds, item.ID)
	if s.addErr != nil {
		return s.addErr
	}
	if _, ok := s.ids[item.ID]; !ok {
		s.ids[item.ID] = time.Now()
	}
	return nil
}

func (s *memStore) Remove(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removes = append(s.removes, id)
	if s.removeErr != nil {
		return s.removeErr
	}
	delete(s.ids, id)
	return nil
}

func (s *memStore) Contains(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ids[id]
	return ok, nil
}

func (s *memStore) ContainsAny(_ context.Context, ids []string) (map[string]bool, error) {
	s.mu.Lock()
	s.batches++
	gate := s.containsGate
	s.containsGate = nil
	if s.containsErr != nil {
		s.mu.Unlock()
		return nil, s.containsErr
	}
	set := make(map[string]bool)
	for _, id := range ids {
		if _, ok := s.ids[id]; ok {
			set[id] = true
		}
	}
	s.mu.Unlock()

	if gate != nil {
		<-gate
	}
	return set, nil
}

// holdNextContains makes the next ContainsAny call read membership and then
// wait until the returned channel is closed.
func (s *memStore) holdNextContains() chan struct{} {
	gate := make(chan struct{})
	s.mu.Lock()
	s.containsGate = gate
	s.mu.Unlock()
	return gate
}

func (s *memStore) ListAll(_ context.Context) ([]domain.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Item, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, domain.Item{ID: id, IsFavorite: true})
	}
	sort.Slice(out, func(i, j int) bool { return s.ids[out[i].ID].After(s.ids[out[j].ID]) })
	return out, nil
}

func (s *memStore) batchCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.batches
}

func (s *memStore) addCalls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.adds...)
}

func (s *memStore) setAddErr(err error) {
	s.mu.Lock()
	s.addErr = err
	s.mu.Unlock()
}

type fetchReply struct {
	page *domain.Page
	err  error
}

type fetchCall struct {
	term   string
	cursor string
	reply  chan fetchReply
}

// scriptedFetcher hands every Fetch to the test, which answers it.
type scriptedFetcher struct {
	calls chan fetchCall
}

func newScriptedFetcher() *scriptedFetcher {
	return &scriptedFetcher{calls: make(chan fetchCall, 32)}
}

func (f *scriptedFetcher) Fetch(ctx context.Context, term, cursor string) (*domain.Page, error) {
	call := fetchCall{term: term, cursor: cursor, reply: make(chan fetchReply, 1)}
	f.calls <- call
	select {
	case r := <-call.reply:
		return r.page, r.err
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", domain.ErrNetwork, ctx.Err())
	}
}

func (f *scriptedFetcher) next(t *testing.T) fetchCall {
	t.Helper()
	select {
	case call := <-f.calls:
		return call
	case <-time.After(2 * time.Second):
		t.Fatal("expected a fetch")
		return fetchCall{}
	}
}

func (f *scriptedFetcher) expectNone(t *testing.T, wait time.Duration) {
	t.Helper()
	select {
	case call := <-f.calls:
		t.Fatalf("unexpected fetch term=%q cursor=%q", call.term, call.cursor)
	case <-time.After(wait):
	}
}

func (c fetchCall) respond(page *domain.Page) {
	c.reply <- fetchReply{page: page}
}

func (c fetchCall) fail(err error) {
	c.reply <- fetchReply{err: err}
}

func page(next string, ids ...string) *domain.Page {
	return &domain.Page{Items: items(ids...), NextCursor: next}
}

func newTestEngine(t *testing.T, fetcher ResultFetcher, store FavoriteStore, cfg EngineConfig) *Engine {
	t.Helper()
	e := NewEngine(context.Background(), fetcher, store, cfg)
	t.Cleanup(e.Close)
	return e
}

func waitState(t *testing.T, e *Engine, cond func(ViewState) bool) ViewState {
	t.Helper()
	require.Eventually(t, func() bool { return cond(e.State()) }, 2*time.Second, 5*time.Millisecond,
		"last state: %+v", e.State())
	return e.State()
}

func isKind(kind StateKind) func(ViewState) bool {
	return func(s ViewState) bool { return s.Kind == kind }
}

func hasItems(ids ...string) func(ViewState) bool {
	return func(s ViewState) bool {
		if s.Kind != StateResults || len(s.Items) != len(ids) {
			return false
		}
		for i, id := range ids {
			if s.Items[i].ID != id {
				return false
			}
		}
		return true
	}
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}
