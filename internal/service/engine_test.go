package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/gifsearch/internal/domain"
	"github.com/timmy/gifsearch/internal/metrics"
)

func TestEngine_InitialState(t *testing.T) {
	e := newTestEngine(t, newScriptedFetcher(), newMemStore(), EngineConfig{DefaultTerm: "hello"})

	s := e.State()
	assert.Equal(t, StateIdle, s.Kind)
	require.NotNil(t, s.Info)
	assert.Equal(t, IdleInfo, *s.Info)
	assert.Empty(t, s.Items)
}

func TestEngine_HelloScenario(t *testing.T) {
	fetcher := newScriptedFetcher()
	e := newTestEngine(t, fetcher, newMemStore(), EngineConfig{})

	require.NoError(t, e.Send(TermChanged("hello")))
	call := fetcher.next(t)
	assert.Equal(t, "hello", call.term)
	assert.Empty(t, call.cursor)
	call.respond(page("c1", "1", "2"))

	s := waitState(t, e, hasItems("1", "2"))
	assert.True(t, s.HasMore)

	require.NoError(t, e.Send(LoadMoreRequested()))
	call = fetcher.next(t)
	assert.Equal(t, "hello", call.term)
	assert.Equal(t, "c1", call.cursor)
	call.respond(page("", "2", "3"))

	s = waitState(t, e, hasItems("1", "2", "3"))
	assert.False(t, s.HasMore)

	require.NoError(t, e.Send(LoadMoreRequested()))
	fetcher.expectNone(t, 50*time.Millisecond)
	assert.Equal(t, []string{"1", "2", "3"}, domain.IDs(e.State().Items))
}

func TestEngine_LoadMoreDoesNotPassThroughLoading(t *testing.T) {
	fetcher := newScriptedFetcher()
	e := newTestEngine(t, fetcher, newMemStore(), EngineConfig{})

	require.NoError(t, e.Send(TermChanged("cats")))
	fetcher.next(t).respond(page("p2", "1"))
	waitState(t, e, hasItems("1"))

	states, cancel := e.Subscribe()
	defer cancel()
	<-states

	require.NoError(t, e.Send(LoadMoreRequested()))
	call := fetcher.next(t)
	assert.Equal(t, "p2", call.cursor)

	// a second request while the first is in flight is ignored
	require.NoError(t, e.Send(LoadMoreRequested()))
	fetcher.expectNone(t, 30*time.Millisecond)

	call.respond(page("", "2"))
	waitState(t, e, hasItems("1", "2"))

	for {
		select {
		case s := <-states:
			assert.Equal(t, StateResults, s.Kind)
			if len(s.Items) == 2 {
				return
			}
		case <-time.After(time.Second):
			t.Fatal("no results state received")
		}
	}
}

func TestEngine_TermChangeResets(t *testing.T) {
	fetcher := newScriptedFetcher()
	e := newTestEngine(t, fetcher, newMemStore(), EngineConfig{})

	require.NoError(t, e.Send(TermChanged("cats")))
	fetcher.next(t).respond(page("p2", "1", "2"))
	waitState(t, e, hasItems("1", "2"))

	require.NoError(t, e.Send(TermChanged("dogs")))
	s := waitState(t, e, isKind(StateLoading))
	assert.Empty(t, s.Items)
	assert.Equal(t, "dogs", s.Term)

	call := fetcher.next(t)
	assert.Equal(t, "dogs", call.term)
	assert.Empty(t, call.cursor, "cursor of the previous term must not leak")
	call.respond(page("", "7"))
	waitState(t, e, hasItems("7"))
}

func TestEngine_StaleResultSuppressed(t *testing.T) {
	fetcher := newScriptedFetcher()
	e := newTestEngine(t, fetcher, newMemStore(), EngineConfig{})
	staleBefore := counterValue(t, metrics.StaleResultsTotal)

	require.NoError(t, e.Send(TermChanged("dogs")))
	dogs := fetcher.next(t)
	require.Equal(t, "dogs", dogs.term)

	require.NoError(t, e.Send(TermChanged("cats")))
	cats := fetcher.next(t)
	require.Equal(t, "cats", cats.term)

	cats.respond(page("", "c1"))
	waitState(t, e, hasItems("c1"))

	dogs.respond(page("", "d1", "d2"))
	require.Eventually(t, func() bool {
		return counterValue(t, metrics.StaleResultsTotal) > staleBefore
	}, 2*time.Second, 5*time.Millisecond)

	s := e.State()
	assert.Equal(t, "cats", s.Term)
	assert.Equal(t, []string{"c1"}, domain.IDs(s.Items))
}

func TestEngine_StaleResultIgnoredWhileLoading(t *testing.T) {
	fetcher := newScriptedFetcher()
	e := newTestEngine(t, fetcher, newMemStore(), EngineConfig{})

	require.NoError(t, e.Send(TermChanged("dogs")))
	dogs := fetcher.next(t)
	require.NoError(t, e.Send(TermChanged("cats")))
	cats := fetcher.next(t)

	dogs.respond(page("", "d1"))
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, StateLoading, e.State().Kind)

	cats.respond(page("", "c1"))
	waitState(t, e, hasItems("c1"))
}

func TestEngine_BlankTermGoesIdle(t *testing.T) {
	fetcher := newScriptedFetcher()
	e := newTestEngine(t, fetcher, newMemStore(), EngineConfig{Debounce: 50 * time.Millisecond})

	require.NoError(t, e.Send(TermChanged("cats")))
	waitState(t, e, isKind(StateLoading))
	require.NoError(t, e.Send(TermChanged("   ")))

	s := waitState(t, e, isKind(StateIdle))
	require.NotNil(t, s.Info)
	assert.Equal(t, "magnifyingglass", s.Info.Icon)
	assert.Equal(t, "Type text in search bar", s.Info.Message)

	// the debounced "cats" fetch was cancelled
	fetcher.expectNone(t, 100*time.Millisecond)
}

func TestEngine_Debounce(t *testing.T) {
	fetcher := newScriptedFetcher()
	e := newTestEngine(t, fetcher, newMemStore(), EngineConfig{Debounce: 40 * time.Millisecond})

	for _, term := range []string{"c", "ca", "cat"} {
		require.NoError(t, e.Send(TermChanged(term)))
	}

	call := fetcher.next(t)
	assert.Equal(t, "cat", call.term)
	fetcher.expectNone(t, 80*time.Millisecond)
}

func TestEngine_IdenticalTermIgnored(t *testing.T) {
	fetcher := newScriptedFetcher()
	e := newTestEngine(t, fetcher, newMemStore(), EngineConfig{})

	require.NoError(t, e.Send(TermChanged("cats")))
	fetcher.next(t).respond(page("", "1"))
	waitState(t, e, hasItems("1"))
	version := e.State().Version

	require.NoError(t, e.Send(TermChanged("cats")))
	fetcher.expectNone(t, 50*time.Millisecond)
	assert.Equal(t, version, e.State().Version)
}

func TestEngine_FetchFailure(t *testing.T) {
	fetcher := newScriptedFetcher()
	e := newTestEngine(t, fetcher, newMemStore(), EngineConfig{})

	require.NoError(t, e.Send(TermChanged("cats")))
	fetcher.next(t).fail(fmt.Errorf("%w: connection refused", domain.ErrNetwork))

	s := waitState(t, e, isKind(StateError))
	require.NotNil(t, s.Info)
	assert.Equal(t, ErrorInfo, *s.Info)
	assert.Equal(t, "xmark", s.Info.Icon)
	assert.Empty(t, s.Items)

	// no automatic retry; the same term can be submitted again
	fetcher.expectNone(t, 30*time.Millisecond)
	require.NoError(t, e.Send(TermChanged("cats")))
	fetcher.next(t).respond(page("", "1"))
	waitState(t, e, hasItems("1"))
}

func TestEngine_LoadMoreFailure(t *testing.T) {
	fetcher := newScriptedFetcher()
	e := newTestEngine(t, fetcher, newMemStore(), EngineConfig{})

	require.NoError(t, e.Send(TermChanged("cats")))
	fetcher.next(t).respond(page("p2", "1"))
	waitState(t, e, hasItems("1"))

	require.NoError(t, e.Send(LoadMoreRequested()))
	fetcher.next(t).fail(fmt.Errorf("%w: bad json", domain.ErrDecoding))
	waitState(t, e, isKind(StateError))

	require.NoError(t, e.Send(LoadMoreRequested()))
	fetcher.expectNone(t, 30*time.Millisecond)
}

func TestEngine_LoadMoreIgnoredOutsideResults(t *testing.T) {
	fetcher := newScriptedFetcher()
	e := newTestEngine(t, fetcher, newMemStore(), EngineConfig{})

	require.NoError(t, e.Send(LoadMoreRequested()))
	fetcher.expectNone(t, 30*time.Millisecond)

	require.NoError(t, e.Send(TermChanged("cats")))
	call := fetcher.next(t)
	require.NoError(t, e.Send(LoadMoreRequested()))
	fetcher.expectNone(t, 30*time.Millisecond)
	call.respond(page("", "1"))
	waitState(t, e, hasItems("1"))
}

func TestEngine_ResultsAreAnnotated(t *testing.T) {
	fetcher := newScriptedFetcher()
	store := newMemStore()
	require.NoError(t, store.Add(context.Background(), domain.Item{ID: "2"}))
	e := newTestEngine(t, fetcher, store, EngineConfig{})

	require.NoError(t, e.Send(TermChanged("cats")))
	fetcher.next(t).respond(page("", "1", "2"))

	s := waitState(t, e, hasItems("1", "2"))
	assert.False(t, s.Items[0].IsFavorite)
	assert.True(t, s.Items[1].IsFavorite)
}

func TestEngine_AnnotationFailureStillShowsResults(t *testing.T) {
	fetcher := newScriptedFetcher()
	store := newMemStore()
	store.containsErr = errors.New("db down")
	e := newTestEngine(t, fetcher, store, EngineConfig{})

	require.NoError(t, e.Send(TermChanged("cats")))
	fetcher.next(t).respond(page("", "1"))
	s := waitState(t, e, hasItems("1"))
	assert.False(t, s.Items[0].IsFavorite)
}

func TestEngine_ToggleRoundTrip(t *testing.T) {
	fetcher := newScriptedFetcher()
	store := newMemStore()
	e := newTestEngine(t, fetcher, store, EngineConfig{})

	require.NoError(t, e.Send(TermChanged("cats")))
	fetcher.next(t).respond(page("", "1", "2"))
	waitState(t, e, hasItems("1", "2"))

	require.NoError(t, e.Send(ItemToggled("1")))
	s := waitState(t, e, func(s ViewState) bool { return s.Kind == StateResults && s.Items[0].IsFavorite })
	assert.False(t, s.Items[1].IsFavorite)

	require.Eventually(t, func() bool {
		ok, _ := store.Contains(context.Background(), "1")
		return ok
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"1"}, store.addCalls())

	annotated, err := AnnotateFavorites(context.Background(), items("1"), store)
	require.NoError(t, err)
	assert.True(t, annotated[0].IsFavorite)

	require.NoError(t, e.Send(ItemToggled("1")))
	waitState(t, e, func(s ViewState) bool { return !s.Items[0].IsFavorite })
	require.Eventually(t, func() bool {
		ok, _ := store.Contains(context.Background(), "1")
		return !ok
	}, 2*time.Second, 5*time.Millisecond)
}

func TestEngine_ToggleReannotatesWholeSet(t *testing.T) {
	fetcher := newScriptedFetcher()
	store := newMemStore()
	e := newTestEngine(t, fetcher, store, EngineConfig{})

	require.NoError(t, e.Send(TermChanged("cats")))
	fetcher.next(t).respond(page("", "1", "2"))
	waitState(t, e, hasItems("1", "2"))

	// favorited elsewhere, e.g. by another session
	require.NoError(t, store.Add(context.Background(), domain.Item{ID: "2"}))

	require.NoError(t, e.Send(ItemToggled("1")))
	waitState(t, e, func(s ViewState) bool {
		return s.Kind == StateResults && s.Items[0].IsFavorite && s.Items[1].IsFavorite
	})
}

func TestEngine_ReannotationKeepsLaterPageFlags(t *testing.T) {
	fetcher := newScriptedFetcher()
	store := newMemStore()
	require.NoError(t, store.Add(context.Background(), domain.Item{ID: "3"}))
	e := newTestEngine(t, fetcher, store, EngineConfig{})

	require.NoError(t, e.Send(TermChanged("cats")))
	fetcher.next(t).respond(page("c1", "1", "2"))
	waitState(t, e, hasItems("1", "2"))
	batches := store.batchCalls()

	gate := store.holdNextContains()
	require.NoError(t, e.Send(ItemToggled("1")))
	require.Eventually(t, func() bool { return store.batchCalls() == batches+1 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, e.Send(LoadMoreRequested()))
	call := fetcher.next(t)
	assert.Equal(t, "c1", call.cursor)
	call.respond(page("", "3"))
	waitState(t, e, func(s ViewState) bool {
		return hasItems("1", "2", "3")(s) && s.Items[2].IsFavorite
	})

	// The refresh queried only 1 and 2; it must not clear 3.
	close(gate)
	time.Sleep(30 * time.Millisecond)
	s := e.State()
	require.Len(t, s.Items, 3)
	assert.True(t, s.Items[0].IsFavorite)
	assert.False(t, s.Items[1].IsFavorite)
	assert.True(t, s.Items[2].IsFavorite)
}

func TestEngine_OlderReannotationDropped(t *testing.T) {
	fetcher := newScriptedFetcher()
	store := newMemStore()
	e := newTestEngine(t, fetcher, store, EngineConfig{})

	require.NoError(t, e.Send(TermChanged("cats")))
	fetcher.next(t).respond(page("", "1"))
	waitState(t, e, hasItems("1"))
	batches := store.batchCalls()

	// First refresh reads {1} and is held back.
	gate := store.holdNextContains()
	require.NoError(t, e.Send(ItemToggled("1")))
	require.Eventually(t, func() bool { return store.batchCalls() == batches+1 }, 2*time.Second, 5*time.Millisecond)

	// Second toggle removes it; its refresh lands first.
	require.NoError(t, e.Send(ItemToggled("1")))
	require.Eventually(t, func() bool { return store.batchCalls() == batches+2 }, 2*time.Second, 5*time.Millisecond)
	waitState(t, e, func(s ViewState) bool { return s.Kind == StateResults && !s.Items[0].IsFavorite })
	time.Sleep(20 * time.Millisecond)

	close(gate)
	time.Sleep(30 * time.Millisecond)
	assert.False(t, e.State().Items[0].IsFavorite)

	contains, err := store.Contains(context.Background(), "1")
	require.NoError(t, err)
	assert.False(t, contains)
}

func TestEngine_ToggleFailureKeepsOptimisticFlag(t *testing.T) {
	fetcher := newScriptedFetcher()
	store := newMemStore()
	store.setAddErr(fmt.Errorf("%w: disk full", domain.ErrStorage))
	e := newTestEngine(t, fetcher, store, EngineConfig{})

	require.NoError(t, e.Send(TermChanged("cats")))
	fetcher.next(t).respond(page("", "1"))
	waitState(t, e, hasItems("1"))

	require.NoError(t, e.Send(ItemToggled("1")))
	waitState(t, e, func(s ViewState) bool { return s.Items[0].IsFavorite })
	require.Eventually(t, func() bool { return len(store.addCalls()) == 1 }, 2*time.Second, 5*time.Millisecond)

	time.Sleep(30 * time.Millisecond)
	s := e.State()
	assert.Equal(t, StateResults, s.Kind)
	assert.True(t, s.Items[0].IsFavorite)
}

func TestEngine_ToggleFailureRollback(t *testing.T) {
	fetcher := newScriptedFetcher()
	store := newMemStore()
	store.addErr = fmt.Errorf("%w: disk full", domain.ErrStorage)
	store.addGate = make(chan struct{})
	e := newTestEngine(t, fetcher, store, EngineConfig{RollbackOnFailure: true})

	require.NoError(t, e.Send(TermChanged("cats")))
	fetcher.next(t).respond(page("", "1"))
	waitState(t, e, hasItems("1"))

	require.NoError(t, e.Send(ItemToggled("1")))
	waitState(t, e, func(s ViewState) bool { return s.Items[0].IsFavorite })

	close(store.addGate)
	s := waitState(t, e, func(s ViewState) bool { return !s.Items[0].IsFavorite })
	assert.Equal(t, StateResults, s.Kind)
}

func TestEngine_ToggleIgnoredOutsideResults(t *testing.T) {
	store := newMemStore()
	e := newTestEngine(t, newScriptedFetcher(), store, EngineConfig{})

	require.NoError(t, e.Send(ItemToggled("1")))
	time.Sleep(30 * time.Millisecond)
	assert.Empty(t, store.addCalls())
	assert.Equal(t, StateIdle, e.State().Kind)
}

func TestEngine_AppearedInitial(t *testing.T) {
	fetcher := newScriptedFetcher()
	e := newTestEngine(t, fetcher, newMemStore(), EngineConfig{DefaultTerm: "hello", Debounce: time.Hour})

	require.NoError(t, e.Send(AppearedInitial()))
	call := fetcher.next(t)
	assert.Equal(t, "hello", call.term, "default search skips the debounce")
	call.respond(page("", "1"))
	waitState(t, e, hasItems("1"))

	require.NoError(t, e.Send(AppearedInitial()))
	fetcher.expectNone(t, 30*time.Millisecond)
}

func TestEngine_AppearedWithoutDefaultTerm(t *testing.T) {
	fetcher := newScriptedFetcher()
	e := newTestEngine(t, fetcher, newMemStore(), EngineConfig{})

	require.NoError(t, e.Send(AppearedInitial()))
	fetcher.expectNone(t, 30*time.Millisecond)
	assert.Equal(t, StateIdle, e.State().Kind)
}

func TestEngine_RunOnStart(t *testing.T) {
	fetcher := newScriptedFetcher()
	e := newTestEngine(t, fetcher, newMemStore(), EngineConfig{DefaultTerm: "hello", RunOnStart: true})

	assert.Equal(t, StateLoading, e.State().Kind)
	call := fetcher.next(t)
	assert.Equal(t, "hello", call.term)
	call.respond(page("", "1"))
	waitState(t, e, hasItems("1"))

	require.NoError(t, e.Send(AppearedInitial()))
	fetcher.expectNone(t, 30*time.Millisecond)
}

func TestEngine_Close(t *testing.T) {
	e := NewEngine(context.Background(), newScriptedFetcher(), newMemStore(), EngineConfig{})
	states, _ := e.Subscribe()
	<-states

	e.Close()
	_, open := <-states
	assert.False(t, open)
	assert.ErrorIs(t, e.Send(TermChanged("cats")), ErrEngineClosed)

	late, _ := e.Subscribe()
	_, open = <-late
	assert.False(t, open)
}

func TestEngine_SendRacingClose(t *testing.T) {
	e := NewEngine(context.Background(), newScriptedFetcher(), newMemStore(), EngineConfig{})

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				if err := e.Send(LoadMoreRequested()); err != nil {
					errs <- err
					return
				}
			}
		}()
	}

	time.Sleep(10 * time.Millisecond)
	e.Close()
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.ErrorIs(t, err, ErrEngineClosed)
	}

	// The event buffer has room again, but a closed engine accepts nothing.
	for i := 0; i < 2*eventBufferSize; i++ {
		require.ErrorIs(t, e.Send(TermChanged("cats")), ErrEngineClosed)
	}
}
