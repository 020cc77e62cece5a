package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/timmy/gifsearch/internal/app"
	"github.com/timmy/gifsearch/internal/config"
	"github.com/timmy/gifsearch/internal/domain"
	"github.com/timmy/gifsearch/internal/logger"
	"github.com/timmy/gifsearch/internal/service"
)

type output struct {
	Term      string             `json:"term,omitempty"`
	State     *service.ViewState `json:"state,omitempty"`
	Favorites []domain.Item      `json:"favorites,omitempty"`
}

func main() {
	term := flag.String("term", "", "Search term (empty uses the configured default term)")
	pages := flag.Int("pages", 1, "Number of result pages to load")
	configPath := flag.String("config", "", "Path to config file")
	favorites := flag.Bool("favorites", false, "Print stored favorites instead of searching")
	timeout := flag.Duration("timeout", 30*time.Second, "Overall timeout")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	// Logs go to stderr so stdout stays valid JSON.
	appLogger := app.NewLogger(&cfg.Log, "gifsearch-cli")
	appLogger.Logger.SetOutput(os.Stderr)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	if *pages < 1 {
		logger.CtxWarn(ctx, "pages must be at least 1, got %d", *pages)
		*pages = 1
	}

	components, err := app.New(ctx, cfg, appLogger)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize application")
	}
	defer components.Close()

	var out output
	if *favorites {
		items, err := components.Favorites.ListAll(ctx)
		if err != nil {
			appLogger.WithError(err).Fatal("Failed to list favorites")
		}
		out.Favorites = items
	} else {
		state, err := search(ctx, components, *term, *pages)
		if err != nil {
			appLogger.WithError(err).Fatal("Search failed")
		}
		out.Term = state.Term
		out.State = &state
		logger.CtxInfo(ctx, "Loaded %d items for %q", len(state.Items), state.Term)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		appLogger.WithError(err).Fatal("Failed to write output")
	}
}

// search drives one engine through a term and up to pages result pages and
// returns the settled state.
func search(ctx context.Context, components *app.App, term string, pages int) (service.ViewState, error) {
	engineCfg := components.EngineConfig()
	engineCfg.Debounce = 0
	engineCfg.RunOnStart = false

	engine := service.NewEngine(ctx, components.Fetcher, components.Favorites, engineCfg)
	defer engine.Close()

	states, unsubscribe := engine.Subscribe()
	defer unsubscribe()

	// States up to this version predate the first event.
	seen := engine.State().Version

	first := service.AppearedInitial()
	if term != "" {
		first = service.TermChanged(term)
	}
	if err := engine.Send(first); err != nil {
		return service.ViewState{}, err
	}

	loaded := 0
	for {
		var s service.ViewState
		select {
		case <-ctx.Done():
			return engine.State(), ctx.Err()
		case next, ok := <-states:
			if !ok {
				return engine.State(), service.ErrEngineClosed
			}
			s = next
		}
		if s.Version <= seen {
			continue
		}
		seen = s.Version

		switch s.Kind {
		case service.StateIdle:
			return s, nil
		case service.StateError:
			if s.Info != nil {
				return s, errors.New(s.Info.Message)
			}
			return s, errors.New("search failed")
		case service.StateResults:
			if s.LoadingMore {
				continue
			}
			loaded++
			if loaded >= pages || !s.HasMore {
				return s, nil
			}
			if err := engine.Send(service.LoadMoreRequested()); err != nil {
				return s, err
			}
		}
	}
}
