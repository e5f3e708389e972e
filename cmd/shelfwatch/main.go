// Package main runs a headless sync session against a shelf remote and
// prints the community rankings whenever they change.
//
// Usage:
//
//	SHELF_REMOTE=http SHELF_REMOTE_URL=http://localhost:8420 go run ./cmd/shelfwatch
//	go run ./cmd/shelfwatch -top 5 -filter new
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cryptoshelf/shelfsync/internal/cache"
	"github.com/cryptoshelf/shelfsync/internal/config"
	"github.com/cryptoshelf/shelfsync/internal/localstate"
	"github.com/cryptoshelf/shelfsync/internal/logger"
	"github.com/cryptoshelf/shelfsync/internal/session"
	"github.com/cryptoshelf/shelfsync/internal/store/backend"
	"github.com/cryptoshelf/shelfsync/internal/telemetry"
	"github.com/cryptoshelf/shelfsync/internal/views"
)

var (
	top    = flag.Int("top", 10, "Number of ranked shelves to print")
	filter = flag.String("filter", "top", "Explore filter to print instead of rankings: top, new or featured")
)

func main() {
	flag.Parse()

	explore, err := views.ParseFilter(*filter)
	if err != nil {
		log.Fatal(err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logs := logger.New(logger.Config{
		Writer:      os.Stderr,
		Level:       logger.ParseLevel(cfg.Log.Level),
		Format:      cfg.Log.Format,
		Environment: cfg.App.Environment,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		log.Fatalf("Failed to set up tracing: %v", err)
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	st, err := backend.Open(ctx, cfg.Remote, logs.Component("store"))
	if err != nil {
		log.Fatalf("Failed to open %s remote: %v", cfg.Remote.Kind, err)
	}
	defer st.Close()

	opts := session.OptionsFromConfig(cfg, logs.Component("session"))
	opts.Store = st
	if cfg.Local.StatePath != "" {
		local, err := localstate.Open(cfg.Local.StatePath, logs.Component("localstate"))
		if err != nil {
			log.Fatalf("Failed to open local state: %v", err)
		}
		defer local.Close()
		opts.Local = local
	}

	s, err := session.Open(ctx, opts)
	if err != nil {
		log.Fatalf("Failed to open session: %v", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := s.Close(closeCtx); err != nil {
			logs.Warn("session close", "error", err)
		}
	}()

	show := func() {
		if explore != views.FilterTop {
			printExplore(s, explore)
			return
		}
		printRankings(s)
	}
	show()

	for name := range s.Watch(ctx) {
		if name == cache.NameShelves {
			show()
		}
	}
}

func printRankings(s *session.Session) {
	fmt.Printf("\n%s  live=%t\n", time.Now().Format(time.TimeOnly), s.Live())
	for _, r := range views.Top(s.Rankings(), *top) {
		fmt.Printf("%3d. %-20s %4d  %v\n", r.Rank, ownerLabel(r.Shelf.Owner.Handle, r.Shelf.OwnerID), r.Shelf.TotalReactions, r.Shelf.Reactions)
	}
}

func printExplore(s *session.Session, f views.Filter) {
	fmt.Printf("\n%s  %s  live=%t\n", time.Now().Format(time.TimeOnly), f, s.Live())
	shelves := s.Explore(f)
	if *top >= 0 && len(shelves) > *top {
		shelves = shelves[:*top]
	}
	for _, sh := range shelves {
		fmt.Printf("  %-20s %4d  %s\n", ownerLabel(sh.Owner.Handle, sh.OwnerID), sh.TotalReactions, sh.CreatedAt.Format(time.DateOnly))
	}
}

func ownerLabel(handle, ownerID string) string {
	if handle != "" {
		return "@" + handle
	}
	return ownerID
}
