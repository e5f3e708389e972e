// Package main seeds a shelf remote with the built-in catalogs and,
// optionally, demo collectors with randomized shelves and reactions.
//
// Usage:
//
//	SHELF_REMOTE=sqlite SHELF_SQLITE_PATH=./shelf.db go run ./cmd/seed
//	go run ./cmd/seed -demo 5   # also create five demo shelves
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand/v2"
	"time"

	"github.com/cryptoshelf/shelfsync/internal/config"
	"github.com/cryptoshelf/shelfsync/internal/domain"
	"github.com/cryptoshelf/shelfsync/internal/gateway"
	"github.com/cryptoshelf/shelfsync/internal/logger"
	"github.com/cryptoshelf/shelfsync/internal/session"
	"github.com/cryptoshelf/shelfsync/internal/store"
	"github.com/cryptoshelf/shelfsync/internal/store/backend"
)

var (
	demoUsers = flag.Int("demo", 0, "Number of demo collectors to create")
	reactions = flag.Float64("react", 0.6, "Chance that a demo collector reacts to another shelf")
)

func main() {
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logs := logger.New(logger.Config{
		Level:       logger.ParseLevel(cfg.Log.Level),
		Format:      cfg.Log.Format,
		Environment: cfg.App.Environment,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	st, err := backend.Open(ctx, cfg.Remote, logs.Component("store"))
	if err != nil {
		log.Fatalf("Failed to open %s remote: %v", cfg.Remote.Kind, err)
	}
	defer st.Close()

	fmt.Printf("Seeding %s remote\n", cfg.Remote.Kind)
	seedCatalogs(ctx, st, logs)

	if *demoUsers > 0 {
		seedDemo(ctx, cfg, st, logs)
	}

	fmt.Println("\nDone!")
}

func seedCatalogs(ctx context.Context, st store.Store, logs *logger.Logger) {
	gw := gateway.New(st, gateway.Options{Logger: logs.Component("gateway")})

	saved := 0
	for _, a := range domain.DefaultAccessories() {
		if _, err := gw.SaveAccessory(ctx, a); err != nil {
			log.Fatalf("Failed to save accessory %s: %v", a.ID, err)
		}
		saved++
	}
	fmt.Printf("  %d accessories\n", saved)

	saved = 0
	for _, t := range domain.DefaultThemes() {
		if _, err := gw.SaveTheme(ctx, t); err != nil {
			log.Fatalf("Failed to save theme %s: %v", t.ID, err)
		}
		saved++
	}
	fmt.Printf("  %d themes\n", saved)

	saved = 0
	for _, s := range domain.DefaultSkins() {
		if _, err := gw.SaveSkin(ctx, s); err != nil {
			log.Fatalf("Failed to save skin %s: %v", s.ID, err)
		}
		saved++
	}
	fmt.Printf("  %d skins\n", saved)
}

// seedDemo runs one session per demo collector so that every write goes
// through the same path a client uses.
func seedDemo(ctx context.Context, cfg *config.Config, st store.Store, logs *logger.Logger) {
	rng := rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0))

	var shelfIDs []string
	sessions := make([]*session.Session, 0, *demoUsers)
	defer func() {
		for _, s := range sessions {
			if err := s.Close(ctx); err != nil {
				log.Printf("Failed to close session: %v", err)
			}
		}
	}()

	for i := range *demoUsers {
		opts := session.OptionsFromConfig(cfg, logs.Component("session"))
		opts.Store = st
		opts.Rand = rng
		opts.Principal = &domain.Principal{
			ID:     fmt.Sprintf("demo-%d", i+1),
			Handle: fmt.Sprintf("demo%d", i+1),
			Role:   domain.RoleUser,
		}

		s, err := session.Open(ctx, opts)
		if err != nil {
			log.Fatalf("Failed to open session for %s: %v", opts.Principal.ID, err)
		}
		sessions = append(sessions, s)

		shelf, err := s.MyShelf(ctx)
		if err != nil {
			log.Printf("No shelf for %s: %v", opts.Principal.ID, err)
			continue
		}
		res, err := s.Commands().Randomize(ctx, shelf.ID).Wait(ctx)
		if err != nil || !res.OK() {
			log.Printf("Failed to randomize shelf for %s: %v %v", opts.Principal.ID, res.Status, res.Err)
			continue
		}
		shelfID := res.ID
		if shelfID == "" {
			shelfID = s.Commands().ResolveID(shelf.ID)
		}
		shelfIDs = append(shelfIDs, shelfID)
		fmt.Printf("  %s -> shelf %s\n", opts.Principal.Handle, shelfID)
	}

	reacted := 0
	for i, s := range sessions {
		for j, shelfID := range shelfIDs {
			if i == j || rng.Float64() >= *reactions {
				continue
			}
			kind := domain.ReactionTypes[rng.IntN(len(domain.ReactionTypes))]
			res, err := s.Commands().React(ctx, shelfID, kind).Wait(ctx)
			if err != nil || !res.OK() {
				log.Printf("Failed to react: %v %v", err, res.Err)
				continue
			}
			reacted++
		}
	}
	fmt.Printf("  %d reactions\n", reacted)
}
