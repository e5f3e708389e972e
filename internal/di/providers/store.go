package providers

import (
	"context"
	"fmt"

	"github.com/samber/do/v2"

	"github.com/cryptoshelf/shelfsync/internal/config"
	"github.com/cryptoshelf/shelfsync/internal/logger"
	"github.com/cryptoshelf/shelfsync/internal/store"
	"github.com/cryptoshelf/shelfsync/internal/store/backend"
)

// StoreHandle wraps the store with shutdown capability.
type StoreHandle struct {
	store.Store
}

// Shutdown implements do.Shutdownable.
func (h *StoreHandle) Shutdown() error {
	return h.Close()
}

// ProvideStore opens the persistent store shelfd serves.
func ProvideStore(i do.Injector) (*StoreHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	if cfg.Remote.Kind == config.RemoteHTTP {
		return nil, fmt.Errorf("shelfd cannot serve an http remote; use %q or %q", config.RemoteSQLite, config.RemotePostgres)
	}

	st, err := backend.Open(context.Background(), cfg.Remote, log.Component("store"))
	if err != nil {
		return nil, err
	}

	log.Info("Store opened", "kind", cfg.Remote.Kind)
	return &StoreHandle{Store: st}, nil
}
