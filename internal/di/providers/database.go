package providers

import (
	"github.com/samber/do/v2"

	"github.com/librarycatalog/library-server/internal/config"
	"github.com/librarycatalog/library-server/internal/logger"
	"github.com/librarycatalog/library-server/internal/pubsub"
	"github.com/librarycatalog/library-server/internal/store"
)

// StoreHandle wraps the store with shutdown capability.
type StoreHandle struct {
	*store.Store
}

// Shutdown implements do.Shutdownable.
func (h *StoreHandle) Shutdown() error {
	return h.Close()
}

// ProvideStore provides the document store.
func ProvideStore(i do.Injector) (*StoreHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	db, err := store.New(cfg.Store.DataPath, log.Logger)
	if err != nil {
		return nil, err
	}

	log.Info("Database initialized", "path", cfg.Store.DataPath)

	return &StoreHandle{Store: db}, nil
}

// ProvideEventBus provides the in-process subscription bus.
// The manager shuts itself down, closing every open subscription.
func ProvideEventBus(i do.Injector) (*pubsub.Manager, error) {
	log := do.MustInvoke[*logger.Logger](i)

	bus := pubsub.NewManager(log.Logger)
	log.Info("Event bus started")

	return bus, nil
}
