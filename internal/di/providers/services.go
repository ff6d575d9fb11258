package providers

import (
	"github.com/samber/do/v2"

	"github.com/librarycatalog/library-server/internal/auth"
	"github.com/librarycatalog/library-server/internal/config"
	"github.com/librarycatalog/library-server/internal/graph"
	"github.com/librarycatalog/library-server/internal/logger"
	"github.com/librarycatalog/library-server/internal/pubsub"
	"github.com/librarycatalog/library-server/internal/ratelimit"
	"github.com/librarycatalog/library-server/internal/service"
)

// ProvideCatalogService provides the author and book service.
func ProvideCatalogService(i do.Injector) (*service.CatalogService, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	bus := do.MustInvoke[*pubsub.Manager](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewCatalogService(storeHandle.Store, bus, log.Logger), nil
}

// ProvideAccountService provides user creation, login and token checks.
func ProvideAccountService(i do.Injector) (*service.AccountService, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	tokens := do.MustInvoke[*auth.TokenService](i)
	credential := do.MustInvoke[*auth.SharedCredential](i)
	limiter := do.MustInvoke[*ratelimit.KeyedRateLimiter](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewAccountService(storeHandle.Store, tokens, credential, limiter, log.Logger), nil
}

// ProvideSchema provides the executable GraphQL schema. Production turns
// introspection off.
func ProvideSchema(i do.Injector) (*graph.Schema, error) {
	cfg := do.MustInvoke[*config.Config](i)
	catalog := do.MustInvoke[*service.CatalogService](i)
	accounts := do.MustInvoke[*service.AccountService](i)
	bus := do.MustInvoke[*pubsub.Manager](i)
	log := do.MustInvoke[*logger.Logger](i)

	var opts []graph.Option
	if cfg.IsProduction() {
		opts = append(opts, graph.WithoutIntrospection())
	}
	return graph.NewSchema(graph.NewResolver(catalog, accounts, bus, log.Logger), opts...)
}
