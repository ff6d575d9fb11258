// Package di provides dependency injection configuration for the library server.
package di

import (
	"github.com/samber/do/v2"

	"github.com/librarycatalog/library-server/internal/auth"
	"github.com/librarycatalog/library-server/internal/config"
	"github.com/librarycatalog/library-server/internal/di/providers"
	"github.com/librarycatalog/library-server/internal/graph"
	"github.com/librarycatalog/library-server/internal/logger"
	"github.com/librarycatalog/library-server/internal/pubsub"
	"github.com/librarycatalog/library-server/internal/ratelimit"
	"github.com/librarycatalog/library-server/internal/service"
)

// NewContainer creates and configures the DI container with all providers.
// args are the command-line arguments, without the program name.
func NewContainer(args []string) *do.RootScope {
	injector := do.New()

	// Core infrastructure
	do.ProvideValue(injector, providers.Args(args))
	do.Provide(injector, providers.ProvideConfig)
	do.Provide(injector, providers.ProvideLogger)

	// Storage and events
	do.Provide(injector, providers.ProvideStore)
	do.Provide(injector, providers.ProvideEventBus)

	// Auth layer
	do.Provide(injector, providers.ProvideAuthKey)
	do.Provide(injector, providers.ProvideTokenService)
	do.Provide(injector, providers.ProvideSharedCredential)
	do.Provide(injector, providers.ProvideLoginLimiter)

	// Business services
	do.Provide(injector, providers.ProvideCatalogService)
	do.Provide(injector, providers.ProvideAccountService)
	do.Provide(injector, providers.ProvideSchema)

	// Server
	do.Provide(injector, providers.ProvideHTTPServer)

	return injector
}

// Bootstrap initializes all services in dependency order.
// Shutdown then runs in reverse: HTTP first, then the bus, then the store.
func Bootstrap(injector *do.RootScope) error {
	for _, invoke := range []func(do.Injector) error{
		invokeAs[*config.Config],
		invokeAs[*logger.Logger],
		invokeAs[*providers.StoreHandle],
		invokeAs[*pubsub.Manager],
		invokeAs[providers.AuthKey],
		invokeAs[*auth.TokenService],
		invokeAs[*auth.SharedCredential],
		invokeAs[*ratelimit.KeyedRateLimiter],
		invokeAs[*service.CatalogService],
		invokeAs[*service.AccountService],
		invokeAs[*graph.Schema],
		invokeAs[*providers.HTTPServerHandle],
	} {
		if err := invoke(injector); err != nil {
			return err
		}
	}
	return nil
}

func invokeAs[T any](i do.Injector) error {
	_, err := do.Invoke[T](i)
	return err
}
