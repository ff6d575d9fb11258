package providers

import (
	"context"
	"errors"
	"net"
	"net/http"
	"runtime/debug"

	"github.com/samber/do/v2"

	"github.com/librarycatalog/library-server/internal/api"
	"github.com/librarycatalog/library-server/internal/config"
	"github.com/librarycatalog/library-server/internal/graph"
	"github.com/librarycatalog/library-server/internal/logger"
	"github.com/librarycatalog/library-server/internal/pubsub"
	"github.com/librarycatalog/library-server/internal/service"
)

// HTTPServerHandle wraps http.Server with Shutdownable.
type HTTPServerHandle struct {
	*http.Server
}

// Shutdown implements do.Shutdownable. Open sockets are closed through
// RegisterOnShutdown; remaining requests get shutdownTimeout to finish.
func (h *HTTPServerHandle) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return h.Server.Shutdown(ctx)
}

// ProvideHTTPServer provides the HTTP server and starts listening.
func ProvideHTTPServer(i do.Injector) (*HTTPServerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	bus := do.MustInvoke[*pubsub.Manager](i)
	schema := do.MustInvoke[*graph.Schema](i)
	accounts := do.MustInvoke[*service.AccountService](i)
	log := do.MustInvoke[*logger.Logger](i)

	handler := api.NewServer(schema, accounts, storeHandle.Store, bus, api.Options{
		Version:        buildVersion(),
		CORSOrigins:    cfg.Server.CORSOrigins,
		KeepAlive:      cfg.GraphQL.KeepAlive,
		InitTimeout:    cfg.GraphQL.InitTimeout,
		TrustedProxies: cfg.Server.TrustedProxies,
	}, log.Logger)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	srv.RegisterOnShutdown(handler.CloseSockets)

	// A taken port fails the provider rather than the serve goroutine.
	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return nil, err
	}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", "error", err)
		}
	}()

	log.Info("Server ready", "addr", srv.Addr, "graphql", "http://localhost:"+cfg.Server.Port+"/graphql")

	return &HTTPServerHandle{Server: srv}, nil
}

func buildVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return "dev"
}
