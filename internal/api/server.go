// Package api provides the HTTP transport for the library GraphQL API.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"net/netip"
	"sync"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"

	"github.com/librarycatalog/library-server/internal/domain"
	"github.com/librarycatalog/library-server/internal/graph"
	"github.com/librarycatalog/library-server/internal/logger"
)

// Authenticator resolves bearer tokens to users.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*domain.User, error)
}

// CatalogCounter is the store read used by the health check.
type CatalogCounter interface {
	CountAuthors(ctx context.Context) (int, error)
}

// SubscriberCounter reports live subscriptions on the event bus.
type SubscriberCounter interface {
	SubscriberCount() int
}

// Options configure the transport.
type Options struct {
	Version     string
	CORSOrigins []string
	// KeepAlive is the WebSocket ping and SSE heartbeat interval.
	KeepAlive time.Duration
	// InitTimeout bounds the wait for connection_init on a new socket.
	InitTimeout time.Duration
	// TrustedProxies may set the client address through X-Forwarded-For
	// or X-Real-IP. Empty means RemoteAddr is always the client.
	TrustedProxies []netip.Prefix
}

// Defaults used when Options leave a field zero.
const (
	DefaultKeepAlive   = 12 * time.Second
	DefaultInitTimeout = 10 * time.Second
)

// Server holds dependencies for HTTP handlers.
type Server struct {
	schema   *graph.Schema
	auth     Authenticator
	catalog  CatalogCounter
	bus      SubscriberCounter
	opts     Options
	router   *chi.Mux
	api      huma.API
	upgrader websocket.Upgrader
	logger   *slog.Logger

	socketsMu sync.Mutex
	sockets   map[*wsConn]struct{}
}

// NewServer creates a new HTTP server with all routes configured.
func NewServer(schema *graph.Schema, auth Authenticator, catalog CatalogCounter, bus SubscriberCounter, opts Options, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if opts.KeepAlive <= 0 {
		opts.KeepAlive = DefaultKeepAlive
	}
	if opts.InitTimeout <= 0 {
		opts.InitTimeout = DefaultInitTimeout
	}
	if len(opts.CORSOrigins) == 0 {
		opts.CORSOrigins = []string{"*"}
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}

	s := &Server{
		schema:  schema,
		auth:    auth,
		catalog: catalog,
		bus:     bus,
		opts:    opts,
		router:  chi.NewRouter(),
		logger:  logger,
		upgrader: websocket.Upgrader{
			Subprotocols: []string{subprotocol},
			// Origins are enforced by the CORS policy, not the socket handshake.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(s.clientIP)
	s.router.Use(logger.Middleware(s.logger))
	s.router.Use(middleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))
	s.router.Use(s.viewerMiddleware)
}

func (s *Server) setupRoutes() {
	humaConfig := huma.DefaultConfig("Library API", s.opts.Version)
	humaConfig.DocsPath = ""
	s.api = humachi.New(s.router, humaConfig)
	s.registerHealthRoutes()

	// The root path is an alias; the reference client posts there.
	for _, path := range []string{"/graphql", "/"} {
		s.router.Get(path, s.handleGraphQL)
		s.router.Post(path, s.handleGraphQL)
	}
}
