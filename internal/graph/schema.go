package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/graph-gophers/graphql-go"
	qerrors "github.com/graph-gophers/graphql-go/errors"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"
)

const (
	maxParallelism = 32
	// eventTimeout bounds the execution and delivery of one subscription event.
	eventTimeout = 5 * time.Second
)

// ErrNotSubscription is returned by Subscribe for queries and mutations.
var ErrNotSubscription = errors.New("operation is not a subscription")

// Schema is the executable library schema.
type Schema struct {
	exec     *graphql.Schema
	resolver *Resolver
	logger   *slog.Logger
}

type schemaConfig struct {
	introspection bool
}

// Option configures a Schema.
type Option func(*schemaConfig)

// WithoutIntrospection leaves __schema and __type out of every response.
func WithoutIntrospection() Option {
	return func(c *schemaConfig) {
		c.introspection = false
	}
}

// NewSchema parses the SDL and binds r to it. It fails when a resolver
// signature does not match its field.
func NewSchema(r *Resolver, opts ...Option) (*Schema, error) {
	cfg := schemaConfig{introspection: true}
	for _, opt := range opts {
		opt(&cfg)
	}

	schemaOpts := []graphql.SchemaOpt{
		graphql.MaxParallelism(maxParallelism),
		graphql.SubscribeResolverTimeout(eventTimeout),
		graphql.Logger(panicLogger{logger: r.logger}),
	}
	if !cfg.introspection {
		schemaOpts = append(schemaOpts, graphql.DisableIntrospection())
	}

	exec, err := graphql.ParseSchema(SDL, r, schemaOpts...)
	if err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}
	return &Schema{exec: exec, resolver: r, logger: r.logger}, nil
}

// Params is a GraphQL request as sent by clients.
type Params struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
	Extensions    map[string]any `json:"extensions,omitempty"`
}

// Operation is a request that parsed and validated against the schema.
type Operation struct {
	params Params
	kind   ast.Operation
	name   string
}

// Type returns query, mutation or subscription.
func (o *Operation) Type() ast.Operation {
	return o.kind
}

// Name returns the operation name, empty for anonymous operations.
func (o *Operation) Name() string {
	return o.name
}

// Prepare parses and validates p and picks the operation to run. Transports
// use it to route by operation type before anything executes.
func (s *Schema) Prepare(p Params) (*Operation, []*qerrors.QueryError) {
	if strings.TrimSpace(p.Query) == "" {
		return nil, []*qerrors.QueryError{requestError(codeBadRequest, "must provide query string")}
	}

	doc, err := parser.ParseQuery(&ast.Source{Input: p.Query})
	if err != nil {
		return nil, []*qerrors.QueryError{parseError(err)}
	}

	def := doc.Operations.ForName(p.OperationName)
	if def == nil {
		if p.OperationName == "" {
			return nil, []*qerrors.QueryError{requestError(codeBadRequest, "must provide operation name if query contains multiple operations")}
		}
		return nil, []*qerrors.QueryError{requestError(codeBadRequest, fmt.Sprintf("unknown operation named %q", p.OperationName))}
	}

	if errs := s.exec.ValidateWithVariables(p.Query, p.Variables); len(errs) > 0 {
		for _, e := range errs {
			e.Extensions = map[string]any{"code": validationCode(e.Rule)}
		}
		return nil, errs
	}

	return &Operation{params: p, kind: def.Operation, name: def.Name}, nil
}

// Execute runs a query or mutation.
func (s *Schema) Execute(ctx context.Context, op *Operation) *graphql.Response {
	ctx = s.resolver.withLoaders(ctx, true)
	resp := s.exec.Exec(ctx, op.params.Query, op.params.OperationName, op.params.Variables)
	return s.finish(ctx, resp)
}

// Exec prepares and executes p as a query or mutation.
func (s *Schema) Exec(ctx context.Context, p Params) *graphql.Response {
	op, errs := s.Prepare(p)
	if errs != nil {
		return &graphql.Response{Errors: errs}
	}
	return s.Execute(ctx, op)
}

// Subscribe starts a subscription and returns one response per event. The
// channel closes when the event source ends or ctx is cancelled.
func (s *Schema) Subscribe(ctx context.Context, op *Operation) (<-chan *graphql.Response, error) {
	if op.Type() != ast.Subscription {
		return nil, ErrNotSubscription
	}

	ctx = s.resolver.withLoaders(ctx, false)
	results, err := s.exec.Subscribe(ctx, op.params.Query, op.params.OperationName, op.params.Variables)
	if err != nil {
		return nil, err
	}

	out := make(chan *graphql.Response)
	go func() {
		defer close(out)
		// The engine blocks until each result is received, so keep draining
		// after ctx ends until it closes the channel.
		for result := range results {
			resp, ok := result.(*graphql.Response)
			if !ok || ctx.Err() != nil {
				continue
			}
			select {
			case out <- s.finish(ctx, resp):
			case <-ctx.Done():
			}
		}
	}()
	return out, nil
}
