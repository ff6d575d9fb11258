// Package graph binds the library schema to the catalog and account services.
//
// Execution is done by graph-gophers/graphql-go. Resolver is the root value
// for Query, Mutation and Subscription; every object type has its own
// resolver struct. Book.author and Author.bookCount go through per-operation
// dataloaders, so a list of books costs one author read and one count read.
package graph

import (
	"context"
	_ "embed"
	"log/slog"

	"github.com/librarycatalog/library-server/internal/auth"
	"github.com/librarycatalog/library-server/internal/domain"
	"github.com/librarycatalog/library-server/internal/pubsub"
	"github.com/librarycatalog/library-server/internal/service"
)

//go:embed schema.graphql
var SDL string

// Catalog is the book and author side of the service layer.
type Catalog interface {
	BookCount(ctx context.Context) (int, error)
	AuthorCount(ctx context.Context) (int, error)
	AllAuthors(ctx context.Context) ([]*domain.AuthorSummary, error)
	AllBooks(ctx context.Context, filter service.BookFilter) ([]*domain.Book, error)
	AddBook(ctx context.Context, viewer *auth.Viewer, input service.AddBookInput) (*domain.Book, error)
	EditAuthor(ctx context.Context, viewer *auth.Viewer, name string, born int) (*domain.Author, error)
	AuthorsByIDs(ctx context.Context, ids []string) (map[string]*domain.Author, error)
	BookCounts(ctx context.Context, authorIDs []string) (map[string]int, error)
}

// Accounts is the user side of the service layer.
type Accounts interface {
	CreateUser(ctx context.Context, username, favoriteGenre string) (*domain.User, error)
	Login(ctx context.Context, viewer *auth.Viewer, username, password string) (string, error)
}

// Resolver holds the dependencies of every field resolver.
type Resolver struct {
	catalog  Catalog
	accounts Accounts
	events   pubsub.Subscriber
	logger   *slog.Logger
}

// NewResolver creates the root resolver.
func NewResolver(catalog Catalog, accounts Accounts, events pubsub.Subscriber, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Resolver{
		catalog:  catalog,
		accounts: accounts,
		events:   events,
		logger:   logger,
	}
}
