// Package store persists authors, books and users in an embedded badger database.
package store

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/librarycatalog/library-server/internal/domain"
	"github.com/librarycatalog/library-server/internal/validation"
)

const (
	authorPrefix = "author:"
	bookPrefix   = "book:"
	userPrefix   = "user:"
)

// Store wraps a Badger database instance.
type Store struct {
	db        *badger.DB
	logger    *slog.Logger
	validator *validation.Validator

	Authors *Entity[domain.Author]
	Books   *Entity[domain.Book]
	Users   *Entity[domain.User]
}

// Option tweaks how the database is opened.
type Option func(*badger.Options)

// InMemory keeps the whole database in memory. The path is ignored.
func InMemory() Option {
	return func(o *badger.Options) {
		o.Dir = ""
		o.ValueDir = ""
		o.InMemory = true
	}
}

// New opens (or creates) the database at path.
func New(path string, logger *slog.Logger, opts ...Option) (*Store, error) {
	bopts := badger.DefaultOptions(path)
	bopts.Logger = nil            // Disable Badger's internal logging
	bopts.SyncWrites = true       // Ensure writes are synced to disk to prevent corruption on crashes
	bopts.CompactL0OnClose = true // Compact L0 tables on close for faster startup
	for _, opt := range opts {
		opt(&bopts)
	}

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}

	s := &Store{
		db:        db,
		logger:    logger,
		validator: validation.New(),
	}

	s.Authors = NewEntity[domain.Author](s, authorPrefix).
		WithUniqueIndex("name", func(a *domain.Author) []string {
			return []string{a.Name}
		})

	s.Books = NewEntity[domain.Book](s, bookPrefix).
		WithMultiIndex("author", func(b *domain.Book) []string {
			return []string{b.AuthorID}
		}).
		WithMultiIndex("genre", func(b *domain.Book) []string {
			return slices.Compact(slices.Sorted(slices.Values(b.Genres)))
		})

	s.Users = NewEntity[domain.User](s, userPrefix).
		WithUniqueIndex("username", func(u *domain.User) []string {
			return []string{u.Username}
		})

	if logger != nil {
		logger.Info("Badger database opened successfully", "path", path, "in_memory", bopts.InMemory)
	}

	return s, nil
}

// Close gracefully closes the database connection.
func (s *Store) Close() error {
	if s.logger != nil {
		s.logger.Info("Closing database connection")
	}
	return s.db.Close()
}

// DropCatalog deletes every author and book, including their indexes. Users are kept.
func (s *Store) DropCatalog(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.db.DropPrefix([]byte(authorPrefix), []byte(bookPrefix)); err != nil {
		return fmt.Errorf("drop catalog: %w", err)
	}
	if s.logger != nil {
		s.logger.Warn("catalog dropped")
	}
	return nil
}

// validate runs struct validation. Failures wrap both ErrInvalidInput and *validation.Error.
func (s *Store) validate(v any) error {
	if err := s.validator.Validate(v); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	return nil
}

type document interface {
	GetID() string
	Created() time.Time
}

// sortByCreation orders documents by creation time so listings follow insertion order.
func sortByCreation[T document](docs []T) {
	slices.SortFunc(docs, func(a, b T) int {
		return cmp.Or(a.Created().Compare(b.Created()), cmp.Compare(a.GetID(), b.GetID()))
	})
}

// collect drains an entity listing into a slice.
func collect[T any](ctx context.Context, e *Entity[T]) ([]*T, error) {
	var out []*T
	for item, err := range e.List(ctx) {
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}
