package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/librarycatalog/library-server/internal/auth"
	"github.com/librarycatalog/library-server/internal/domain"
	domainerrors "github.com/librarycatalog/library-server/internal/errors"
	"github.com/librarycatalog/library-server/internal/pubsub"
	"github.com/librarycatalog/library-server/internal/store"
)

// CatalogService handles the books and authors of the catalog.
type CatalogService struct {
	store  *store.Store
	events pubsub.Publisher
	logger *slog.Logger
}

// NewCatalogService creates a new catalog service.
func NewCatalogService(store *store.Store, events pubsub.Publisher, logger *slog.Logger) *CatalogService {
	if events == nil {
		events = pubsub.Noop{}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &CatalogService{
		store:  store,
		events: events,
		logger: logger,
	}
}

// BookFilter narrows AllBooks. Empty fields do not filter.
type BookFilter struct {
	Author string
	Genre  string
}

// AddBookInput is the payload of the addBook mutation.
type AddBookInput struct {
	Title     string
	Author    string
	Published int
	Genres    []string
}

// BookCount returns the number of books in the catalog.
func (s *CatalogService) BookCount(ctx context.Context) (int, error) {
	n, err := s.store.CountBooks(ctx)
	if err != nil {
		return 0, fmt.Errorf("count books: %w", err)
	}
	return n, nil
}

// AuthorCount returns the number of authors in the catalog.
func (s *CatalogService) AuthorCount(ctx context.Context) (int, error) {
	n, err := s.store.CountAuthors(ctx)
	if err != nil {
		return 0, fmt.Errorf("count authors: %w", err)
	}
	return n, nil
}

// AllAuthors returns every author with its book count.
func (s *CatalogService) AllAuthors(ctx context.Context) ([]*domain.AuthorSummary, error) {
	authors, err := s.store.ListAuthorSummaries(ctx)
	if err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeInternal, "Error fetching authors")
	}
	return authors, nil
}

// AllBooks returns the books matching filter. An unknown author matches nothing.
func (s *CatalogService) AllBooks(ctx context.Context, filter BookFilter) ([]*domain.Book, error) {
	q := store.BookQuery{Genre: filter.Genre}

	if filter.Author != "" {
		author, err := s.store.GetAuthorByName(ctx, filter.Author)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return []*domain.Book{}, nil
			}
			return nil, fmt.Errorf("find author %q: %w", filter.Author, err)
		}
		q.AuthorID = author.ID
	}

	books, err := s.store.ListBooks(ctx, q)
	if err != nil {
		return nil, err
	}
	return books, nil
}

// AddBook stores a book, creating its author on first mention, and announces it
// on the book-added topic.
func (s *CatalogService) AddBook(ctx context.Context, viewer *auth.Viewer, input AddBookInput) (*domain.Book, error) {
	if !viewer.Authenticated() {
		return nil, domainerrors.Unauthenticated("Not authenticated")
	}

	author, err := s.findOrCreateAuthor(ctx, input.Author)
	if err != nil {
		return nil, err
	}

	book := &domain.Book{
		Title:     input.Title,
		Published: input.Published,
		Genres:    input.Genres,
		AuthorID:  author.ID,
	}
	if err := s.store.CreateBook(ctx, book); err != nil {
		if errors.Is(err, store.ErrInvalidInput) {
			return nil, domainerrors.BadUserInput("Saving book failed due to validation error").
				WithInvalidArgs(input.Title).
				WithDetails(validationDetails(err)).
				WithCause(err)
		}
		return nil, fmt.Errorf("save book: %w", err)
	}

	s.logger.Info("book added",
		"book_id", book.ID,
		"title", book.Title,
		"author", author.Name,
		"user", viewer.User.Username,
	)

	s.events.Publish(pubsub.TopicBookAdded, book)
	return book, nil
}

// findOrCreateAuthor returns the author called name, creating it with only the
// name set when missing. A concurrent creation of the same name is resolved by
// reading the winner back.
func (s *CatalogService) findOrCreateAuthor(ctx context.Context, name string) (*domain.Author, error) {
	author, err := s.store.GetAuthorByName(ctx, name)
	if err == nil {
		return author, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("find author %q: %w", name, err)
	}

	author = &domain.Author{Name: name}
	err = s.store.CreateAuthor(ctx, author)
	switch {
	case err == nil:
		return author, nil
	case errors.Is(err, store.ErrInvalidInput):
		return nil, domainerrors.BadUserInput("Saving author failed due to validation error").
			WithInvalidArgs(name).
			WithDetails(validationDetails(err)).
			WithCause(err)
	case errors.Is(err, store.ErrAlreadyExists):
		existing, getErr := s.store.GetAuthorByName(ctx, name)
		if getErr != nil {
			return nil, fmt.Errorf("reload author %q: %w", name, getErr)
		}
		return existing, nil
	default:
		return nil, fmt.Errorf("save author: %w", err)
	}
}

// editAttempts bounds the retries of an author update that lost a write race.
const editAttempts = 5

// EditAuthor sets the birth year of the author called name. An update that
// conflicts with a concurrent write is retried on a fresh copy.
func (s *CatalogService) EditAuthor(ctx context.Context, viewer *auth.Viewer, name string, born int) (*domain.Author, error) {
	if !viewer.Authenticated() {
		return nil, domainerrors.Unauthenticated("Not authenticated")
	}

	author, err := s.store.GetAuthorByName(ctx, name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, domainerrors.BadUserInput("Author not found").WithInvalidArgs(name)
		}
		return nil, fmt.Errorf("find author %q: %w", name, err)
	}

	for attempt := 1; ; attempt++ {
		author.SetBorn(born)
		err = s.store.UpdateAuthor(ctx, author)
		if err == nil || !errors.Is(err, store.ErrConflict) || attempt == editAttempts {
			break
		}
		s.logger.Debug("author update conflicted, retrying", "author_id", author.ID, "attempt", attempt)
		if author, err = s.store.GetAuthor(ctx, author.ID); err != nil {
			return nil, fmt.Errorf("reload author %q: %w", name, err)
		}
	}

	switch {
	case err == nil:
	case errors.Is(err, store.ErrInvalidInput):
		return nil, domainerrors.BadUserInput("Saving author failed due to validation error").
			WithInvalidArgs(name).
			WithDetails(validationDetails(err)).
			WithCause(err)
	case errors.Is(err, store.ErrConflict):
		return nil, domainerrors.Wrap(err, domainerrors.CodeInternal, "Saving author failed, try again").
			WithInvalidArgs(name)
	default:
		return nil, fmt.Errorf("save author: %w", err)
	}

	s.logger.Info("author edited", "author_id", author.ID, "born", born, "user", viewer.User.Username)
	return author, nil
}

// AuthorsByIDs loads the authors of a batch of books in one read.
func (s *CatalogService) AuthorsByIDs(ctx context.Context, ids []string) (map[string]*domain.Author, error) {
	return s.store.GetAuthorsByIDs(ctx, ids)
}

// BookCounts returns the number of books per author id. Every requested id is present.
func (s *CatalogService) BookCounts(ctx context.Context, authorIDs []string) (map[string]int, error) {
	return s.store.CountBooksByAuthors(ctx, authorIDs)
}
