package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/librarycatalog/library-server/internal/domain"
	"github.com/librarycatalog/library-server/internal/id"
)

// CreateAuthor validates and stores a new author, assigning an id when missing.
// Returns ErrAlreadyExists if an author with the same name exists.
func (s *Store) CreateAuthor(ctx context.Context, author *domain.Author) error {
	if author.ID == "" {
		authorID, err := id.Generate(id.PrefixAuthor)
		if err != nil {
			return err
		}
		author.ID = authorID
	}
	if author.CreatedAt.IsZero() {
		author.InitTimestamps()
	}

	if err := s.validate(author); err != nil {
		return fmt.Errorf("create author: %w", err)
	}
	if err := s.Authors.Create(ctx, author.ID, author); err != nil {
		return fmt.Errorf("create author: %w", err)
	}

	if s.logger != nil {
		s.logger.LogAttrs(ctx, slog.LevelInfo, "author created",
			slog.String("id", author.ID),
			slog.String("name", author.Name),
		)
	}
	return nil
}

// GetAuthor retrieves an author by id.
func (s *Store) GetAuthor(ctx context.Context, authorID string) (*domain.Author, error) {
	return s.Authors.Get(ctx, authorID)
}

// GetAuthorByName retrieves an author by exact name.
func (s *Store) GetAuthorByName(ctx context.Context, name string) (*domain.Author, error) {
	return s.Authors.GetByIndex(ctx, "name", name)
}

// GetAuthorsByIDs loads many authors in one read. Unknown ids are skipped.
func (s *Store) GetAuthorsByIDs(ctx context.Context, ids []string) (map[string]*domain.Author, error) {
	authors, err := s.Authors.GetMany(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("get authors: %w", err)
	}
	return authors, nil
}

// UpdateAuthor validates and persists changes to an existing author.
func (s *Store) UpdateAuthor(ctx context.Context, author *domain.Author) error {
	if err := s.validate(author); err != nil {
		return fmt.Errorf("update author: %w", err)
	}
	if err := s.Authors.Update(ctx, author.ID, author); err != nil {
		return fmt.Errorf("update author: %w", err)
	}
	return nil
}

// ListAuthors returns every author in creation order.
func (s *Store) ListAuthors(ctx context.Context) ([]*domain.Author, error) {
	authors, err := collect(ctx, s.Authors)
	if err != nil {
		return nil, fmt.Errorf("list authors: %w", err)
	}
	sortByCreation(authors)
	return authors, nil
}

// CountAuthors returns the number of authors.
func (s *Store) CountAuthors(ctx context.Context) (int, error) {
	return s.Authors.Count(ctx)
}

// ListAuthorSummaries returns every author joined with its book count.
// The counts come from one scan of the books' author index.
func (s *Store) ListAuthorSummaries(ctx context.Context) ([]*domain.AuthorSummary, error) {
	authors, err := s.ListAuthors(ctx)
	if err != nil {
		return nil, err
	}

	counts, err := s.Books.CountByIndex(ctx, "author")
	if err != nil {
		return nil, fmt.Errorf("count books by author: %w", err)
	}

	out := make([]*domain.AuthorSummary, len(authors))
	for i, a := range authors {
		out[i] = &domain.AuthorSummary{Author: a, BookCount: counts[a.ID]}
	}
	return out, nil
}
