package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/librarycatalog/library-server/internal/domain"
	"github.com/librarycatalog/library-server/internal/id"
)

// BookQuery filters ListBooks. Empty fields do not filter; set fields combine with AND.
type BookQuery struct {
	AuthorID string
	Genre    string
}

// CreateBook validates and stores a new book, assigning an id when missing.
// The caller is responsible for the author reference pointing at a stored author.
func (s *Store) CreateBook(ctx context.Context, book *domain.Book) error {
	if book.ID == "" {
		bookID, err := id.Generate(id.PrefixBook)
		if err != nil {
			return err
		}
		book.ID = bookID
	}
	if book.CreatedAt.IsZero() {
		book.InitTimestamps()
	}
	if book.Genres == nil {
		book.Genres = []string{}
	}

	if err := s.validate(book); err != nil {
		return fmt.Errorf("create book: %w", err)
	}
	if err := s.Books.Create(ctx, book.ID, book); err != nil {
		return fmt.Errorf("create book: %w", err)
	}

	if s.logger != nil {
		s.logger.LogAttrs(ctx, slog.LevelInfo, "book created",
			slog.String("id", book.ID),
			slog.String("title", book.Title),
			slog.String("author_id", book.AuthorID),
			slog.Any("genres", book.Genres),
		)
	}
	return nil
}

// ListBooks returns the books matching q in creation order.
func (s *Store) ListBooks(ctx context.Context, q BookQuery) ([]*domain.Book, error) {
	if q.AuthorID == "" && q.Genre == "" {
		books, err := collect(ctx, s.Books)
		if err != nil {
			return nil, fmt.Errorf("list books: %w", err)
		}
		sortByCreation(books)
		return books, nil
	}

	// One index narrows the candidates; a genre on top of an author is
	// checked on the loaded books.
	index, value := "author", q.AuthorID
	if q.AuthorID == "" {
		index, value = "genre", q.Genre
	}
	ids, err := s.Books.IDsByIndex(ctx, index, value)
	if err != nil {
		return nil, fmt.Errorf("list books by %s: %w", index, err)
	}

	found, err := s.Books.GetMany(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	books := make([]*domain.Book, 0, len(found))
	for _, b := range found {
		if q.AuthorID != "" && q.Genre != "" && !b.HasGenre(q.Genre) {
			continue
		}
		books = append(books, b)
	}
	sortByCreation(books)
	return books, nil
}

// CountBooks returns the number of books.
func (s *Store) CountBooks(ctx context.Context) (int, error) {
	return s.Books.Count(ctx)
}

// CountBooksByAuthors returns the book count for each of authorIDs.
// Every requested id is present in the result, with zero when it has no books.
func (s *Store) CountBooksByAuthors(ctx context.Context, authorIDs []string) (map[string]int, error) {
	counts, err := s.Books.CountByIndexValues(ctx, "author", authorIDs)
	if err != nil {
		return nil, fmt.Errorf("count books by author: %w", err)
	}
	return counts, nil
}
