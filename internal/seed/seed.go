// Package seed loads the sample catalog used for demos and tests.
package seed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/librarycatalog/library-server/internal/domain"
	"github.com/librarycatalog/library-server/internal/store"
)

// Author is one sample author with the books credited to them.
type Author struct {
	Name  string
	Born  *int
	Books []Book
}

// Book is one sample book.
type Book struct {
	Title     string
	Published int
	Genres    []string
}

func year(y int) *int { return &y }

// Catalog is the sample data set.
var Catalog = []Author{
	{
		Name: "Robert Martin",
		Born: year(1952),
		Books: []Book{
			{Title: "Clean Code", Published: 2008, Genres: []string{"refactoring"}},
			{Title: "Agile software development", Published: 2002, Genres: []string{"agile", "patterns", "design"}},
		},
	},
	{
		Name: "Martin Fowler",
		Born: year(1963),
		Books: []Book{
			{Title: "Refactoring, edition 2", Published: 2018, Genres: []string{"refactoring"}},
		},
	},
	{
		Name: "Fyodor Dostoevsky",
		Born: year(1821),
		Books: []Book{
			{Title: "Crime and punishment", Published: 1866, Genres: []string{"classic", "crime"}},
			{Title: "Demons", Published: 1872, Genres: []string{"classic", "revolution"}},
		},
	},
	{
		Name: "Joshua Kerievsky",
		Books: []Book{
			{Title: "Refactoring to patterns", Published: 2008, Genres: []string{"refactoring", "patterns"}},
		},
	},
	{
		Name: "Sandi Metz",
		Books: []Book{
			{Title: "Practical Object-Oriented Design, An Agile Primer Using Ruby", Published: 2012, Genres: []string{"refactoring", "design"}},
		},
	},
}

// Result counts what Load wrote.
type Result struct {
	Authors int
	Books   int
}

// Load replaces the authors and books in s with Catalog. Users are left alone.
func Load(ctx context.Context, s *store.Store, logger *slog.Logger) (Result, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	if err := s.DropCatalog(ctx); err != nil {
		return Result{}, err
	}

	var res Result
	for _, a := range Catalog {
		author := &domain.Author{Name: a.Name}
		if a.Born != nil {
			born := *a.Born
			author.Born = &born
		}
		if err := s.CreateAuthor(ctx, author); err != nil {
			return res, fmt.Errorf("seed author %q: %w", a.Name, err)
		}
		res.Authors++

		for _, b := range a.Books {
			book := &domain.Book{
				Title:     b.Title,
				Published: b.Published,
				Genres:    append([]string(nil), b.Genres...),
				AuthorID:  author.ID,
			}
			if err := s.CreateBook(ctx, book); err != nil {
				return res, fmt.Errorf("seed book %q: %w", b.Title, err)
			}
			res.Books++
		}
	}

	logger.Info("catalog seeded", "authors", res.Authors, "books", res.Books)
	return res, nil
}

// EnsureUser creates username unless it already exists. created reports which happened.
func EnsureUser(ctx context.Context, s *store.Store, username, favoriteGenre string) (user *domain.User, created bool, err error) {
	existing, err := s.GetUserByUsername(ctx, username)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, false, fmt.Errorf("find user %q: %w", username, err)
	}

	user = &domain.User{Username: username, FavoriteGenre: favoriteGenre}
	if err := s.CreateUser(ctx, user); err != nil {
		return nil, false, fmt.Errorf("create user %q: %w", username, err)
	}
	return user, true, nil
}
