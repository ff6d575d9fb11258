package graph

import (
	"context"

	"github.com/librarycatalog/library-server/internal/auth"
	"github.com/librarycatalog/library-server/internal/service"
)

func (r *Resolver) BookCount(ctx context.Context) (*int32, error) {
	n, err := r.catalog.BookCount(ctx)
	if err != nil {
		return nil, err
	}
	return int32Ptr(n), nil
}

func (r *Resolver) AuthorCount(ctx context.Context) (*int32, error) {
	n, err := r.catalog.AuthorCount(ctx)
	if err != nil {
		return nil, err
	}
	return int32Ptr(n), nil
}

// AllAuthors carries the counts computed by the listing, so bookCount costs
// nothing here.
func (r *Resolver) AllAuthors(ctx context.Context) (*[]*authorResolver, error) {
	summaries, err := r.catalog.AllAuthors(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]*authorResolver, len(summaries))
	for i, s := range summaries {
		out[i] = &authorResolver{root: r, author: s.Author, bookCount: &s.BookCount}
	}
	return &out, nil
}

type allBooksArgs struct {
	Author *string
	Genre  *string
}

func (r *Resolver) AllBooks(ctx context.Context, args allBooksArgs) (*[]*bookResolver, error) {
	var filter service.BookFilter
	if args.Author != nil {
		filter.Author = *args.Author
	}
	if args.Genre != nil {
		filter.Genre = *args.Genre
	}

	books, err := r.catalog.AllBooks(ctx, filter)
	if err != nil {
		return nil, err
	}

	// Queue every author of the page into one batch before the
	// Book.author resolvers ask for them one by one.
	l := r.loaders(ctx)
	out := make([]*bookResolver, len(books))
	for i, b := range books {
		l.author(ctx, b.AuthorID)
		out[i] = &bookResolver{root: r, book: b}
	}
	return &out, nil
}

// Me is null for anonymous viewers.
func (r *Resolver) Me(ctx context.Context) *userResolver {
	user := auth.ViewerFrom(ctx).User
	if user == nil {
		return nil
	}
	return &userResolver{user: user}
}
