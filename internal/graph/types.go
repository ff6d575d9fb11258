package graph

import (
	"context"
	"fmt"

	"github.com/graph-gophers/graphql-go"

	"github.com/librarycatalog/library-server/internal/domain"
)

type authorResolver struct {
	root   *Resolver
	author *domain.Author
	// bookCount is set when the listing already counted the books.
	bookCount *int
}

func (a *authorResolver) Name() string {
	return a.author.Name
}

func (a *authorResolver) ID() graphql.ID {
	return graphql.ID(a.author.ID)
}

func (a *authorResolver) Born() *int32 {
	if a.author.Born == nil {
		return nil
	}
	return int32Ptr(*a.author.Born)
}

func (a *authorResolver) BookCount(ctx context.Context) (*int32, error) {
	if a.bookCount != nil {
		return int32Ptr(*a.bookCount), nil
	}
	n, err := a.root.loaders(ctx).bookCount(ctx, a.author.ID)()
	if err != nil {
		return nil, err
	}
	count, _ := n.(int)
	return int32Ptr(count), nil
}

type bookResolver struct {
	root *Resolver
	book *domain.Book
}

func (b *bookResolver) Title() string {
	return b.book.Title
}

func (b *bookResolver) Published() int32 {
	return int32(b.book.Published)
}

// Author resolves to null when the referenced author is gone, which the
// non-null field turns into an error on the book.
func (b *bookResolver) Author(ctx context.Context) (*authorResolver, error) {
	v, err := b.root.loaders(ctx).author(ctx, b.book.AuthorID)()
	if err != nil {
		return nil, err
	}
	author, ok := v.(*domain.Author)
	if !ok || author == nil {
		b.root.logger.Warn("book references a missing author", "book_id", b.book.ID, "author_id", b.book.AuthorID)
		return nil, nil
	}
	return &authorResolver{root: b.root, author: author}, nil
}

func (b *bookResolver) Genres() []string {
	if b.book.Genres == nil {
		return []string{}
	}
	return b.book.Genres
}

func (b *bookResolver) ID() graphql.ID {
	return graphql.ID(b.book.ID)
}

type userResolver struct {
	user *domain.User
}

func (u *userResolver) Username() string {
	return u.user.Username
}

func (u *userResolver) FavoriteGenre() string {
	return u.user.FavoriteGenre
}

func (u *userResolver) ID() graphql.ID {
	return graphql.ID(u.user.ID)
}

type tokenResolver struct {
	value string
}

func (t *tokenResolver) Value() string {
	return t.value
}

func int32Ptr(n int) *int32 {
	v := int32(n)
	return &v
}

func typeName(v any) string {
	return fmt.Sprintf("%T", v)
}
