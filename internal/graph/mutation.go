package graph

import (
	"context"

	"github.com/librarycatalog/library-server/internal/auth"
	"github.com/librarycatalog/library-server/internal/service"
)

type addBookArgs struct {
	Title     string
	Author    string
	Published int32
	Genres    []string
}

func (r *Resolver) AddBook(ctx context.Context, args addBookArgs) (*bookResolver, error) {
	book, err := r.catalog.AddBook(ctx, auth.ViewerFrom(ctx), service.AddBookInput{
		Title:     args.Title,
		Author:    args.Author,
		Published: int(args.Published),
		Genres:    args.Genres,
	})
	if err != nil {
		return nil, err
	}

	r.loaders(ctx).clear()
	return &bookResolver{root: r, book: book}, nil
}

type editAuthorArgs struct {
	Name      string
	SetBornTo int32
}

func (r *Resolver) EditAuthor(ctx context.Context, args editAuthorArgs) (*authorResolver, error) {
	author, err := r.catalog.EditAuthor(ctx, auth.ViewerFrom(ctx), args.Name, int(args.SetBornTo))
	if err != nil {
		return nil, err
	}

	r.loaders(ctx).clear()
	return &authorResolver{root: r, author: author}, nil
}

type createUserArgs struct {
	Username      string
	FavoriteGenre string
}

func (r *Resolver) CreateUser(ctx context.Context, args createUserArgs) (*userResolver, error) {
	user, err := r.accounts.CreateUser(ctx, args.Username, args.FavoriteGenre)
	if err != nil {
		return nil, err
	}
	return &userResolver{user: user}, nil
}

type loginArgs struct {
	Username string
	Password string
}

func (r *Resolver) Login(ctx context.Context, args loginArgs) (*tokenResolver, error) {
	token, err := r.accounts.Login(ctx, auth.ViewerFrom(ctx), args.Username, args.Password)
	if err != nil {
		return nil, err
	}
	return &tokenResolver{value: token}, nil
}
