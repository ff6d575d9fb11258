package seed_test

import (
	"context"
	"testing"

	"github.com/librarycatalog/library-server/internal/seed"
	"github.com/librarycatalog/library-server/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_ReplacesCatalogAndKeepsUsers(t *testing.T) {
	ctx := context.Background()
	s, err := store.New(t.TempDir(), nil)
	require.NoError(t, err)
	defer s.Close()

	_, created, err := seed.EnsureUser(ctx, s, "mluukkai", "refactoring")
	require.NoError(t, err)
	require.True(t, created)

	for range 2 {
		res, err := seed.Load(ctx, s, nil)
		require.NoError(t, err)
		assert.Equal(t, seed.Result{Authors: 5, Books: 7}, res)
	}

	authors, err := s.CountAuthors(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, authors, "loading twice does not duplicate")

	books, err := s.CountBooks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7, books)

	metz, err := s.GetAuthorByName(ctx, "Sandi Metz")
	require.NoError(t, err)
	assert.Nil(t, metz.Born)

	martin, err := s.GetAuthorByName(ctx, "Robert Martin")
	require.NoError(t, err)
	require.NotNil(t, martin.Born)
	assert.Equal(t, 1952, *martin.Born)

	user, created, err := seed.EnsureUser(ctx, s, "mluukkai", "ignored")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "refactoring", user.FavoriteGenre)
}
