package service

import (
	"context"
	"testing"
	"time"

	"github.com/librarycatalog/library-server/internal/auth"
	"github.com/librarycatalog/library-server/internal/domain"
	"github.com/librarycatalog/library-server/internal/pubsub"
	"github.com/librarycatalog/library-server/internal/store"
	"github.com/stretchr/testify/require"
)

const testPassword = "secret"

type testEnv struct {
	store    *store.Store
	bus      *pubsub.Manager
	tokens   *auth.TokenService
	catalog  *CatalogService
	accounts *AccountService
}

// setupServices creates both services over a temporary store.
func setupServices(t *testing.T, limiter Limiter) *testEnv {
	t.Helper()

	s, err := store.New(t.TempDir(), nil)
	require.NoError(t, err)

	bus := pubsub.NewManager(nil)

	key, err := auth.ParseKey("test signing secret")
	require.NoError(t, err)
	tokens, err := auth.NewTokenService(key, 0)
	require.NoError(t, err)

	credential, err := auth.NewSharedCredential(testPassword)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = bus.Shutdown()
		_ = s.Close()
	})

	return &testEnv{
		store:    s,
		bus:      bus,
		tokens:   tokens,
		catalog:  NewCatalogService(s, bus, nil),
		accounts: NewAccountService(s, tokens, credential, limiter, nil),
	}
}

// viewer creates a user and returns an authenticated viewer for it.
func (e *testEnv) viewer(t *testing.T, username string) *auth.Viewer {
	t.Helper()
	user, err := e.accounts.CreateUser(context.Background(), username, "refactoring")
	require.NoError(t, err)
	return &auth.Viewer{User: user, RemoteAddr: "127.0.0.1:1234"}
}

// receive waits for one event on ch.
func receive(t *testing.T, ch <-chan any) any {
	t.Helper()
	select {
	case v, ok := <-ch:
		require.True(t, ok, "channel closed")
		return v
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func bookTitles(books []*domain.Book) []string {
	out := make([]string, len(books))
	for i, b := range books {
		out[i] = b.Title
	}
	return out
}
