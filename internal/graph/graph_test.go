package graph_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/graph-gophers/graphql-go"

	"github.com/librarycatalog/library-server/internal/auth"
	"github.com/librarycatalog/library-server/internal/domain"
	"github.com/librarycatalog/library-server/internal/graph"
	"github.com/librarycatalog/library-server/internal/pubsub"
	"github.com/librarycatalog/library-server/internal/seed"
	"github.com/librarycatalog/library-server/internal/service"
	"github.com/librarycatalog/library-server/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

// countingCatalog records how often the batch reads run.
type countingCatalog struct {
	*service.CatalogService
	authorBatches atomic.Int32
	countBatches  atomic.Int32
}

func (c *countingCatalog) AuthorsByIDs(ctx context.Context, ids []string) (map[string]*domain.Author, error) {
	c.authorBatches.Add(1)
	return c.CatalogService.AuthorsByIDs(ctx, ids)
}

func (c *countingCatalog) BookCounts(ctx context.Context, authorIDs []string) (map[string]int, error) {
	c.countBatches.Add(1)
	return c.CatalogService.BookCounts(ctx, authorIDs)
}

type harness struct {
	schema   *graph.Schema
	store    *store.Store
	catalog  *countingCatalog
	accounts *service.AccountService
	tokens   *auth.TokenService
}

func setup(t *testing.T, opts ...graph.Option) *harness {
	t.Helper()

	s, err := store.New(t.TempDir(), nil)
	require.NoError(t, err)
	bus := pubsub.NewManager(nil)
	t.Cleanup(func() {
		_ = bus.Shutdown()
		_ = s.Close()
	})

	key, err := auth.ParseKey("graph test key")
	require.NoError(t, err)
	tokens, err := auth.NewTokenService(key, 0)
	require.NoError(t, err)
	credential, err := auth.NewSharedCredential("secret")
	require.NoError(t, err)

	catalog := &countingCatalog{CatalogService: service.NewCatalogService(s, bus, nil)}
	accounts := service.NewAccountService(s, tokens, credential, nil, nil)

	schema, err := graph.NewSchema(graph.NewResolver(catalog, accounts, bus, nil), opts...)
	require.NoError(t, err)

	_, err = seed.Load(context.Background(), s, nil)
	require.NoError(t, err)

	return &harness{schema: schema, store: s, catalog: catalog, accounts: accounts, tokens: tokens}
}

func (h *harness) run(ctx context.Context, t *testing.T, query string, vars map[string]any) (gjson.Result, *graphql.Response) {
	t.Helper()
	resp := h.schema.Exec(ctx, graph.Params{Query: query, Variables: vars})
	return gjson.ParseBytes(resp.Data), resp
}

func (h *harness) loggedIn(t *testing.T, username string) context.Context {
	t.Helper()
	user, err := h.accounts.CreateUser(context.Background(), username, "refactoring")
	require.NoError(t, err)
	return auth.WithViewer(context.Background(), &auth.Viewer{User: user, RemoteAddr: "127.0.0.1"})
}

func TestSchema_MatchesContract(t *testing.T) {
	h := setup(t)

	typeOf := func(typeName, field string) string {
		t.Helper()
		data, resp := h.run(context.Background(), t, `query T($name: String!) {
			__type(name: $name) { fields { name type { kind name ofType { kind name ofType { kind name } } } } }
		}`, map[string]any{"name": typeName})
		require.Empty(t, resp.Errors)
		return data.Get(`__type.fields.#(name=="` + field + `").type`).Raw
	}

	assert.JSONEq(t, `{"kind":"NON_NULL","name":null,"ofType":{"kind":"OBJECT","name":"Book","ofType":null}}`, typeOf("Mutation", "addBook"))
	assert.JSONEq(t, `{"kind":"NON_NULL","name":null,"ofType":{"kind":"LIST","name":null,"ofType":{"kind":"NON_NULL","name":null}}}`, typeOf("Book", "genres"))
	assert.JSONEq(t, `{"kind":"NON_NULL","name":null,"ofType":{"kind":"OBJECT","name":"Book","ofType":null}}`, typeOf("Subscription", "bookAdded"))
	assert.JSONEq(t, `{"kind":"SCALAR","name":"Int","ofType":null}`, typeOf("Author", "born"))
}

func TestSchema_WithoutIntrospection(t *testing.T) {
	h := setup(t, graph.WithoutIntrospection())

	data, resp := h.run(context.Background(), t, `{ __schema { queryType { name } } bookCount }`, nil)
	require.Empty(t, resp.Errors)
	assert.False(t, data.Get("__schema").Exists())
	assert.Equal(t, int64(7), data.Get("bookCount").Int())
}

func TestSchema_PrepareErrors(t *testing.T) {
	h := setup(t)

	tests := []struct {
		name    string
		params  graph.Params
		code    string
		message string
	}{
		{"empty", graph.Params{Query: "  "}, "BAD_REQUEST", "must provide query string"},
		{"syntax", graph.Params{Query: "{ bookCount"}, "GRAPHQL_PARSE_FAILED", "Expected Name"},
		{"unknown field", graph.Params{Query: "{ nope }"}, "GRAPHQL_VALIDATION_FAILED", "nope"},
		{"ambiguous", graph.Params{Query: "query A { bookCount } query B { authorCount }"}, "BAD_REQUEST", "must provide operation name"},
		{"unknown operation", graph.Params{Query: "query A { bookCount }", OperationName: "B"}, "BAD_REQUEST", `unknown operation named "B"`},
		{"missing variable", graph.Params{Query: "query A($g: String!) { allBooks(genre: $g) { id } }"}, "BAD_USER_INPUT", `Variable "g"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op, errs := h.schema.Prepare(tt.params)
			assert.Nil(t, op)
			require.NotEmpty(t, errs)
			assert.Equal(t, tt.code, errs[0].Extensions["code"])
			assert.Contains(t, errs[0].Message, tt.message)
		})
	}
}

func TestQuery_Counts(t *testing.T) {
	h := setup(t)

	data, resp := h.run(context.Background(), t, `{ bookCount authorCount }`, nil)
	require.Empty(t, resp.Errors)
	assert.Equal(t, int64(7), data.Get("bookCount").Int())
	assert.Equal(t, int64(5), data.Get("authorCount").Int())
}

func TestQuery_AllAuthors(t *testing.T) {
	h := setup(t)

	data, resp := h.run(context.Background(), t, `{ allAuthors { name born bookCount id } }`, nil)
	require.Empty(t, resp.Errors)

	require.Len(t, data.Get("allAuthors").Array(), 5)

	martin := data.Get(`allAuthors.#(name=="Robert Martin")`)
	assert.Equal(t, int64(1952), martin.Get("born").Int())
	assert.Equal(t, int64(2), martin.Get("bookCount").Int())

	metz := data.Get(`allAuthors.#(name=="Sandi Metz")`)
	assert.Equal(t, gjson.Null, metz.Get("born").Type)
	assert.Equal(t, int64(1), metz.Get("bookCount").Int())
	assert.Contains(t, metz.Get("id").String(), "author-")
}

func TestQuery_AllBooks(t *testing.T) {
	h := setup(t)
	ctx := context.Background()

	query := `query Books($author: String, $genre: String) {
		allBooks(author: $author, genre: $genre) {
			title
			published
			genres
			author { name bookCount }
		}
	}`

	data, resp := h.run(ctx, t, query, map[string]any{"genre": "refactoring"})
	require.Empty(t, resp.Errors)
	titles := data.Get("allBooks.#.title").Array()
	require.Len(t, titles, 4)
	for _, b := range data.Get("allBooks").Array() {
		assert.Contains(t, b.Get("genres").String(), "refactoring")
	}
	assert.Equal(t, "Robert Martin", data.Get(`allBooks.#(title=="Clean Code").author.name`).String())
	assert.Equal(t, int64(2), data.Get(`allBooks.#(title=="Clean Code").author.bookCount`).Int())
	assert.Equal(t, "Martin Fowler", data.Get(`allBooks.#(title=="Refactoring, edition 2").author.name`).String())

	data, resp = h.run(ctx, t, query, map[string]any{"author": "Fyodor Dostoevsky", "genre": "crime"})
	require.Empty(t, resp.Errors)
	assert.JSONEq(t, `[{"title":"Crime and punishment","published":1866,"genres":["classic","crime"],"author":{"name":"Fyodor Dostoevsky","bookCount":2}}]`, data.Get("allBooks").Raw)

	data, resp = h.run(ctx, t, query, map[string]any{"author": "Nobody"})
	require.Empty(t, resp.Errors)
	assert.Equal(t, "[]", data.Get("allBooks").Raw)
}

func TestQuery_Me(t *testing.T) {
	h := setup(t)

	data, resp := h.run(context.Background(), t, `{ me { username } }`, nil)
	require.Empty(t, resp.Errors)
	assert.Equal(t, gjson.Null, data.Get("me").Type)

	ctx := h.loggedIn(t, "alice")
	data, resp = h.run(ctx, t, `{ me { username favoriteGenre id } }`, nil)
	require.Empty(t, resp.Errors)
	assert.Equal(t, "alice", data.Get("me.username").String())
	assert.Equal(t, "refactoring", data.Get("me.favoriteGenre").String())
}

func TestMutation_AddBook_Unauthenticated(t *testing.T) {
	h := setup(t)

	data, resp := h.run(context.Background(), t,
		`mutation { addBook(title: "T", author: "New Author", published: 2020, genres: ["x"]) { title } }`, nil)

	assert.Equal(t, gjson.Null, data.Type, "non-null root field nulls data")
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, "Not authenticated", resp.Errors[0].Message)
	assert.Equal(t, "UNAUTHENTICATED", resp.Errors[0].Extensions["code"])
	assert.Equal(t, []any{"addBook"}, resp.Errors[0].Path)

	_, err := h.store.GetAuthorByName(context.Background(), "New Author")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestMutation_AddBookThenQuery(t *testing.T) {
	h := setup(t)
	ctx := h.loggedIn(t, "alice")

	data, resp := h.run(ctx, t, `mutation Add($genres: [String!]!) {
		addBook(title: "T", author: "New Author", published: 2020, genres: $genres) {
			title genres author { name born bookCount }
		}
	}`, map[string]any{"genres": []any{"x"}})
	require.Empty(t, resp.Errors)
	assert.JSONEq(t, `{"title":"T","genres":["x"],"author":{"name":"New Author","born":null,"bookCount":1}}`, data.Get("addBook").Raw)

	data, resp = h.run(ctx, t, `{ allAuthors { name bookCount } allBooks(author: "New Author") { title } }`, nil)
	require.Empty(t, resp.Errors)
	assert.Equal(t, int64(1), data.Get(`allAuthors.#(name=="New Author").bookCount`).Int())
	assert.JSONEq(t, `[{"title":"T"}]`, data.Get("allBooks").Raw)
}

func TestMutation_AddBook_ValidationError(t *testing.T) {
	h := setup(t)
	ctx := h.loggedIn(t, "alice")

	_, resp := h.run(ctx, t, `mutation { addBook(title: "", author: "Sandi Metz", published: 2020, genres: []) { id } }`, nil)
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, "Saving book failed due to validation error", resp.Errors[0].Message)
	assert.Equal(t, "BAD_USER_INPUT", resp.Errors[0].Extensions["code"])
	assert.Equal(t, "", resp.Errors[0].Extensions["invalidArgs"])
}

func TestMutation_EditAuthor(t *testing.T) {
	h := setup(t)
	ctx := h.loggedIn(t, "alice")

	data, resp := h.run(ctx, t, `mutation { editAuthor(name: "Sandi Metz", setBornTo: 1953) { name born bookCount } }`, nil)
	require.Empty(t, resp.Errors)
	assert.JSONEq(t, `{"name":"Sandi Metz","born":1953,"bookCount":1}`, data.Get("editAuthor").Raw)

	data, resp = h.run(ctx, t, `mutation { editAuthor(name: "Nobody", setBornTo: 1953) { name } }`, nil)
	assert.Equal(t, gjson.Null, data.Get("editAuthor").Type)
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, "Author not found", resp.Errors[0].Message)
	assert.Equal(t, "Nobody", resp.Errors[0].Extensions["invalidArgs"])

	data, resp = h.run(context.Background(), t, `mutation { editAuthor(name: "Sandi Metz", setBornTo: 1) { born } }`, nil)
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, "UNAUTHENTICATED", resp.Errors[0].Extensions["code"])
	assert.Equal(t, gjson.Null, data.Get("editAuthor").Type)
}

func TestMutation_CreateUserAndLogin(t *testing.T) {
	h := setup(t)
	ctx := context.Background()

	data, resp := h.run(ctx, t, `mutation { createUser(username: "bob", favoriteGenre: "classic") { username favoriteGenre id } }`, nil)
	require.Empty(t, resp.Errors)
	assert.Equal(t, "bob", data.Get("createUser.username").String())
	userID := data.Get("createUser.id").String()

	_, resp = h.run(ctx, t, `mutation { createUser(username: "bob", favoriteGenre: "classic") { id } }`, nil)
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, "Creating the user failed due to validation error", resp.Errors[0].Message)
	assert.Equal(t, "bob", resp.Errors[0].Extensions["invalidArgs"])

	data, resp = h.run(ctx, t, `mutation { login(username: "bob", password: "secret") { value } }`, nil)
	require.Empty(t, resp.Errors)
	claims, err := h.tokens.Verify(data.Get("login.value").String())
	require.NoError(t, err)
	assert.Equal(t, "bob", claims.Username)
	assert.Equal(t, userID, claims.UserID)

	data, resp = h.run(ctx, t, `mutation { login(username: "bob", password: "wrong") { value } }`, nil)
	assert.Equal(t, gjson.Null, data.Get("login").Type)
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, "Wrong credentials", resp.Errors[0].Message)
	assert.Equal(t, "BAD_USER_INPUT", resp.Errors[0].Extensions["code"])
}

func TestSubscription_BookAdded(t *testing.T) {
	h := setup(t)
	ctx, cancel := context.WithCancel(h.loggedIn(t, "alice"))
	defer cancel()

	op, errs := h.schema.Prepare(graph.Params{Query: `subscription { bookAdded { title author { name } } }`})
	require.Empty(t, errs)
	stream, err := h.schema.Subscribe(ctx, op)
	require.NoError(t, err)

	_, resp := h.run(ctx, t, `mutation { addBook(title: "Live", author: "Streamer", published: 2024, genres: []) { id } }`, nil)
	require.Empty(t, resp.Errors)

	select {
	case event := <-stream:
		require.Empty(t, event.Errors)
		assert.JSONEq(t, `{"bookAdded":{"title":"Live","author":{"name":"Streamer"}}}`, string(event.Data))
	case <-time.After(2 * time.Second):
		t.Fatal("no bookAdded event")
	}

	select {
	case event := <-stream:
		t.Fatalf("unexpected second event: %s", event.Data)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBookAuthor_MissingAuthorIsAnError(t *testing.T) {
	h := setup(t)
	ctx := context.Background()

	orphan := &domain.Book{Title: "Orphan", Published: 2000, AuthorID: "author-gone"}
	require.NoError(t, h.store.CreateBook(ctx, orphan))

	data, resp := h.run(ctx, t, `{ allBooks(genre: "") { title author { name } } }`, nil)
	require.Len(t, resp.Errors, 1)
	assert.Contains(t, resp.Errors[0].Message, "got nil for non-null")
	assert.Equal(t, "INTERNAL_SERVER_ERROR", resp.Errors[0].Extensions["code"])
	assert.Equal(t, gjson.Null, data.Get("allBooks").Type)
}

func TestMutation_IntOutOfRangeIsRejected(t *testing.T) {
	h := setup(t)
	ctx := h.loggedIn(t, "alice")

	tests := []struct {
		name  string
		query string
		vars  map[string]any
	}{
		{
			"published literal",
			`mutation { addBook(title: "Huge", author: "Big Numbers", published: 3000000000, genres: []) { id } }`,
			nil,
		},
		{
			"published variable",
			`mutation A($p: Int!) { addBook(title: "Huge", author: "Big Numbers", published: $p, genres: []) { id } }`,
			map[string]any{"p": float64(3e9)},
		},
		{
			"setBornTo literal",
			`mutation { editAuthor(name: "Sandi Metz", setBornTo: -3000000000) { born } }`,
			nil,
		},
		{
			"setBornTo variable",
			`mutation A($b: Int!) { editAuthor(name: "Sandi Metz", setBornTo: $b) { born } }`,
			map[string]any{"b": float64(-3e9)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, resp := h.run(ctx, t, tt.query, tt.vars)
			require.NotEmpty(t, resp.Errors)
			assert.Equal(t, "BAD_USER_INPUT", resp.Errors[0].Extensions["code"])
			assert.False(t, data.Exists(), string(resp.Data))
		})
	}

	count, err := h.store.CountBooks(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, count)

	data, resp := h.run(ctx, t, `{ allBooks { title published author { name born } } }`, nil)
	require.Empty(t, resp.Errors)
	assert.Len(t, data.Get("allBooks").Array(), 7)
	assert.False(t, data.Get(`allBooks.#(author.name=="Big Numbers")`).Exists())
	assert.Equal(t, gjson.Null, data.Get(`allBooks.#(author.name=="Sandi Metz").author.born`).Type)
}

func TestLoaders_BatchPerOperation(t *testing.T) {
	h := setup(t)

	data, resp := h.run(context.Background(), t, `{ allBooks { title author { name } } }`, nil)
	require.Empty(t, resp.Errors)
	assert.Len(t, data.Get("allBooks").Array(), 7)
	assert.Equal(t, int32(1), h.catalog.authorBatches.Load())

	data, resp = h.run(context.Background(), t, `{ allAuthors { name bookCount } }`, nil)
	require.Empty(t, resp.Errors)
	assert.NotEmpty(t, data.Get("allAuthors").Array())
	assert.Zero(t, h.catalog.countBatches.Load(), "allAuthors counts come with the listing")
}
