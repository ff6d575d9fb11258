package graph

import (
	"context"
	"slices"
	"time"

	"github.com/graph-gophers/dataloader"
)

// batchWait is how long a loader collects keys before it reads the store.
const batchWait = 2 * time.Millisecond

type loadersKey struct{}

// loaders batches the per-object lookups of one operation.
type loaders struct {
	authors    *dataloader.Loader
	bookCounts *dataloader.Loader
}

// newLoaders builds a loader set. Queries and mutations keep results for the
// whole operation; a subscription lives across events, so it only batches.
func (r *Resolver) newLoaders(cache bool) *loaders {
	opts := []dataloader.Option{dataloader.WithWait(batchWait)}
	if !cache {
		opts = append(opts, dataloader.WithClearCacheOnBatch())
	}
	return &loaders{
		authors:    dataloader.NewBatchedLoader(r.batchAuthors, opts...),
		bookCounts: dataloader.NewBatchedLoader(r.batchBookCounts, opts...),
	}
}

func (r *Resolver) withLoaders(ctx context.Context, cache bool) context.Context {
	return context.WithValue(ctx, loadersKey{}, r.newLoaders(cache))
}

// loaders returns the operation's loader set, or a private uncached one when
// the schema was executed without going through Schema.
func (r *Resolver) loaders(ctx context.Context) *loaders {
	if l, ok := ctx.Value(loadersKey{}).(*loaders); ok {
		return l
	}
	return r.newLoaders(false)
}

func (l *loaders) author(ctx context.Context, authorID string) dataloader.Thunk {
	return l.authors.Load(ctx, dataloader.StringKey(authorID))
}

func (l *loaders) bookCount(ctx context.Context, authorID string) dataloader.Thunk {
	return l.bookCounts.Load(ctx, dataloader.StringKey(authorID))
}

// clear drops cached results after a write.
func (l *loaders) clear() {
	l.authors.ClearAll()
	l.bookCounts.ClearAll()
}

// batchAuthors answers every Book.author of a batch with one read. A missing
// author yields a nil result, not an error.
func (r *Resolver) batchAuthors(ctx context.Context, keys dataloader.Keys) []*dataloader.Result {
	ids := keys.Keys()
	authors, err := r.catalog.AuthorsByIDs(ctx, distinct(ids))

	results := make([]*dataloader.Result, len(ids))
	for i, authorID := range ids {
		if err != nil {
			results[i] = &dataloader.Result{Error: err}
			continue
		}
		results[i] = &dataloader.Result{Data: authors[authorID]}
	}
	return results
}

// batchBookCounts answers every Author.bookCount of a batch with one read.
func (r *Resolver) batchBookCounts(ctx context.Context, keys dataloader.Keys) []*dataloader.Result {
	ids := keys.Keys()
	counts, err := r.catalog.BookCounts(ctx, distinct(ids))

	results := make([]*dataloader.Result, len(ids))
	for i, authorID := range ids {
		if err != nil {
			results[i] = &dataloader.Result{Error: err}
			continue
		}
		results[i] = &dataloader.Result{Data: counts[authorID]}
	}
	return results
}

func distinct(ids []string) []string {
	return slices.Compact(slices.Sorted(slices.Values(ids)))
}
