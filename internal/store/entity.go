package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"net/url"
	"strings"

	"github.com/dgraph-io/badger/v4"
)

// Entity provides generic document operations for any domain type.
//
// Documents live under prefix+id. Secondary indexes live under prefix+"idx:"+name+":"
// and come in two flavours: unique indexes map one value to one id, multi
// indexes append the id to the key so many documents can share a value.
type Entity[T any] struct {
	store   *Store
	prefix  string
	indexes []Index[T]
}

// Index defines a secondary index on an entity.
type Index[T any] struct {
	name   string
	unique bool
	keyGen func(*T) []string
}

// NewEntity creates a new Entity instance for type T.
func NewEntity[T any](s *Store, prefix string) *Entity[T] {
	return &Entity[T]{
		store:  s,
		prefix: prefix,
	}
}

// WithUniqueIndex adds an index whose values may belong to at most one document.
// Create and Update fail with ErrAlreadyExists on conflict.
func (e *Entity[T]) WithUniqueIndex(name string, keyGen func(*T) []string) *Entity[T] {
	e.indexes = append(e.indexes, Index[T]{name: name, unique: true, keyGen: keyGen})
	return e
}

// WithMultiIndex adds an index whose values may be shared by many documents.
func (e *Entity[T]) WithMultiIndex(name string, keyGen func(*T) []string) *Entity[T] {
	e.indexes = append(e.indexes, Index[T]{name: name, keyGen: keyGen})
	return e
}

// Index values are query-escaped so they never contain the ':' separator.
func (e *Entity[T]) indexPrefix(name string) string {
	return e.prefix + "idx:" + name + ":"
}

func (e *Entity[T]) indexKey(idx Index[T], value, id string) []byte {
	key := e.indexPrefix(idx.name) + url.QueryEscape(value)
	if !idx.unique {
		key += ":" + id
	}
	return []byte(key)
}

func (e *Entity[T]) findIndex(name string) (Index[T], error) {
	for _, idx := range e.indexes {
		if idx.name == name {
			return idx, nil
		}
	}
	return Index[T]{}, fmt.Errorf("unknown index %q on %s", name, e.prefix)
}

// Create creates a new entity with the given ID.
// Returns ErrAlreadyExists if the ID or a unique index value is taken.
func (e *Entity[T]) Create(ctx context.Context, id string, entity *T) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(entity)
	if err != nil {
		return fmt.Errorf("failed to marshal entity: %w", err)
	}

	err = e.store.db.Update(func(txn *badger.Txn) error {
		key := []byte(e.prefix + id)
		_, err := txn.Get(key)
		if err == nil {
			return ErrAlreadyExists
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("failed to check existing key: %w", err)
		}

		if err := e.checkUnique(txn, entity, nil); err != nil {
			return err
		}

		if err := txn.Set(key, data); err != nil {
			return fmt.Errorf("failed to set key: %w", err)
		}
		return e.setIndexKeys(txn, id, entity)
	})
	// A conflicting commit means a concurrent writer took the id or a unique value first.
	if errors.Is(err, badger.ErrConflict) {
		return fmt.Errorf("%w: %w", ErrAlreadyExists, err)
	}
	return err
}

// Get retrieves an entity by ID.
// Returns ErrNotFound if the entity does not exist.
func (e *Entity[T]) Get(ctx context.Context, id string) (*T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var entity *T
	err := e.store.db.View(func(txn *badger.Txn) error {
		var err error
		entity, err = e.get(txn, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entity, nil
}

func (e *Entity[T]) get(txn *badger.Txn, id string) (*T, error) {
	item, err := txn.Get([]byte(e.prefix + id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get key: %w", err)
	}

	var entity T
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &entity)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal entity: %w", err)
	}
	return &entity, nil
}

// GetMany retrieves the entities for ids in one read transaction.
// Missing ids are left out of the result.
func (e *Entity[T]) GetMany(ctx context.Context, ids []string) (map[string]*T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make(map[string]*T, len(ids))
	err := e.store.db.View(func(txn *badger.Txn) error {
		for _, id := range ids {
			if _, seen := out[id]; seen {
				continue
			}
			entity, err := e.get(txn, id)
			if errors.Is(err, ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			out[id] = entity
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetByIndex retrieves an entity through a unique secondary index.
func (e *Entity[T]) GetByIndex(ctx context.Context, indexName, value string) (*T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	idx, err := e.findIndex(indexName)
	if err != nil {
		return nil, err
	}
	if !idx.unique {
		return nil, fmt.Errorf("index %q is not unique", indexName)
	}

	var entity *T
	err = e.store.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(e.indexKey(idx, value, ""))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		var id string
		if err := item.Value(func(val []byte) error {
			id = string(val)
			return nil
		}); err != nil {
			return err
		}

		entity, err = e.get(txn, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entity, nil
}

// IDsByIndex returns the ids of every document carrying value in a multi index.
func (e *Entity[T]) IDsByIndex(ctx context.Context, indexName, value string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	idx, err := e.findIndex(indexName)
	if err != nil {
		return nil, err
	}
	if idx.unique {
		return nil, fmt.Errorf("index %q is unique", indexName)
	}

	prefix := []byte(e.indexPrefix(idx.name) + url.QueryEscape(value) + ":")
	var ids []string
	err = e.store.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			ids = append(ids, string(it.Item().Key()[len(prefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// CountByIndex counts the documents per value of a multi index in a single scan.
// Values without documents are absent from the result.
func (e *Entity[T]) CountByIndex(ctx context.Context, indexName string) (map[string]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	idx, err := e.findIndex(indexName)
	if err != nil {
		return nil, err
	}
	if idx.unique {
		return nil, fmt.Errorf("index %q is unique", indexName)
	}

	prefix := []byte(e.indexPrefix(idx.name))
	counts := make(map[string]int)
	err = e.store.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			rest := string(it.Item().Key()[len(prefix):])
			escaped, _, ok := strings.Cut(rest, ":")
			if !ok {
				continue
			}
			value, err := url.QueryUnescape(escaped)
			if err != nil {
				return fmt.Errorf("corrupt index key %q: %w", it.Item().Key(), err)
			}
			counts[value]++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return counts, nil
}

// CountByIndexValues counts the documents carrying each of values in a multi
// index, all in one read transaction. Every value is present in the result.
func (e *Entity[T]) CountByIndexValues(ctx context.Context, indexName string, values []string) (map[string]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	idx, err := e.findIndex(indexName)
	if err != nil {
		return nil, err
	}
	if idx.unique {
		return nil, fmt.Errorf("index %q is unique", indexName)
	}

	counts := make(map[string]int, len(values))
	err = e.store.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		for _, value := range values {
			if _, done := counts[value]; done {
				continue
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			prefix := []byte(e.indexPrefix(idx.name) + url.QueryEscape(value) + ":")
			n := 0
			for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
				n++
			}
			counts[value] = n
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return counts, nil
}

// Update replaces an existing entity and rewrites its index keys.
// Returns ErrNotFound if the entity does not exist and ErrConflict if another
// transaction wrote it since this one started.
func (e *Entity[T]) Update(ctx context.Context, id string, entity *T) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(entity)
	if err != nil {
		return fmt.Errorf("failed to marshal entity: %w", err)
	}

	err = e.store.db.Update(func(txn *badger.Txn) error {
		old, err := e.get(txn, id)
		if err != nil {
			return err
		}

		if err := e.checkUnique(txn, entity, old); err != nil {
			return err
		}

		for _, idx := range e.indexes {
			for _, value := range idx.keyGen(old) {
				if err := txn.Delete(e.indexKey(idx, value, id)); err != nil {
					return fmt.Errorf("failed to delete old index key: %w", err)
				}
			}
		}

		if err := txn.Set([]byte(e.prefix+id), data); err != nil {
			return fmt.Errorf("failed to set key: %w", err)
		}
		return e.setIndexKeys(txn, id, entity)
	})
	if errors.Is(err, badger.ErrConflict) {
		return ErrConflict.WithCause(err)
	}
	return err
}

// checkUnique fails if any unique index value of entity is already taken.
// Values that old already holds are its own and are skipped.
func (e *Entity[T]) checkUnique(txn *badger.Txn, entity, old *T) error {
	for _, idx := range e.indexes {
		if !idx.unique {
			continue
		}

		owned := make(map[string]bool)
		if old != nil {
			for _, v := range idx.keyGen(old) {
				owned[v] = true
			}
		}

		for _, value := range idx.keyGen(entity) {
			if owned[value] {
				continue
			}
			_, err := txn.Get(e.indexKey(idx, value, ""))
			if err == nil {
				return fmt.Errorf("index %s conflict on key %s: %w", idx.name, value, ErrAlreadyExists)
			}
			if !errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("failed to check index key: %w", err)
			}
		}
	}
	return nil
}

func (e *Entity[T]) setIndexKeys(txn *badger.Txn, id string, entity *T) error {
	for _, idx := range e.indexes {
		for _, value := range idx.keyGen(entity) {
			if err := txn.Set(e.indexKey(idx, value, id), []byte(id)); err != nil {
				return fmt.Errorf("failed to set index key: %w", err)
			}
		}
	}
	return nil
}

// isIndexKey reports whether key belongs to a secondary index rather than a document.
func (e *Entity[T]) isIndexKey(key []byte) bool {
	return strings.HasPrefix(string(key[len(e.prefix):]), "idx:")
}

// List returns an iterator over all entities in key order.
func (e *Entity[T]) List(ctx context.Context) iter.Seq2[*T, error] {
	return func(yield func(*T, error) bool) {
		_ = e.store.db.View(func(txn *badger.Txn) error {
			opts := badger.DefaultIteratorOptions
			opts.Prefix = []byte(e.prefix)
			opts.PrefetchValues = true

			it := txn.NewIterator(opts)
			defer it.Close()

			for it.Rewind(); it.Valid(); it.Next() {
				if ctx.Err() != nil {
					yield(nil, ctx.Err())
					return ctx.Err()
				}

				if e.isIndexKey(it.Item().Key()) {
					continue
				}

				var entity T
				err := it.Item().Value(func(val []byte) error {
					return json.Unmarshal(val, &entity)
				})
				if err != nil {
					yield(nil, err)
					return err
				}

				if !yield(&entity, nil) {
					return nil
				}
			}
			return nil
		})
	}
}

// Count returns the number of documents, reading keys only.
func (e *Entity[T]) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	n := 0
	err := e.store.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(e.prefix)
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if !e.isIndexKey(it.Item().Key()) {
				n++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}
