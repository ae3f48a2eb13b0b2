package catalog

import (
	"context"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/vmihailenco/msgpack/v5"
)

// itemKeyPrefix namespaces item records so future record kinds can share the
// same database.
const itemKeyPrefix = "item:"

func itemKey(id string) []byte {
	return []byte(itemKeyPrefix + id)
}

// BadgerStore is an embedded catalog store on badger with msgpack-encoded
// item records.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadger opens (or creates) a catalog database at dir.
func OpenBadger(dir string) (*BadgerStore, error) {
	db, err := badger.Open(badger.DefaultOptions(dir).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("catalog: open badger at %s: %w", dir, err)
	}
	return &BadgerStore{db: db}, nil
}

// Close closes the underlying database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// PutBatch upserts items in one write batch.
func (s *BadgerStore) PutBatch(ctx context.Context, items []Item) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	for _, it := range items {
		if it.ID == "" {
			return fmt.Errorf("catalog: item %q has no id", it.Name)
		}
		data, err := msgpack.Marshal(it)
		if err != nil {
			return fmt.Errorf("catalog: encode item %s: %w", it.ID, err)
		}
		if err := wb.Set(itemKey(it.ID), data); err != nil {
			return fmt.Errorf("catalog: batch set %s: %w", it.ID, err)
		}
	}
	return wb.Flush()
}

// FindByIDs resolves ids to items in one read transaction. Ids that no longer
// resolve are skipped; result order follows the input ids.
func (s *BadgerStore) FindByIDs(ctx context.Context, ids []string) ([]Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	items := make([]Item, 0, len(ids))
	err := s.db.View(func(txn *badger.Txn) error {
		for _, id := range ids {
			entry, err := txn.Get(itemKey(id))
			if err == badger.ErrKeyNotFound {
				continue
			}
			if err != nil {
				return err
			}
			var it Item
			if err := entry.Value(func(val []byte) error {
				return msgpack.Unmarshal(val, &it)
			}); err != nil {
				return fmt.Errorf("decode item %s: %w", id, err)
			}
			items = append(items, it)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("catalog: find by ids: %w", err)
	}
	return items, nil
}

// AllIDs returns every item id in key order.
func (s *BadgerStore) AllIDs(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var ids []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(itemKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			key := it.Item().Key()
			ids = append(ids, string(key[len(itemKeyPrefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("catalog: list ids: %w", err)
	}
	return ids, nil
}

// SampleIDs returns the first n ids in key order. Key order is stable across
// calls, so a reduced build over the sample is reproducible.
func (s *BadgerStore) SampleIDs(ctx context.Context, n int) ([]string, error) {
	if n <= 0 {
		return nil, fmt.Errorf("catalog: sample size must be positive, got %d", n)
	}
	ids, err := s.AllIDs(ctx)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, ErrEmptyCatalog
	}
	if len(ids) > n {
		ids = ids[:n]
	}
	return ids, nil
}

// Count returns the number of item records.
func (s *BadgerStore) Count(ctx context.Context) (int, error) {
	ids, err := s.AllIDs(ctx)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}
