package localstate

import (
	"context"
	"encoding/json/v2"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// Entity stores values of one type under a key prefix.
type Entity[T any] struct {
	store  *Store
	prefix string
}

// NewEntity creates an Entity for T stored under prefix.
func NewEntity[T any](s *Store, prefix string) *Entity[T] {
	return &Entity[T]{store: s, prefix: prefix}
}

func (e *Entity[T]) key(id string) []byte {
	return []byte(e.prefix + id)
}

// Create stores a new value with the given ID.
// Returns ErrAlreadyExists if a value with this ID is already stored.
func (e *Entity[T]) Create(ctx context.Context, id string, v *T) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s%s: %w", e.prefix, id, err)
	}

	return e.store.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(e.key(id))
		if err == nil {
			return ErrAlreadyExists
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("failed to check existing key: %w", err)
		}
		if err := txn.Set(e.key(id), data); err != nil {
			return fmt.Errorf("failed to set key: %w", err)
		}
		return nil
	})
}

// Put stores v under id, replacing any previous value.
func (e *Entity[T]) Put(ctx context.Context, id string, v *T) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s%s: %w", e.prefix, id, err)
	}

	return e.store.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(e.key(id), data); err != nil {
			return fmt.Errorf("failed to set key: %w", err)
		}
		return nil
	})
}

// Get loads the value stored under id.
// Returns ErrNotFound if nothing is stored.
func (e *Entity[T]) Get(ctx context.Context, id string) (*T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var v T
	err := e.store.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(e.key(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to get key: %w", err)
		}
		return item.Value(func(val []byte) error {
			if err := json.Unmarshal(val, &v); err != nil {
				return fmt.Errorf("%w: %s%s: %w", ErrCorrupt, e.prefix, id, err)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// Delete removes the value stored under id. Deleting a missing value is not
// an error.
func (e *Entity[T]) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return e.store.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete(e.key(id)); err != nil {
			return fmt.Errorf("failed to delete key: %w", err)
		}
		return nil
	})
}
