// Package bolt provides a bbolt-backed cache and operation queue for
// the sync engine. A single database file carries two buckets: one for
// cached payloads keyed by cache key, one for queued operations keyed
// by operation id. It is the default persistence choice for desktop and
// CLI clients where an embedded key-value file is enough.
package bolt

import (
	"context"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/frndly/statesync"
	syncErrors "github.com/frndly/statesync/errors"
	"github.com/frndly/statesync/logging"
)

var (
	bucketCache = []byte("cache")
	bucketQueue = []byte("queue")
)

// Store implements statesync.Store and statesync.QueueStore on one
// bbolt database file.
type Store struct {
	db     *bbolt.DB
	logger *logging.Logger
}

// Open opens (or creates) the database file and initializes its buckets.
func Open(path string) (*Store, error) {
	return OpenWithLogger(path, nil)
}

// OpenWithLogger is Open with an injected logger. A nil logger falls
// back to a component-scoped child of the package default.
func OpenWithLogger(path string, logger *logging.Logger) (*Store, error) {
	if logger == nil {
		logger = logging.Default().WithComponent("boltdb")
	}

	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, syncErrors.NewStorageError(syncErrors.OpInit, fmt.Errorf("failed to open boltdb %s: %w", path, err))
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketCache); err != nil {
			return fmt.Errorf("failed to create cache bucket: %w", err)
		}
		if _, err := tx.CreateBucketIfNotExists(bucketQueue); err != nil {
			return fmt.Errorf("failed to create queue bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, syncErrors.NewStorageError(syncErrors.OpInit, err)
	}

	logger.Debug("BoltDB sync store opened", "path", path)
	return &Store{db: db, logger: logger}, nil
}

// Get returns the cached payload for key, (nil, nil) when absent.
func (s *Store) Get(ctx context.Context, key string) (statesync.Payload, error) {
	var raw []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		if v := tx.Bucket(bucketCache).Get([]byte(key)); v != nil {
			raw = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, syncErrors.NewStorageError(syncErrors.OpLoad, err)
	}
	if raw == nil {
		return nil, nil
	}
	var p statesync.Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		s.logger.Warn("Corrupt cache entry", "key", key, "error", err)
		return nil, syncErrors.NewStorageError(syncErrors.OpLoad, fmt.Errorf("corrupt cache entry %q: %w", key, err))
	}
	return p, nil
}

// Set writes the payload for key.
func (s *Store) Set(ctx context.Context, key string, value statesync.Payload) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return syncErrors.NewStorageError(syncErrors.OpStore, err)
	}
	err = s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketCache).Put([]byte(key), raw)
	})
	if err != nil {
		return syncErrors.NewStorageError(syncErrors.OpStore, err)
	}
	return nil
}

// Delete removes the cached payload for key. Deleting an absent key is
// not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketCache).Delete([]byte(key))
	})
	if err != nil {
		return syncErrors.NewStorageError(syncErrors.OpStore, err)
	}
	return nil
}

// Append persists a queued operation.
func (s *Store) Append(ctx context.Context, op *statesync.Operation) error {
	raw, err := json.Marshal(op)
	if err != nil {
		return syncErrors.NewStorageError(syncErrors.OpQueue, err)
	}
	err = s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketQueue).Put([]byte(op.ID), raw)
	})
	if err != nil {
		return syncErrors.NewStorageError(syncErrors.OpQueue, err)
	}
	return nil
}

// Remove drops a persisted operation by id.
func (s *Store) Remove(ctx context.Context, id string) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketQueue).Delete([]byte(id))
	})
	if err != nil {
		return syncErrors.NewStorageError(syncErrors.OpQueue, err)
	}
	return nil
}

// List returns every persisted operation, in unspecified order. The
// recovery sweep re-sorts by priority when it enqueues them.
func (s *Store) List(ctx context.Context) ([]*statesync.Operation, error) {
	var ops []*statesync.Operation
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketQueue).ForEach(func(k, v []byte) error {
			var op statesync.Operation
			if err := json.Unmarshal(v, &op); err != nil {
				return fmt.Errorf("corrupt queued operation %q: %w", string(k), err)
			}
			ops = append(ops, &op)
			return nil
		})
	})
	if err != nil {
		return nil, syncErrors.NewStorageError(syncErrors.OpLoad, err)
	}
	return ops, nil
}

// Close closes the database file.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
