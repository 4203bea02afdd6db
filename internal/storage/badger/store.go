// Package badger stores address classifications in an embedded badger database.
package badger

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/PeterTheOne/honeyswap-farm/internal/model"
	"github.com/PeterTheOne/honeyswap-farm/internal/storage"
)

const (
	keyPrefix = "addr:"

	flagAccount  byte = 0
	flagContract byte = 1

	// maxConflictRetries bounds optimistic transaction retries on badger.ErrConflict.
	maxConflictRetries = 16
)

// Store is a badger-backed storage.ClassificationStore.
type Store struct {
	db *badger.DB
}

// Compile-time interface check.
var _ storage.ClassificationStore = (*Store)(nil)

// Open opens (or creates) a badger database in dir.
func Open(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("badger dir is required")
	}
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger %s: %w", dir, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Get(ctx context.Context, address string) (model.AddressClassification, error) {
	if err := ctx.Err(); err != nil {
		return model.AddressClassification{}, err
	}
	var c model.AddressClassification
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		c, err = readClassification(txn, address)
		return err
	})
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return model.AddressClassification{}, err
		}
		return model.AddressClassification{}, fmt.Errorf("get address %s: %w", address, err)
	}
	return c, nil
}

// UpsertIfAbsent writes c in a read-then-set transaction. A key written by a
// concurrent transaction surfaces as badger.ErrConflict and the transaction is
// replayed, so the earlier writer's value is returned.
func (s *Store) UpsertIfAbsent(ctx context.Context, c model.AddressClassification) (model.AddressClassification, error) {
	if c.Address == "" {
		return model.AddressClassification{}, storage.ErrInvalidInput
	}

	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return model.AddressClassification{}, err
		}
		var stored model.AddressClassification
		err := s.db.Update(func(txn *badger.Txn) error {
			existing, err := readClassification(txn, c.Address)
			if err == nil {
				stored = existing
				return nil
			}
			if !errors.Is(err, storage.ErrNotFound) {
				return err
			}
			if err := txn.Set(key(c.Address), encode(c.IsContract)); err != nil {
				return err
			}
			stored = c
			return nil
		})
		if errors.Is(err, badger.ErrConflict) {
			continue
		}
		if err != nil {
			return model.AddressClassification{}, fmt.Errorf("upsert address %s: %w", c.Address, err)
		}
		return stored, nil
	}
	return model.AddressClassification{}, fmt.Errorf("upsert address %s: %w", c.Address, badger.ErrConflict)
}

func readClassification(txn *badger.Txn, address string) (model.AddressClassification, error) {
	item, err := txn.Get(key(address))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return model.AddressClassification{}, storage.ErrNotFound
		}
		return model.AddressClassification{}, err
	}
	var isContract bool
	err = item.Value(func(val []byte) error {
		var err error
		isContract, err = decode(val)
		return err
	})
	if err != nil {
		return model.AddressClassification{}, err
	}
	return model.AddressClassification{Address: address, IsContract: isContract}, nil
}

func key(address string) []byte {
	return []byte(keyPrefix + address)
}

func encode(isContract bool) []byte {
	if isContract {
		return []byte{flagContract}
	}
	return []byte{flagAccount}
}

func decode(val []byte) (bool, error) {
	if len(val) != 1 || val[0] > flagContract {
		return false, fmt.Errorf("corrupt classification value %x", val)
	}
	return val[0] == flagContract, nil
}
