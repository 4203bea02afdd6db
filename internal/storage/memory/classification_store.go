package memory

import (
	"context"
	"sync"

	"github.com/PeterTheOne/honeyswap-farm/internal/model"
	"github.com/PeterTheOne/honeyswap-farm/internal/storage"
)

// ClassificationStore is an in-memory implementation of storage.ClassificationStore.
type ClassificationStore struct {
	mu   sync.RWMutex
	data map[string]model.AddressClassification
}

// NewClassificationStore creates a new in-memory classification store.
func NewClassificationStore() *ClassificationStore {
	return &ClassificationStore{data: make(map[string]model.AddressClassification)}
}

// Compile-time interface check.
var _ storage.ClassificationStore = (*ClassificationStore)(nil)

// Get returns storage.ErrNotFound when the address has no record.
func (s *ClassificationStore) Get(ctx context.Context, address string) (model.AddressClassification, error) {
	if err := ctx.Err(); err != nil {
		return model.AddressClassification{}, err
	}
	s.mu.RLock()
	c, ok := s.data[address]
	s.mu.RUnlock()
	if !ok {
		return model.AddressClassification{}, storage.ErrNotFound
	}
	return c, nil
}

// UpsertIfAbsent stores c unless the address already has a record and returns the stored record.
func (s *ClassificationStore) UpsertIfAbsent(ctx context.Context, c model.AddressClassification) (model.AddressClassification, error) {
	if err := ctx.Err(); err != nil {
		return model.AddressClassification{}, err
	}
	if c.Address == "" {
		return model.AddressClassification{}, storage.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.data[c.Address]; ok {
		return existing, nil
	}
	s.data[c.Address] = c
	return c, nil
}

// Len returns the number of stored records.
func (s *ClassificationStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
