package storage

import (
	"context"

	"github.com/PeterTheOne/honeyswap-farm/internal/model"
)

// ClassificationStore persists address classifications keyed by checksummed address.
// Implementations must be safe for concurrent use.
type ClassificationStore interface {
	// Get returns ErrNotFound when the address has no record.
	Get(ctx context.Context, address string) (model.AddressClassification, error)
	// UpsertIfAbsent inserts c unless a record for c.Address exists, and returns
	// the stored record either way. Losing an insert race is not an error.
	UpsertIfAbsent(ctx context.Context, c model.AddressClassification) (model.AddressClassification, error)
}

// CreationSink receives resolved creation records.
type CreationSink interface {
	PutCreationBatch(records []model.CreationRecord) error
}

// ClassificationSink receives classification results.
type ClassificationSink interface {
	PutClassificationBatch(records []model.AddressClassification) error
}
