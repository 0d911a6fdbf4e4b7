package storage

import (
	"context"
	"errors"
)

// Storage is the key-value record the cart snapshot is mirrored to.
// Implementations live in sub-packages (redis, mongo, sql) so callers only pull in
// the driver they use.
type Storage interface {
	// GetItem returns ErrNotFound when the key has never been written.
	GetItem(ctx context.Context, key string) (string, error)
	// SetItem overwrites any previous value unconditionally.
	SetItem(ctx context.Context, key, value string) error
}

var ErrNotFound = errors.New("storage key not found")
