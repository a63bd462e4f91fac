// Package metadata is the client's small key/value store. It backs the
// persisted session and any other per-device settings.
package metadata

import (
	"context"
)

// Repository stores opaque values under string keys.
//
// Get returns (nil, nil) when key is absent. Batch runs fn against a
// repository whose writes are applied atomically: either every write made in
// fn is kept or none is.
type Repository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) (map[string][]byte, error)
	Clear(ctx context.Context) error
	Batch(ctx context.Context, fn func(ctx context.Context, tx Repository) error) error
}
