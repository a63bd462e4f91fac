package metadata

import (
	"context"
	"maps"
	"sync"
)

// MemoryRepository keeps values in process memory. It is used for
// ephemeral sessions and in tests.
type MemoryRepository struct {
	mu   sync.Mutex
	data map[string][]byte
}

// NewMemoryRepository returns an empty in-process repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{data: make(map[string][]byte)}
}

func (r *MemoryRepository) Get(_ context.Context, key string) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.data[key]
	if !ok {
		return nil, nil
	}
	return append([]byte{}, v...), nil
}

func (r *MemoryRepository) Set(_ context.Context, key string, value []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[key] = append([]byte{}, value...)
	return nil
}

func (r *MemoryRepository) Delete(_ context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.data, key)
	return nil
}

func (r *MemoryRepository) List(_ context.Context) (map[string][]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string][]byte, len(r.data))
	for k, v := range r.data {
		out[k] = append([]byte{}, v...)
	}
	return out, nil
}

func (r *MemoryRepository) Clear(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.data)
	return nil
}

// Batch applies fn to a scratch copy and swaps it in only when fn succeeds.
func (r *MemoryRepository) Batch(ctx context.Context, fn func(ctx context.Context, tx Repository) error) error {
	r.mu.Lock()
	scratch := &MemoryRepository{data: maps.Clone(r.data)}
	r.mu.Unlock()

	if err := fn(ctx, scratch); err != nil {
		return err
	}

	r.mu.Lock()
	r.data = scratch.data
	r.mu.Unlock()
	return nil
}
