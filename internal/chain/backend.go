package chain

import (
	"context"
	"fmt"
	"sync"

	"github.com/jmerrifield20/starnotary/internal/block"
)

// Backend stores the committed record sequence. The Chain owns the append
// protocol and serialises writers; a Backend only has to keep records in
// height order and answer lookups. MemoryBackend is the process-lifetime
// implementation; a durable store can satisfy the same interface.
type Backend interface {
	// Len returns the number of stored records.
	Len(ctx context.Context) (int, error)

	// Get returns the record at height, or ErrNotFound.
	Get(ctx context.Context, height int) (*block.Record, error)

	// GetByHash returns the record whose hash is hash, or ErrNotFound.
	GetByHash(ctx context.Context, hash string) (*block.Record, error)

	// All returns every record in height order.
	All(ctx context.Context) ([]*block.Record, error)

	// Put stores r as the next record. r.Height must equal Len.
	Put(ctx context.Context, r *block.Record) error
}

// MemoryBackend is an in-memory, thread-safe Backend. Records are copied on
// the way in and on the way out so callers can never mutate committed state.
type MemoryBackend struct {
	mu      sync.RWMutex
	records []*block.Record
	byHash  map[string]int
}

// NewMemoryBackend returns an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{byHash: make(map[string]int)}
}

// Len implements Backend.
func (m *MemoryBackend) Len(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records), nil
}

// Get implements Backend.
func (m *MemoryBackend) Get(_ context.Context, height int) (*block.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if height < 0 || height >= len(m.records) {
		return nil, fmt.Errorf("height %d: %w", height, ErrNotFound)
	}
	return m.records[height].Clone(), nil
}

// GetByHash implements Backend.
func (m *MemoryBackend) GetByHash(_ context.Context, hash string) (*block.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	idx, ok := m.byHash[hash]
	if !ok {
		return nil, fmt.Errorf("hash %q: %w", hash, ErrNotFound)
	}
	return m.records[idx].Clone(), nil
}

// All implements Backend.
func (m *MemoryBackend) All(_ context.Context) ([]*block.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*block.Record, len(m.records))
	for i, r := range m.records {
		out[i] = r.Clone()
	}
	return out, nil
}

// Put implements Backend.
func (m *MemoryBackend) Put(_ context.Context, r *block.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.Height != len(m.records) {
		return fmt.Errorf("put record at height %d: backend holds %d records", r.Height, len(m.records))
	}
	m.records = append(m.records, r.Clone())
	m.byHash[r.Hash] = r.Height
	return nil
}
