// Package chain implements the append-only, hash-linked star ledger.
//
// Every record stores the hash of its predecessor and a content hash over its
// own fields, making tampering detectable via Validate. Appends are
// all-or-nothing: linkage fields are assigned, the whole chain is revalidated
// with the candidate in place, and the candidate is committed only when no
// violation is found.
//
// Storage is delegated to a Backend:
//   - MemoryBackend: in-process, lives for the lifetime of the process.
package chain

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jmerrifield20/starnotary/internal/block"
	"go.uber.org/zap"
)

// Chain is the single owner of the record sequence. Appends run in an
// exclusive critical section; reads and validations share a read lock.
type Chain struct {
	mu      sync.RWMutex
	backend Backend
	now     func() time.Time
	logger  *zap.Logger
}

// Option configures a Chain.
type Option func(*Chain)

// WithClock sets the time source used to stamp appended records.
func WithClock(now func() time.Time) Option {
	return func(c *Chain) { c.now = now }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Chain) { c.logger = logger }
}

// New creates a Chain over backend. The chain is uninitialised until Init is
// called or the backend already holds records.
func New(backend Backend, opts ...Option) *Chain {
	c := &Chain{
		backend: backend,
		now:     time.Now,
		logger:  zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Init seeds the genesis record carrying genesisBody when the chain is empty
// and returns the record at height 0. It is a no-op on a non-empty chain.
func (c *Chain) Init(ctx context.Context, genesisBody []byte) (*block.Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, err := c.backend.Len(ctx)
	if err != nil {
		return nil, fmt.Errorf("count records: %w", err)
	}
	if n > 0 {
		return c.backend.Get(ctx, 0)
	}

	genesis, err := c.appendLocked(ctx, block.New(genesisBody))
	if err != nil {
		return nil, fmt.Errorf("seed genesis: %w", err)
	}
	c.logger.Info("chain initialised", zap.String("genesis_hash", genesis.Hash))
	return genesis, nil
}

// Height returns the height of the last committed record, or -1 when the
// chain is empty.
func (c *Chain) Height(ctx context.Context) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n, err := c.backend.Len(ctx)
	if err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return n - 1, nil
}

// Append assigns height, time and previous hash to a copy of candidate,
// computes its hash and commits it if the resulting chain validates cleanly.
// On any violation nothing is written and an *IntegrityError is returned.
// The candidate itself is never modified.
func (c *Chain) Append(ctx context.Context, candidate *block.Record) (*block.Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.appendLocked(ctx, candidate)
}

func (c *Chain) appendLocked(ctx context.Context, candidate *block.Record) (*block.Record, error) {
	records, err := c.backend.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("read chain: %w", err)
	}

	r := candidate.Clone()
	r.Height = len(records)
	r.Time = c.now().Unix()
	r.PreviousHash = ""
	if len(records) > 0 {
		r.PreviousHash = records[len(records)-1].Hash
	}
	r.Hash = block.ComputeHash(r)

	if violations := Validate(append(records, r)); len(violations) > 0 {
		ierr := &IntegrityError{Violations: violations}
		c.logger.Warn("append rejected",
			zap.Int("height", r.Height),
			zap.Int("violations", len(violations)),
			zap.Error(ierr),
		)
		return nil, ierr
	}

	if err := c.backend.Put(ctx, r); err != nil {
		return nil, fmt.Errorf("commit record %d: %w", r.Height, err)
	}

	c.logger.Debug("record appended",
		zap.Int("height", r.Height),
		zap.String("hash", r.Hash),
		zap.String("previous_hash", r.PreviousHash),
	)
	return r.Clone(), nil
}

// Get returns the record at height.
func (c *Chain) Get(ctx context.Context, height int) (*block.Record, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.backend.Get(ctx, height)
}

// GetByHash returns the record whose hash is hash.
func (c *Chain) GetByHash(ctx context.Context, hash string) (*block.Record, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.backend.GetByHash(ctx, hash)
}

// Records returns a copy of every committed record in height order.
func (c *Chain) Records(ctx context.Context) ([]*block.Record, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.backend.All(ctx)
}

// Tip returns the hash of the most recent record, or "" when empty.
func (c *Chain) Tip(ctx context.Context) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n, err := c.backend.Len(ctx)
	if err != nil {
		return "", fmt.Errorf("count records: %w", err)
	}
	if n == 0 {
		return "", nil
	}
	r, err := c.backend.Get(ctx, n-1)
	if err != nil {
		return "", err
	}
	return r.Hash, nil
}

// Validate walks the committed chain and returns every violation found.
func (c *Chain) Validate(ctx context.Context) ([]Violation, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	records, err := c.backend.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("read chain: %w", err)
	}
	return Validate(records), nil
}
