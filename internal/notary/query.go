package notary

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmerrifield20/starnotary/internal/block"
	"github.com/jmerrifield20/starnotary/internal/chain"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// GetByHash returns the record whose hash is hash.
func (s *Service) GetByHash(ctx context.Context, hash string) (*block.Record, error) {
	r, err := s.chain.GetByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, chain.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get by hash: %w", err)
	}
	return r, nil
}

// GetByHeight returns the record at height.
func (s *Service) GetByHeight(ctx context.Context, height int) (*block.Record, error) {
	r, err := s.chain.Get(ctx, height)
	if err != nil {
		if errors.Is(err, chain.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get by height: %w", err)
	}
	return r, nil
}

// GetStarsByIdentity returns every star owned by identity in chain order.
//
// Records are decoded concurrently and all decodes finish before the result
// is assembled. A record whose body cannot be decoded is skipped: the skip is
// logged with its height and counted, and collection continues with the
// remaining records.
func (s *Service) GetStarsByIdentity(ctx context.Context, identity string) ([]block.StarRecord, error) {
	records, err := s.chain.Records(ctx)
	if err != nil {
		return nil, fmt.Errorf("read chain: %w", err)
	}

	owned := make([]*block.StarRecord, len(records))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, r := range records {
		i, r := i, r
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			p, err := r.Decode(s.codec)
			if err != nil {
				s.logger.Warn("skipping undecodable record",
					zap.Int("height", r.Height),
					zap.String("hash", r.Hash),
					zap.Error(err),
				)
				s.metrics.RecordDecodeSkip()
				return nil
			}
			if sr, ok := p.StarRecord(); ok && sr.Owner == identity {
				owned[i] = &sr
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	stars := make([]block.StarRecord, 0)
	for _, sr := range owned {
		if sr != nil {
			stars = append(stars, *sr)
		}
	}
	return stars, nil
}
