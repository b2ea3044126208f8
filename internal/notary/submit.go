package notary

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmerrifield20/starnotary/internal/block"
	"github.com/jmerrifield20/starnotary/internal/chain"
	"go.uber.org/zap"
)

// Submission outcomes reported to Metrics.
const (
	ResultCommitted        = "committed"
	ResultExpired          = "expired"
	ResultInvalidChallenge = "invalid_challenge"
	ResultInvalidSignature = "invalid_signature"
	ResultInvalidStar      = "invalid_star"
	ResultIntegrity        = "integrity"
	ResultError            = "error"
)

// Submit admits a star owned by identity. token must be a challenge issued
// for identity that has not expired, and sig must be identity's signature
// over the token. On success exactly one record is committed and returned;
// on any failure the chain is unchanged. Nothing is retried.
func (s *Service) Submit(ctx context.Context, identity, token, sig string, star json.RawMessage) (*block.Record, error) {
	rec, err := s.submit(ctx, identity, token, sig, star)
	result := submitResult(err)
	s.metrics.RecordSubmission(result)
	if err != nil {
		s.logger.Info("submission rejected",
			zap.String("identity", identity),
			zap.String("result", result),
			zap.Error(err),
		)
		return nil, err
	}
	s.metrics.RecordAppend(rec.Height)
	s.logger.Info("star committed",
		zap.String("identity", identity),
		zap.Int("height", rec.Height),
		zap.String("hash", rec.Hash),
	)
	return rec, nil
}

func (s *Service) submit(ctx context.Context, identity, token, sig string, star json.RawMessage) (*block.Record, error) {
	t, err := s.issuer.Decode(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidChallenge, err)
	}

	expired, err := s.issuer.IsExpired(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidChallenge, err)
	}
	if expired {
		return nil, ErrExpiredChallenge
	}

	if t.Identity != identity {
		return nil, fmt.Errorf("%w: %w: issued for a different identity", ErrInvalidChallenge, ErrInvalidSignature)
	}

	ok, err := s.verifier.Verify([]byte(token), identity, sig)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if !ok {
		return nil, ErrInvalidSignature
	}

	if len(star) == 0 {
		return nil, fmt.Errorf("%w: star is empty", ErrInvalidStar)
	}
	body, err := s.codec.Encode(block.NewStarPayload(identity, star))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidStar, err)
	}

	rec, err := s.chain.Append(ctx, block.New(body))
	if err != nil {
		var ierr *chain.IntegrityError
		if errors.As(err, &ierr) {
			return nil, ierr
		}
		return nil, fmt.Errorf("append record: %w", err)
	}
	return rec, nil
}

func submitResult(err error) string {
	switch {
	case err == nil:
		return ResultCommitted
	case errors.Is(err, ErrExpiredChallenge):
		return ResultExpired
	case errors.Is(err, ErrInvalidChallenge):
		return ResultInvalidChallenge
	case errors.Is(err, ErrInvalidSignature):
		return ResultInvalidSignature
	case errors.Is(err, ErrInvalidStar):
		return ResultInvalidStar
	case errors.Is(err, chain.ErrIntegrity):
		return ResultIntegrity
	default:
		return ResultError
	}
}
