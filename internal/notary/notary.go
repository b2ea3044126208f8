// Package notary is the star registry service: it issues ownership
// challenges, admits signed star submissions to the chain, and answers
// lookups over committed records.
//
// A Service is constructed once by the host application. New seeds the
// genesis record, after which the service is ready to serve.
package notary

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmerrifield20/starnotary/internal/block"
	"github.com/jmerrifield20/starnotary/internal/chain"
	"github.com/jmerrifield20/starnotary/internal/challenge"
	"go.uber.org/zap"
)

// Sentinel errors for the notary service.
var (
	ErrExpiredChallenge = errors.New("challenge has expired; request a new one")
	ErrInvalidChallenge = errors.New("invalid challenge")
	ErrInvalidSignature = errors.New("signature does not prove ownership of the identity")
	ErrInvalidStar      = errors.New("invalid star payload")
	ErrNotFound         = errors.New("record not found")
)

// SignatureVerifier checks a signature over message for identity.
// *signature.Verifier satisfies this interface.
type SignatureVerifier interface {
	Verify(message []byte, identity, signature string) (bool, error)
}

// Metrics receives service events. All methods must be safe for concurrent
// use.
type Metrics interface {
	RecordSubmission(result string)
	RecordAppend(height int)
	RecordDecodeSkip()
}

type noopMetrics struct{}

func (noopMetrics) RecordSubmission(string) {}
func (noopMetrics) RecordAppend(int)        {}
func (noopMetrics) RecordDecodeSkip()       {}

// Service is the star registry.
type Service struct {
	chain    *chain.Chain
	issuer   *challenge.Issuer
	verifier SignatureVerifier
	codec    block.Codec
	workers  int
	metrics  Metrics
	logger   *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithCodec sets the payload codec (default: block.JSONCodec).
func WithCodec(c block.Codec) Option {
	return func(s *Service) { s.codec = c }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithDecodeWorkers bounds the number of concurrent decodes in owner-scoped
// queries (default: 8).
func WithDecodeWorkers(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// New creates the Service and seeds the genesis record when c is empty.
func New(ctx context.Context, c *chain.Chain, issuer *challenge.Issuer, verifier SignatureVerifier, opts ...Option) (*Service, error) {
	s := &Service{
		chain:    c,
		issuer:   issuer,
		verifier: verifier,
		codec:    block.JSONCodec{},
		workers:  8,
		metrics:  noopMetrics{},
		logger:   zap.NewNop(),
	}
	for _, o := range opts {
		o(s)
	}

	body, err := s.codec.Encode(block.GenesisPayload())
	if err != nil {
		return nil, fmt.Errorf("encode genesis payload: %w", err)
	}
	genesis, err := c.Init(ctx, body)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordAppend(genesis.Height)
	return s, nil
}

// Height returns the height of the last committed record.
func (s *Service) Height(ctx context.Context) (int, error) {
	return s.chain.Height(ctx)
}

// Tip returns the hash of the last committed record.
func (s *Service) Tip(ctx context.Context) (string, error) {
	return s.chain.Tip(ctx)
}

// ValidateChain walks the whole chain and returns every violation found.
func (s *Service) ValidateChain(ctx context.Context) ([]chain.Violation, error) {
	return s.chain.Validate(ctx)
}

// Challenge is an issued ownership challenge. Token is the exact message the
// caller must sign.
type Challenge struct {
	Identity  string    `json:"identity"`
	Token     string    `json:"token"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// RequestChallenge issues a challenge for identity.
func (s *Service) RequestChallenge(identity string) (*Challenge, error) {
	token, t, err := s.issuer.Request(identity)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("challenge issued",
		zap.String("identity", identity),
		zap.Int64("issued_at", t.IssuedAt),
	)
	return &Challenge{
		Identity:  identity,
		Token:     token,
		IssuedAt:  time.Unix(t.IssuedAt, 0).UTC(),
		ExpiresAt: s.issuer.ExpiresAt(t),
	}, nil
}

// ChallengeWindow returns how long issued challenges stay valid.
func (s *Service) ChallengeWindow() time.Duration {
	return s.issuer.Window()
}

// Decode decodes a record's payload with the service codec.
func (s *Service) Decode(r *block.Record) (block.Payload, error) {
	return r.Decode(s.codec)
}
