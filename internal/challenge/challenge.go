// Package challenge issues and checks stateless ownership-proof challenges.
//
// A challenge is a token binding an identity to its issuance time. Nothing is
// stored server-side: the token carries everything needed to check it, and
// it stays valid for a fixed window after issuance.
package challenge

import (
	"errors"
	"fmt"
	"time"
)

// DefaultWindow is how long a challenge stays valid after issuance.
const DefaultWindow = 300 * time.Second

// Sentinel errors for the challenge package.
var (
	ErrEmptyIdentity = errors.New("challenge: identity must not be empty")
	ErrMalformed     = errors.New("challenge: malformed token")
)

// Token is the decoded content of a challenge.
type Token struct {
	Identity string
	IssuedAt int64 // Unix seconds
}

// Codec converts tokens to and from their wire form. Encode must be
// round-trip stable: Decode(Encode(t)) == t.
type Codec interface {
	Encode(t Token) (string, error)
	Decode(s string) (Token, error)
}

// Issuer mints challenges and checks their freshness. Issuance and expiry
// checks read the same clock.
type Issuer struct {
	codec  Codec
	now    func() time.Time
	window time.Duration
}

// Option configures an Issuer.
type Option func(*Issuer)

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(i *Issuer) { i.now = now }
}

// WithWindow sets the validity window (default: 300 s). Tokens carry whole
// seconds, so d is rounded up to the next whole second.
func WithWindow(d time.Duration) Option {
	return func(i *Issuer) {
		if d <= 0 {
			return
		}
		if r := d % time.Second; r != 0 {
			d += time.Second - r
		}
		i.window = d
	}
}

// WithCodec sets the token codec (default: TextCodec).
func WithCodec(c Codec) Option {
	return func(i *Issuer) { i.codec = c }
}

// NewIssuer creates an Issuer.
func NewIssuer(opts ...Option) *Issuer {
	i := &Issuer{
		codec:  TextCodec{},
		now:    time.Now,
		window: DefaultWindow,
	}
	for _, o := range opts {
		o(i)
	}
	return i
}

// Request returns an encoded challenge for identity issued now.
func (i *Issuer) Request(identity string) (string, Token, error) {
	if identity == "" {
		return "", Token{}, ErrEmptyIdentity
	}
	t := Token{Identity: identity, IssuedAt: i.now().Unix()}
	s, err := i.codec.Encode(t)
	if err != nil {
		return "", Token{}, fmt.Errorf("encode challenge: %w", err)
	}
	return s, t, nil
}

// Decode decodes token with the issuer's codec. A token stamped later than
// the issuer's current time is malformed: it was not issued by this clock.
func (i *Issuer) Decode(token string) (Token, error) {
	t, err := i.codec.Decode(token)
	if err != nil {
		return Token{}, err
	}
	if now := i.now().Unix(); t.IssuedAt > now {
		return Token{}, fmt.Errorf("%w: issued at %d, after now (%d)", ErrMalformed, t.IssuedAt, now)
	}
	return t, nil
}

// IsExpired reports whether more than the window has elapsed since token was
// issued. Elapsed time is measured in whole seconds.
func (i *Issuer) IsExpired(token string) (bool, error) {
	t, err := i.Decode(token)
	if err != nil {
		return false, err
	}
	return i.expired(t), nil
}

func (i *Issuer) expired(t Token) bool {
	return i.now().Unix()-t.IssuedAt > int64(i.window/time.Second)
}

// ExpiresAt returns the last instant at which t is still valid.
func (i *Issuer) ExpiresAt(t Token) time.Time {
	return time.Unix(t.IssuedAt, 0).Add(i.window).UTC()
}

// Window returns the validity window.
func (i *Issuer) Window() time.Duration { return i.window }
