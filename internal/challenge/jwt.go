package challenge

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// jwtIssuer is the "iss" claim stamped on every challenge JWT.
const jwtIssuer = "starnotary"

// JWTCodec encodes tokens as HS256-signed JWTs. Only tokens minted with the
// same secret decode, so a caller cannot forge a fresher issuance time. The
// codec is still stateless: nothing is recorded when a token is issued.
type JWTCodec struct {
	secret []byte
}

// NewJWTCodec creates a JWTCodec. The secret must be at least 32 bytes.
func NewJWTCodec(secret []byte) (*JWTCodec, error) {
	if len(secret) < 32 {
		return nil, errors.New("challenge: jwt secret must be at least 32 bytes")
	}
	s := make([]byte, len(secret))
	copy(s, secret)
	return &JWTCodec{secret: s}, nil
}

// Encode implements Codec.
func (c *JWTCodec) Encode(t Token) (string, error) {
	if t.Identity == "" {
		return "", ErrEmptyIdentity
	}
	claims := jwt.RegisteredClaims{
		Issuer:   jwtIssuer,
		Subject:  t.Identity,
		IssuedAt: jwt.NewNumericDate(time.Unix(t.IssuedAt, 0)),
		ID:       uuid.New().String(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign challenge: %w", err)
	}
	return signed, nil
}

// Decode implements Codec. Expiry is not checked here; that is the Issuer's
// job, against its own clock.
func (c *JWTCodec) Decode(s string) (Token, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(s, claims,
		func(tok *jwt.Token) (any, error) {
			return c.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(jwtIssuer),
	)
	if err != nil {
		return Token{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if claims.Subject == "" || claims.IssuedAt == nil {
		return Token{}, fmt.Errorf("%w: missing sub or iat", ErrMalformed)
	}
	return Token{Identity: claims.Subject, IssuedAt: claims.IssuedAt.Unix()}, nil
}
