package challenge

import (
	"fmt"
	"strconv"
	"strings"
)

// textSuffix closes every text challenge so a signature over it cannot be
// replayed as a signature over some other message format.
const textSuffix = "starRegistry"

// TextCodec encodes a token as "<identity>:<issuedAt>:starRegistry", the
// message a wallet is asked to sign.
type TextCodec struct{}

// Encode implements Codec.
func (TextCodec) Encode(t Token) (string, error) {
	if t.Identity == "" {
		return "", ErrEmptyIdentity
	}
	if strings.Contains(t.Identity, ":") {
		return "", fmt.Errorf("%w: identity must not contain ':'", ErrMalformed)
	}
	return fmt.Sprintf("%s:%d:%s", t.Identity, t.IssuedAt, textSuffix), nil
}

// Decode implements Codec.
func (TextCodec) Decode(s string) (Token, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 || parts[2] != textSuffix || parts[0] == "" {
		return Token{}, ErrMalformed
	}
	issuedAt, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return Token{}, fmt.Errorf("%w: issued-at: %v", ErrMalformed, err)
	}
	return Token{Identity: parts[0], IssuedAt: issuedAt}, nil
}
