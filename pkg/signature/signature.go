// Package signature implements the ownership proofs accepted by the star
// notary: an identity is an address derived from a public key, and a
// signature envelope carries the scheme, the public key and the signature so
// the verifier can check both the key-to-address binding and the signature.
//
// Supported schemes:
//   - ed25519: crypto/ed25519.
//   - schnorr: Schnorr signatures over the Ed25519 curve (kyber).
package signature

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// Scheme names a signature algorithm.
type Scheme string

// Supported schemes.
const (
	SchemeEd25519 Scheme = "ed25519"
	SchemeSchnorr Scheme = "schnorr"
)

// AddressLen is the length in bytes of a decoded address.
const AddressLen = 20

// Sentinel errors for the signature package.
var (
	ErrMalformed     = errors.New("signature: malformed envelope")
	ErrUnknownScheme = errors.New("signature: unknown scheme")
	ErrInvalidKey    = errors.New("signature: invalid key")
)

// algorithm is the per-scheme primitive set.
type algorithm interface {
	generate() (priv []byte, err error)
	publicKey(priv []byte) ([]byte, error)
	sign(priv, msg []byte) ([]byte, error)
	verify(pub, msg, sig []byte) (bool, error)
}

var algorithms = map[Scheme]algorithm{
	SchemeEd25519: ed25519Algorithm{},
	SchemeSchnorr: newSchnorrAlgorithm(),
}

// Schemes returns every supported scheme.
func Schemes() []Scheme {
	return []Scheme{SchemeEd25519, SchemeSchnorr}
}

func lookup(s Scheme) (algorithm, error) {
	a, ok := algorithms[s]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownScheme, s)
	}
	return a, nil
}

// Address returns the identity string for a public key under scheme: the
// first 20 bytes of BLAKE2b-256(scheme || 0x00 || pub), hex-encoded.
func Address(scheme Scheme, pub []byte) string {
	buf := make([]byte, 0, len(scheme)+1+len(pub))
	buf = append(buf, scheme...)
	buf = append(buf, 0)
	buf = append(buf, pub...)
	sum := blake2b.Sum256(buf)
	return hex.EncodeToString(sum[:AddressLen])
}

// ValidAddress reports whether s is a well-formed address.
func ValidAddress(s string) bool {
	if len(s) != 2*AddressLen || strings.ToLower(s) != s {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

// Envelope is a decoded signature string.
type Envelope struct {
	Scheme    Scheme
	PublicKey []byte
	Signature []byte
}

// String encodes e as "<scheme>.<base64url pub>.<base64url sig>".
func (e Envelope) String() string {
	return string(e.Scheme) + "." +
		base64.RawURLEncoding.EncodeToString(e.PublicKey) + "." +
		base64.RawURLEncoding.EncodeToString(e.Signature)
}

// ParseEnvelope decodes a signature string.
func ParseEnvelope(s string) (Envelope, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 3 || parts[0] == "" {
		return Envelope{}, ErrMalformed
	}
	pub, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil || len(pub) == 0 {
		return Envelope{}, fmt.Errorf("%w: public key", ErrMalformed)
	}
	sig, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil || len(sig) == 0 {
		return Envelope{}, fmt.Errorf("%w: signature", ErrMalformed)
	}
	return Envelope{Scheme: Scheme(parts[0]), PublicKey: pub, Signature: sig}, nil
}
