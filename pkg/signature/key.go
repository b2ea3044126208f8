package signature

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// PrivateKey is a signing key for one scheme.
type PrivateKey struct {
	scheme Scheme
	priv   []byte
	pub    []byte
}

// GenerateKey creates a random key for scheme.
func GenerateKey(scheme Scheme) (*PrivateKey, error) {
	alg, err := lookup(scheme)
	if err != nil {
		return nil, err
	}
	priv, err := alg.generate()
	if err != nil {
		return nil, fmt.Errorf("generate %s key: %w", scheme, err)
	}
	return newPrivateKey(scheme, alg, priv)
}

func newPrivateKey(scheme Scheme, alg algorithm, priv []byte) (*PrivateKey, error) {
	pub, err := alg.publicKey(priv)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{scheme: scheme, priv: priv, pub: pub}, nil
}

// ParsePrivateKey decodes the output of PrivateKey.String.
func ParsePrivateKey(s string) (*PrivateKey, error) {
	name, encoded, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return nil, fmt.Errorf("%w: expected <scheme>:<hex>", ErrInvalidKey)
	}
	alg, err := lookup(Scheme(name))
	if err != nil {
		return nil, err
	}
	priv, err := hex.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return newPrivateKey(Scheme(name), alg, priv)
}

// Scheme returns the key's scheme.
func (k *PrivateKey) Scheme() Scheme { return k.scheme }

// PublicKey returns the encoded public key.
func (k *PrivateKey) PublicKey() []byte {
	out := make([]byte, len(k.pub))
	copy(out, k.pub)
	return out
}

// Address returns the identity controlled by this key.
func (k *PrivateKey) Address() string {
	return Address(k.scheme, k.pub)
}

// Sign signs message and returns the encoded envelope.
func (k *PrivateKey) Sign(message []byte) (string, error) {
	alg, err := lookup(k.scheme)
	if err != nil {
		return "", err
	}
	sig, err := alg.sign(k.priv, message)
	if err != nil {
		return "", fmt.Errorf("sign: %w", err)
	}
	return Envelope{Scheme: k.scheme, PublicKey: k.pub, Signature: sig}.String(), nil
}

// String encodes the private key as "<scheme>:<hex>". Treat it as a secret.
func (k *PrivateKey) String() string {
	return string(k.scheme) + ":" + hex.EncodeToString(k.priv)
}
