package signature

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
)

// ed25519Algorithm stores the 32-byte seed as the private key.
type ed25519Algorithm struct{}

func (ed25519Algorithm) generate() ([]byte, error) {
	seed := make([]byte, ed25519.SeedSize)
	if _, err := rand.Read(seed); err != nil {
		return nil, err
	}
	return seed, nil
}

func (ed25519Algorithm) publicKey(priv []byte) ([]byte, error) {
	if len(priv) != ed25519.SeedSize {
		return nil, fmt.Errorf("%w: ed25519 seed must be %d bytes", ErrInvalidKey, ed25519.SeedSize)
	}
	return ed25519.NewKeyFromSeed(priv).Public().(ed25519.PublicKey), nil
}

func (ed25519Algorithm) sign(priv, msg []byte) ([]byte, error) {
	if len(priv) != ed25519.SeedSize {
		return nil, ErrInvalidKey
	}
	return ed25519.Sign(ed25519.NewKeyFromSeed(priv), msg), nil
}

func (ed25519Algorithm) verify(pub, msg, sig []byte) (bool, error) {
	if len(pub) != ed25519.PublicKeySize {
		return false, fmt.Errorf("%w: ed25519 public key must be %d bytes", ErrMalformed, ed25519.PublicKeySize)
	}
	if len(sig) != ed25519.SignatureSize {
		return false, nil
	}
	return ed25519.Verify(ed25519.PublicKey(pub), msg, sig), nil
}
