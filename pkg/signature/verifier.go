package signature

import "fmt"

// Verifier checks signature envelopes against claimed identities.
type Verifier struct {
	allowed map[Scheme]algorithm
}

// NewVerifier returns a Verifier accepting the given schemes, or every
// supported scheme when none are given.
func NewVerifier(schemes ...Scheme) (*Verifier, error) {
	if len(schemes) == 0 {
		schemes = Schemes()
	}
	allowed := make(map[Scheme]algorithm, len(schemes))
	for _, s := range schemes {
		alg, err := lookup(s)
		if err != nil {
			return nil, err
		}
		allowed[s] = alg
	}
	return &Verifier{allowed: allowed}, nil
}

// Verify reports whether signature is a valid signature over message by the
// key behind identity. It returns false, not an error, when the key does not
// hash to identity or the signature does not check out; errors are reserved
// for envelopes that cannot be parsed or use a scheme this verifier rejects.
func (v *Verifier) Verify(message []byte, identity, signature string) (bool, error) {
	env, err := ParseEnvelope(signature)
	if err != nil {
		return false, err
	}
	alg, ok := v.allowed[env.Scheme]
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrUnknownScheme, env.Scheme)
	}
	if Address(env.Scheme, env.PublicKey) != identity {
		return false, nil
	}
	return alg.verify(env.PublicKey, message, env.Signature)
}
