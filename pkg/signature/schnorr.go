package signature

import (
	"fmt"

	"go.dedis.ch/kyber/v4"
	"go.dedis.ch/kyber/v4/group/edwards25519"
	"go.dedis.ch/kyber/v4/sign/schnorr"
)

// schnorrAlgorithm signs with kyber's Schnorr implementation over the
// Ed25519 group. Keys are the binary encodings of the scalar and point.
type schnorrAlgorithm struct {
	suite *edwards25519.SuiteEd25519
}

func newSchnorrAlgorithm() schnorrAlgorithm {
	return schnorrAlgorithm{suite: edwards25519.NewBlakeSHA256Ed25519()}
}

func (a schnorrAlgorithm) generate() ([]byte, error) {
	s := a.suite.Scalar().Pick(a.suite.RandomStream())
	return s.MarshalBinary()
}

func (a schnorrAlgorithm) scalar(priv []byte) (kyber.Scalar, error) {
	s := a.suite.Scalar()
	if err := s.UnmarshalBinary(priv); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return s, nil
}

func (a schnorrAlgorithm) publicKey(priv []byte) ([]byte, error) {
	s, err := a.scalar(priv)
	if err != nil {
		return nil, err
	}
	return a.suite.Point().Mul(s, nil).MarshalBinary()
}

func (a schnorrAlgorithm) sign(priv, msg []byte) ([]byte, error) {
	s, err := a.scalar(priv)
	if err != nil {
		return nil, err
	}
	return schnorr.Sign(a.suite, s, msg)
}

func (a schnorrAlgorithm) verify(pub, msg, sig []byte) (bool, error) {
	p := a.suite.Point()
	if err := p.UnmarshalBinary(pub); err != nil {
		return false, fmt.Errorf("%w: schnorr public key: %v", ErrMalformed, err)
	}
	return schnorr.Verify(a.suite, p, msg, sig) == nil, nil
}
