package block

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ErrDecode is returned when a record body cannot be decoded into a Payload.
var ErrDecode = errors.New("block: cannot decode payload")

// Payload is the typed content of a record body. Exactly one of Genesis or
// the Owner/Star pair is meaningful.
type Payload struct {
	Genesis bool            `json:"genesis,omitempty"`
	Owner   string          `json:"owner,omitempty"`
	Star    json.RawMessage `json:"star,omitempty"`
}

// StarRecord is the owner+star structure stored in every non-genesis record.
type StarRecord struct {
	Owner string          `json:"owner"`
	Star  json.RawMessage `json:"star"`
}

// GenesisPayload returns the sentinel payload of the first record.
func GenesisPayload() Payload {
	return Payload{Genesis: true}
}

// NewStarPayload returns the payload for a star owned by owner.
func NewStarPayload(owner string, star json.RawMessage) Payload {
	return Payload{Owner: owner, Star: star}
}

// StarRecord returns the owner+star view of p. ok is false for the genesis
// sentinel.
func (p Payload) StarRecord() (StarRecord, bool) {
	if p.Genesis {
		return StarRecord{}, false
	}
	return StarRecord{Owner: p.Owner, Star: p.Star}, true
}

// Codec converts payloads to and from record bodies.
type Codec interface {
	Encode(p Payload) ([]byte, error)
	Decode(b []byte) (Payload, error)
}

// JSONCodec encodes payloads as compact JSON objects.
type JSONCodec struct{}

// Encode implements Codec.
func (JSONCodec) Encode(p Payload) ([]byte, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	if !p.Genesis {
		var buf bytes.Buffer
		if err := json.Compact(&buf, p.Star); err != nil {
			return nil, fmt.Errorf("compact star: %w", err)
		}
		p.Star = buf.Bytes()
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return b, nil
}

// Decode implements Codec.
func (JSONCodec) Decode(b []byte) (Payload, error) {
	var p Payload
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return Payload{}, fmt.Errorf("%w: trailing data after payload", ErrDecode)
	}
	if err := p.validate(); err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return p, nil
}

func (p Payload) validate() error {
	if p.Genesis {
		if p.Owner != "" || len(p.Star) != 0 {
			return errors.New("genesis payload must not carry an owner or star")
		}
		return nil
	}
	if p.Owner == "" {
		return errors.New("payload owner is empty")
	}
	if len(p.Star) == 0 || !json.Valid(p.Star) {
		return errors.New("payload star is not valid JSON")
	}
	if bytes.Equal(bytes.TrimSpace(p.Star), []byte("null")) {
		return errors.New("payload star is null")
	}
	return nil
}
