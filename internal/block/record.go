// Package block defines the ledger record and the operations the chain needs
// from it: shell construction, content hashing, self-checking and payload
// decoding.
package block

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Record is a single entry in the star ledger.
//
// Hash, Height, Time and PreviousHash are assigned by the chain during append
// and are never modified once the record is committed. An empty PreviousHash
// marks the genesis record.
type Record struct {
	Hash         string `json:"hash"`
	Height       int    `json:"height"`
	Time         int64  `json:"time"` // Unix seconds
	PreviousHash string `json:"previous_hash,omitempty"`
	Body         []byte `json:"body"`
}

// New returns a shell record carrying body. Linkage fields and the hash are
// left unset until the record is appended.
func New(body []byte) *Record {
	b := make([]byte, len(body))
	copy(b, body)
	return &Record{Body: b}
}

// ComputeHash returns the hex-encoded SHA-256 digest over every field of r
// except Hash itself. The body is hex-encoded so that no field can contain
// the separator.
func ComputeHash(r *Record) string {
	h := sha256.New()
	fmt.Fprintf(h, "%d|%d|%s|%x", r.Height, r.Time, r.PreviousHash, r.Body)
	return hex.EncodeToString(h.Sum(nil))
}

// SelfCheck reports whether the stored hash matches the hash recomputed from
// the record's current fields.
func (r *Record) SelfCheck() bool {
	return r.Hash != "" && r.Hash == ComputeHash(r)
}

// Decode decodes the record body with codec. Failures wrap ErrDecode.
func (r *Record) Decode(codec Codec) (Payload, error) {
	p, err := codec.Decode(r.Body)
	if err != nil {
		return Payload{}, fmt.Errorf("record %d: %w", r.Height, err)
	}
	return p, nil
}

// Clone returns a deep copy of r.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	cp := *r
	cp.Body = make([]byte, len(r.Body))
	copy(cp.Body, r.Body)
	return &cp
}
