package chain

import (
	"fmt"
	"strings"

	"github.com/jmerrifield20/starnotary/internal/block"
)

// Problem identifies which structural invariant a record breaks.
type Problem string

const (
	// ProblemLinkage: previous_hash differs from the predecessor's hash.
	ProblemLinkage Problem = "broken linkage"
	// ProblemGenesisLink: the first record references a predecessor.
	ProblemGenesisLink Problem = "genesis has a previous hash"
	// ProblemHeight: the stored height differs from the record's position.
	ProblemHeight Problem = "height mismatch"
	// ProblemHash: the stored hash differs from the recomputed hash.
	ProblemHash Problem = "hash mismatch"
)

// Violation describes every problem found at one index of the chain.
type Violation struct {
	Height   int       `json:"height"`
	Problems []Problem `json:"problems"`
}

func (v Violation) String() string {
	parts := make([]string, len(v.Problems))
	for i, p := range v.Problems {
		parts[i] = fmt.Sprintf("%s at index %d", p, v.Height)
	}
	return fmt.Sprintf("record %d: %s", v.Height, strings.Join(parts, "; "))
}

// Validate walks records in order and returns one Violation for each index
// that breaks linkage, position or self-consistency. It never stops at the
// first failure and never mutates records. An empty result means the chain is
// intact.
func Validate(records []*block.Record) []Violation {
	var out []Violation
	for i, r := range records {
		var problems []Problem
		if i == 0 {
			if r.PreviousHash != "" {
				problems = append(problems, ProblemGenesisLink)
			}
		} else if r.PreviousHash != records[i-1].Hash {
			problems = append(problems, ProblemLinkage)
		}
		if r.Height != i {
			problems = append(problems, ProblemHeight)
		}
		if !r.SelfCheck() {
			problems = append(problems, ProblemHash)
		}
		if len(problems) > 0 {
			out = append(out, Violation{Height: i, Problems: problems})
		}
	}
	return out
}
