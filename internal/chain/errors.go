package chain

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the chain package.
var (
	ErrNotFound  = errors.New("chain: record not found")
	ErrIntegrity = errors.New("chain: integrity check failed")
)

// IntegrityError is returned by Append when the chain with the candidate
// appended fails validation. It carries every violation that was found.
type IntegrityError struct {
	Violations []Violation
}

func (e *IntegrityError) Error() string {
	descs := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		descs[i] = v.String()
	}
	return fmt.Sprintf("%s: %s", ErrIntegrity, strings.Join(descs, ", "))
}

// Is reports ErrIntegrity as a match so callers can use errors.Is.
func (e *IntegrityError) Is(target error) bool {
	return target == ErrIntegrity
}
