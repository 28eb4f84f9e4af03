package domain

import (
	"errors"
	"fmt"
)

var (
	ErrSnapshotNotFound = errors.New("session snapshot not found")
	ErrIncompleteForm   = errors.New("session form answers are incomplete")
)

// TransportError marks a network or backend failure; the circuit breaker
// counts these against its failure threshold.
type TransportError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("valuation engine %s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}

	return fmt.Sprintf("valuation engine %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
