package gol

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrAllocation    = errors.New("allocation failed")
)

// FatalError is how any failure leaves a rank. Thread is -1 when the
// failure did not happen inside a worker.
type FatalError struct {
	Rank   int
	Thread int
	Tick   int
	Err    error
}

func (e *FatalError) Error() string {
	if e.Thread < 0 {
		return fmt.Sprintf("rank %d, tick %d: %v", e.Rank, e.Tick, e.Err)
	}
	return fmt.Sprintf("rank %d, thread %d, tick %d: %v", e.Rank, e.Thread, e.Tick, e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}
