package gol

import (
	"fmt"
	"math"
)

// Params provides the details of how to run the simulation.
type Params struct {
	Size      int     // N, the universe is N x N
	Ticks     int     // generations to run
	Ranks     int     // row bands, one per rank
	Threads   int     // workers per rank
	Threshold float64 // a cell starts ALIVE iff its draw is above this
	Seed      int64
}

// RowsPerRank is the height of one rank's band.
func (p Params) RowsPerRank() int {
	return p.Size / p.Ranks
}

// RowsPerThread is the number of band rows each worker computes.
func (p Params) RowsPerThread() int {
	return p.RowsPerRank() / p.Threads
}

// Validate checks the decomposition before any work is done. Every error
// wraps ErrInvalidConfig.
func (p Params) Validate() error {
	switch {
	case p.Size < 1:
		return fmt.Errorf("%w: size %d must be positive", ErrInvalidConfig, p.Size)
	case p.Ticks < 0:
		return fmt.Errorf("%w: ticks %d must not be negative", ErrInvalidConfig, p.Ticks)
	case p.Ranks < 1:
		return fmt.Errorf("%w: rank count %d must be positive", ErrInvalidConfig, p.Ranks)
	case p.Threads < 1:
		return fmt.Errorf("%w: thread count %d must be positive", ErrInvalidConfig, p.Threads)
	case p.Size%p.Ranks != 0:
		return fmt.Errorf("%w: %d ranks do not divide %d rows", ErrInvalidConfig, p.Ranks, p.Size)
	case p.RowsPerRank()%p.Threads != 0:
		return fmt.Errorf("%w: %d threads do not divide %d rows per rank", ErrInvalidConfig, p.Threads, p.RowsPerRank())
	case math.IsNaN(p.Threshold) || p.Threshold < 0 || p.Threshold > 1:
		return fmt.Errorf("%w: threshold %v outside [0, 1]", ErrInvalidConfig, p.Threshold)
	}
	return nil
}

func (p Params) String() string {
	return fmt.Sprintf("%dx%d, %d ticks, %d ranks x %d threads", p.Size, p.Size, p.Ticks, p.Ranks, p.Threads)
}
