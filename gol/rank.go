package gol

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"uk.ac.bris.cs/torusgol/comm"
	"uk.ac.bris.cs/torusgol/util"
)

// Report is what a rank knows once its run is over.
type Report struct {
	Rank  int
	Ticks int
	// Elapsed is the wall-clock time of the tick loop, measured on rank 0
	// only.
	Elapsed time.Duration
	// Alive is the number of alive cells in the whole universe.
	Alive int64
}

// HaloObserver sees both ghost rows of a rank after each exchange, before
// any worker reads them.
type HaloObserver func(rank, tick int, top, bottom []byte)

type Option func(*Rank)

func WithLogger(logger *log.Logger) Option {
	return func(r *Rank) { r.logger = logger }
}

func WithHaloObserver(observe HaloObserver) Option {
	return func(r *Rank) { r.observe = observe }
}

// WithTickLog logs every tick as it starts.
func WithTickLog(enabled bool) Option {
	return func(r *Rank) { r.tickLog = enabled }
}

// Rank holds everything one rank needs to run: its band, its communicator
// and the workers' barrier.
type Rank struct {
	params  Params
	id      int
	part    *Partition
	comm    *comm.Comm
	barrier *util.Barrier

	logger  *log.Logger
	tickLog bool
	observe HaloObserver

	tick    atomic.Int64
	once    sync.Once
	failure error
}

// NewRank allocates the band for the rank c belongs to. The band starts
// all DEAD; seed it through Partition before Run.
func NewRank(p Params, c *comm.Comm, opts ...Option) (*Rank, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if c.Size() != p.Ranks {
		return nil, fmt.Errorf("%w: communicator has %d ranks, want %d", ErrInvalidConfig, c.Size(), p.Ranks)
	}

	part, err := NewPartition(p, c.Rank())
	if err != nil {
		return nil, err
	}

	r := &Rank{
		params:  p,
		id:      c.Rank(),
		part:    part,
		comm:    c,
		barrier: util.NewBarrier(p.Threads),
		logger:  log.New(os.Stderr, fmt.Sprintf("[rank %d] ", c.Rank()), log.LstdFlags),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

func (r *Rank) ID() int               { return r.id }
func (r *Rank) Partition() *Partition { return r.part }

// Tick is the number of ticks completed so far.
func (r *Rank) Tick() int {
	return int(r.tick.Load())
}

// Run advances the band Params.Ticks times in lockstep with the other
// ranks, then reduces the alive count over all of them. If this rank fails
// it aborts the run on every other rank before returning.
func (r *Rank) Run(ctx context.Context) (Report, error) {
	report, err := r.run(ctx)
	if err != nil && !errors.Is(err, comm.ErrAborted) && !errors.Is(err, context.Canceled) {
		if aerr := r.comm.Abort(context.WithoutCancel(ctx)); aerr != nil {
			r.logger.Printf("abort: %v", aerr)
		}
	}
	return report, err
}

func (r *Rank) run(ctx context.Context) (Report, error) {
	report := Report{Rank: r.id, Ticks: r.params.Ticks}
	start := time.Now()

	group, gctx := errgroup.WithContext(ctx)
	for w := 0; w < r.params.Threads; w++ {
		w := w
		group.Go(func() error {
			return r.worker(gctx, w)
		})
	}
	err := group.Wait()
	if r.failure != nil {
		return report, r.failure
	}
	if err != nil {
		return report, &FatalError{Rank: r.id, Thread: -1, Tick: r.Tick(), Err: err}
	}

	if err := r.comm.Barrier(ctx); err != nil {
		return report, &FatalError{Rank: r.id, Thread: -1, Tick: r.params.Ticks, Err: err}
	}
	if r.id == 0 {
		report.Elapsed = time.Since(start)
	}

	alive, err := r.comm.AllReduce(ctx, int64(r.part.AliveCount()))
	if err != nil {
		return report, &FatalError{Rank: r.id, Thread: -1, Tick: r.params.Ticks, Err: err}
	}
	report.Alive = alive
	return report, nil
}

// worker computes its share of the band every tick. Worker 0 is the
// designated thread: it runs the halo exchange and the global barrier
// before the entry barrier, and swaps the buffers after the exit barrier.
func (r *Rank) worker(ctx context.Context, w int) error {
	rows := r.params.RowsPerThread()
	from, to := w*rows, (w+1)*rows

	for tick := 0; tick < r.params.Ticks; tick++ {
		if w == 0 {
			if r.tickLog {
				r.logger.Printf("rank %d, tick %d", r.id, tick)
			}
			if err := exchangeHalo(ctx, r.comm, r.part, tick); err != nil {
				return r.fail(w, tick, fmt.Errorf("halo exchange: %w", err))
			}
			if r.observe != nil {
				r.observe(r.id, tick, append([]byte(nil), r.part.TopGhost()...), append([]byte(nil), r.part.BottomGhost()...))
			}
			if err := r.comm.Barrier(ctx); err != nil {
				return r.fail(w, tick, err)
			}
		}

		if err := r.barrier.Wait(); err != nil {
			return r.fail(w, tick, err)
		}
		r.part.evolveRows(from, to)
		if err := r.barrier.Wait(); err != nil {
			return r.fail(w, tick, err)
		}

		if w == 0 {
			r.part.Swap()
			r.tick.Store(int64(tick + 1))
		}
	}
	return nil
}

// fail records the first failure of the run and releases every worker
// still waiting on the barrier.
func (r *Rank) fail(w, tick int, err error) error {
	fatal := &FatalError{Rank: r.id, Thread: w, Tick: tick, Err: err}
	r.once.Do(func() {
		r.failure = fatal
		r.logger.Printf("fatal: %v", fatal)
		r.barrier.Break()
	})
	return fatal
}
