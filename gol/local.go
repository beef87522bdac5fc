package gol

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"uk.ac.bris.cs/torusgol/comm"
)

// Simulate runs every rank of p as goroutines of this process, connected by
// a comm.Fabric. world seeds the universe when it is not nil, otherwise
// each band is drawn from NewRowSource(p.Seed). It returns the final
// universe and one report per rank.
func Simulate(ctx context.Context, p Params, world [][]byte, opts ...Option) ([][]byte, []Report, error) {
	if err := p.Validate(); err != nil {
		return nil, nil, err
	}
	fabric := comm.NewFabric(p.Ranks)
	transports := make([]comm.Transport, p.Ranks)
	for rank := range transports {
		transports[rank] = fabric.Endpoint(rank)
	}
	return SimulateOver(ctx, p, transports, world, opts...)
}

// SimulateOver is Simulate on caller-supplied transports, one per rank and
// in rank order. The transports are closed before it returns.
func SimulateOver(ctx context.Context, p Params, transports []comm.Transport, world [][]byte, opts ...Option) ([][]byte, []Report, error) {
	if err := p.Validate(); err != nil {
		return nil, nil, err
	}
	if len(transports) != p.Ranks {
		return nil, nil, fmt.Errorf("%w: %d transports for %d ranks", ErrInvalidConfig, len(transports), p.Ranks)
	}
	defer func() {
		for _, t := range transports {
			t.Close()
		}
	}()

	ranks := make([]*Rank, p.Ranks)
	for i, t := range transports {
		r, err := NewRank(p, comm.New(t), opts...)
		if err != nil {
			return nil, nil, err
		}
		if world != nil {
			if err := r.Partition().Load(world); err != nil {
				return nil, nil, err
			}
		} else {
			r.Partition().SeedRandom(NewRowSource(p.Seed), p.Threshold)
		}
		ranks[i] = r
	}

	reports := make([]Report, p.Ranks)
	errs := make([]error, p.Ranks)
	group, gctx := errgroup.WithContext(ctx)
	for i, r := range ranks {
		i, r := i, r
		group.Go(func() error {
			reports[i], errs[i] = r.Run(gctx)
			return errs[i]
		})
	}
	if err := group.Wait(); err != nil {
		return nil, reports, rootCause(errs, err)
	}

	final := make([][]byte, 0, p.Size)
	for _, r := range ranks {
		final = append(final, r.Partition().Snapshot()...)
	}
	return final, reports, nil
}

// rootCause picks the error of the rank that failed first in its own right,
// rather than one that was aborted or cancelled because of it.
func rootCause(errs []error, first error) error {
	for _, err := range errs {
		if err != nil && !errors.Is(err, comm.ErrAborted) && !errors.Is(err, context.Canceled) {
			return err
		}
	}
	return first
}
