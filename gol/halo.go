package gol

import (
	"context"

	"uk.ac.bris.cs/torusgol/comm"
)

// neighbours are the ranks owning the bands above and below rank on the torus.
func neighbours(rank, size int) (prev, next int) {
	return (rank - 1 + size) % size, (rank + 1) % size
}

// exchangeHalo fills both ghost rows with the neighbours' boundary rows for
// tick. The receives are posted before either row is sent.
func exchangeHalo(ctx context.Context, c *comm.Comm, part *Partition, tick int) error {
	first, last := part.Row(0), part.Row(part.Rows()-1)

	if c.Size() == 1 {
		copy(part.TopGhost(), last)
		copy(part.BottomGhost(), first)
		return nil
	}

	prev, next := neighbours(c.Rank(), c.Size())
	x := c.Begin(ctx, tick,
		comm.Recv{Buf: part.TopGhost(), From: prev, Tag: comm.TagLastRow},
		comm.Recv{Buf: part.BottomGhost(), From: next, Tag: comm.TagFirstRow},
	)
	x.Send(first, prev, comm.TagFirstRow)
	x.Send(last, next, comm.TagLastRow)
	return x.WaitAll()
}
