package comm

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// ErrSizeMismatch is returned when a received row does not fit the buffer
// that was posted for it.
var ErrSizeMismatch = errors.New("message size mismatch")

// Recv describes a receive to post: the row from rank From tagged Tag is
// copied into Buf.
type Recv struct {
	Buf  []byte
	From int
	Tag  int
}

// Exchange is one tick's worth of point-to-point traffic. Receives are
// posted by Begin, so nothing can be sent before they exist.
type Exchange struct {
	comm  *Comm
	tick  int
	ctx   context.Context
	group *errgroup.Group
}

// Begin posts recvs for the given tick and returns the exchange to send on.
func (c *Comm) Begin(ctx context.Context, tick int, recvs ...Recv) *Exchange {
	group, gctx := errgroup.WithContext(ctx)
	x := &Exchange{comm: c, tick: tick, ctx: gctx, group: group}

	inbox := c.transport.Inbox()
	for _, r := range recvs {
		r := r
		// Reserve the slot now so an early arrival and the posted receive
		// meet in the same place.
		inbox.slot(slotKey{r.From, r.Tag, tick})
		group.Go(func() error {
			msg, err := c.take(gctx, r.From, r.Tag, tick)
			if err != nil {
				return fmt.Errorf("receive from rank %d tag %d tick %d: %w", r.From, r.Tag, tick, err)
			}
			if len(msg.Cells) != len(r.Buf) {
				return fmt.Errorf("receive from rank %d tag %d tick %d: %w: got %d cells, want %d",
					r.From, r.Tag, tick, ErrSizeMismatch, len(msg.Cells), len(r.Buf))
			}
			copy(r.Buf, msg.Cells)
			return nil
		})
	}
	return x
}

// Send starts delivering a copy of row to rank to. It does not wait.
func (x *Exchange) Send(row []byte, to, tag int) {
	msg := Message{
		From:  x.comm.Rank(),
		To:    to,
		Tag:   tag,
		Tick:  x.tick,
		Cells: append([]byte(nil), row...),
	}
	x.group.Go(func() error {
		if err := x.comm.transport.Deliver(x.ctx, msg); err != nil {
			return fmt.Errorf("send to rank %d tag %d tick %d: %w", to, tag, x.tick, err)
		}
		return nil
	})
}

// WaitAll blocks until every posted receive and started send has finished.
// The first failure is returned.
func (x *Exchange) WaitAll() error {
	return x.group.Wait()
}
