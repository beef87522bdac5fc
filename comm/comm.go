package comm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

// ErrPeerUnreachable is returned when a message cannot be handed to its
// destination rank.
var ErrPeerUnreachable = errors.New("peer unreachable")

// Transport moves messages between the ranks of one run.
type Transport interface {
	Rank() int
	Size() int
	// Deliver hands msg to the mailbox of rank msg.To. It may block until
	// the peer has accepted it, but never until a receive is posted there.
	Deliver(ctx context.Context, msg Message) error
	// Inbox is where messages addressed to this rank end up.
	Inbox() *Mailbox
	Close() error
}

// Comm is one rank's communicator. Barrier and AllReduce must be called by
// a single goroutine per rank, in the same order on every rank.
type Comm struct {
	transport   Transport
	round       int
	recvTimeout time.Duration
}

type Option func(*Comm)

// WithRecvTimeout bounds every wait for a message from another rank. A
// peer that stays silent longer is reported as ErrPeerUnreachable, so the
// timeout has to cover the slowest tick of any rank.
func WithRecvTimeout(d time.Duration) Option {
	return func(c *Comm) { c.recvTimeout = d }
}

func New(t Transport, opts ...Option) *Comm {
	c := &Comm{transport: t}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Comm) Rank() int { return c.transport.Rank() }
func (c *Comm) Size() int { return c.transport.Size() }

func (c *Comm) Close() error {
	return c.transport.Close()
}

// Barrier returns once every rank has called it for the same round.
func (c *Comm) Barrier(ctx context.Context) error {
	_, err := c.AllReduce(ctx, 0)
	return err
}

// AllReduce sums value over all ranks and returns the total on every rank.
// Rank 0 gathers the operands and releases everyone with the result.
func (c *Comm) AllReduce(ctx context.Context, value int64) (int64, error) {
	round := c.round
	c.round++

	rank, size := c.Rank(), c.Size()
	if size == 1 {
		return value, nil
	}

	if rank != 0 {
		arrive := Message{From: rank, To: 0, Tag: tagArrive, Tick: round, Value: value}
		if err := c.transport.Deliver(ctx, arrive); err != nil {
			return 0, fmt.Errorf("barrier round %d: arrive: %w", round, err)
		}
		release, err := c.take(ctx, 0, tagRelease, round)
		if err != nil {
			return 0, fmt.Errorf("barrier round %d: release: %w", round, err)
		}
		return release.Value, nil
	}

	total := value
	for from := 1; from < size; from++ {
		arrive, err := c.take(ctx, from, tagArrive, round)
		if err != nil {
			return 0, fmt.Errorf("barrier round %d: waiting for rank %d: %w", round, from, err)
		}
		total += arrive.Value
	}
	for to := 1; to < size; to++ {
		release := Message{From: 0, To: to, Tag: tagRelease, Tick: round, Value: total}
		if err := c.transport.Deliver(ctx, release); err != nil {
			return 0, fmt.Errorf("barrier round %d: release rank %d: %w", round, to, err)
		}
	}
	return total, nil
}

// take is Inbox().Take bounded by the receive timeout.
func (c *Comm) take(ctx context.Context, from, tag, tick int) (Message, error) {
	if c.recvTimeout <= 0 {
		return c.transport.Inbox().Take(ctx, from, tag, tick)
	}
	tctx, cancel := context.WithTimeout(ctx, c.recvTimeout)
	defer cancel()
	msg, err := c.transport.Inbox().Take(tctx, from, tag, tick)
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return msg, fmt.Errorf("%w: rank %d silent for %v", ErrPeerUnreachable, from, c.recvTimeout)
	}
	return msg, err
}

// Abort tells every other rank that this one has failed. Their mailboxes
// shut with ErrAborted, so no rank keeps waiting on this one. Delivery is
// best effort; the first failure is returned.
func (c *Comm) Abort(ctx context.Context) error {
	var group errgroup.Group
	for to := 0; to < c.Size(); to++ {
		if to == c.Rank() {
			continue
		}
		msg := Message{From: c.Rank(), To: to, Tag: tagAbort}
		group.Go(func() error {
			return c.transport.Deliver(ctx, msg)
		})
	}
	return group.Wait()
}
