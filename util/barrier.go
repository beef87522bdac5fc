package util

import (
	"errors"
	"sync"
)

// ErrBarrierBroken is returned by Wait once the barrier has been broken.
var ErrBarrierBroken = errors.New("barrier broken")

// Barrier blocks callers of Wait until a fixed number of parties have
// arrived, then releases them all and resets for the next round.
type Barrier struct {
	cond       *sync.Cond
	parties    int
	waiting    int
	generation uint64
	broken     bool
}

// NewBarrier creates a reusable barrier for the given number of parties.
func NewBarrier(parties int) *Barrier {
	if parties < 1 {
		panic("util: barrier needs at least one party")
	}
	return &Barrier{
		cond:    sync.NewCond(new(sync.Mutex)),
		parties: parties,
	}
}

// Parties is the number of callers each round waits for.
func (b *Barrier) Parties() int {
	return b.parties
}

// Wait blocks until all parties of the current round have called Wait.
func (b *Barrier) Wait() error {
	b.cond.L.Lock()
	defer b.cond.L.Unlock()

	if b.broken {
		return ErrBarrierBroken
	}

	generation := b.generation
	b.waiting++
	if b.waiting == b.parties {
		// Last to arrive opens the next round
		b.waiting = 0
		b.generation++
		b.cond.Broadcast()
		return nil
	}

	for generation == b.generation && !b.broken {
		b.cond.Wait()
	}
	if generation == b.generation {
		return ErrBarrierBroken
	}
	return nil
}

// Break releases every current and future waiter with ErrBarrierBroken.
func (b *Barrier) Break() {
	b.cond.L.Lock()
	b.broken = true
	b.cond.Broadcast()
	b.cond.L.Unlock()
}
