package util

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBarrierSingleParty(t *testing.T) {
	b := NewBarrier(1)
	for i := 0; i < 3; i++ {
		require.NoError(t, b.Wait())
	}
}

func TestBarrierRounds(t *testing.T) {
	const parties = 4
	const rounds = 50

	b := NewBarrier(parties)
	var arrived [rounds]int32
	var wg sync.WaitGroup
	wg.Add(parties)
	for p := 0; p < parties; p++ {
		go func() {
			defer wg.Done()
			for r := 0; r < rounds; r++ {
				atomic.AddInt32(&arrived[r], 1)
				assert.NoError(t, b.Wait())
				// Nobody gets past round r before everyone has reached it
				assert.Equal(t, int32(parties), atomic.LoadInt32(&arrived[r]))
			}
		}()
	}
	wg.Wait()
}

func TestBarrierBreakReleasesWaiters(t *testing.T) {
	b := NewBarrier(3)
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() { errs <- b.Wait() }()
	}

	time.Sleep(20 * time.Millisecond)
	b.Break()

	for i := 0; i < 2; i++ {
		select {
		case err := <-errs:
			assert.ErrorIs(t, err, ErrBarrierBroken)
		case <-time.After(time.Second):
			t.Fatal("waiter not released by Break")
		}
	}
	assert.ErrorIs(t, b.Wait(), ErrBarrierBroken)
}

func TestBarrierNeedsParties(t *testing.T) {
	assert.Panics(t, func() { NewBarrier(0) })
}

func TestIsState(t *testing.T) {
	assert.True(t, IsState(Alive))
	assert.True(t, IsState(Dead))
	assert.False(t, IsState(1))
}
