package comm

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrDuplicate is returned when a second message arrives for a
	// (source, tag, tick) that is still waiting or was already taken.
	ErrDuplicate = errors.New("duplicate message")
	// ErrClosed is returned by a mailbox after Close.
	ErrClosed = errors.New("mailbox closed")
	// ErrAborted is returned by a mailbox once another rank has aborted
	// the run.
	ErrAborted = errors.New("run aborted")
)

type slotKey struct {
	from, tag, tick int
}

type streamKey struct {
	from, tag int
}

// Mailbox holds messages that arrived before (or after) the matching
// receive was posted. A receive only ever matches on source, tag and tick.
// Messages of one (source, tag) are taken in tick order.
type Mailbox struct {
	mutex *sync.Mutex
	slots map[slotKey]chan Message
	// taken is one past the highest tick consumed per (source, tag)
	taken map[streamKey]int
	done  chan struct{}
	once  sync.Once
	cause error
}

func NewMailbox() *Mailbox {
	return &Mailbox{
		mutex: new(sync.Mutex),
		slots: make(map[slotKey]chan Message),
		taken: make(map[streamKey]int),
		done:  make(chan struct{}),
	}
}

// slot returns the single-message buffer for k, creating it on first use.
func (m *Mailbox) slot(k slotKey) chan Message {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.slotLocked(k)
}

func (m *Mailbox) slotLocked(k slotKey) chan Message {
	ch, ok := m.slots[k]
	if !ok {
		ch = make(chan Message, 1)
		m.slots[k] = ch
	}
	return ch
}

// Put stores an arriving message. It never blocks. An abort message shuts
// the mailbox instead of being stored.
func (m *Mailbox) Put(msg Message) error {
	select {
	case <-m.done:
		return m.cause
	default:
	}
	if msg.Tag == tagAbort {
		m.shut(fmt.Errorf("%w by rank %d", ErrAborted, msg.From))
		return nil
	}

	m.mutex.Lock()
	if msg.Tick < m.taken[streamKey{msg.From, msg.Tag}] {
		m.mutex.Unlock()
		return fmt.Errorf("%w: %s arrived after it was taken", ErrDuplicate, &msg)
	}
	ch := m.slotLocked(slotKey{msg.From, msg.Tag, msg.Tick})
	m.mutex.Unlock()

	select {
	case ch <- msg:
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrDuplicate, &msg)
	}
}

// Take blocks until the message for (from, tag, tick) is available.
func (m *Mailbox) Take(ctx context.Context, from, tag, tick int) (Message, error) {
	k := slotKey{from, tag, tick}
	ch := m.slot(k)
	select {
	case msg := <-ch:
		m.mutex.Lock()
		delete(m.slots, k)
		if s := (streamKey{from, tag}); tick >= m.taken[s] {
			m.taken[s] = tick + 1
		}
		m.mutex.Unlock()
		return msg, nil
	case <-m.done:
		return Message{}, m.cause
	case <-ctx.Done():
		m.mutex.Lock()
		if len(ch) == 0 && m.slots[k] == ch {
			delete(m.slots, k)
		}
		m.mutex.Unlock()
		return Message{}, ctx.Err()
	}
}

// Pending is the number of slots that hold or await a message.
func (m *Mailbox) Pending() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return len(m.slots)
}

// Close wakes every blocked Take with ErrClosed.
func (m *Mailbox) Close() {
	m.shut(ErrClosed)
}

// Abort wakes every blocked Take with err, which should wrap ErrAborted.
func (m *Mailbox) Abort(err error) {
	m.shut(err)
}

func (m *Mailbox) shut(cause error) {
	m.once.Do(func() {
		m.cause = cause
		close(m.done)
	})
}
