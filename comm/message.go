package comm

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"uk.ac.bris.cs/torusgol/util"
)

// Tags distinguishing the two halo directions. They stay distinct even when
// the predecessor and successor are the same rank.
const (
	TagLastRow  = 1 // a predecessor's last row, lands in the top ghost
	TagFirstRow = 2 // a successor's first row, lands in the bottom ghost

	tagArrive  = 16
	tagRelease = 17
	tagAbort   = 18
)

// ErrMalformed is returned when a buffer cannot be decoded as a Message.
var ErrMalformed = errors.New("malformed message")

// Message is one unit of rank-to-rank traffic.
type Message struct {
	From  int
	To    int
	Tag   int
	Tick  int    // tick for halo rows, round for barriers
	Cells []byte // one row of cell states
	Value int64  // reduction operand
}

// from, to, tag, tick, cell count (u32 each), value (i64)
const headerSize = 5*4 + 8

// MarshalBinary encodes the message. Cells are packed eight to a byte.
func (m *Message) MarshalBinary() ([]byte, error) {
	for _, v := range []int{m.From, m.To, m.Tag, m.Tick, len(m.Cells)} {
		if v < 0 || uint64(v) > math.MaxUint32 {
			return nil, fmt.Errorf("%w: field out of range: %d", ErrMalformed, v)
		}
	}

	data := make([]byte, headerSize+(len(m.Cells)+7)/8)
	binary.LittleEndian.PutUint32(data[0:], uint32(m.From))
	binary.LittleEndian.PutUint32(data[4:], uint32(m.To))
	binary.LittleEndian.PutUint32(data[8:], uint32(m.Tag))
	binary.LittleEndian.PutUint32(data[12:], uint32(m.Tick))
	binary.LittleEndian.PutUint32(data[16:], uint32(len(m.Cells)))
	binary.LittleEndian.PutUint64(data[20:], uint64(m.Value))

	packed := data[headerSize:]
	for i, cell := range m.Cells {
		packed[i/8] |= cell & (1 << (i % 8))
	}
	return data, nil
}

// UnmarshalBinary decodes a buffer produced by MarshalBinary.
func (m *Message) UnmarshalBinary(data []byte) error {
	if len(data) < headerSize {
		return fmt.Errorf("%w: %d bytes is shorter than the header", ErrMalformed, len(data))
	}
	n := int(binary.LittleEndian.Uint32(data[16:]))
	packed := data[headerSize:]
	if len(packed) != (n+7)/8 {
		return fmt.Errorf("%w: %d cells need %d bytes, got %d", ErrMalformed, n, (n+7)/8, len(packed))
	}

	m.From = int(binary.LittleEndian.Uint32(data[0:]))
	m.To = int(binary.LittleEndian.Uint32(data[4:]))
	m.Tag = int(binary.LittleEndian.Uint32(data[8:]))
	m.Tick = int(binary.LittleEndian.Uint32(data[12:]))
	m.Value = int64(binary.LittleEndian.Uint64(data[20:]))
	m.Cells = make([]byte, n)
	for i := range m.Cells {
		if packed[i/8]&(1<<(i%8)) != 0 {
			m.Cells[i] = util.Alive
		}
	}
	return nil
}

func (m *Message) String() string {
	return fmt.Sprintf("rank %d -> rank %d tag %d tick %d (%d cells)", m.From, m.To, m.Tag, m.Tick, len(m.Cells))
}
