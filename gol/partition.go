package gol

import (
	"fmt"
	"sync/atomic"

	"uk.ac.bris.cs/torusgol/util"
)

// Partition is one rank's band of the universe: two row-major buffers used
// in alternation plus a ghost row above and below.
type Partition struct {
	width int
	rows  int
	start int

	current []byte
	next    []byte
	top     []byte
	bottom  []byte

	swapping atomic.Bool
}

// NewPartition allocates the band owned by rank.
func NewPartition(p Params, rank int) (part *Partition, err error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if rank < 0 || rank >= p.Ranks {
		return nil, fmt.Errorf("%w: rank %d outside of %d ranks", ErrInvalidConfig, rank, p.Ranks)
	}

	rows := p.RowsPerRank()
	defer func() {
		if r := recover(); r != nil {
			part, err = nil, fmt.Errorf("%w: %d x %d band for rank %d: %v", ErrAllocation, rows, p.Size, rank, r)
		}
	}()

	return &Partition{
		width:   p.Size,
		rows:    rows,
		start:   rank * rows,
		current: make([]byte, rows*p.Size),
		next:    make([]byte, rows*p.Size),
		top:     make([]byte, p.Size),
		bottom:  make([]byte, p.Size),
	}, nil
}

func (p *Partition) Width() int { return p.width }
func (p *Partition) Rows() int  { return p.rows }

// Start is the global index of the first owned row.
func (p *Partition) Start() int { return p.start }

// Get reads the current state. Row -1 is the top ghost and row Rows() the
// bottom ghost. Columns wrap.
func (p *Partition) Get(row, col int) byte {
	col = (col%p.width + p.width) % p.width
	switch {
	case row == -1:
		return p.top[col]
	case row == p.rows:
		return p.bottom[col]
	case row >= 0 && row < p.rows:
		return p.current[row*p.width+col]
	}
	panic(fmt.Sprintf("gol: row %d outside [-1, %d]", row, p.rows))
}

// SetNext writes the state a cell will have after the next Swap.
func (p *Partition) SetNext(row, col int, state byte) {
	p.next[row*p.width+col] = state
}

// Swap makes the next buffer current.
func (p *Partition) Swap() {
	if !p.swapping.CompareAndSwap(false, true) {
		panic("gol: concurrent Swap")
	}
	p.current, p.next = p.next, p.current
	p.swapping.Store(false)
}

// Row is the current state of an owned row. The slice aliases the buffer.
func (p *Partition) Row(row int) []byte {
	return p.current[row*p.width : (row+1)*p.width : (row+1)*p.width]
}

func (p *Partition) TopGhost() []byte    { return p.top }
func (p *Partition) BottomGhost() []byte { return p.bottom }

// Snapshot copies the owned rows out.
func (p *Partition) Snapshot() [][]byte {
	band := make([][]byte, p.rows)
	for y := range band {
		band[y] = append([]byte(nil), p.Row(y)...)
	}
	return band
}

func (p *Partition) AliveCount() int {
	count := 0
	for _, cell := range p.current {
		if cell == util.Alive {
			count++
		}
	}
	return count
}

// AliveCells lists the alive cells in global coordinates.
func (p *Partition) AliveCells() []util.Cell {
	var cells []util.Cell
	for y := 0; y < p.rows; y++ {
		for x, cell := range p.Row(y) {
			if cell == util.Alive {
				cells = append(cells, util.Cell{X: x, Y: p.start + y})
			}
		}
	}
	return cells
}

// SeedRandom draws one value per owned cell from the stream of its global
// row, left to right. A cell is ALIVE iff its draw is above threshold.
func (p *Partition) SeedRandom(src RowSource, threshold float64) {
	for y := 0; y < p.rows; y++ {
		stream := src.Stream(p.start + y)
		row := p.Row(y)
		for x := range row {
			if stream.Float64() > threshold {
				row[x] = util.Alive
			} else {
				row[x] = util.Dead
			}
		}
	}
}

// Load copies the owned band out of a whole universe.
func (p *Partition) Load(world [][]byte) error {
	if len(world) != p.width {
		return fmt.Errorf("%w: universe has %d rows, want %d", ErrInvalidConfig, len(world), p.width)
	}
	for y := 0; y < p.rows; y++ {
		src := world[p.start+y]
		if len(src) != p.width {
			return fmt.Errorf("%w: row %d has %d cells, want %d", ErrInvalidConfig, p.start+y, len(src), p.width)
		}
		for x, cell := range src {
			if !util.IsState(cell) {
				return fmt.Errorf("%w: cell %v holds %#x", ErrInvalidConfig, util.Cell{X: x, Y: p.start + y}, cell)
			}
		}
		copy(p.Row(y), src)
	}
	return nil
}
