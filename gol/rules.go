package gol

import "uk.ac.bris.cs/torusgol/util"

// NextState applies the B3/S23 rule to one cell.
func NextState(current byte, aliveNeighbours int) byte {
	if aliveNeighbours == 3 || (aliveNeighbours == 2 && current == util.Alive) {
		return util.Alive
	}
	return util.Dead
}

// AliveNeighbours counts the alive cells among the eight around (row, col).
// Ghost rows and column wrap are handled by Get.
func (p *Partition) AliveNeighbours(row, col int) int {
	alive := 0
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if dy == 0 && dx == 0 {
				continue
			}
			if p.Get(row+dy, col+dx) == util.Alive {
				alive++
			}
		}
	}
	return alive
}

// Evolve is the state (row, col) will have next tick. It only reads the
// current buffer and the ghosts.
func (p *Partition) Evolve(row, col int) byte {
	return NextState(p.Get(row, col), p.AliveNeighbours(row, col))
}

// evolveRows writes the next state of rows [from, to) into the next buffer.
func (p *Partition) evolveRows(from, to int) {
	for y := from; y < to; y++ {
		for x := 0; x < p.width; x++ {
			p.SetNext(y, x, p.Evolve(y, x))
		}
	}
}
