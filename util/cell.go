package util

import "fmt"

// Cell states. A cell holds exactly one of these two values.
const (
	Dead  byte = 0x00
	Alive byte = 0xFF
)

// Cell is a position in the universe. X is the column, Y the global row.
type Cell struct {
	X, Y int
}

func (c Cell) String() string {
	return fmt.Sprintf("(%d, %d)", c.X, c.Y)
}

// IsState reports whether b is one of the two legal cell states.
func IsState(b byte) bool {
	return b == Dead || b == Alive
}
