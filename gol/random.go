package gol

import "math/rand"

// Stream is a sequence of uniform draws in [0, 1).
type Stream interface {
	Float64() float64
}

// RowSource hands out an independent stream per global row, so a row's
// initial cells do not depend on which rank owns it.
type RowSource interface {
	Stream(row int) Stream
}

type rowSource struct {
	seed uint64
}

// NewRowSource seeds one math/rand generator per row from seed and the row
// index.
func NewRowSource(seed int64) RowSource {
	return rowSource{seed: splitmix64(uint64(seed))}
}

func (s rowSource) Stream(row int) Stream {
	return rand.New(rand.NewSource(int64(splitmix64(s.seed ^ uint64(row)))))
}

func splitmix64(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}
