package base

import (
	"bytes"
	"cmp"
	"strconv"
)

// Comparator orders keys. It returns a negative number when a < b, zero when
// equal and a positive number when a > b.
type Comparator func(a, b []byte) int

// BytewiseCompare orders keys lexicographically by byte value.
func BytewiseCompare(a, b []byte) int {
	return bytes.Compare(a, b)
}

// NaturalCompare orders keys that parse as decimal integers numerically and
// everything else bytewise. Integers sort before non-integers so the order
// stays total; numerically equal spellings ("05", "5") fall back to bytes.
func NaturalCompare(a, b []byte) int {
	x, errA := strconv.ParseInt(string(a), 10, 64)
	y, errB := strconv.ParseInt(string(b), 10, 64)

	switch {
	case errA == nil && errB == nil:
		if c := cmp.Compare(x, y); c != 0 {
			return c
		}
	case errA == nil:
		return -1
	case errB == nil:
		return 1
	}
	return bytes.Compare(a, b)
}
