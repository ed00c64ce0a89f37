package probe

import (
	"math"
	"math/bits"
)

// TotalHorizon is the sum of every offset tested by a run that never
// matches: min + (min+interval) + ... up to the last offset <= max.
// It is 0 for an empty schedule and saturates at math.MaxInt64.
func TotalHorizon(min, max, interval uint) int64 {
	if interval == 0 || min > max {
		return 0
	}
	q := uint64((max - min) / interval)
	if q == math.MaxUint64 {
		return math.MaxInt64
	}
	n := q + 1

	// n*(n-1)/2 without losing the low bit: halve whichever factor is even
	a, b := n, n-1
	if a%2 == 0 {
		a /= 2
	} else {
		b /= 2
	}
	tri, ok1 := mul64(a, b)
	steps, ok2 := mul64(tri, uint64(interval))
	base, ok3 := mul64(n, uint64(min))
	sum, carry := bits.Add64(steps, base, 0)
	if !ok1 || !ok2 || !ok3 || carry != 0 || sum > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(sum)
}

// ProbeCount is the number of probes a run issues when nothing matches.
// It saturates at math.MaxInt.
func ProbeCount(min, max, interval uint) int {
	if interval == 0 || min > max {
		return 0
	}
	q := uint64((max - min) / interval)
	if q >= math.MaxInt {
		return math.MaxInt
	}
	return int(q) + 1
}

func mul64(a, b uint64) (uint64, bool) {
	hi, lo := bits.Mul64(a, b)
	return lo, hi == 0
}
