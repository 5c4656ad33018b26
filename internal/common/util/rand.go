package util

import (
	"math/rand"
	"time"
)

// ResolveSeed returns seed, or the current time if seed is zero.
func ResolveSeed(seed int64) int64 {
	if seed == 0 {
		return time.Now().UnixNano()
	}
	return seed
}

// IntBetween returns a uniformly distributed int in [min, max].
func IntBetween(r *rand.Rand, min, max int) int {
	if max <= min {
		return min
	}
	return min + r.Intn(max-min+1)
}

// Int64Between returns a uniformly distributed int64 in [min, max].
func Int64Between(r *rand.Rand, min, max int64) int64 {
	if max <= min {
		return min
	}
	return min + r.Int63n(max-min+1)
}
