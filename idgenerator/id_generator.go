// Package idgenerator hands out positive int32 correlation ids such as RCON
// request ids and fake server connection ids.
package idgenerator

import (
	"math"
	"sync/atomic"
)

// IdGenerator generates monotonically increasing positive int32 IDs in a
// concurrency-safe manner. After math.MaxInt32 the sequence wraps back to 1,
// so it never yields 0 or a negative value (RCON reserves -1 for auth failure).
type IdGenerator struct {
	id atomic.Int32
}

// NewIdGenerator creates an IdGenerator whose first Id() returns startValue+1.
// A negative startValue is treated as 0.
//
// Parameters:
//   - startValue: The value to initialize the counter to
//
// Returns:
//   - A new IdGenerator instance
func NewIdGenerator(startValue int32) *IdGenerator {
	gen := &IdGenerator{}
	if startValue > 0 {
		gen.id.Store(startValue)
	}

	return gen
}

// Id returns the next ID. It is safe for concurrent use by multiple goroutines.
//
// Returns:
//   - The next positive int32 ID
func (g *IdGenerator) Id() int32 {
	for {
		cur := g.id.Load()
		next := int32(1)
		if cur > 0 && cur < math.MaxInt32 {
			next = cur + 1
		}

		if g.id.CompareAndSwap(cur, next) {
			return next
		}
	}
}
