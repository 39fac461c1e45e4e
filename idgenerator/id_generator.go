// Package idgenerator hands out session identifiers.
package idgenerator

import "sync/atomic"

// IdGenerator generates monotonically increasing uint32 IDs in a
// concurrency-safe manner. The first Id() returns startValue+1, so starting
// from 0 reserves 0 as "no session".
type IdGenerator struct {
	id atomic.Uint32
}

// NewIdGenerator creates an IdGenerator whose first Id() is startValue+1.
//
// Parameters:
//   - startValue: The value to initialize the counter to
//
// Returns:
//   - A new IdGenerator instance
func NewIdGenerator(startValue uint32) *IdGenerator {
	gen := &IdGenerator{}
	gen.id.Store(startValue)
	return gen
}

// Id returns the next ID. It is safe for concurrent use by multiple goroutines.
func (g *IdGenerator) Id() uint32 {
	return g.id.Add(1)
}

// Last returns the most recently issued ID, or the start value if none has been issued.
func (g *IdGenerator) Last() uint32 {
	return g.id.Load()
}
