// Package irrelevance implements the scores eviction decisions are made
// against.
//
// Every stored event carries two independent irrelevance components: an
// item irrelevance fixed at digest time from a random draw scaled by the
// issue's event volume, and an age-based irrelevance derived from how
// many epochs old the event is. Eviction always operates on their sum
// and deletes events whose total is strictly greater than a threshold.
package irrelevance

import (
	"math"
	"math/bits"
	"math/rand"
)

// Source supplies the uniform random draws used when assigning item
// irrelevance. It is an explicit dependency so eviction outcomes can be
// reproduced in tests; production code uses the default source.
type Source interface {
	// Float64 returns a uniform draw in [0, 1).
	Float64() float64
}

// systemSource draws from math/rand's shared, locked top-level source.
type systemSource struct{}

func (systemSource) Float64() float64 { return rand.Float64() }

// NonzeroLeadingBits returns the non-roundness of n in binary: the
// number of leading bits up to and including the last set bit.
//
//	0b100000 -> 1
//	0b101000 -> 3
//	0b110001 -> 6
//	0        -> 0
func NonzeroLeadingBits(n uint64) int {
	if n == 0 {
		return 0
	}
	return bits.Len64(n) - bits.TrailingZeros64(n)
}

// ForAge returns the age-based irrelevance for an event that is age
// epochs old: floor(log2(age + 1)). It is 0 at age 0 and grows one step
// each time the age doubles.
func ForAge(age int64) int {
	if age < 0 {
		age = 0
	}
	return bits.Len64(uint64(age)+1) - 1
}

// AgeForIrrelevance is the exact inverse of ForAge at integer budgets:
// the oldest age still inside the budget, 2^budget - 1.
//
//	budget: 0 1 2 3  4
//	age:    0 1 3 7 15
func AgeForIrrelevance(budget int) int64 {
	return int64(1)<<budget - 1
}

// Assigner draws item-irrelevance scores for freshly digested events.
type Assigner struct {
	source Source
}

// Option applies a configuration option to the Assigner.
type Option func(*Assigner)

// WithSource replaces the randomness source. Tests inject a
// deterministic one to make eviction outcomes reproducible.
func WithSource(src Source) Option {
	return func(a *Assigner) {
		if src != nil {
			a.source = src
		}
	}
}

// NewAssigner creates an Assigner with configuration options.
func NewAssigner(opts ...Option) *Assigner {
	a := &Assigner{
		source: systemSource{},
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// ForEventCount returns an item irrelevance for a new event of an issue
// that currently has eventCount stored-or-digested events.
//
// The more events an issue already has, the less relevant any new event
// is on average, so the draw is scaled by the count before taking
// NonzeroLeadingBits. Randomization (rather than using the count
// directly) avoids repeated identical scores when the count hovers
// around a value under repeated evict/fill-up cycles; the factor 2
// corrects for the draw's mean of 0.5 so the argument's expected
// magnitude equals eventCount.
func (a *Assigner) ForEventCount(eventCount int64) int {
	if eventCount < 0 {
		eventCount = 0
	}
	n := math.Round(a.source.Float64() * float64(eventCount) * 2)
	return NonzeroLeadingBits(uint64(n))
}
