// Package monitoring - savings.go tracks estimated dollars saved by interventions.
//
// DESIGN: A single fixed-point counter in micro-dollars (SavingsScale units per
// USD). Integer atomics avoid both a lock and float accumulation drift; the
// conversion back to USD happens only at the query boundary.
package monitoring

import (
	"math"
	"sync/atomic"
)

// SavingsScale is the number of counter units per USD.
const SavingsScale = 1_000_000

// SavingsCounter is a process-wide, lock-free savings total.
type SavingsCounter struct {
	micros atomic.Int64
}

// NewSavingsCounter returns a zeroed counter.
func NewSavingsCounter() *SavingsCounter {
	return &SavingsCounter{}
}

// ToMicros converts USD to counter units, rounding to the nearest unit.
func ToMicros(usd float64) int64 {
	return int64(math.Round(usd * SavingsScale))
}

// Add credits usd and reports whether anything was added.
// Amounts that round to zero or below are ignored; the counter never decreases.
func (c *SavingsCounter) Add(usd float64) bool {
	m := ToMicros(usd)
	if m <= 0 {
		return false
	}
	c.micros.Add(m)
	return true
}

// Micros returns the raw counter value.
func (c *SavingsCounter) Micros() int64 {
	return c.micros.Load()
}

// TotalUSD returns the counter converted to USD.
func (c *SavingsCounter) TotalUSD() float64 {
	return float64(c.micros.Load()) / SavingsScale
}
