// Package risk holds the percentage rules that override or annotate the crossover strategy.
package risk

import "math"

// StopLoss forces an exit once the loss from entry reaches ThresholdPct percent.
type StopLoss struct {
	ThresholdPct float64
}

// LossPct is the signed percentage move from entry to price; negative means a loss.
func (s StopLoss) LossPct(entry, price float64) float64 {
	return (price - entry) / entry * 100
}

// Breached returns the loss percentage and whether it is at or beyond the threshold.
func (s StopLoss) Breached(entry, price float64) (float64, bool) {
	loss := s.LossPct(entry, price)
	return loss, loss <= -s.ThresholdPct
}

// SpikeRule flags single-step moves larger than ThresholdPct once MinSamples prices were seen.
type SpikeRule struct {
	ThresholdPct float64
	MinSamples   int
}

// Check compares price against prev. observed counts the samples seen before price.
func (r SpikeRule) Check(observed int, prev, price float64) (float64, bool) {
	if observed < r.MinSamples || prev <= 0 {
		return 0, false
	}
	change := (price - prev) / prev * 100
	return change, math.Abs(change) > r.ThresholdPct
}
