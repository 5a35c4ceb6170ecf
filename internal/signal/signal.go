// Package signal standardizes payloads shared between feed drivers, the strategy engine and its sinks.
package signal

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrInvalidSample marks a price the engine refuses to process.
var ErrInvalidSample = errors.New("invalid sample")

// Sample is one observed price, produced by a feed driver and consumed once by the engine.
type Sample struct {
	Timestamp string  `json:"timestamp"`
	Price     float64 `json:"price"`
}

// Validate reports whether the sample can safely enter the percentage-based rules.
func (s Sample) Validate() error {
	switch {
	case math.IsNaN(s.Price) || math.IsInf(s.Price, 0):
		return fmt.Errorf("%w: price %v is not finite", ErrInvalidSample, s.Price)
	case s.Price <= 0:
		return fmt.Errorf("%w: price %v must be positive", ErrInvalidSample, s.Price)
	}
	return nil
}

// Kind enumerates the decisions the engine can emit.
type Kind string

const (
	// SpikeAlert flags a single-step move larger than the alert threshold.
	SpikeAlert Kind = "spike_alert"
	// Buy opens a long position on an upward crossover.
	Buy Kind = "buy"
	// Sell closes the long position on a downward crossover.
	Sell Kind = "sell"
	// StopLoss closes the long position because the loss from entry breached the threshold.
	StopLoss Kind = "stop_loss"
)

// Direction of a spike.
type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

// Arrow returns the glyph used in alert text.
func (d Direction) Arrow() string {
	if d == Down {
		return "↓"
	}
	return "↑"
}

// Decision is a transient value emitted by the engine. Fields irrelevant to Kind stay zero.
type Decision struct {
	Kind           Kind      `json:"kind"`
	Timestamp      string    `json:"timestamp"`
	Price          float64   `json:"price"`
	ChangePct      float64   `json:"change_pct,omitempty"`
	Direction      Direction `json:"direction,omitempty"`
	ShortSMA       float64   `json:"short_sma,omitempty"`
	LongSMA        float64   `json:"long_sma,omitempty"`
	ShortWindow    int       `json:"short_window,omitempty"`
	LongWindow     int       `json:"long_window,omitempty"`
	LossPct        float64   `json:"loss_pct,omitempty"`
	RealizedProfit float64   `json:"realized_profit"`
}

// ClosesPosition reports whether the decision is a sell of either flavour.
func (d Decision) ClosesPosition() bool {
	return d.Kind == Sell || d.Kind == StopLoss
}

// Text renders the human-readable message delivered to notification channels.
func (d Decision) Text() string {
	var b strings.Builder
	switch d.Kind {
	case SpikeAlert:
		fmt.Fprintf(&b, "%s: ALERT - Price %.2f%% (%s)", d.Timestamp, d.ChangePct, d.Direction.Arrow())
		return b.String()
	case Buy:
		fmt.Fprintf(&b, "BUY SIGNAL\nPrice: $%.2f\nSMA%d: %.2f\nSMA%d: %.2f",
			d.Price, d.ShortWindow, d.ShortSMA, d.LongWindow, d.LongSMA)
		return b.String()
	case Sell:
		fmt.Fprintf(&b, "SELL SIGNAL\nPrice: $%.2f\nSMA%d: %.2f\nSMA%d: %.2f",
			d.Price, d.ShortWindow, d.ShortSMA, d.LongWindow, d.LongSMA)
	case StopLoss:
		fmt.Fprintf(&b, "STOP-LOSS TRIGGERED!\nSold at $%.2f\nLoss: %.2f%%", d.Price, d.LossPct)
	default:
		return fmt.Sprintf("%s: unknown decision %q", d.Timestamp, d.Kind)
	}
	fmt.Fprintf(&b, "\nCurrent profit: $%.2f", d.RealizedProfit)
	return b.String()
}
