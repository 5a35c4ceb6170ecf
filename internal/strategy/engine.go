// Package strategy implements the moving-average crossover engine with its stop-loss and spike rules.
package strategy

import (
	"context"

	"github.com/rs/zerolog"

	"crossbot-go/internal/metrics"
	"crossbot-go/internal/risk"
	"crossbot-go/internal/signal"
)

const (
	DefaultShortWindow       = 5
	DefaultLongWindow        = 20
	DefaultStopLossPct       = 5.0
	DefaultSpikeThresholdPct = 2.0
	DefaultSpikeMinSamples   = 5
)

// Params expresses the tunable knobs of the engine.
type Params struct {
	ShortWindow       int
	LongWindow        int
	StopLossPct       float64
	SpikeThresholdPct float64
	SpikeMinSamples   int
}

// DefaultParams mirrors the CLI defaults.
func DefaultParams() Params {
	return Params{
		ShortWindow:       DefaultShortWindow,
		LongWindow:        DefaultLongWindow,
		StopLossPct:       DefaultStopLossPct,
		SpikeThresholdPct: DefaultSpikeThresholdPct,
		SpikeMinSamples:   DefaultSpikeMinSamples,
	}
}

// Submitter receives every decision, in emission order, before Process returns.
type Submitter interface {
	Submit(ctx context.Context, d signal.Decision) error
}

// Engine turns one price at a time into decisions. It is not safe for concurrent use:
// callers must finish one Process call before starting the next.
type Engine struct {
	params   Params
	window   *Window
	ledger   ledger
	stop     risk.StopLoss
	spike    risk.SpikeRule
	observed int
	sub      Submitter
	log      zerolog.Logger
}

// NewEngine builds an engine in the FLAT state with an empty window. sub may be nil.
func NewEngine(params Params, sub Submitter, log zerolog.Logger) *Engine {
	w := NewWindow(params.ShortWindow, params.LongWindow)
	params.ShortWindow, params.LongWindow = w.short, w.long
	if params.SpikeMinSamples <= 0 {
		params.SpikeMinSamples = DefaultSpikeMinSamples
	}
	if params.SpikeThresholdPct <= 0 {
		params.SpikeThresholdPct = DefaultSpikeThresholdPct
	}
	return &Engine{
		params: params,
		window: w,
		stop:   risk.StopLoss{ThresholdPct: params.StopLossPct},
		spike:  risk.SpikeRule{ThresholdPct: params.SpikeThresholdPct, MinSamples: params.SpikeMinSamples},
		sub:    sub,
		log:    log,
	}
}

// Process validates the sample, advances the state machine and dispatches the resulting decisions.
// An invalid sample returns an error wrapping signal.ErrInvalidSample and leaves all state untouched.
func (e *Engine) Process(ctx context.Context, s signal.Sample) ([]signal.Decision, error) {
	if err := s.Validate(); err != nil {
		e.log.Warn().Err(err).Str("stage", "validate").Str("ts", s.Timestamp).Msg("rejected sample")
		return nil, err
	}

	prior := e.observed
	short, long := e.window.Update(s.Price)
	e.observed++

	var out []signal.Decision
	if change, hit := e.spike.Check(prior, e.window.At(1), s.Price); hit {
		dir := signal.Up
		if change < 0 {
			dir = signal.Down
		}
		out = append(out, signal.Decision{
			Kind:      signal.SpikeAlert,
			Timestamp: s.Timestamp,
			Price:     s.Price,
			ChangePct: change,
			Direction: dir,
		})
	}

	if short.OK && long.OK {
		if d, ok := e.evaluate(s, short.Value, long.Value); ok {
			out = append(out, d)
		}
	}

	e.log.Debug().
		Str("ts", s.Timestamp).
		Float64("px", s.Price).
		Bool("short_ok", short.OK).
		Float64("short_sma", short.Value).
		Bool("long_ok", long.OK).
		Float64("long_sma", long.Value).
		Str("position", e.ledger.position.String()).
		Msg("processed sample")

	e.dispatch(ctx, out)
	return out, nil
}

// evaluate runs the stop-loss check and, unless it fired, the crossover check.
func (e *Engine) evaluate(s signal.Sample, shortSMA, longSMA float64) (signal.Decision, bool) {
	if e.ledger.position == Long {
		if loss, hit := e.stop.Breached(e.ledger.entryPrice, s.Price); hit {
			profit := e.ledger.close(s.Price)
			e.publishLedger()
			return signal.Decision{
				Kind:           signal.StopLoss,
				Timestamp:      s.Timestamp,
				Price:          s.Price,
				LossPct:        loss,
				RealizedProfit: profit,
			}, true
		}
	}

	above := shortSMA > longSMA
	d := signal.Decision{
		Timestamp:   s.Timestamp,
		Price:       s.Price,
		ShortSMA:    shortSMA,
		LongSMA:     longSMA,
		ShortWindow: e.params.ShortWindow,
		LongWindow:  e.params.LongWindow,
	}
	switch {
	case e.ledger.position == Flat && above:
		e.ledger.open(s.Price)
		d.Kind = signal.Buy
		d.RealizedProfit = e.ledger.realizedProfit
	case e.ledger.position == Long && !above:
		d.Kind = signal.Sell
		d.RealizedProfit = e.ledger.close(s.Price)
	default:
		return signal.Decision{}, false
	}
	e.publishLedger()
	return d, true
}

func (e *Engine) dispatch(ctx context.Context, decisions []signal.Decision) {
	if e.sub == nil {
		return
	}
	for _, d := range decisions {
		if err := e.sub.Submit(ctx, d); err != nil {
			e.log.Warn().Err(err).Str("stage", "dispatch").Str("kind", string(d.Kind)).Str("ts", d.Timestamp).Msg("decision dispatch failed")
		}
	}
}

func (e *Engine) publishLedger() {
	metrics.RealizedProfit.Set(e.ledger.realizedProfit)
	metrics.Position.Set(float64(e.ledger.position))
}

// Params returns the effective parameters after defaults were applied.
func (e *Engine) Params() Params { return e.params }

// Position reports whether the engine is holding.
func (e *Engine) Position() Position { return e.ledger.position }

// EntryPrice returns the entry price; ok is false while flat.
func (e *Engine) EntryPrice() (float64, bool) {
	if e.ledger.position != Long {
		return 0, false
	}
	return e.ledger.entryPrice, true
}

// RealizedProfit is the cumulative profit of closed positions.
func (e *Engine) RealizedProfit() float64 { return e.ledger.realizedProfit }

// Observed counts accepted samples.
func (e *Engine) Observed() int { return e.observed }

// Window exposes the rolling window for inspection.
func (e *Engine) Window() *Window { return e.window }
