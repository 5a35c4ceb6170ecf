// Package execution routes engine decisions to the log, metrics, the journal and the notification sink.
package execution

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"crossbot-go/internal/metrics"
	"crossbot-go/internal/notify"
	"crossbot-go/internal/paper"
	"crossbot-go/internal/signal"
)

// Executor is the engine's Submitter. It never places orders; decisions are signals only.
type Executor struct {
	log      zerolog.Logger
	sink     notify.Sink
	recorder paper.Recorder
}

// NewExecutor wires the sinks. A nil sink or recorder is replaced by a no-op.
func NewExecutor(log zerolog.Logger, sink notify.Sink, recorder paper.Recorder) *Executor {
	if sink == nil {
		sink = notify.Nop{}
	}
	return &Executor{log: log, sink: sink, recorder: recorder}
}

// Submit logs and counts the decision, records it, then hands its text to the sink.
// Only a journal failure is returned; notification problems stay inside the sink.
func (x *Executor) Submit(ctx context.Context, d signal.Decision) error {
	metrics.DecisionsTotal.WithLabelValues(string(d.Kind)).Inc()

	ev := x.log.Info()
	if d.Kind == signal.SpikeAlert || d.Kind == signal.StopLoss {
		ev = x.log.Warn()
	}
	ev = ev.Str("kind", string(d.Kind)).Str("ts", d.Timestamp).Float64("px", d.Price)
	switch d.Kind {
	case signal.SpikeAlert:
		ev = ev.Float64("change_pct", d.ChangePct).Str("direction", string(d.Direction))
	case signal.Buy, signal.Sell:
		ev = ev.Float64("short_sma", d.ShortSMA).Float64("long_sma", d.LongSMA)
	case signal.StopLoss:
		ev = ev.Float64("loss_pct", d.LossPct)
	}
	if d.ClosesPosition() {
		ev = ev.Float64("realized_profit", d.RealizedProfit)
	}
	ev.Msg("decision")

	var recErr error
	if x.recorder != nil {
		if err := x.recorder.Record(d); err != nil {
			recErr = fmt.Errorf("record decision: %w", err)
		}
	}
	x.sink.Notify(ctx, d.Text())
	return recErr
}
