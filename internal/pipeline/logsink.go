package pipeline

import (
	"log/slog"

	"signalengine/internal/model"
)

// LogSink writes one structured line per evaluation.
type LogSink struct {
	Logger *slog.Logger // nil uses slog.Default()
}

// OnUpdate implements model.Sink.
func (s LogSink) OnUpdate(u model.Update) {
	if u.Kind != model.UpdateEvaluation || u.Evaluation == nil {
		return
	}
	l := s.Logger
	if l == nil {
		l = slog.Default()
	}
	ev := u.Evaluation
	attrs := []any{
		"symbol", ev.Symbol,
		"tf", ev.TF,
		"bar_ts", ev.BarTS,
		"close", ev.Close,
		"final", u.Final,
	}
	if ev.TraceID != "" {
		attrs = append(attrs, "trace_id", ev.TraceID)
	}

	switch {
	case ev.Signal != nil:
		l.Info("evaluation: signal", append(attrs,
			"direction", ev.Signal.Direction,
			"entry", ev.Signal.Entry,
			"take_profit", ev.Signal.TakeProfit,
			"stop_loss", ev.Signal.StopLoss)...)
	case ev.Consolidation != nil && !ev.Consolidation.Ready:
		l.Info("evaluation: warming up", attrs...)
	case ev.Consolidation != nil:
		l.Info("evaluation: consolidation", append(attrs,
			"long_pct", ev.Consolidation.LongPercent,
			"short_pct", ev.Consolidation.ShortPercent)...)
	}
}
