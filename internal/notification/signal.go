package notification

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"signalengine/internal/model"
)

const (
	alertQueueSize = 32
	sendTimeout    = 10 * time.Second
	seenCapacity   = 128
)

// SignalNotifier is a pipeline sink that alerts on every emitted trade
// signal. Consolidation readings and the backfill-end replay are not alerted,
// and each signal id is sent at most once.
type SignalNotifier struct {
	n     Notifier
	queue chan Alert

	mu       sync.Mutex
	seen     map[string]struct{}
	seenRing []string
	next     int

	// OnSent is called after every delivery attempt (optional).
	OnSent func(alert Alert, err error)
}

var _ model.Sink = (*SignalNotifier)(nil)

// NewSignalNotifier wraps a Notifier backend.
func NewSignalNotifier(n Notifier) *SignalNotifier {
	return &SignalNotifier{
		n:        n,
		queue:    make(chan Alert, alertQueueSize),
		seen:     make(map[string]struct{}, seenCapacity),
		seenRing: make([]string, seenCapacity),
	}
}

// OnUpdate implements model.Sink. It never blocks.
func (s *SignalNotifier) OnUpdate(u model.Update) {
	if u.Kind != model.UpdateEvaluation || u.Final || !u.Evaluation.HasSignal() {
		return
	}
	sig := u.Evaluation.Signal
	if !s.markSeen(sig.ID) {
		return
	}

	select {
	case s.queue <- SignalAlert(sig, u.Evaluation.TF):
	default:
		log.Printf("[notify] alert queue full, dropping signal %s", sig.ID)
	}
}

// markSeen records id and reports whether it was new.
func (s *SignalNotifier) markSeen(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[id]; ok {
		return false
	}
	if old := s.seenRing[s.next]; old != "" {
		delete(s.seen, old)
	}
	s.seenRing[s.next] = id
	s.next = (s.next + 1) % len(s.seenRing)
	s.seen[id] = struct{}{}
	return true
}

// Run delivers queued alerts until ctx is cancelled.
func (s *SignalNotifier) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case a := <-s.queue:
			sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
			err := s.n.Send(sendCtx, a)
			cancel()
			if err != nil {
				log.Printf("[notify] send failed for %s: %v", a.ID, err)
			}
			if s.OnSent != nil {
				s.OnSent(a, err)
			}
		}
	}
}

// SignalAlert formats a trade signal as an alert.
func SignalAlert(sig *model.TradeSignal, tfSec int64) Alert {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	return Alert{
		ID:    sig.ID,
		Level: AlertInfo,
		Title: fmt.Sprintf("%s %s (%ds)", sig.Direction, sig.Symbol, tfSec),
		Message: fmt.Sprintf("entry %s, take profit %s, stop loss %s, R/R %.2f",
			f(sig.Entry), f(sig.TakeProfit), f(sig.StopLoss), sig.RewardRisk),
		Fields: map[string]string{
			"symbol":      sig.Symbol,
			"direction":   string(sig.Direction),
			"entry":       f(sig.Entry),
			"take_profit": f(sig.TakeProfit),
			"stop_loss":   f(sig.StopLoss),
			"reward_risk": strconv.FormatFloat(sig.RewardRisk, 'f', 2, 64),
			"ts":          sig.TS.UTC().Format(time.RFC3339),
		},
	}
}
