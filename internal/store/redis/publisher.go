package redis

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"signalengine/internal/model"
)

const (
	defaultMaxBuffer = 10000
	queueSize        = 256
	retryInterval    = time.Second
)

// Backend is the write side driven by a Publisher. *Writer implements it.
type Backend interface {
	WriteBar(ctx context.Context, bar *model.AggregatedBar) error
	WriteEvaluation(ctx context.Context, ev *model.Evaluation) error
}

// pendingWrite is one bar or evaluation waiting to be written.
type pendingWrite struct {
	bar *model.AggregatedBar
	ev  *model.Evaluation
}

// Publisher is a pipeline sink that writes completed bars and evaluations
// through a circuit breaker. While the breaker is open, writes are buffered
// locally (dropping the oldest beyond the bound) and replayed in order once
// a write succeeds again.
type Publisher struct {
	backend Backend
	cb      *CircuitBreaker
	in      chan pendingWrite

	mu     sync.Mutex
	buffer []pendingWrite
	maxBuf int

	// Callbacks (optional)
	OnBuffer func()                // a write was buffered
	OnFlush  func(count int)       // buffered writes were replayed
	OnWrite  func(d time.Duration) // latency of every backend write
}

var _ model.Sink = (*Publisher)(nil)

// NewPublisher creates a Publisher. maxBufferSize <= 0 uses 10000.
func NewPublisher(backend Backend, cb *CircuitBreaker, maxBufferSize int) *Publisher {
	if maxBufferSize <= 0 {
		maxBufferSize = defaultMaxBuffer
	}
	return &Publisher{
		backend: backend,
		cb:      cb,
		in:      make(chan pendingWrite, queueSize),
		buffer:  make([]pendingWrite, 0, 64),
		maxBuf:  maxBufferSize,
	}
}

// OnUpdate implements model.Sink. It never blocks: when the queue is full
// the write goes straight to the local buffer.
func (p *Publisher) OnUpdate(u model.Update) {
	if u.Kind != model.UpdateEvaluation || u.Evaluation == nil {
		return
	}
	if u.Bar != nil {
		p.enqueue(pendingWrite{bar: u.Bar})
	}
	p.enqueue(pendingWrite{ev: u.Evaluation})
}

func (p *Publisher) enqueue(pw pendingWrite) {
	select {
	case p.in <- pw:
	default:
		p.bufferWrite(pw)
	}
}

// Run drains the queue until ctx is cancelled. Buffered writes are retried
// every second and ahead of any new write.
func (p *Publisher) Run(ctx context.Context) {
	ticker := time.NewTicker(retryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if n := p.PendingCount(); n > 0 {
				log.Printf("[redis] shutting down with %d unpublished writes", n)
			}
			return
		case pw := <-p.in:
			p.publish(ctx, pw)
		case <-ticker.C:
			if p.PendingCount() > 0 {
				p.flush(ctx)
			}
		}
	}
}

func (p *Publisher) publish(ctx context.Context, pw pendingWrite) {
	if p.PendingCount() > 0 {
		p.bufferWrite(pw)
		p.flush(ctx)
		return
	}
	if err := p.exec(ctx, pw); err != nil {
		p.bufferWrite(pw)
	}
}

func (p *Publisher) exec(ctx context.Context, pw pendingWrite) error {
	err := p.cb.Execute(func() error {
		start := time.Now()
		var err error
		if pw.bar != nil {
			err = p.backend.WriteBar(ctx, pw.bar)
		} else {
			err = p.backend.WriteEvaluation(ctx, pw.ev)
		}
		if p.OnWrite != nil {
			p.OnWrite(time.Since(start))
		}
		return err
	})
	if err != nil && !errors.Is(err, ErrCircuitOpen) {
		log.Printf("[redis] publish error: %v", err)
	}
	return err
}

func (p *Publisher) bufferWrite(pw pendingWrite) {
	p.mu.Lock()
	if len(p.buffer) >= p.maxBuf {
		p.buffer = p.buffer[1:]
	}
	p.buffer = append(p.buffer, pw)
	p.mu.Unlock()

	if p.OnBuffer != nil {
		p.OnBuffer()
	}
}

// flush replays buffered writes oldest first, stopping at the first failure.
func (p *Publisher) flush(ctx context.Context) {
	flushed := 0
	for {
		p.mu.Lock()
		if len(p.buffer) == 0 {
			p.mu.Unlock()
			break
		}
		pw := p.buffer[0]
		p.mu.Unlock()

		if err := p.exec(ctx, pw); err != nil {
			break
		}

		p.mu.Lock()
		if len(p.buffer) > 0 && p.buffer[0] == pw {
			p.buffer = p.buffer[1:]
		}
		p.mu.Unlock()
		flushed++
	}

	if flushed > 0 {
		log.Printf("[redis] flushed %d buffered writes", flushed)
		if p.OnFlush != nil {
			p.OnFlush(flushed)
		}
	}
}

// PendingCount returns the number of buffered writes waiting to be flushed.
func (p *Publisher) PendingCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.buffer)
}
