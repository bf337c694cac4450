package bus

import (
	"context"
	"log"
	"sync"

	"signalengine/internal/model"
)

// FanOut broadcasts closed bars from a single input channel to N named
// subscribers. If a subscriber channel is full the bar is dropped for that
// subscriber only, so a slow consumer never blocks the stream.
type FanOut struct {
	mu      sync.RWMutex
	outputs []chan model.RawBar
	names   []string
	bufSize int

	// OnDrop is called when a bar is dropped for a subscriber.
	OnDrop func(subscriber string)
}

// New creates a FanOut with the given buffer size for output channels.
func New(outputBufferSize int) *FanOut {
	return &FanOut{
		bufSize: outputBufferSize,
	}
}

// Subscribe creates and returns a new output channel. name labels drops.
func (f *FanOut) Subscribe(name string) <-chan model.RawBar {
	ch := make(chan model.RawBar, f.bufSize)
	f.mu.Lock()
	f.outputs = append(f.outputs, ch)
	f.names = append(f.names, name)
	f.mu.Unlock()
	return ch
}

// Run reads from the input channel and fans out to all subscribers.
// Blocks until ctx is cancelled or input is closed; outputs are closed on return.
func (f *FanOut) Run(ctx context.Context, input <-chan model.RawBar) {
	defer func() {
		f.mu.RLock()
		for _, ch := range f.outputs {
			close(ch)
		}
		f.mu.RUnlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case bar, ok := <-input:
			if !ok {
				return
			}
			f.mu.RLock()
			for i, ch := range f.outputs {
				select {
				case ch <- bar:
				default:
					if f.OnDrop != nil {
						f.OnDrop(f.names[i])
					} else {
						log.Printf("[bus] subscriber %s full, dropping bar %d", f.names[i], bar.OpenTime)
					}
				}
			}
			f.mu.RUnlock()
		}
	}
}

// ChannelStat is the (length, capacity) of one subscriber channel.
type ChannelStat struct {
	Name string
	Len  int
	Cap  int
}

// ChannelStats reports subscriber channel saturation.
func (f *FanOut) ChannelStats() []ChannelStat {
	f.mu.RLock()
	defer f.mu.RUnlock()
	stats := make([]ChannelStat, len(f.outputs))
	for i, ch := range f.outputs {
		stats[i] = ChannelStat{Name: f.names[i], Len: len(ch), Cap: cap(ch)}
	}
	return stats
}
