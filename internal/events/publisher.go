package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Publisher stamps and forwards events to a sink. In sync mode (default)
// Emit delivers inline; with an async buffer a background goroutine drains
// the inbox and Emit never blocks, dropping events when the buffer is full.
type Publisher struct {
	sink   Sink
	buffer int

	inbox     chan Event
	drained   chan struct{}
	closeOnce sync.Once
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithAsyncBuffer switches the publisher to buffered asynchronous delivery.
func WithAsyncBuffer(n int) Option {
	return func(p *Publisher) {
		p.buffer = n
	}
}

func NewPublisher(sink Sink, opts ...Option) *Publisher {
	p := &Publisher{sink: sink}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	if p.buffer > 0 {
		p.inbox = make(chan Event, p.buffer)
		p.drained = make(chan struct{})
		go p.drain()
	}
	return p
}

// Emit stamps missing fields and delivers the event.
func (p *Publisher) Emit(ctx context.Context, event Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if p.inbox == nil {
		return p.sink.Publish(ctx, event)
	}
	select {
	case p.inbox <- event:
	default:
		// Buffer full: notifications are at-least-once for consumers that
		// keep up; a stalled sink must not stall the ledger.
	}
	return nil
}

func (p *Publisher) drain() {
	for event := range p.inbox {
		_ = p.sink.Publish(context.Background(), event)
	}
	close(p.drained)
}

// Close flushes buffered events and stops the drain goroutine.
func (p *Publisher) Close() {
	p.closeOnce.Do(func() {
		if p.inbox != nil {
			close(p.inbox)
			<-p.drained
		}
	})
}
