// Package pubsub fans out pipeline progress events to subscribers,
// the Go-native counterpart to original_source's
// background_service.py notify_progress callback list — subscribers
// here are channels instead of callbacks so a slow consumer can never
// block the publisher.
package pubsub

import (
	"log/slog"
	"sync"
)

// Event mirrors background_service.py's progress_data dict: an event
// name plus a free-form payload (task id, bulk id, counters).
type Event struct {
	Name    string
	Payload map[string]any
}

type Publisher struct {
	mu          sync.Mutex
	subscribers map[int]chan Event
	nextID      int
	logger      *slog.Logger
	bufferSize  int
}

func New(logger *slog.Logger, bufferSize int) *Publisher {
	if bufferSize <= 0 {
		bufferSize = 32
	}
	return &Publisher{
		subscribers: make(map[int]chan Event),
		logger:      logger,
		bufferSize:  bufferSize,
	}
}

// Subscribe returns a channel of events and an unsubscribe function.
func (p *Publisher) Subscribe() (<-chan Event, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := p.nextID
	p.nextID++
	ch := make(chan Event, p.bufferSize)
	p.subscribers[id] = ch

	unsubscribe := func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if existing, ok := p.subscribers[id]; ok {
			delete(p.subscribers, id)
			close(existing)
		}
	}
	return ch, unsubscribe
}

// Publish delivers ev to every subscriber without blocking: a
// subscriber whose buffer is full is removed, its channel closed and
// a warning logged, not back-pressured, so one stalled consumer never
// stalls the pipeline.
func (p *Publisher) Publish(ev Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for id, ch := range p.subscribers {
		select {
		case ch <- ev:
		default:
			p.logger.Warn("dropping slow subscriber", "subscriber", id, "event", ev.Name)
			delete(p.subscribers, id)
			close(ch)
		}
	}
}

func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, ch := range p.subscribers {
		close(ch)
		delete(p.subscribers, id)
	}
}
