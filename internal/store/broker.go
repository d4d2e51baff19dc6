package store

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned when publishing to or subscribing on a closed notifier.
var ErrClosed = errors.New("notifier closed")

// Broker is an in-process Notifier. Slow subscribers miss events rather than
// block publishers.
type Broker struct {
	mu     sync.Mutex
	subs   map[int]chan ChangeEvent
	nextID int
	buffer int
	closed bool
}

func NewBroker(buffer int) *Broker {
	if buffer <= 0 {
		buffer = 16
	}
	return &Broker{subs: make(map[int]chan ChangeEvent), buffer: buffer}
}

func (b *Broker) Publish(_ context.Context, ev ChangeEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	return nil
}

func (b *Broker) Subscribe(ctx context.Context) (<-chan ChangeEvent, func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, nil, ErrClosed
	}

	id := b.nextID
	b.nextID++
	ch := make(chan ChangeEvent, b.buffer)
	b.subs[id] = ch

	done := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			b.mu.Lock()
			defer b.mu.Unlock()
			if c, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(c)
			}
		})
	}
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-done:
		}
	}()
	return ch, cancel, nil
}

// Subscribers returns the number of active subscriptions.
func (b *Broker) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close ends every subscription.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
	return nil
}
