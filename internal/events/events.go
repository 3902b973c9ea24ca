// Package events fans out change notifications to connected dashboards.
package events

import (
	"context"
	"sync"

	"github.com/Emmanuelombaye/POS-System-sub000/internal/domain"
)

type Broker interface {
	Publish(ctx context.Context, event domain.ChangeEvent) error
	// Subscribe returns a channel of events and a cancel func that closes it.
	Subscribe() (<-chan domain.ChangeEvent, func())
}

// LocalBroker delivers events to in-process subscribers. A subscriber whose
// buffer is full misses the event rather than blocking the publisher.
type LocalBroker struct {
	mu     sync.Mutex
	subs   map[int]chan domain.ChangeEvent
	nextID int
	buffer int
}

func NewLocalBroker(buffer int) *LocalBroker {
	if buffer < 1 {
		buffer = 16
	}
	return &LocalBroker{subs: map[int]chan domain.ChangeEvent{}, buffer: buffer}
}

func (b *LocalBroker) Publish(_ context.Context, event domain.ChangeEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- event:
		default:
		}
	}
	return nil
}

func (b *LocalBroker) Subscribe() (<-chan domain.ChangeEvent, func()) {
	ch := make(chan domain.ChangeEvent, b.buffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

func (b *LocalBroker) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
