package eventbus

import (
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/tiation/riggerhire/internal/event"
)

type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]chan *event.Event
}

func New() *Bus {
	return &Bus{
		subscribers: make(map[string]chan *event.Event),
	}
}

func (b *Bus) Subscribe(bufSize int) (string, <-chan *event.Event) {
	id := ulid.Make().String()
	ch := make(chan *event.Event, bufSize)
	b.mu.Lock()
	b.subscribers[id] = ch
	b.mu.Unlock()
	return id, ch
}

func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	if ch, ok := b.subscribers[id]; ok {
		close(ch)
		delete(b.subscribers, id)
	}
	b.mu.Unlock()
}

func (b *Bus) Publish(e *event.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- e:
		default:
			// buffer full, drop event for this subscriber
		}
	}
}

func (b *Bus) PublishNew(eventType event.Type, taskID string, version int64, metadata map[string]string) {
	b.Publish(&event.Event{
		ID:        ulid.Make().String(),
		Type:      eventType,
		TaskID:    taskID,
		Version:   version,
		Metadata:  metadata,
		CreatedAt: time.Now(),
	})
}
