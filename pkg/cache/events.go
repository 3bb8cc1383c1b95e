package cache

import (
	"time"
)

// EventType identifies what happened to the cache.
type EventType string

const (
	EventSet            EventType = "set"
	EventDelete         EventType = "delete"
	EventEvict          EventType = "evict"
	EventExpire         EventType = "expire"
	EventPromote        EventType = "promote"
	EventMemoryPressure EventType = "memoryPressure"
	EventResize         EventType = "resize"
)

// Event describes a cache state change. Observers receive events after the
// cache lock is released, so they may call back into the cache.
type Event struct {
	Type EventType
	Key  string
	Size int64
	TTL  time.Duration
	Tier Tier
}

// Observer receives cache events.
type Observer func(Event)

// Subscribe registers an observer for all subsequent events.
func (c *Cache) Subscribe(fn Observer) {
	if fn == nil {
		return
	}
	c.obsMu.Lock()
	c.observers = append(c.observers, fn)
	c.obsMu.Unlock()
}

func (c *Cache) emit(events []Event) {
	if len(events) == 0 {
		return
	}
	c.obsMu.RLock()
	observers := c.observers
	c.obsMu.RUnlock()

	for _, ev := range events {
		for _, fn := range observers {
			fn(ev)
		}
	}
}

// eventBuffer collects events while Cache.mu is held.
type eventBuffer struct {
	events []Event
}

func (b *eventBuffer) add(ev Event) {
	b.events = append(b.events, ev)
}
