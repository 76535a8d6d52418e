// Package eventbus is an in-process, non-blocking fanout for session
// lifecycle events (login, refresh, logout, eviction).
package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

// Event types published by the core.
const (
	TypeLogin         = "session.login"
	TypeLoginFailed   = "session.login_failed"
	TypeRefreshed     = "session.refreshed"
	TypeRefreshFailed = "session.refresh_failed"
	TypeLogout        = "session.logout"
	TypeEvicted       = "session.evicted"
	TypeReminderSet   = "reminder.set"
	TypeReminderStop  = "reminder.stopped"
)

// Event is a small signal. Publish never blocks; a slow subscriber loses
// events once its buffer is full.
type Event struct {
	Type   string
	Time   time.Time
	UserID int64
	Detail string
	Err    error
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
	Dropped() uint64
}

// New returns an in-memory bus. It owns no goroutines.
func New() Bus {
	return &memBus{subs: map[uint64]chan Event{}}
}

type memBus struct {
	mu      sync.RWMutex
	subs    map[uint64]chan Event
	seq     atomic.Uint64
	dropped atomic.Uint64
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	// Sending under the read lock keeps Unsubscribe from closing a channel
	// mid-send.
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
			b.dropped.Add(1)
		}
	}
}

func (b *memBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Event, buffer)
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			close(ch)
			b.mu.Unlock()
		})
	}
}

func (b *memBus) Dropped() uint64 { return b.dropped.Load() }
