// Package bus carries client and server events between the supervisor, the
// protocol handlers and any exporters. Every subscriber gets its own buffered
// queue; a full queue drops the event for that subscriber only.
package bus

import (
	"github.com/sasha-s/go-deadlock"

	"GroundLink/internal/logger"
)

// Broadcast fans every published value out to all live subscriptions.
type Broadcast[T any] struct {
	name string
	log  *logger.Scoped

	mu     deadlock.RWMutex
	nextID int
	subs   map[int]*Subscription[T]
	closed bool
}

func NewBroadcast[T any](name string) *Broadcast[T] {
	return &Broadcast[T]{
		name: name,
		log:  logger.New("BUS").With(name),
		subs: make(map[int]*Subscription[T]),
	}
}

// Subscription is one subscriber queue.
type Subscription[T any] struct {
	id     int
	ch     chan T
	parent *Broadcast[T]
}

// Subscribe registers a new queue with the given buffer size.
func (b *Broadcast[T]) Subscribe(buffer int) *Subscription[T] {
	if buffer < 1 {
		buffer = 1
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &Subscription[T]{id: b.nextID, ch: make(chan T, buffer), parent: b}
	b.nextID++
	if b.closed {
		close(sub.ch)
		return sub
	}
	b.subs[sub.id] = sub
	return sub
}

// Publish never blocks. It returns the number of subscribers that got the value.
func (b *Broadcast[T]) Publish(v T) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return 0
	}
	delivered := 0
	for _, sub := range b.subs {
		queued, capacity := len(sub.ch), cap(sub.ch)
		if queued > capacity/2 {
			b.log.Debug("Subscriber %d over 50%% [ %d / %d ]", sub.id, queued, capacity)
		}
		select {
		case sub.ch <- v:
			delivered++
		default:
			b.log.Warn("Subscriber %d full, event dropped", sub.id)
		}
	}
	return delivered
}

// Subscribers returns the number of live subscriptions.
func (b *Broadcast[T]) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close closes every subscription queue. Later publishes are ignored.
func (b *Broadcast[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		close(sub.ch)
		delete(b.subs, id)
	}
}

// C exposes the queue for select loops. It is closed on unsubscribe.
func (s *Subscription[T]) C() <-chan T {
	return s.ch
}

// TryRecv takes one queued value without blocking.
func (s *Subscription[T]) TryRecv() (T, bool) {
	select {
	case v, ok := <-s.ch:
		return v, ok
	default:
		var zero T
		return zero, false
	}
}

// Close unsubscribes. It is safe to call more than once.
func (s *Subscription[T]) Close() {
	b := s.parent
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[s.id]; !ok {
		return
	}
	delete(b.subs, s.id)
	close(s.ch)
}
