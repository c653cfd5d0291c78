package bus

import (
	"context"
	"sync"

	"textrelay/internal/app/message"
)

// Subscription is one receiver's view of the bus.
// Recv must be called from a single goroutine; Close may be called from any.
type Subscription struct {
	bus *Bus
	id  uint64

	// mu guards the ring buffer, skipped and closed.
	mu sync.Mutex

	// ring holds pending messages starting at head.
	ring  []message.Message
	head  int
	count int

	// skipped counts messages dropped since the last Recv.
	skipped uint64

	closed bool

	// ready is signalled whenever the state above changes.
	ready chan struct{}
}

func newSubscription(b *Bus, id uint64, capacity int) *Subscription {
	return &Subscription{
		bus:   b,
		id:    id,
		ring:  make([]message.Message, capacity),
		ready: make(chan struct{}, 1),
	}
}

// push appends m, evicting the oldest pending message when the queue is full.
func (s *Subscription) push(m message.Message) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}

	capacity := len(s.ring)
	if s.count == capacity {
		s.head = (s.head + 1) % capacity
		s.count--
		s.skipped++
	}
	s.ring[(s.head+s.count)%capacity] = m
	s.count++
	s.mu.Unlock()

	s.notify()
}

func (s *Subscription) notify() {
	select {
	case s.ready <- struct{}{}:
	default:
	}
}

// Recv returns the next pending message in publish order.
// If messages were dropped since the previous call it first returns a *LaggedError.
// It blocks until a message is available, ctx is done, or the subscription is closed.
func (s *Subscription) Recv(ctx context.Context) (message.Message, error) {
	for {
		s.mu.Lock()
		if s.skipped > 0 {
			skipped := s.skipped
			s.skipped = 0
			s.mu.Unlock()
			return message.Message{}, &LaggedError{Skipped: skipped}
		}

		if s.count > 0 {
			m := s.ring[s.head]
			s.ring[s.head] = message.Message{}
			s.head = (s.head + 1) % len(s.ring)
			s.count--
			s.mu.Unlock()
			return m, nil
		}

		if s.closed {
			s.mu.Unlock()
			return message.Message{}, ErrClosed
		}
		s.mu.Unlock()

		select {
		case <-s.ready:
		case <-ctx.Done():
			return message.Message{}, ctx.Err()
		}
	}
}

// Pending returns the number of queued messages.
func (s *Subscription) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.count
}

// Close detaches the subscription from the bus and drops its pending messages.
// It is safe to call more than once.
func (s *Subscription) Close() {
	s.bus.remove(s.id)

	s.mu.Lock()
	s.closed = true
	s.count = 0
	s.skipped = 0
	s.mu.Unlock()

	s.notify()
}

// markClosed is used by Bus.Close; messages already queued stay receivable.
func (s *Subscription) markClosed() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.notify()
}
