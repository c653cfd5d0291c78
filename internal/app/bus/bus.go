/*
Package bus implements the publish/subscribe fan-out used to relay accepted messages to
every live connection.

Each Subscription owns a bounded queue. Publishing never blocks: when a subscriber falls
behind and its queue is full, the oldest pending message is dropped and the subscriber is
told how many messages it missed on its next receive.
*/
package bus

import (
	"errors"
	"fmt"
	"sync"

	"textrelay/internal/app/message"
)

// DefaultCapacity is the number of pending messages a subscription may hold.
const DefaultCapacity = 100

// ErrClosed is returned by Recv once the subscription or the bus has been closed
// and no message is pending.
var ErrClosed = errors.New("bus: subscription closed")

// LaggedError is returned by Recv when older messages were dropped because the
// subscriber was not draining its queue fast enough.
type LaggedError struct {
	Skipped uint64
}

func (e *LaggedError) Error() string {
	return fmt.Sprintf("bus: subscriber lagged, %d messages skipped", e.Skipped)
}

// Bus fans out published messages to all current subscriptions.
type Bus struct {
	// mu protects subs, nextID and closed.
	mu sync.RWMutex

	// subs holds the live subscriptions keyed by id.
	subs map[uint64]*Subscription

	nextID uint64

	// capacity is the queue bound given to each new subscription.
	capacity int

	closed bool
}

// New returns a bus whose subscriptions buffer at most capacity messages.
// A non-positive capacity falls back to DefaultCapacity.
func New(capacity int) *Bus {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	return &Bus{
		subs:     make(map[uint64]*Subscription),
		capacity: capacity,
	}
}

// Subscribe returns a handle observing every message published after this call.
// Subscribing to a closed bus yields an already closed subscription.
func (b *Bus) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := newSubscription(b, b.nextID, b.capacity)
	b.nextID++

	if b.closed {
		sub.closed = true
		return sub
	}

	b.subs[sub.id] = sub
	return sub
}

// Publish enqueues m on every live subscription and returns how many were reached.
func (b *Bus) Publish(m message.Message) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return 0
	}

	for _, sub := range b.subs {
		sub.push(m)
	}
	return len(b.subs)
}

// SubscriberCount returns the number of live subscriptions.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.subs)
}

// Close closes every subscription and rejects later publishes.
func (b *Bus) Close() {
	b.mu.Lock()
	subs := b.subs
	b.subs = make(map[uint64]*Subscription)
	b.closed = true
	b.mu.Unlock()

	for _, sub := range subs {
		sub.markClosed()
	}
}

func (b *Bus) remove(id uint64) {
	b.mu.Lock()
	delete(b.subs, id)
	b.mu.Unlock()
}
