/*
Package history implements the append-only log of accepted chat messages.

The log is shared by every connection. A newly authenticated connection takes a
snapshot and replays it before it receives any live traffic.
*/
package history

import (
	"sync"

	"textrelay/internal/app/message"
)

// Log is the ordered record of accepted messages.
// Append and Snapshot share one mutex, so a snapshot never observes a partial append.
type Log struct {
	// mu guards every field below.
	mu sync.Mutex

	// entries holds the messages. When capacity > 0 it is used as a ring buffer.
	entries []message.Message

	// head is the index of the oldest entry in ring mode.
	head int

	// capacity bounds the log. Zero means unbounded.
	capacity int
}

// New returns an empty log. A positive capacity keeps only the newest capacity
// messages, evicting the oldest on overflow; zero keeps everything.
func New(capacity int) *Log {
	if capacity < 0 {
		capacity = 0
	}

	l := &Log{capacity: capacity}
	if capacity > 0 {
		l.entries = make([]message.Message, 0, capacity)
	}
	return l
}

// Append adds m after every previously appended message.
func (l *Log) Append(m message.Message) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.capacity == 0 || len(l.entries) < l.capacity {
		l.entries = append(l.entries, m)
		return
	}

	l.entries[l.head] = m
	l.head = (l.head + 1) % l.capacity
}

// Snapshot returns a copy of the stored messages in insertion order.
func (l *Log) Snapshot() []message.Message {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]message.Message, 0, len(l.entries))
	out = append(out, l.entries[l.head:]...)
	out = append(out, l.entries[:l.head]...)
	return out
}

// Len returns the number of stored messages.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.entries)
}
