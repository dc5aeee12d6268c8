// Package transport moves opaque packets between server and client. Transport
// goroutines never touch sync state: they push events into a Queue that the
// owning tick goroutine drains.
package transport

import (
	"sync"
	"sync/atomic"
)

// Conn is one peer connection.
type Conn interface {
	ID() string
	Send(data []byte) error
	Close() error
}

type EventType int

const (
	EventConnect EventType = iota
	EventPacket
	EventDisconnect
)

func (t EventType) String() string {
	switch t {
	case EventConnect:
		return "connect"
	case EventPacket:
		return "packet"
	case EventDisconnect:
		return "disconnect"
	default:
		return "unknown"
	}
}

// Event is a single connection occurrence observed by a transport goroutine.
type Event struct {
	Type EventType
	Conn Conn
	Data []byte
	Err  error
}

// Queue is a bounded event buffer. Push never blocks; packets that do not fit
// are dropped and counted. Connection lifecycle events are always kept.
type Queue struct {
	mu      sync.Mutex
	events  []Event
	packets int
	limit   int
	dropped atomic.Uint64
}

// NewQueue returns a queue holding at most limit undrained packets.
func NewQueue(limit int) *Queue {
	return &Queue{limit: limit}
}

// Push enqueues ev and reports whether it was accepted.
func (q *Queue) Push(ev Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if ev.Type == EventPacket {
		if q.packets >= q.limit {
			q.dropped.Add(1)
			return false
		}
		q.packets++
	}
	q.events = append(q.events, ev)
	return true
}

// Drain returns every pending event in arrival order without blocking.
func (q *Queue) Drain() []Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.events
	q.events = nil
	q.packets = 0
	return out
}

// Dropped returns how many packets were discarded because the queue was full.
func (q *Queue) Dropped() uint64 {
	return q.dropped.Load()
}
