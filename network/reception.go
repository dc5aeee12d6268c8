package network

import (
	"time"

	"github.com/automoto/lynxsync/shared/worldstate"
)

// Frame is one received snapshot and the local time it arrived.
type Frame struct {
	Snap    *worldstate.Snapshot
	Arrival time.Time
}

// ReceptionBuffer holds the snapshots a client has decoded, newest first.
// Retention is bounded by entry count and by age relative to the newest
// entry, independent of server state.
type ReceptionBuffer struct {
	ring     []Frame
	capacity int
	head     int // oldest entry
	size     int
	maxAge   time.Duration
}

func NewReceptionBuffer(capacity int, maxAge time.Duration) *ReceptionBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &ReceptionBuffer{
		ring:     make([]Frame, capacity),
		capacity: capacity,
		maxAge:   maxAge,
	}
}

// PushFront adds snap as the newest entry and prunes what falls outside the
// retention window.
func (b *ReceptionBuffer) PushFront(snap *worldstate.Snapshot, arrival time.Time) {
	if b.size == b.capacity {
		b.popOldest()
	}
	b.ring[(b.head+b.size)%b.capacity] = Frame{Snap: snap, Arrival: arrival}
	b.size++

	for b.size > 1 && arrival.Sub(b.oldest().Arrival) > b.maxAge {
		b.popOldest()
	}
}

// Len returns the number of retained entries.
func (b *ReceptionBuffer) Len() int {
	return b.size
}

// At returns the i-th entry counting from the newest (i = 0).
func (b *ReceptionBuffer) At(i int) Frame {
	return b.ring[(b.head+b.size-1-i)%b.capacity]
}

// Newest returns the most recently pushed entry.
func (b *ReceptionBuffer) Newest() (Frame, bool) {
	if b.size == 0 {
		return Frame{}, false
	}
	return b.At(0), true
}

// Find returns the retained snapshot with version v.
func (b *ReceptionBuffer) Find(v worldstate.Version) (*worldstate.Snapshot, bool) {
	for i := 0; i < b.size; i++ {
		f := b.At(i)
		if f.Snap.Version() == v {
			return f.Snap, true
		}
		if f.Snap.Version() < v {
			break
		}
	}
	return nil, false
}

// Clear drops every entry.
func (b *ReceptionBuffer) Clear() {
	for i := range b.ring {
		b.ring[i] = Frame{}
	}
	b.head = 0
	b.size = 0
}

func (b *ReceptionBuffer) oldest() Frame {
	return b.ring[b.head]
}

func (b *ReceptionBuffer) popOldest() {
	b.ring[b.head] = Frame{}
	b.head = (b.head + 1) % b.capacity
	b.size--
}
