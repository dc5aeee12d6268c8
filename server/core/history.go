package core

import (
	"time"

	"github.com/automoto/lynxsync/shared/worldstate"
	"github.com/pkg/errors"
)

// ErrNotFound is returned when a version is not retained in the history.
var ErrNotFound = errors.New("version not in history")

type historyEntry struct {
	version  worldstate.Version
	captured time.Time
	snap     *worldstate.Snapshot
}

// History is the server's bounded record of recently captured snapshots,
// ordered by version. Entries live in a fixed-capacity ring so dropping the
// oldest entry is O(1).
type History struct {
	buffer   []historyEntry
	capacity int
	head     int // index of the oldest entry
	size     int
	maxAge   time.Duration
	next     worldstate.Version
}

// NewHistory creates a history holding at most capacity entries that are
// considered expired after maxAge.
func NewHistory(capacity int, maxAge time.Duration) *History {
	if capacity < 1 {
		capacity = 1
	}
	return &History{
		buffer:   make([]historyEntry, capacity),
		capacity: capacity,
		maxAge:   maxAge,
		next:     worldstate.NoVersion + 1,
	}
}

// Capture freezes b under the next version and appends it. When the ring is
// full the oldest entry is dropped even if a client still references it;
// that client falls back to a full snapshot.
func (h *History) Capture(b *worldstate.Builder, now time.Time) *worldstate.Snapshot {
	snap := b.Build(h.next)
	h.next++

	if h.size == h.capacity {
		h.popOldest()
	}
	idx := (h.head + h.size) % h.capacity
	h.buffer[idx] = historyEntry{version: snap.Version(), captured: now, snap: snap}
	h.size++
	return snap
}

// Get returns the snapshot captured as v.
func (h *History) Get(v worldstate.Version) (*worldstate.Snapshot, error) {
	if h.size == 0 || v == worldstate.NoVersion {
		return nil, errors.Wrapf(ErrNotFound, "version %d", v)
	}
	// Retained versions are contiguous: only the oldest entry is ever removed.
	oldest := h.at(0).version
	if v < oldest || int(v-oldest) >= h.size {
		return nil, errors.Wrapf(ErrNotFound, "version %d", v)
	}
	return h.at(int(v - oldest)).snap, nil
}

// Newest returns the most recently captured snapshot.
func (h *History) Newest() (*worldstate.Snapshot, bool) {
	if h.size == 0 {
		return nil, false
	}
	return h.at(h.size - 1).snap, true
}

// Oldest returns the version of the oldest retained entry.
func (h *History) Oldest() (worldstate.Version, bool) {
	if h.size == 0 {
		return worldstate.NoVersion, false
	}
	return h.at(0).version, true
}

// Len returns the number of retained entries.
func (h *History) Len() int {
	return h.size
}

// Versions returns the retained versions, oldest first.
func (h *History) Versions() []worldstate.Version {
	out := make([]worldstate.Version, h.size)
	for i := range out {
		out[i] = h.at(i).version
	}
	return out
}

// Prune drops entries that are older than the maximum world age or that
// every live client has acknowledged past. The newest entry is never dropped.
// It returns the number of entries removed.
func (h *History) Prune(now time.Time, acks []*AckState) int {
	floor, bounded := minFloor(acks)

	removed := 0
	for h.size > 1 {
		e := h.at(0)
		expired := now.Sub(e.captured) > h.maxAge
		superseded := !bounded || e.version < floor
		if !expired && !superseded {
			break
		}
		h.popOldest()
		removed++
	}
	return removed
}

// OnClientAck applies an acknowledgement from a client. See AckState.Accept.
func (h *History) OnClientAck(a *AckState, v worldstate.Version) bool {
	return a.Accept(v)
}

// Clear drops every entry. Version numbering continues.
func (h *History) Clear() {
	for i := range h.buffer {
		h.buffer[i] = historyEntry{}
	}
	h.head = 0
	h.size = 0
}

func (h *History) at(i int) *historyEntry {
	return &h.buffer[(h.head+i)%h.capacity]
}

func (h *History) popOldest() {
	h.buffer[h.head] = historyEntry{}
	h.head = (h.head + 1) % h.capacity
	h.size--
}

// minFloor returns the smallest ack floor among clients that reference any
// version. bounded is false when no client constrains pruning.
func minFloor(acks []*AckState) (floor worldstate.Version, bounded bool) {
	for _, a := range acks {
		f := a.Floor()
		if f == worldstate.NoVersion {
			continue
		}
		if !bounded || f < floor {
			floor = f
			bounded = true
		}
	}
	return floor, bounded
}
