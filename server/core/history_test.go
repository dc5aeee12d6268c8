package core

import (
	"testing"
	"time"

	"github.com/automoto/lynxsync/shared/worldstate"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Unix(1_700_000_000, 0)

func worldWith(n int) *worldstate.Builder {
	b := worldstate.NewBuilder()
	for i := 1; i <= n; i++ {
		b.Set(worldstate.ObjectID(i), worldstate.ObjState{
			Kind:   worldstate.KindNPC,
			Origin: mgl32.Vec3{float32(i), 0, 0},
			Rot:    mgl32.QuatIdent(),
		})
	}
	return b
}

// captureN captures n snapshots 50ms apart starting at epoch.
func captureN(h *History, n int) time.Time {
	now := epoch
	for i := 0; i < n; i++ {
		if i > 0 {
			now = now.Add(50 * time.Millisecond)
		}
		h.Capture(worldWith(2), now)
	}
	return now
}

func TestCaptureVersionsAreMonotonic(t *testing.T) {
	h := NewHistory(4, time.Minute)

	var prev worldstate.Version
	for i := 0; i < 10; i++ {
		snap := h.Capture(worldWith(1), epoch)
		assert.Greater(t, snap.Version(), prev)
		assert.NotEqual(t, worldstate.NoVersion, snap.Version())
		prev = snap.Version()
	}
	assert.Equal(t, []worldstate.Version{7, 8, 9, 10}, h.Versions())
}

func TestCaptureEnforcesBacklog(t *testing.T) {
	h := NewHistory(3, time.Minute)
	captureN(h, 5)

	assert.Equal(t, 3, h.Len())
	_, err := h.Get(2)
	assert.True(t, errors.Is(err, ErrNotFound))

	snap, err := h.Get(4)
	require.NoError(t, err)
	assert.Equal(t, worldstate.Version(4), snap.Version())

	newest, ok := h.Newest()
	require.True(t, ok)
	assert.Equal(t, worldstate.Version(5), newest.Version())
}

func TestGetUnknownVersions(t *testing.T) {
	h := NewHistory(8, time.Minute)
	_, err := h.Get(1)
	assert.True(t, errors.Is(err, ErrNotFound))

	captureN(h, 2)
	_, err = h.Get(worldstate.NoVersion)
	assert.True(t, errors.Is(err, ErrNotFound))
	_, err = h.Get(3)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestPruneRetainsAckedBaseline(t *testing.T) {
	h := NewHistory(80, 6*time.Second)
	now := captureN(h, 5)

	var a AckState
	for v := worldstate.Version(1); v <= 5; v++ {
		a.RecordSent(v)
	}
	require.True(t, h.OnClientAck(&a, 2))

	removed := h.Prune(now, []*AckState{&a})
	assert.Equal(t, 1, removed)
	assert.Equal(t, []worldstate.Version{2, 3, 4, 5}, h.Versions())

	_, err := h.Get(2)
	assert.NoError(t, err)
}

func TestPruneUsesSlowestClient(t *testing.T) {
	h := NewHistory(80, 6*time.Second)
	now := captureN(h, 6)

	var fast, slow, idle AckState
	for v := worldstate.Version(1); v <= 6; v++ {
		fast.RecordSent(v)
	}
	for v := worldstate.Version(3); v <= 6; v++ {
		slow.RecordSent(v)
	}
	require.True(t, fast.Accept(5))

	h.Prune(now, []*AckState{&fast, &slow, &idle})
	assert.Equal(t, []worldstate.Version{3, 4, 5, 6}, h.Versions())
}

func TestPruneByAgeIgnoresAcks(t *testing.T) {
	h := NewHistory(80, 100*time.Millisecond)
	now := captureN(h, 5)

	var a AckState
	a.RecordSent(1)
	require.True(t, a.Accept(1))

	h.Prune(now, []*AckState{&a})
	assert.Equal(t, []worldstate.Version{3, 4, 5}, h.Versions())
}

func TestPruneNeverDropsNewest(t *testing.T) {
	h := NewHistory(80, time.Millisecond)
	now := captureN(h, 3)

	h.Prune(now.Add(time.Hour), nil)
	assert.Equal(t, []worldstate.Version{3}, h.Versions())

	h.Prune(now.Add(2*time.Hour), nil)
	assert.Equal(t, 1, h.Len())
}

func TestPruneWithoutClients(t *testing.T) {
	h := NewHistory(80, time.Minute)
	now := captureN(h, 4)

	assert.Equal(t, 3, h.Prune(now, nil))
	assert.Equal(t, []worldstate.Version{4}, h.Versions())
}

func TestRetentionIsBounded(t *testing.T) {
	h := NewHistory(10, 200*time.Millisecond)
	var a AckState
	now := epoch
	for i := 0; i < 100; i++ {
		now = now.Add(50 * time.Millisecond)
		snap := h.Capture(worldWith(1), now)
		a.RecordSent(snap.Version())
		h.Prune(now, []*AckState{&a})

		require.LessOrEqual(t, h.Len(), 10)
		oldest, _ := h.Oldest()
		_, err := h.Get(oldest)
		require.NoError(t, err)
		assert.LessOrEqual(t, int(snap.Version()-oldest), 4, "entries older than max age must go")
	}
}

func TestClearKeepsNumbering(t *testing.T) {
	h := NewHistory(4, time.Minute)
	captureN(h, 3)
	h.Clear()
	assert.Zero(t, h.Len())
	assert.Equal(t, worldstate.Version(4), h.Capture(worldWith(1), epoch).Version())
}
