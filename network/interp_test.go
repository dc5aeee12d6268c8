package network

import (
	"math/rand"
	"testing"
	"time"

	"github.com/automoto/lynxsync/shared/netcomponents"
	"github.com/automoto/lynxsync/shared/netconfig"
	"github.com/automoto/lynxsync/shared/worldstate"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/leap-fish/necs/esync"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yohamta/donburi"
)

// bufferAt builds a reception buffer with one entry per arrival time; objs[i]
// lists the objects of entry i.
func bufferAt(arrivals []int, objs []map[worldstate.ObjectID]mgl32.Vec3) *ReceptionBuffer {
	b := NewReceptionBuffer(netconfig.MaxClientEntries, netconfig.MaxClientHistory)
	for i, at := range arrivals {
		b.PushFront(snapWith(worldstate.Version(i+1), objs[i]), ms(at))
	}
	return b
}

// renderAt returns the now that puts the render time at render ms.
func renderAt(render int) time.Time {
	return ms(render).Add(netconfig.RenderDelay)
}

func TestBracketPicksSurroundingEntries(t *testing.T) {
	buf := bufferAt([]int{0, 50, 100, 150}, make([]map[worldstate.ObjectID]mgl32.Vec3, 4))
	ip := NewInterpolator(donburi.NewWorld())

	w, ok := ip.Bracket(buf, renderAt(70))
	require.True(t, ok)
	assert.Equal(t, ms(50), w.State1.Arrival)
	assert.Equal(t, ms(100), w.State2.Arrival)
	assert.InDelta(t, 0.4, w.F, 1e-6)
	assert.Equal(t, worldstate.Version(2), w.State1.Snap.Version())
}

func TestObjectMissingFromNewerEndpointIsDropped(t *testing.T) {
	objs := []map[worldstate.ObjectID]mgl32.Vec3{
		{1: {0, 0, 0}, 2: {0, 0, 0}},
		{1: {0, 0, 0}, 2: {0, 0, 0}},
		{1: {0, 0, 0.2}, 2: {0, 0, 0.2}},
		{1: {0, 0, 0.4}},
	}
	buf := bufferAt([]int{0, 50, 100, 150}, objs)
	ip := NewInterpolator(donburi.NewWorld())

	for _, render := range []int{50, 75, 99} {
		_, ok := ip.Update(buf, renderAt(render))
		require.True(t, ok)
		rd, ok := ip.Shadow(2)
		require.True(t, ok, "render %d", render)
		want := float32(render-50) / 50 * 0.2
		assert.InDelta(t, want, rd.State.Origin[2], 1e-5)
		assert.False(t, rd.Held)
	}

	for _, render := range []int{100, 120} {
		_, ok := ip.Update(buf, renderAt(render))
		require.True(t, ok)
		_, ok = ip.Shadow(2)
		assert.False(t, ok, "render %d", render)
		assert.Equal(t, 1, ip.Len())
	}
}

func TestStaleBufferHoldsFrame(t *testing.T) {
	objs := []map[worldstate.ObjectID]mgl32.Vec3{{1: {}}, {1: {}}, {1: {}}, {1: {}}}
	buf := bufferAt([]int{0, 50, 100, 150}, objs)
	ip := NewInterpolator(donburi.NewWorld())

	_, ok := ip.Update(buf, renderAt(70))
	require.True(t, ok)
	before, _ := ip.Shadow(1)

	// Newest arrived 110ms ago, more than the render delay.
	_, ok = ip.Update(buf, ms(260))
	assert.False(t, ok)
	held, ok := ip.Shadow(1)
	require.True(t, ok, "held frame keeps its shadows")
	assert.True(t, held.Held)
	assert.Equal(t, before.State, held.State)
}

func TestBracketSkipsDegenerateWindows(t *testing.T) {
	ip := NewInterpolator(donburi.NewWorld())

	one := bufferAt([]int{0}, make([]map[worldstate.ObjectID]mgl32.Vec3, 1))
	_, ok := ip.Bracket(one, renderAt(0))
	assert.False(t, ok, "single entry")

	dup := bufferAt([]int{50, 50}, make([]map[worldstate.ObjectID]mgl32.Vec3, 2))
	_, ok = ip.Bracket(dup, renderAt(50))
	assert.False(t, ok, "duplicate arrival times")

	buf := bufferAt([]int{0, 50}, make([]map[worldstate.ObjectID]mgl32.Vec3, 2))
	_, ok = ip.Bracket(buf, renderAt(-10))
	assert.False(t, ok, "render time before every entry")
	_, ok = ip.Bracket(buf, renderAt(60))
	assert.False(t, ok, "render time after the newest entry")
}

func TestFractionStaysInUnitInterval(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	arrivals := []int{0}
	for i := 1; i < 30; i++ {
		arrivals = append(arrivals, arrivals[i-1]+rng.Intn(40))
	}
	buf := bufferAt(arrivals, make([]map[worldstate.ObjectID]mgl32.Vec3, len(arrivals)))
	ip := NewInterpolator(donburi.NewWorld())

	last := arrivals[len(arrivals)-1]
	executed := 0
	for render := -20; render <= last+20; render++ {
		w, ok := ip.Bracket(buf, renderAt(render))
		if !ok {
			continue
		}
		executed++
		assert.GreaterOrEqual(t, w.F, float32(0))
		assert.LessOrEqual(t, w.F, float32(1))
		assert.False(t, w.State1.Arrival.After(w.Render))
		assert.True(t, w.State2.Arrival.After(w.Render))
	}
	assert.Greater(t, executed, 0)
}

func TestShadowsMatchBothEndpoints(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	var arrivals []int
	var objs []map[worldstate.ObjectID]mgl32.Vec3
	for i := 0; i < 20; i++ {
		arrivals = append(arrivals, i*50)
		m := make(map[worldstate.ObjectID]mgl32.Vec3)
		for id := worldstate.ObjectID(1); id <= 6; id++ {
			if rng.Intn(3) > 0 {
				m[id] = mgl32.Vec3{rng.Float32(), 0, rng.Float32()}
			}
		}
		objs = append(objs, m)
	}
	buf := bufferAt(arrivals, objs)
	world := donburi.NewWorld()
	ip := NewInterpolator(world)

	for render := 0; render < 950; render += 7 {
		w, ok := ip.Update(buf, renderAt(render))
		require.True(t, ok)

		rendered := 0
		esync.NetworkEntityQuery.Each(world, func(entry *donburi.Entry) {
			rendered++
			id := worldstate.ObjectID(*esync.GetNetworkId(entry))
			assert.True(t, w.State1.Snap.Has(id) && w.State2.Snap.Has(id), "object %d at render %d", id, render)
			assert.True(t, entry.HasComponent(netcomponents.Render))
		})
		want := 0
		for _, id := range w.State1.Snap.IDs() {
			if w.State2.Snap.Has(id) {
				want++
			}
		}
		assert.Equal(t, want, rendered)
		assert.Equal(t, want, ip.Len())

		visited := 0
		ip.Each(func(id worldstate.ObjectID, r netcomponents.RenderData) {
			visited++
			got, ok := ip.Shadow(id)
			require.True(t, ok, "object %d", id)
			assert.Equal(t, r, got)
			assert.False(t, got.Held)
		})
		assert.Equal(t, want, visited)
		for id := worldstate.ObjectID(1); id <= 6; id++ {
			_, ok := ip.Shadow(id)
			assert.Equal(t, w.State1.Snap.Has(id) && w.State2.Snap.Has(id), ok, "object %d at render %d", id, render)
		}
	}

	ip.Reset()
	assert.Equal(t, 0, ip.Len())
	assert.Equal(t, 0, esync.NetworkEntityQuery.Count(world))
}

func TestBlend(t *testing.T) {
	s1 := worldstate.ObjState{
		Kind:      worldstate.KindPlayer,
		Origin:    mgl32.Vec3{0, 0, 0},
		Rot:       mgl32.QuatIdent(),
		Vel:       mgl32.Vec3{10, 0, 0},
		Flags:     netconfig.FlagOnGround,
		Animation: uint16(netconfig.AnimRun),
	}
	s2 := s1
	s2.Origin = mgl32.Vec3{0.2, 0, 0}
	s2.Rot = mgl32.QuatRotate(mgl32.DegToRad(90), mgl32.Vec3{0, 1, 0})
	s2.Flags = netconfig.FlagDead
	s2.Animation = uint16(netconfig.AnimDie)

	near := Blend(s1, s2, 0.5)
	assert.InDelta(t, 0.1, near.Origin[0], 1e-6, "short hops are lerped")
	assert.Equal(t, s1.Flags, near.Flags)
	assert.Equal(t, s1.Animation, near.Animation)
	assert.Equal(t, s1.Vel, near.Vel)
	want := mgl32.QuatRotate(mgl32.DegToRad(45), mgl32.Vec3{0, 1, 0})
	assert.True(t, near.Rot.ApproxEqualThreshold(want, 1e-4))

	// Long hops follow the Hermite curve; sideways tangents bend it off the chord.
	s2.Origin = mgl32.Vec3{2, 0, 0}
	s2.Vel = mgl32.Vec3{10, 0, 0}
	far := Blend(s1, s2, 0.5)
	assert.InDelta(t, 1, far.Origin[0], 1e-5)
	s1.Vel = mgl32.Vec3{0, 0, 10}
	s2.Vel = mgl32.Vec3{0, 0, 10}
	curved := Blend(s1, s2, 0.25)
	assert.NotEqual(t, float32(0), curved.Origin[2])

	assert.Equal(t, s1.Origin, Blend(s1, s2, 0).Origin)
	assert.True(t, Blend(s1, s2, 1).Origin.ApproxEqual(s2.Origin))
}
