package network

import (
	"time"

	"github.com/automoto/lynxsync/shared/gamemath"
	"github.com/automoto/lynxsync/shared/netcomponents"
	"github.com/automoto/lynxsync/shared/netconfig"
	"github.com/automoto/lynxsync/shared/worldstate"
	"github.com/leap-fish/necs/esync"
	"github.com/yohamta/donburi"
)

// Window is the pair of buffered snapshots bracketing the render time.
type Window struct {
	State1 Frame
	State2 Frame
	// F is where the render time falls between State1 and State2, in [0,1].
	F      float32
	Render time.Time
}

// Interpolator renders the world at now - RenderDelay into shadow entities
// of a donburi world. Each shadow carries the object's id as its NetworkId
// and a netcomponents.Render with the blended state.
type Interpolator struct {
	world   donburi.World
	delay   time.Duration
	shadows map[worldstate.ObjectID]donburi.Entity
	present map[worldstate.ObjectID]bool
}

func NewInterpolator(world donburi.World) *Interpolator {
	return &Interpolator{
		world:   world,
		delay:   netconfig.RenderDelay,
		shadows: make(map[worldstate.ObjectID]donburi.Entity),
		present: make(map[worldstate.ObjectID]bool),
	}
}

// Bracket finds the interpolation window for now without touching the world.
// It reports false when the frame should be held: fewer than two entries,
// nothing received for longer than the render delay, no entry on either side
// of the render time, or a non-positive gap.
func (ip *Interpolator) Bracket(buf *ReceptionBuffer, now time.Time) (Window, bool) {
	if buf.Len() < 2 {
		return Window{}, false
	}
	newest, _ := buf.Newest()
	if now.Sub(newest.Arrival) > ip.delay {
		return Window{}, false
	}

	render := now.Add(-ip.delay)
	i := 0
	for i < buf.Len() && buf.At(i).Arrival.After(render) {
		i++
	}
	if i == 0 || i == buf.Len() {
		return Window{}, false
	}

	w := Window{State1: buf.At(i), State2: buf.At(i - 1), Render: render}
	gap := w.State2.Arrival.Sub(w.State1.Arrival)
	if gap <= 0 {
		return Window{}, false
	}
	f := float32(render.Sub(w.State1.Arrival)) / float32(gap)
	if f < 0 || f > 1 {
		return Window{}, false
	}
	w.F = f
	return w, true
}

// Update brackets the render time and, when a window exists, rewrites the
// shadow entities so that exactly the objects present in both endpoints are
// rendered. A skipped update marks every shadow as held.
func (ip *Interpolator) Update(buf *ReceptionBuffer, now time.Time) (Window, bool) {
	w, ok := ip.Bracket(buf, now)
	if !ok {
		ip.hold()
		return Window{}, false
	}

	clear(ip.present)
	w.State1.Snap.Each(func(id worldstate.ObjectID, s1 worldstate.ObjState) bool {
		s2, ok := w.State2.Snap.Get(id)
		if !ok {
			return true
		}
		ip.present[id] = true
		ip.render(id, Blend(s1, s2, w.F))
		return true
	})

	for id, entity := range ip.shadows {
		if !ip.present[id] {
			ip.destroy(id, entity)
		}
	}
	return w, true
}

// Blend interpolates position and rotation by f. Velocity, flags, animation
// and kind come from s1.
func Blend(s1, s2 worldstate.ObjState, f float32) worldstate.ObjState {
	out := s1
	if gamemath.DistSqr(s1.Origin, s2.Origin) <= netconfig.LerpThresholdSqr {
		out.Origin = gamemath.Lerp(s1.Origin, s2.Origin, f)
	} else {
		out.Origin = gamemath.Hermite(s1.Origin, s2.Origin, s1.Vel, s2.Vel, f)
	}
	out.Rot = gamemath.Slerp(s1.Rot, s2.Rot, f)
	return out
}

// Len returns the number of rendered shadow objects.
func (ip *Interpolator) Len() int {
	return len(ip.shadows)
}

// Shadow returns the rendered state of object id, looked up by NetworkId.
func (ip *Interpolator) Shadow(id worldstate.ObjectID) (netcomponents.RenderData, bool) {
	entity := esync.FindByNetworkId(ip.world, esync.NetworkId(id))
	if entity == donburi.Null || !ip.world.Valid(entity) {
		return netcomponents.RenderData{}, false
	}
	entry := ip.world.Entry(entity)
	if !entry.HasComponent(netcomponents.Render) {
		return netcomponents.RenderData{}, false
	}
	return *netcomponents.Render.Get(entry), true
}

// Each calls fn for every rendered shadow.
func (ip *Interpolator) Each(fn func(id worldstate.ObjectID, r netcomponents.RenderData)) {
	esync.NetworkEntityQuery.Each(ip.world, func(entry *donburi.Entry) {
		nid := esync.GetNetworkId(entry)
		if nid == nil || !entry.HasComponent(netcomponents.Render) {
			return
		}
		fn(worldstate.ObjectID(*nid), *netcomponents.Render.Get(entry))
	})
}

// Reset destroys every shadow.
func (ip *Interpolator) Reset() {
	for id, entity := range ip.shadows {
		ip.destroy(id, entity)
	}
}

func (ip *Interpolator) render(id worldstate.ObjectID, st worldstate.ObjState) {
	entity, ok := ip.shadows[id]
	if !ok || !ip.world.Valid(entity) {
		entity = ip.world.Create(esync.NetworkIdComponent, netcomponents.Render)
		esync.NetworkIdComponent.SetValue(ip.world.Entry(entity), esync.NetworkId(id))
		ip.shadows[id] = entity
	}
	netcomponents.Render.SetValue(ip.world.Entry(entity), netcomponents.RenderData{State: st})
}

func (ip *Interpolator) hold() {
	for _, entity := range ip.shadows {
		if ip.world.Valid(entity) {
			netcomponents.Render.Get(ip.world.Entry(entity)).Held = true
		}
	}
}

func (ip *Interpolator) destroy(id worldstate.ObjectID, entity donburi.Entity) {
	delete(ip.shadows, id)
	if ip.world.Valid(entity) {
		ip.world.Remove(entity)
	}
}
