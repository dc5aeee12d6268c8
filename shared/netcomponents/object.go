// Package netcomponents declares the donburi component types for networked
// objects, shared by the server simulation world and the client render world.
package netcomponents

import (
	"github.com/automoto/lynxsync/shared/worldstate"
	"github.com/yohamta/donburi"
	"github.com/yohamta/donburi/filter"
)

// ObjectData is the authoritative identity and state of a networked object.
type ObjectData struct {
	ID    worldstate.ObjectID
	State worldstate.ObjState
}

var Object = donburi.NewComponentType[ObjectData]()

// RenderData is what the client draws for one object this frame.
type RenderData struct {
	State worldstate.ObjState
	// Held is true when the frame was not recomputed this tick.
	Held bool
}

var Render = donburi.NewComponentType[RenderData]()

// Objects matches every networked object in a world.
var Objects = donburi.NewQuery(filter.Contains(Object))
