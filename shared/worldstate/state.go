// Package worldstate defines the per-object state and the immutable world
// snapshot exchanged between server and client.
package worldstate

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// ObjectID identifies an object within one world. Zero is never assigned.
type ObjectID uint32

// Version identifies a captured snapshot. Versions are assigned by the server,
// strictly increase and are never reused.
type Version uint32

// NoVersion is the sentinel for "no baseline" on the wire.
const NoVersion Version = 0

// Kind is the explicit type tag of an object. Gameplay code dispatches on it
// instead of type assertions.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindPlayer
	KindNPC
	KindProjectile
	KindProp
)

func (k Kind) String() string {
	switch k {
	case KindPlayer:
		return "player"
	case KindNPC:
		return "npc"
	case KindProjectile:
		return "projectile"
	case KindProp:
		return "prop"
	default:
		return "unknown"
	}
}

// ObjState is the networked state of one object at one instant.
type ObjState struct {
	Kind      Kind
	Origin    mgl32.Vec3
	Rot       mgl32.Quat
	Vel       mgl32.Vec3
	Flags     uint32
	Animation uint16
}

// Field masks identify the fields of an ObjState that differ between two states.
const (
	FieldKind uint8 = 1 << iota
	FieldOrigin
	FieldRot
	FieldVel
	FieldFlags
	FieldAnimation

	FieldAll = FieldKind | FieldOrigin | FieldRot | FieldVel | FieldFlags | FieldAnimation
)

// Diff returns the mask of fields that differ between s and other. Floats are
// compared by bit pattern, so -0 and +0 differ and NaN matches itself.
func (s ObjState) Diff(other ObjState) uint8 {
	var mask uint8
	if s.Kind != other.Kind {
		mask |= FieldKind
	}
	if !sameVec(s.Origin, other.Origin) {
		mask |= FieldOrigin
	}
	if math32.Float32bits(s.Rot.W) != math32.Float32bits(other.Rot.W) || !sameVec(s.Rot.V, other.Rot.V) {
		mask |= FieldRot
	}
	if !sameVec(s.Vel, other.Vel) {
		mask |= FieldVel
	}
	if s.Flags != other.Flags {
		mask |= FieldFlags
	}
	if s.Animation != other.Animation {
		mask |= FieldAnimation
	}
	return mask
}

func sameVec(a, b mgl32.Vec3) bool {
	for i := range a {
		if math32.Float32bits(a[i]) != math32.Float32bits(b[i]) {
			return false
		}
	}
	return true
}

// HasFlag reports whether all bits of f are set.
func (s ObjState) HasFlag(f uint32) bool {
	return s.Flags&f == f
}
