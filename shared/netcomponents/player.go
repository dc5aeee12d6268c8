package netcomponents

import (
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/yohamta/donburi"
)

// PlayerData is the server-side control state of a client's avatar.
type PlayerData struct {
	ConnID    string
	Move      mgl32.Vec3
	Facing    mgl32.Quat
	LastInput uint32
	// OrphanedAt is set while the owning client is disconnected and may still
	// reclaim the avatar.
	OrphanedAt time.Time
}

var Player = donburi.NewComponentType[PlayerData]()

// WanderData drives a server-side NPC.
type WanderData struct {
	Target    mgl32.Vec3
	Speed     float32
	NextThink time.Time
	DiedAt    time.Time
	Health    float32
}

var Wander = donburi.NewComponentType[WanderData]()
