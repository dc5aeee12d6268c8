// Package netconfig defines the wire limits and cadence constants shared between
// client and server. It must have zero dependencies on the simulation or
// transport packages so both binaries agree on the same numbers.
package netconfig

import "time"

// Cadence constants.
const (
	// ServerUpdateTime is how often the server emits a snapshot to each client.
	ServerUpdateTime = 50 * time.Millisecond
	// RenderDelay is the fixed lag between wire time and displayed time.
	RenderDelay = 2 * ServerUpdateTime
	// ClientUpdateRate is how often a client sends its input upstream.
	ClientUpdateRate = 50 * time.Millisecond
	// ChallengeTimeout is how long a connecting client has to answer the challenge.
	ChallengeTimeout = 6000 * time.Millisecond
	// ClientTimeout drops a joined client that has sent nothing for this long.
	ClientTimeout = 10 * time.Second
	// ReconnectGrace keeps a disconnected client's avatar reclaimable.
	ReconnectGrace = 15 * time.Second
)

// History limits.
const (
	MaxClients = 8
	// MaxWorldAge is the maximum age of a server snapshot.
	MaxWorldAge = 6000 * time.Millisecond
	// MaxWorldBacklog is how many snapshots the server keeps at most.
	MaxWorldBacklog = 10 * MaxClients
	// MaxClientHistory is the client-side retention window relative to the
	// newest received snapshot.
	MaxClientHistory = 20 * ServerUpdateTime
	// MaxClientEntries caps the client reception buffer.
	MaxClientEntries = 80
)

// Packet ceilings and bandwidth.
const (
	MaxServerPacketLen = 65535
	MaxClientPacketLen = 1024
	// OutgoingBandwidth is the per-client send budget in bytes per second.
	OutgoingBandwidth = 1024 * 15
)

// MaxPositionDiffSqr is the squared distance between the locally predicted and
// the authoritative position above which the client snaps to the server.
const MaxPositionDiffSqr = 45.0 * 45.0

// LerpThresholdSqr is the squared endpoint distance below which positions are
// blended linearly instead of along a Hermite curve.
const LerpThresholdSqr = 0.3 * 0.3

// AnimationID identifies an object's animation state.
type AnimationID uint16

const (
	AnimIdle AnimationID = iota
	AnimWalk
	AnimRun
	AnimJump
	AnimHit
	AnimDie
)

var animationNames = map[AnimationID]string{
	AnimIdle: "idle",
	AnimWalk: "walk",
	AnimRun:  "run",
	AnimJump: "jump",
	AnimHit:  "hit",
	AnimDie:  "die",
}

func (a AnimationID) String() string {
	if name, ok := animationNames[a]; ok {
		return name
	}
	return "unknown"
}

// Object flags carried in ObjState.Flags.
const (
	FlagOnGround uint32 = 1 << iota
	FlagDead
	FlagPlayer
	FlagNoClip
)
