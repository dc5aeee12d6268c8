package core

import (
	"math/rand"
	"sort"
	"time"

	"github.com/automoto/lynxsync/config"
	"github.com/automoto/lynxsync/shared/gamemath"
	"github.com/automoto/lynxsync/shared/messages"
	"github.com/automoto/lynxsync/shared/netcomponents"
	"github.com/automoto/lynxsync/shared/netconfig"
	"github.com/automoto/lynxsync/shared/worldstate"
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/sirupsen/logrus"
	"github.com/yohamta/donburi"
	"github.com/yohamta/donburi/filter"
)

const (
	npcMaxHealth = 100
	arriveDist   = 2.0
	runFactor    = 0.75
)

var (
	playerQuery = donburi.NewQuery(filter.Contains(netcomponents.Object, netcomponents.Player))
	npcQuery    = donburi.NewQuery(filter.Contains(netcomponents.Object, netcomponents.Wander))
)

// Sim is the authoritative world: client avatars driven by input and NPCs
// that wander, die and respawn.
type Sim struct {
	world donburi.World
	level Level
	rng   *rand.Rand
	cfg   config.SimConfig
	log   logrus.FieldLogger

	nextID   worldstate.ObjectID
	entities map[worldstate.ObjectID]donburi.Entity
	respawns []time.Time
}

func NewSim(level Level, cfg config.SimConfig, seed int64, log logrus.FieldLogger) *Sim {
	return &Sim{
		world:    donburi.NewWorld(),
		level:    level,
		rng:      rand.New(rand.NewSource(seed)),
		cfg:      cfg,
		log:      log.WithField("component", "sim"),
		nextID:   1,
		entities: make(map[worldstate.ObjectID]donburi.Entity),
	}
}

// World returns the ECS world.
func (s *Sim) World() donburi.World {
	return s.world
}

// Populate spawns the configured number of NPCs.
func (s *Sim) Populate(now time.Time) {
	for i := 0; i < s.cfg.NPCCount; i++ {
		s.spawnNPC(now)
	}
}

func (s *Sim) allocID() worldstate.ObjectID {
	id := s.nextID
	s.nextID++
	if s.nextID == 0 {
		s.nextID = 1
	}
	return id
}

// SpawnPlayer creates an avatar for connID at a level spawn point.
func (s *Sim) SpawnPlayer(connID string) worldstate.ObjectID {
	spawn := s.level.RandomSpawn(s.rng)
	id := s.allocID()

	entity := s.world.Create(netcomponents.Object, netcomponents.Player)
	entry := s.world.Entry(entity)
	netcomponents.Object.SetValue(entry, netcomponents.ObjectData{
		ID: id,
		State: worldstate.ObjState{
			Kind:      worldstate.KindPlayer,
			Origin:    spawn.Origin,
			Rot:       spawn.Rot,
			Flags:     netconfig.FlagPlayer | netconfig.FlagOnGround,
			Animation: uint16(netconfig.AnimIdle),
		},
	})
	netcomponents.Player.SetValue(entry, netcomponents.PlayerData{
		ConnID: connID,
		Facing: spawn.Rot,
	})
	s.entities[id] = entity

	s.log.WithFields(logrus.Fields{"object": id, "conn": connID}).Info("player spawned")
	return id
}

// Remove destroys object id.
func (s *Sim) Remove(id worldstate.ObjectID) {
	entity, ok := s.entities[id]
	if !ok {
		return
	}
	delete(s.entities, id)
	if s.world.Valid(entity) {
		s.world.Remove(entity)
	}
}

// Has reports whether object id exists.
func (s *Sim) Has(id worldstate.ObjectID) bool {
	_, ok := s.entities[id]
	return ok
}

// State returns the current state of object id.
func (s *Sim) State(id worldstate.ObjectID) (worldstate.ObjState, bool) {
	entry := s.entry(id)
	if entry == nil {
		return worldstate.ObjState{}, false
	}
	return netcomponents.Object.Get(entry).State, true
}

func (s *Sim) entry(id worldstate.ObjectID) *donburi.Entry {
	entity, ok := s.entities[id]
	if !ok || !s.world.Valid(entity) {
		return nil
	}
	return s.world.Entry(entity)
}

// ApplyInput stores the latest movement request for avatar id. Inputs older
// than the last applied sequence or carrying non-finite values are ignored.
func (s *Sim) ApplyInput(id worldstate.ObjectID, in *messages.PlayerInput) bool {
	if !gamemath.Finite(in.Move[0], in.Move[1], in.Move[2], in.Rot.W, in.Rot.V[0], in.Rot.V[1], in.Rot.V[2]) {
		return false
	}
	entry := s.entry(id)
	if entry == nil || !entry.HasComponent(netcomponents.Player) {
		return false
	}
	p := netcomponents.Player.Get(entry)
	if in.Sequence <= p.LastInput && p.LastInput != 0 {
		return false
	}
	p.LastInput = in.Sequence
	move := in.Move
	move[1] = 0
	p.Move = gamemath.ClampLength(move, 1)
	if rot := in.Rot; rot.Len() > 0.5 {
		p.Facing = rot.Normalize()
	}
	return true
}

// Orphan marks avatar id as belonging to a disconnected client.
func (s *Sim) Orphan(id worldstate.ObjectID, now time.Time) {
	if entry := s.entry(id); entry != nil && entry.HasComponent(netcomponents.Player) {
		p := netcomponents.Player.Get(entry)
		p.OrphanedAt = now
		p.Move = mgl32.Vec3{}
	}
}

// Reclaim hands avatar id to connID. It fails if the avatar no longer exists.
func (s *Sim) Reclaim(id worldstate.ObjectID, connID string) bool {
	entry := s.entry(id)
	if entry == nil || !entry.HasComponent(netcomponents.Player) {
		return false
	}
	p := netcomponents.Player.Get(entry)
	p.ConnID = connID
	p.OrphanedAt = time.Time{}
	return true
}

// ReapOrphans removes avatars orphaned for longer than grace and returns
// their ids.
func (s *Sim) ReapOrphans(now time.Time, grace time.Duration) []worldstate.ObjectID {
	var dead []worldstate.ObjectID
	playerQuery.Each(s.world, func(entry *donburi.Entry) {
		p := netcomponents.Player.Get(entry)
		if !p.OrphanedAt.IsZero() && now.Sub(p.OrphanedAt) > grace {
			dead = append(dead, netcomponents.Object.Get(entry).ID)
		}
	})
	for _, id := range dead {
		s.Remove(id)
	}
	return dead
}

// Step advances the world by dt.
func (s *Sim) Step(now time.Time, dt time.Duration) {
	secs := float32(dt.Seconds())

	playerQuery.Each(s.world, func(entry *donburi.Entry) {
		s.stepPlayer(entry, secs)
	})

	var dead []worldstate.ObjectID
	npcQuery.Each(s.world, func(entry *donburi.Entry) {
		if s.stepNPC(entry, now, secs) {
			dead = append(dead, netcomponents.Object.Get(entry).ID)
		}
	})
	for _, id := range dead {
		s.Remove(id)
		s.respawns = append(s.respawns, now.Add(s.cfg.NPCRespawn()))
	}

	kept := s.respawns[:0]
	for _, at := range s.respawns {
		if now.Before(at) {
			kept = append(kept, at)
			continue
		}
		s.spawnNPC(now)
	}
	s.respawns = kept
}

func (s *Sim) stepPlayer(entry *donburi.Entry, secs float32) {
	obj := netcomponents.Object.Get(entry)
	p := netcomponents.Player.Get(entry)
	st := &obj.State

	st.Vel = p.Move.Mul(s.cfg.PlayerSpeed)
	st.Rot = p.Facing
	s.move(st, secs)

	switch speed := st.Vel.Len(); {
	case speed == 0:
		st.Animation = uint16(netconfig.AnimIdle)
	case speed < s.cfg.PlayerSpeed*runFactor:
		st.Animation = uint16(netconfig.AnimWalk)
	default:
		st.Animation = uint16(netconfig.AnimRun)
	}
}

// stepNPC advances one NPC and reports whether it should be removed.
func (s *Sim) stepNPC(entry *donburi.Entry, now time.Time, secs float32) bool {
	obj := netcomponents.Object.Get(entry)
	w := netcomponents.Wander.Get(entry)
	st := &obj.State

	if st.HasFlag(netconfig.FlagDead) {
		return now.Sub(w.DiedAt) >= s.cfg.NPCRespawn()/2
	}

	if lifetime := float32(s.cfg.NPCLifetime().Seconds()); lifetime > 0 {
		w.Health -= secs * npcMaxHealth / lifetime
	}
	if w.Health <= 0 {
		w.DiedAt = now
		st.Flags |= netconfig.FlagDead
		st.Vel = mgl32.Vec3{}
		st.Animation = uint16(netconfig.AnimDie)
		return false
	}

	if !now.Before(w.NextThink) || gamemath.DistSqr(st.Origin, w.Target) < arriveDist*arriveDist {
		w.Target = s.wanderTarget(st.Origin)
		w.NextThink = now.Add(s.cfg.ThinkInterval())
	}

	dir := w.Target.Sub(st.Origin)
	dir[1] = 0
	if dir.Len() > 0 {
		dir = dir.Normalize()
	}
	st.Vel = dir.Mul(w.Speed)
	st.Rot = gamemath.FacingQuat(st.Vel, st.Rot)
	if blocked := s.move(st, secs); blocked {
		w.NextThink = now
	}
	if st.Vel.Len() > 0 {
		st.Animation = uint16(netconfig.AnimWalk)
	} else {
		st.Animation = uint16(netconfig.AnimIdle)
	}
	return false
}

// move integrates velocity against level geometry. A blocked move stops at
// the contact point and zeroes velocity.
func (s *Sim) move(st *worldstate.ObjState, secs float32) bool {
	if st.Vel.Len() == 0 {
		return false
	}
	to := st.Origin.Add(st.Vel.Mul(secs))
	hit, at := s.level.SegmentCollides(st.Origin, to)
	st.Origin = at
	if hit {
		st.Vel = mgl32.Vec3{}
	}
	return hit
}

func (s *Sim) wanderTarget(from mgl32.Vec3) mgl32.Vec3 {
	r := s.cfg.WanderRadius
	target := from
	target[0] += (s.rng.Float32()*2 - 1) * r
	target[2] += (s.rng.Float32()*2 - 1) * r
	return target
}

func (s *Sim) spawnNPC(now time.Time) worldstate.ObjectID {
	origin := s.level.RandomPoint(s.rng)
	id := s.allocID()

	entity := s.world.Create(netcomponents.Object, netcomponents.Wander)
	entry := s.world.Entry(entity)
	netcomponents.Object.SetValue(entry, netcomponents.ObjectData{
		ID: id,
		State: worldstate.ObjState{
			Kind:      worldstate.KindNPC,
			Origin:    origin,
			Rot:       gamemath.YawQuat(s.rng.Float32() * 2 * math32.Pi),
			Flags:     netconfig.FlagOnGround,
			Animation: uint16(netconfig.AnimIdle),
		},
	})
	netcomponents.Wander.SetValue(entry, netcomponents.WanderData{
		Target:    origin,
		Speed:     s.cfg.NPCSpeed * (0.5 + s.rng.Float32()/2),
		NextThink: now,
		Health:    npcMaxHealth,
	})
	s.entities[id] = entity
	return id
}

// Capture copies every object into a builder in id order.
func (s *Sim) Capture() *worldstate.Builder {
	objs := make([]netcomponents.ObjectData, 0, len(s.entities))
	netcomponents.Objects.Each(s.world, func(entry *donburi.Entry) {
		objs = append(objs, *netcomponents.Object.Get(entry))
	})
	sort.Slice(objs, func(i, j int) bool { return objs[i].ID < objs[j].ID })

	b := worldstate.NewBuilder()
	for _, o := range objs {
		b.Set(o.ID, o.State)
	}
	return b
}
