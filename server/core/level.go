package core

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/automoto/lynxsync/shared/gamemath"
	"github.com/automoto/lynxsync/shared/leveldata"
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/sirupsen/logrus"
	"github.com/solarlune/resolv"
)

const (
	tagSolid = "solid"
	tagProbe = "probe"

	cellSize  = 16
	probeSize = 1.0
)

// Transform is a spawn location and facing.
type Transform struct {
	Origin mgl32.Vec3
	Rot    mgl32.Quat
}

// Level answers the spatial questions the simulation asks about geometry.
type Level interface {
	// RandomSpawn returns a player spawn transform.
	RandomSpawn(rng *rand.Rand) Transform
	// RandomPoint returns a walkable point for NPCs.
	RandomPoint(rng *rand.Rand) mgl32.Vec3
	// SegmentCollides reports whether moving from from to to hits geometry
	// and, if so, the furthest point reachable along the segment.
	SegmentCollides(from, to mgl32.Vec3) (bool, mgl32.Vec3)
}

// ServerLevel is a TMX level projected onto the XZ plane and backed by a
// resolv collision space.
type ServerLevel struct {
	Space       *resolv.Space
	SpawnPoints []leveldata.SpawnPoint
	NPCPoints   []leveldata.SpawnPoint
	MapWidth    int
	MapHeight   int

	probe *resolv.Object
}

// NewServerLevel builds a resolv.Space from parsed collision data.
func NewServerLevel(data *leveldata.CollisionData, log logrus.FieldLogger) *ServerLevel {
	space := resolv.NewSpace(data.MapWidth, data.MapHeight, cellSize, cellSize)

	for _, r := range data.SolidRects {
		obj := resolv.NewObject(r.X, r.Z, r.W, r.D, tagSolid)
		obj.SetShape(resolv.NewRectangle(0, 0, r.W, r.D))
		space.Add(obj)
	}

	probe := resolv.NewObject(0, 0, probeSize, probeSize, tagProbe)
	probe.SetShape(resolv.NewRectangle(0, 0, probeSize, probeSize))
	space.Add(probe)

	l := &ServerLevel{
		Space:       space,
		SpawnPoints: data.SpawnsOf(leveldata.SpawnPlayer),
		NPCPoints:   data.SpawnsOf(leveldata.SpawnNPC),
		MapWidth:    data.MapWidth,
		MapHeight:   data.MapHeight,
		probe:       probe,
	}

	log.WithFields(logrus.Fields{
		"solids": len(data.SolidRects),
		"spawns": len(l.SpawnPoints),
		"npcs":   len(l.NPCPoints),
		"width":  data.MapWidth,
		"height": data.MapHeight,
	}).Info("loaded level")

	return l
}

// LoadServerLevel loads one TMX file from disk.
func LoadServerLevel(path string, log logrus.FieldLogger) (*ServerLevel, error) {
	data, err := leveldata.LoadCollisionData(os.DirFS(filepath.Dir(path)), filepath.Base(path))
	if err != nil {
		return nil, fmt.Errorf("load level: %w", err)
	}
	return NewServerLevel(data, log), nil
}

func (l *ServerLevel) RandomSpawn(rng *rand.Rand) Transform {
	if len(l.SpawnPoints) == 0 {
		return Transform{Origin: l.RandomPoint(rng), Rot: mgl32.QuatIdent()}
	}
	sp := l.SpawnPoints[rng.Intn(len(l.SpawnPoints))]
	return Transform{
		Origin: mgl32.Vec3{float32(sp.X), 0, float32(sp.Z)},
		Rot:    gamemath.YawQuat(mgl32.DegToRad(float32(sp.Yaw))),
	}
}

// RandomPoint picks an NPC spawn point, or a free spot in the map when the
// level defines none.
func (l *ServerLevel) RandomPoint(rng *rand.Rand) mgl32.Vec3 {
	if len(l.NPCPoints) > 0 {
		sp := l.NPCPoints[rng.Intn(len(l.NPCPoints))]
		return mgl32.Vec3{float32(sp.X), 0, float32(sp.Z)}
	}
	for i := 0; i < 32; i++ {
		p := mgl32.Vec3{rng.Float32() * float32(l.MapWidth), 0, rng.Float32() * float32(l.MapHeight)}
		if !l.blocked(p) {
			return p
		}
	}
	return mgl32.Vec3{float32(l.MapWidth) / 2, 0, float32(l.MapHeight) / 2}
}

// SegmentCollides sweeps a small probe from from to to in steps no longer
// than half a cell so thin walls are not skipped. Each step resolves X then Z.
func (l *ServerLevel) SegmentCollides(from, to mgl32.Vec3) (bool, mgl32.Vec3) {
	delta := to.Sub(from)
	dist := math32.Sqrt(delta[0]*delta[0] + delta[2]*delta[2])
	steps := int(math32.Ceil(dist / (cellSize / 2)))
	if steps < 1 {
		steps = 1
	}
	step := delta.Mul(1 / float32(steps))

	pos := from
	hit := false
	for i := 0; i < steps && !hit; i++ {
		if dx := step[0]; dx != 0 {
			if contact, blocked := l.sweep(pos, float64(dx), 0); blocked {
				dx, hit = float32(contact), true
			}
			pos[0] += dx
		}
		if dz := step[2]; dz != 0 {
			if contact, blocked := l.sweep(pos, 0, float64(dz)); blocked {
				dz, hit = float32(contact), true
			}
			pos[2] += dz
		}
	}
	if !hit {
		return false, to
	}
	pos[1] = to[1]
	return true, pos
}

// sweep checks moving the probe from pos along one axis and returns the
// distance to the first solid when blocked.
func (l *ServerLevel) sweep(pos mgl32.Vec3, dx, dz float64) (float64, bool) {
	l.placeProbe(pos)
	check := l.probe.Check(dx, dz, tagSolid)
	if check == nil {
		return 0, false
	}
	solids := check.ObjectsByTags(tagSolid)
	if len(solids) == 0 {
		return 0, false
	}
	contact := check.ContactWithObject(solids[0])
	if dx != 0 {
		return contact.X(), true
	}
	return contact.Y(), true
}

func (l *ServerLevel) blocked(p mgl32.Vec3) bool {
	l.placeProbe(p)
	check := l.probe.Check(0, 0, tagSolid)
	return check != nil && len(check.ObjectsByTags(tagSolid)) > 0
}

func (l *ServerLevel) placeProbe(p mgl32.Vec3) {
	l.probe.X = float64(p[0]) - probeSize/2
	l.probe.Y = float64(p[2]) - probeSize/2
	l.probe.Update()
}

// FlatLevel is an empty square arena with walls at its edges.
type FlatLevel struct {
	Size float32
}

func (f FlatLevel) RandomSpawn(rng *rand.Rand) Transform {
	return Transform{
		Origin: f.RandomPoint(rng),
		Rot:    gamemath.YawQuat(rng.Float32() * 2 * math32.Pi),
	}
}

func (f FlatLevel) RandomPoint(rng *rand.Rand) mgl32.Vec3 {
	return mgl32.Vec3{rng.Float32() * f.Size, 0, rng.Float32() * f.Size}
}

func (f FlatLevel) SegmentCollides(from, to mgl32.Vec3) (bool, mgl32.Vec3) {
	clamped := to
	clamped[0] = math32.Max(0, math32.Min(f.Size, to[0]))
	clamped[2] = math32.Max(0, math32.Min(f.Size, to[2]))
	return clamped != to, clamped
}
