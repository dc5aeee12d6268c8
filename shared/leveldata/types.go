// Package leveldata parses TMX level files into plain collision data. Map
// pixels become world units on the XZ plane.
package leveldata

// CollisionData holds all collision-relevant data parsed from a TMX level file.
type CollisionData struct {
	SolidRects  []SolidRect
	SpawnPoints []SpawnPoint
	MapWidth    int
	MapHeight   int
}

// SolidRect is a blocking rectangle on the XZ plane.
type SolidRect struct {
	X, Z, W, D float64
}

type SpawnKind string

const (
	SpawnPlayer SpawnKind = "player"
	SpawnNPC    SpawnKind = "npc"
)

// SpawnPoint is a location objects of Kind may appear at, facing Yaw degrees.
type SpawnPoint struct {
	X, Z  float64
	Yaw   float64
	Kind  SpawnKind
	Index int
}

// SpawnsOf returns the spawn points of kind k in index order.
func (d *CollisionData) SpawnsOf(k SpawnKind) []SpawnPoint {
	var out []SpawnPoint
	for _, sp := range d.SpawnPoints {
		if sp.Kind == k {
			out = append(out, sp)
		}
	}
	return out
}
