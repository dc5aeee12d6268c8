package leveldata

import (
	"fmt"
	"io/fs"
	"sort"

	"github.com/lafriks/go-tiled"
)

const (
	solidLayer = "solids"
	spawnLayer = "spawns"
)

// LoadCollisionData reads tmxPath from fsys. Consecutive solid tiles in a row
// are merged into one rectangle.
func LoadCollisionData(fsys fs.FS, tmxPath string) (*CollisionData, error) {
	m, err := tiled.LoadFile(tmxPath, tiled.WithFileSystem(fsys))
	if err != nil {
		return nil, fmt.Errorf("load TMX %s: %w", tmxPath, err)
	}

	data := &CollisionData{
		MapWidth:  m.Width * m.TileWidth,
		MapHeight: m.Height * m.TileHeight,
	}
	for _, layer := range m.Layers {
		if layer.Name == solidLayer {
			data.SolidRects = solidRuns(m, layer)
			break
		}
	}
	for _, og := range m.ObjectGroups {
		if og.Name == spawnLayer {
			data.SpawnPoints = append(data.SpawnPoints, spawnPoints(og)...)
		}
	}
	sort.SliceStable(data.SpawnPoints, func(i, j int) bool {
		return data.SpawnPoints[i].Index < data.SpawnPoints[j].Index
	})
	return data, nil
}

func solidRuns(m *tiled.Map, layer *tiled.Layer) []SolidRect {
	tw, th := float64(m.TileWidth), float64(m.TileHeight)
	var rects []SolidRect
	for row := 0; row < m.Height; row++ {
		start := -1
		for col := 0; col <= m.Width; col++ {
			solid := col < m.Width && !layer.Tiles[row*m.Width+col].IsNil()
			switch {
			case solid && start < 0:
				start = col
			case !solid && start >= 0:
				rects = append(rects, SolidRect{
					X: float64(start) * tw,
					Z: float64(row) * th,
					W: float64(col-start) * tw,
					D: th,
				})
				start = -1
			}
		}
	}
	return rects
}

func spawnPoints(og *tiled.ObjectGroup) []SpawnPoint {
	out := make([]SpawnPoint, 0, len(og.Objects))
	for _, o := range og.Objects {
		kind := SpawnKind(o.Properties.GetString("kind"))
		if kind == "" {
			kind = SpawnPlayer
		}
		out = append(out, SpawnPoint{
			X:     o.X,
			Z:     o.Y,
			Yaw:   o.Properties.GetFloat("yaw"),
			Kind:  kind,
			Index: o.Properties.GetInt("spawnIndex"),
		})
	}
	return out
}
