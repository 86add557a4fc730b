package postgen

import (
	"sort"

	"tileforge.ai/internal/sim/catalogs"
	"tileforge.ai/internal/sim/dungeon"
	"tileforge.ai/internal/sim/geom"
)

// MiddleConnection joins rooms whose borders overlap with a door cluster at
// the middle of the overlap. Only the breadth-first spanning edges of the
// room adjacency graph get doors. Count is the smallest overlap that makes
// two rooms adjacent.
type MiddleConnection struct {
	Spec catalogs.MiddleConnectionPost
}

func (s *MiddleConnection) Apply(dc *dungeon.Context, d *dungeon.Dungeon) error {
	n := len(d.Rooms)
	borders := make([]dungeon.TileSet, n)
	for i, r := range d.Rooms {
		borders[i] = cardinalBorder(d, r)
	}

	overlap := map[[2]int][]geom.Vec2i{}
	adj := make([][]int, n)
	minOverlap := max(1, s.Spec.Count)
	for i := 0; i < n; i++ {
		if err := dc.Checkpoint(); err != nil {
			return err
		}
		for j := i + 1; j < n; j++ {
			var shared []geom.Vec2i
			borders[i].Each(func(p geom.Vec2i) {
				if borders[j].Has(p) && !blocked(dc, p) {
					shared = append(shared, p)
				}
			})
			if len(shared) < minOverlap {
				continue
			}
			geom.SortTiles(shared)
			overlap[[2]int{i, j}] = shared
			adj[i] = append(adj[i], j)
			adj[j] = append(adj[j], i)
		}
	}

	seen := make([]bool, n)
	for root := 0; root < n; root++ {
		if seen[root] {
			continue
		}
		seen[root] = true
		queue := []int{root}
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			for _, next := range adj[cur] {
				if seen[next] {
					continue
				}
				seen[next] = true
				queue = append(queue, next)
				key := [2]int{min(cur, next), max(cur, next)}
				if err := s.connect(dc, d, key, overlap[key]); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (s *MiddleConnection) connect(dc *dungeon.Context, d *dungeon.Dungeon, key [2]int, shared []geom.Vec2i) error {
	var c geom.Vec2
	for _, p := range shared {
		c = c.Add(p.Center())
	}
	c = c.Scale(1 / float64(len(shared)))
	byDist := append([]geom.Vec2i(nil), shared...)
	sort.SliceStable(byDist, func(i, j int) bool {
		return byDist[i].Center().Sub(c).LengthSquared() < byDist[j].Center().Sub(c).LengthSquared()
	})
	width := min(max(1, s.Spec.Width), len(byDist))
	door := byDist[:width]
	geom.SortTiles(door)

	if err := pavement(dc, s.Spec.Tile, door); err != nil {
		return err
	}
	inDoor := dungeon.NewTileSet(door...)
	for _, p := range door {
		if s.Spec.Door != "" {
			dc.Spawn(s.Spec.Door, p, 0)
		}
		d.AddEntrance(key[0], p)
		d.AddEntrance(key[1], p)
	}
	if s.Spec.Flank == "" {
		return nil
	}
	// Flanks close the rest of the shared gap next to the cluster.
	for _, p := range shared {
		if inDoor.Has(p) || blocked(dc, p) {
			continue
		}
		for _, dir := range geom.CardinalDirs {
			if inDoor.Has(p.Add(dir)) {
				dc.Spawn(s.Spec.Flank, p, 0)
				break
			}
		}
	}
	return nil
}
