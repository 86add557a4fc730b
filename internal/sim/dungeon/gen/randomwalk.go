package gen

import (
	"tileforge.ai/internal/sim/catalogs"
	"tileforge.ai/internal/sim/dungeon"
	"tileforge.ai/internal/sim/geom"
)

// RandomWalk carves a single cave-like room out of drunkard walks.
type RandomWalk struct {
	Spec catalogs.RandomWalkGen
}

func (g *RandomWalk) Generate(dc *dungeon.Context) (*dungeon.Dungeon, error) {
	d := dungeon.New()
	start := geom.Vec2i{X: g.Spec.Position[0], Y: g.Spec.Position[1]}.Add(dc.Position)
	visited := dungeon.NewTileSet(start)
	order := []geom.Vec2i{start}

	iterations := max(1, g.Spec.Iterations)
	for it := 0; it < iterations; it++ {
		p := start
		if g.Spec.StartFromRandomPosition && it > 0 {
			p = order[dc.Rand.Intn(len(order))]
		}
		for s := 0; s < g.Spec.Steps; s++ {
			if err := dc.Checkpoint(); err != nil {
				return nil, err
			}
			p = p.Add(geom.CardinalDirs[dc.Rand.Intn(4)])
			if !visited.Has(p) {
				visited.Put(p)
				order = append(order, p)
			}
		}
	}

	d.AddRoom(dungeon.NewRoom(order))
	d.ComputeCenter()
	d.RefreshExteriors()
	if err := commitFloor(dc, g.Spec.Tile, dungeon.Sorted(d.RoomTiles)); err != nil {
		return nil, err
	}
	return d, nil
}
