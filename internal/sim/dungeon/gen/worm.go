package gen

import (
	"math"

	"tileforge.ai/internal/sim/catalogs"
	"tileforge.ai/internal/sim/dungeon"
	"tileforge.ai/internal/sim/geom"
)

// Worm produces corridor tiles only. Each walk after the first starts from a
// random tile of the corridor carved so far.
type Worm struct {
	Spec catalogs.WormGen
}

func (g *Worm) Generate(dc *dungeon.Context) (*dungeon.Dungeon, error) {
	d := dungeon.New()
	carved := dungeon.NewTileSet()
	start := dc.Position
	for i := 0; i < max(1, g.Spec.Count); i++ {
		if i > 0 && carved.Size() > 0 {
			tiles := dungeon.Sorted(carved)
			start = tiles[dc.Rand.Intn(len(tiles))]
		}
		heading := dc.Rand.Float64() * 2 * math.Pi
		walk, err := WormWalk(dc, start, heading, g.Spec.Length, g.Spec.MaxAngleChange, nil)
		if err != nil {
			return nil, err
		}
		for _, p := range walk {
			carved.Put(p)
		}
	}
	wide := Widen(dungeon.Sorted(carved), g.Spec.Width)
	d.AddCorridor(wide...)
	d.RefreshExteriors()
	if err := commitFloor(dc, g.Spec.Tile, dungeon.Sorted(d.CorridorTiles)); err != nil {
		return nil, err
	}
	return d, nil
}

// WormWalk steps length times from start, drifting the heading by at most
// maxTurn degrees per step. Diagonal moves get an intermediate tile so the walk
// stays 4-connected. The walk stops early when blocked reports true.
func WormWalk(dc *dungeon.Context, start geom.Vec2i, heading float64, length int, maxTurn float64, blocked func(geom.Vec2i) bool) ([]geom.Vec2i, error) {
	out := []geom.Vec2i{start}
	pos := start.Center()
	cur := start
	turn := maxTurn * math.Pi / 180
	for s := 0; s < length; s++ {
		if err := dc.Checkpoint(); err != nil {
			return nil, err
		}
		if turn > 0 {
			heading += (dc.Rand.Float64()*2 - 1) * turn
		}
		pos = pos.Add(geom.Vec2{X: math.Cos(heading), Y: math.Sin(heading)})
		next := pos.Floor()
		if next == cur {
			continue
		}
		if next.X != cur.X && next.Y != cur.Y {
			mid := geom.Vec2i{X: next.X, Y: cur.Y}
			if dc.Rand.Intn(2) == 0 {
				mid = geom.Vec2i{X: cur.X, Y: next.Y}
			}
			if blocked != nil && blocked(mid) {
				break
			}
			out = append(out, mid)
		}
		if blocked != nil && blocked(next) {
			break
		}
		out = append(out, next)
		cur = next
	}
	return out, nil
}

// Widen grows every tile into a width x width brush anchored at the tile.
// Widths below two return tiles unchanged.
func Widen(tiles []geom.Vec2i, width int) []geom.Vec2i {
	if width < 2 {
		return tiles
	}
	lo := -(width - 1) / 2
	hi := lo + width
	set := dungeon.NewTileSet()
	for _, p := range tiles {
		for dy := lo; dy < hi; dy++ {
			for dx := lo; dx < hi; dx++ {
				set.Put(geom.Vec2i{X: p.X + dx, Y: p.Y + dy})
			}
		}
	}
	return dungeon.Sorted(set)
}
