package postgen

import (
	"tileforge.ai/internal/sim/catalogs"
	"tileforge.ai/internal/sim/dungeon"
	"tileforge.ai/internal/sim/dungeon/gen"
	"tileforge.ai/internal/sim/geom"
)

// Corridor links rooms along a minimum spanning tree of their centers, with
// one A* corridor per tree edge.
type Corridor struct {
	Spec catalogs.CorridorPost
}

func (s *Corridor) Apply(dc *dungeon.Context, d *dungeon.Dungeon) error {
	if len(d.Rooms) < 2 {
		return nil
	}
	centers := make([]geom.Vec2, len(d.Rooms))
	for i, r := range d.Rooms {
		centers[i] = r.Center
	}
	limit := s.Spec.PathLimit
	if limit <= 0 {
		limit = defaultPathLimit
	}
	bounds := d.Bounds().Enlarged(stitchMargin)
	forbidden := func(p geom.Vec2i) bool { return d.RoomTiles.Has(p) || blocked(dc, p) }

	var carved []geom.Vec2i
	for _, e := range geom.MinimumSpanningTree(centers, dc.Rand) {
		if err := dc.Checkpoint(); err != nil {
			return err
		}
		from, to := d.Rooms[e.A], d.Rooms[e.B]
		starts := s.doors(dc, d, from)
		goals := dungeon.NewTileSet(s.doors(dc, d, to)...)
		if len(starts) == 0 || goals.Size() == 0 {
			dc.Warn(d, "corridor %d-%d: room has no open side", e.A, e.B)
			continue
		}
		start := closestTo(starts, to.Center)
		path, err := geom.FindPath(geom.PathRequest{
			Start:        start,
			Goal:         closestTo(dungeon.Sorted(goals), from.Center),
			IsGoal:       goals.Has,
			Forbidden:    forbidden,
			Corridor:     d.CorridorTiles.Has,
			CorridorCost: stitchCorridorCost,
			TurnPenalty:  stitchTurnPenalty,
			Bounds:       bounds,
			MaxLength:    limit,
		})
		if err != nil {
			dc.Warn(d, "corridor %d-%d: %v", e.A, e.B, err)
			continue
		}
		d.Paths = append(d.Paths, dungeon.Path{From: e.A, To: e.B, Tiles: path})
		d.AddCorridor(path...)
		carved = append(carved, path...)
	}

	var paint []geom.Vec2i
	for _, p := range gen.Widen(carved, s.Spec.Width) {
		if !forbidden(p) {
			d.AddCorridor(p)
			paint = append(paint, p)
		}
	}
	d.RefreshExteriors()
	return pavement(dc, s.Spec.Tile, paint)
}

// doors lists where a corridor may leave room r: its entrances when it has
// any, otherwise its open sides.
func (s *Corridor) doors(dc *dungeon.Context, d *dungeon.Dungeon, r *dungeon.Room) []geom.Vec2i {
	if r.Entrances.Size() > 0 {
		return dungeon.Sorted(r.Entrances)
	}
	var out []geom.Vec2i
	for _, p := range dungeon.Sorted(cardinalBorder(d, r)) {
		if !blocked(dc, p) {
			out = append(out, p)
		}
	}
	return out
}

func closestTo(tiles []geom.Vec2i, c geom.Vec2) geom.Vec2i {
	best := tiles[0]
	bestD := best.Center().Sub(c).LengthSquared()
	for _, p := range tiles[1:] {
		if dd := p.Center().Sub(c).LengthSquared(); dd < bestD {
			best, bestD = p, dd
		}
	}
	return best
}
