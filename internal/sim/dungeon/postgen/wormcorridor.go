package postgen

import (
	"math"

	"tileforge.ai/internal/sim/catalogs"
	"tileforge.ai/internal/sim/dungeon"
	"tileforge.ai/internal/sim/dungeon/gen"
	"tileforge.ai/internal/sim/geom"
)

const (
	stitchSamples      = 4
	stitchCorridorCost = 0.5
	stitchTurnPenalty  = 1
	stitchMargin       = 16
	defaultPathLimit   = 256
)

// WormCorridor grows a worm out of each entrance, then stitches every
// separate network onto the largest one with A*.
type WormCorridor struct {
	Spec catalogs.WormCorridorPost
}

func (s *WormCorridor) Apply(dc *dungeon.Context, d *dungeon.Dungeon) error {
	entrances := dungeon.Sorted(d.Entrances)
	if len(entrances) == 0 {
		dc.Warn(d, "worm corridor: no entrances")
		return nil
	}
	count := s.Spec.Count
	if count <= 0 {
		count = len(entrances)
	}

	walked := dungeon.NewTileSet()
	for i := 0; i < count; i++ {
		start := entrances[i%len(entrances)]
		heading := s.headingAway(d, start)
		walk, err := gen.WormWalk(dc, start, heading, s.Spec.Length, s.Spec.MaxAngleChange, d.RoomTiles.Has)
		if err != nil {
			return err
		}
		for _, p := range walk {
			walked.Put(p)
		}
	}
	d.CorridorTiles.Each(func(p geom.Vec2i) { walked.Put(p) })

	nets := networks(walked)
	primary := 0
	for i, n := range nets {
		if len(n) > len(nets[primary]) {
			primary = i
		}
	}
	main := dungeon.NewTileSet(nets[primary]...)
	bounds := d.Bounds()
	walked.Each(func(p geom.Vec2i) { bounds = bounds.Union(geom.BoxAt(p, geom.Vec2i{X: 1, Y: 1})) })
	bounds = bounds.Enlarged(stitchMargin)
	for i, net := range nets {
		if i == primary {
			continue
		}
		if err := dc.Checkpoint(); err != nil {
			return err
		}
		path, ok := s.stitch(dc, d, net, main, walked, bounds)
		if !ok {
			dc.Warn(d, "worm corridor: network of %d tiles left unconnected", len(net))
			continue
		}
		for _, p := range net {
			main.Put(p)
		}
		for _, p := range path {
			main.Put(p)
			walked.Put(p)
		}
	}

	wide := gen.Widen(dungeon.Sorted(walked), s.Spec.Width)
	d.AddCorridor(wide...)
	d.RefreshExteriors()
	var paint []geom.Vec2i
	for _, p := range dungeon.Sorted(d.CorridorTiles) {
		if !blocked(dc, p) {
			paint = append(paint, p)
		}
	}
	return pavement(dc, s.Spec.Tile, paint)
}

// headingAway points from the center of the nearest room to p.
func (s *WormCorridor) headingAway(d *dungeon.Dungeon, p geom.Vec2i) float64 {
	from := d.Center
	best := math.Inf(1)
	for _, r := range d.Rooms {
		if r.Entrances.Has(p) {
			from = r.Center
			break
		}
		if dist := r.Center.Sub(p.Center()).LengthSquared(); dist < best {
			best, from = dist, r.Center
		}
	}
	v := p.Center().Sub(from)
	return math.Atan2(v.Y, v.X)
}

func (s *WormCorridor) stitch(dc *dungeon.Context, d *dungeon.Dungeon, net []geom.Vec2i, main, corridor dungeon.TileSet, bounds geom.Box2i) ([]geom.Vec2i, bool) {
	limit := s.Spec.PathLimit
	if limit <= 0 {
		limit = defaultPathLimit
	}
	samples := append([]geom.Vec2i(nil), net...)
	dc.Rand.Shuffle(len(samples), func(i, j int) { samples[i], samples[j] = samples[j], samples[i] })
	if len(samples) > stitchSamples {
		samples = samples[:stitchSamples]
	}
	for _, start := range samples {
		path, err := geom.FindPath(geom.PathRequest{
			Start:        start,
			Goal:         nearest(main, start),
			IsGoal:       main.Has,
			Forbidden:    func(p geom.Vec2i) bool { return d.RoomTiles.Has(p) || blocked(dc, p) },
			Corridor:     corridor.Has,
			CorridorCost: stitchCorridorCost,
			TurnPenalty:  stitchTurnPenalty,
			Bounds:       bounds,
			MaxLength:    limit,
		})
		if err == nil {
			return path, true
		}
	}
	return nil, false
}

// networks splits tiles into 4-connected components in (Y, X) order of their
// first tile.
func networks(tiles dungeon.TileSet) [][]geom.Vec2i {
	seen := dungeon.NewTileSet()
	var out [][]geom.Vec2i
	for _, start := range dungeon.Sorted(tiles) {
		if seen.Has(start) {
			continue
		}
		seen.Put(start)
		comp := []geom.Vec2i{start}
		for i := 0; i < len(comp); i++ {
			for _, dir := range geom.CardinalDirs {
				n := comp[i].Add(dir)
				if tiles.Has(n) && !seen.Has(n) {
					seen.Put(n)
					comp = append(comp, n)
				}
			}
		}
		out = append(out, comp)
	}
	return out
}

// nearest returns the tile of set closest to p, ties broken in (Y, X) order.
func nearest(set dungeon.TileSet, p geom.Vec2i) geom.Vec2i {
	best, bestD := p, -1
	for _, q := range dungeon.Sorted(set) {
		if d := q.Manhattan(p); bestD < 0 || d < bestD {
			best, bestD = q, d
		}
	}
	return best
}
