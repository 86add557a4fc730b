package postgen

import (
	"tileforge.ai/internal/sim/catalogs"
	"tileforge.ai/internal/sim/dungeon"
	"tileforge.ai/internal/sim/geom"
)

// BoundaryWall closes the 8-neighbour ring around rooms (and corridors when
// asked). Tiles already part of the layout or holding an anchored entity are
// left alone.
type BoundaryWall struct {
	Spec catalogs.BoundaryWallPost
}

func (s *BoundaryWall) floor(d *dungeon.Dungeon, p geom.Vec2i) bool {
	return d.RoomTiles.Has(p) || d.CorridorTiles.Has(p) || d.Entrances.Has(p)
}

func (s *BoundaryWall) Apply(dc *dungeon.Context, d *dungeon.Dungeon) error {
	ring := dungeon.NewTileSet()
	add := func(p geom.Vec2i) {
		for _, off := range geom.AllDirs {
			n := p.Add(off)
			if !s.floor(d, n) {
				ring.Put(n)
			}
		}
	}
	d.RoomTiles.Each(add)
	if s.Spec.Corridors {
		d.CorridorTiles.Each(add)
	}

	var walls []geom.Vec2i
	for _, p := range dungeon.Sorted(ring) {
		if err := dc.Checkpoint(); err != nil {
			return err
		}
		if blocked(dc, p) {
			continue
		}
		walls = append(walls, p)
	}

	// Tiles go down before any wall entity is spawned.
	if err := pavement(dc, s.Spec.Tile, walls); err != nil {
		return err
	}
	if s.Spec.Wall == "" {
		return nil
	}
	for _, p := range walls {
		proto := s.Spec.Wall
		if s.Spec.CornerWall != "" && s.corner(d, p) {
			proto = s.Spec.CornerWall
		}
		dc.Spawn(proto, p, 0)
	}
	return nil
}

// corner reports whether p only touches the layout diagonally.
func (s *BoundaryWall) corner(d *dungeon.Dungeon, p geom.Vec2i) bool {
	for _, dir := range geom.CardinalDirs {
		if s.floor(d, p.Add(dir)) {
			return false
		}
	}
	return true
}
