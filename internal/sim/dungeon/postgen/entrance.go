package postgen

import (
	"tileforge.ai/internal/sim/catalogs"
	"tileforge.ai/internal/sim/dungeon"
	"tileforge.ai/internal/sim/geom"
)

// entranceReach is how far a door must see open ground outward.
const entranceReach = 4

// Entrance carves doors on room borders facing open ground. A non-positive
// Count gives every room one door.
type Entrance struct {
	Spec catalogs.EntrancePost
}

func (s *Entrance) Apply(dc *dungeon.Context, d *dungeon.Dungeon) error {
	want := s.Spec.Count
	if want <= 0 {
		want = len(d.Rooms)
	}
	order := dc.Rand.Perm(len(d.Rooms))
	placed := 0
	for _, ri := range order {
		if placed >= want {
			break
		}
		if err := dc.Checkpoint(); err != nil {
			return err
		}
		room := d.Rooms[ri]
		cands := dungeon.Sorted(cardinalBorder(d, room))
		dc.Rand.Shuffle(len(cands), func(i, j int) { cands[i], cands[j] = cands[j], cands[i] })

		done := false
		for _, c := range cands {
			dir, ok := outward(room, c)
			if !ok || !s.clear(dc, d, c, dir) {
				continue
			}
			if err := s.carve(dc, d, ri, c); err != nil {
				return err
			}
			placed++
			done = true
			break
		}
		if !done {
			dc.Warn(d, "room %d: no valid entrance", ri)
		}
	}
	return nil
}

// outward picks the side of c that faces away from the room. Among the sides
// touching the room, the one most aligned with the center-to-c direction wins.
func outward(r *dungeon.Room, c geom.Vec2i) (geom.Vec2i, bool) {
	away := c.Center().Sub(r.Center)
	best, found := geom.Vec2i{}, false
	bestDot := 0.0
	for _, dir := range geom.CardinalDirs {
		if !r.Tiles.Has(c.Sub(dir)) {
			continue
		}
		dot := away.X*float64(dir.X) + away.Y*float64(dir.Y)
		if !found || dot > bestDot {
			best, bestDot, found = dir, dot, true
		}
	}
	return best, found
}

func (s *Entrance) clear(dc *dungeon.Context, d *dungeon.Dungeon, c, dir geom.Vec2i) bool {
	for k := 0; k <= entranceReach; k++ {
		p := c.Add(dir.Scale(k))
		if d.RoomTiles.Has(p) || blocked(dc, p) {
			return false
		}
	}
	return true
}

func (s *Entrance) carve(dc *dungeon.Context, d *dungeon.Dungeon, ri int, c geom.Vec2i) error {
	if err := pavement(dc, s.Spec.Tile, []geom.Vec2i{c}); err != nil {
		return err
	}
	if r := s.Spec.ClearRadius; r > 0 {
		area := geom.NewBox2i(c.X-r, c.Y-r, c.X+r+1, c.Y+r+1).ToBox2()
		for _, id := range dc.Target.EntitiesIn(area) {
			e, ok := dc.Target.Entity(id)
			if ok && e.Anchored && !d.RoomTiles.Has(e.Tile()) {
				dc.Target.Delete(id)
			}
		}
	}
	if s.Spec.Door != "" {
		dc.Spawn(s.Spec.Door, c, doorRotation(d.Rooms[ri], c))
	}
	d.AddEntrance(ri, c)
	return nil
}

// doorRotation turns a door to run along the wall it sits in.
func doorRotation(r *dungeon.Room, c geom.Vec2i) geom.Angle {
	if dir, ok := outward(r, c); ok && dir.X != 0 {
		return 1
	}
	return 0
}
