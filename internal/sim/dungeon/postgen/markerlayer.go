package postgen

import (
	"tileforge.ai/internal/sim/catalogs"
	"tileforge.ai/internal/sim/dungeon"
	"tileforge.ai/internal/sim/geom"
	"tileforge.ai/internal/sim/grid"
)

// MarkerLayer spawns marker prototypes inside rooms. A layer with an entity
// mask swaps matching entities instead of placing new ones.
type MarkerLayer struct {
	Spec catalogs.BiomeMarkerLayerPost
}

func (s *MarkerLayer) Apply(dc *dungeon.Context, d *dungeon.Dungeon) error {
	tiles := dungeon.Sorted(d.RoomTiles)
	for _, id := range s.Spec.MarkerLayers {
		def, ok := dc.Catalogs.MarkerLayers[id]
		if !ok {
			dc.Warn(d, "unknown marker layer %q", id)
			continue
		}
		if err := dc.Checkpoint(); err != nil {
			return err
		}
		count := def.Min
		if def.Max > def.Min {
			count += dc.Rand.Intn(def.Max - def.Min + 1)
		}
		if count <= 0 {
			continue
		}
		if len(def.EntityMask) > 0 {
			s.replace(dc, d, def, tiles, count)
		} else {
			s.place(dc, d, def, tiles, count)
		}
	}
	return nil
}

func (s *MarkerLayer) place(dc *dungeon.Context, d *dungeon.Dungeon, def catalogs.MarkerLayerDef, tiles []geom.Vec2i, count int) {
	var free []geom.Vec2i
	for _, p := range tiles {
		if !blocked(dc, p) && !dc.Target.Tile(p).IsEmpty() {
			free = append(free, p)
		}
	}
	dc.Rand.Shuffle(len(free), func(i, j int) { free[i], free[j] = free[j], free[i] })
	if len(free) < count {
		dc.Warn(d, "marker layer %s: %d of %d placed", def.ID, len(free), count)
		count = len(free)
	}
	for _, p := range free[:count] {
		dc.Spawn(def.Prototype, p, 0)
	}
}

func (s *MarkerLayer) replace(dc *dungeon.Context, d *dungeon.Dungeon, def catalogs.MarkerLayerDef, tiles []geom.Vec2i, count int) {
	type hit struct {
		id    grid.EntityID
		pos   geom.Vec2i
		proto string
	}
	var hits []hit
	for _, p := range tiles {
		for _, id := range dc.Target.AnchoredAt(p) {
			e, ok := dc.Target.Entity(id)
			if !ok {
				continue
			}
			if to, ok := def.EntityMask[e.Proto]; ok {
				hits = append(hits, hit{id: id, pos: p, proto: to})
			}
		}
	}
	dc.Rand.Shuffle(len(hits), func(i, j int) { hits[i], hits[j] = hits[j], hits[i] })
	if len(hits) > count {
		hits = hits[:count]
	}
	for _, h := range hits {
		dc.Target.Delete(h.id)
		dc.Spawn(h.proto, h.pos, 0)
	}
}
