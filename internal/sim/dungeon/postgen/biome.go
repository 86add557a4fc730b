package postgen

import (
	"fmt"

	"tileforge.ai/internal/sim/biome/lookup"
	"tileforge.ai/internal/sim/catalogs"
	"tileforge.ai/internal/sim/dungeon"
	"tileforge.ai/internal/sim/geom"
	"tileforge.ai/internal/sim/grid"
)

// Biome paints room tiles from a biome template, then stops streaming from
// repainting the target.
type Biome struct {
	Spec catalogs.BiomePost
}

func (s *Biome) Apply(dc *dungeon.Context, d *dungeon.Dungeon) error {
	seed := dc.Seed
	mapID := dc.Target.ID()
	if dc.Biomes != nil {
		if bs, ok := dc.Biomes.BiomeSeed(mapID); ok {
			seed = bs
		}
	}
	lk, ok := lookup.ForTemplate(dc.Catalogs, s.Spec.Template, seed)
	if !ok {
		return fmt.Errorf("biome post-gen: unknown template %q", s.Spec.Template)
	}

	tiles := dungeon.Sorted(d.RoomTiles)
	sets := make([]grid.TileSet, 0, len(tiles))
	painted := make(map[geom.Vec2i]grid.Tile, len(tiles))
	for _, p := range tiles {
		if err := dc.Checkpoint(); err != nil {
			return err
		}
		t, ok := lk.Tile(p)
		if !ok {
			continue
		}
		sets = append(sets, grid.TileSet{Pos: p, Tile: t})
		painted[p] = t
	}
	dc.Target.SetTiles(sets)

	for _, p := range tiles {
		t, ok := painted[p]
		if !ok {
			continue
		}
		if proto, pos, ok := lk.Decal(p, t); ok {
			dc.Target.AddDecal(proto, pos, 0)
		}
		if proto, ok := lk.Entity(p, t); ok && !blocked(dc, p) {
			dc.Spawn(proto, p, 0)
		}
	}

	if dc.Biomes != nil {
		dc.Biomes.DisablePainting(mapID)
	}
	return nil
}
