package biome

import (
	"fmt"
	"maps"
	"sort"

	snapv1 "tileforge.ai/internal/persistence/snapshot"
	"tileforge.ai/internal/sim/geom"
	"tileforge.ai/internal/sim/grid"
)

// Export converts the biome on mapID into its snapshot form.
func (m *Manager) Export(mapID string) (snapv1.BiomeV1, bool) {
	b, ok := m.biomes[mapID]
	if !ok {
		return snapv1.BiomeV1{}, false
	}
	out := snapv1.BiomeV1{
		MapID:   b.MapID,
		BiomeID: b.BiomeID,
		Seed:    b.Seed,
		Enabled: b.Enabled,
	}
	for _, id := range b.order {
		l := b.Layers[id]
		out.Layers = append(out.Layers, snapv1.LayerV1{
			ID:        l.ID,
			ChunkSize: l.ChunkSize,
			DependsOn: append([]string(nil), l.DependsOn...),
			Config:    l.Config,
			Template:  l.Template,
			CanUnload: l.CanUnload,
		})
		for _, o := range b.LoadedChunks(id) {
			out.Loaded = append(out.Loaded, exportChunk(id, o, b.LoadedData[id][o]))
		}
	}
	mod := make([]geom.Vec2i, 0, b.ModifiedTiles.Size())
	b.ModifiedTiles.Each(func(p geom.Vec2i) { mod = append(mod, p) })
	geom.SortTiles(mod)
	for _, p := range mod {
		out.Modified = append(out.Modified, [2]int{p.X, p.Y})
	}
	for _, a := range b.PreloadAreas {
		out.PreloadAreas = append(out.PreloadAreas, [4]int{a.Min.X, a.Min.Y, a.Max.X, a.Max.Y})
	}
	return out, true
}

// ExportAll exports every biome in map id order.
func (m *Manager) ExportAll() []snapv1.BiomeV1 {
	var out []snapv1.BiomeV1
	for _, id := range m.MapIDs() {
		if s, ok := m.Export(id); ok {
			out = append(out, s)
		}
	}
	return out
}

func exportChunk(layer string, origin geom.Vec2i, c *LoadedChunk) snapv1.LoadedChunkV1 {
	out := snapv1.LoadedChunkV1{Layer: layer, Origin: [2]int{origin.X, origin.Y}}
	tiles := make([]geom.Vec2i, 0, len(c.Tiles))
	for p := range c.Tiles {
		tiles = append(tiles, p)
	}
	geom.SortTiles(tiles)
	for _, p := range tiles {
		t := c.Tiles[p]
		out.Tiles = append(out.Tiles, snapv1.LoadedTileV1{Pos: [2]int{p.X, p.Y}, Type: t.Type, Variant: t.Variant})
	}
	ids := make([]grid.EntityID, 0, len(c.Entities))
	for id := range c.Entities {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		e := c.Entities[id]
		out.Entities = append(out.Entities, snapv1.LoadedEntityV1{
			ID:   uint64(id),
			Tile: [2]int{e.Tile.X, e.Tile.Y},
			Pos:  [2]float64{e.Pos.X, e.Pos.Y},
			Data: maps.Clone(e.Data),
		})
	}
	dids := make([]grid.DecalID, 0, len(c.Decals))
	for id := range c.Decals {
		dids = append(dids, id)
	}
	sort.Slice(dids, func(i, j int) bool { return dids[i] < dids[j] })
	for _, id := range dids {
		p := c.Decals[id]
		out.Decals = append(out.Decals, snapv1.LoadedDecalV1{ID: uint64(id), Pos: [2]float64{p.X, p.Y}})
	}
	return out
}

// Import restores a biome onto its map, which must already be in the store.
// Layers come from the snapshot, not from the current prototypes.
func (m *Manager) Import(s snapv1.BiomeV1) error {
	host, ok := m.store.Get(s.MapID)
	if !ok {
		return fmt.Errorf("import biome: %w: %q", grid.ErrUnknownMap, s.MapID)
	}
	if _, ok := m.biomes[s.MapID]; ok {
		return fmt.Errorf("import biome to %q: %w", s.MapID, ErrBiomeExists)
	}
	b := newBiome(host, s.BiomeID, s.Seed)
	b.Enabled = s.Enabled
	for _, lv := range s.Layers {
		b.Layers[lv.ID] = MetaLayer{
			ID:        lv.ID,
			ChunkSize: lv.ChunkSize,
			DependsOn: append([]string(nil), lv.DependsOn...),
			Config:    lv.Config,
			Template:  lv.Template,
			CanUnload: lv.CanUnload,
		}
	}
	order, err := sortLayers(b.Layers)
	if err != nil {
		return fmt.Errorf("import biome %s: %w", s.BiomeID, err)
	}
	b.order = order

	for _, lc := range s.Loaded {
		if _, ok := b.Layers[lc.Layer]; !ok {
			return fmt.Errorf("import biome %s: chunk of %w %q", s.BiomeID, ErrUnknownLayer, lc.Layer)
		}
		c := newLoadedChunk()
		for _, t := range lc.Tiles {
			c.Tiles[geom.Vec2i{X: t.Pos[0], Y: t.Pos[1]}] = grid.Tile{Type: t.Type, Variant: t.Variant}
		}
		for _, e := range lc.Entities {
			c.Entities[grid.EntityID(e.ID)] = PlacedEntity{
				Tile: geom.Vec2i{X: e.Tile[0], Y: e.Tile[1]},
				Pos:  geom.Vec2{X: e.Pos[0], Y: e.Pos[1]},
				Data: maps.Clone(e.Data),
			}
		}
		for _, d := range lc.Decals {
			c.Decals[grid.DecalID(d.ID)] = geom.Vec2{X: d.Pos[0], Y: d.Pos[1]}
		}
		if b.LoadedData[lc.Layer] == nil {
			b.LoadedData[lc.Layer] = map[geom.Vec2i]*LoadedChunk{}
		}
		b.LoadedData[lc.Layer][geom.Vec2i{X: lc.Origin[0], Y: lc.Origin[1]}] = c
	}
	for _, p := range s.Modified {
		b.ModifiedTiles.Put(geom.Vec2i{X: p[0], Y: p[1]})
	}
	for _, a := range s.PreloadAreas {
		b.PreloadAreas = append(b.PreloadAreas, geom.NewBox2i(a[0], a[1], a[2], a[3]))
	}
	m.biomes[s.MapID] = b
	return nil
}
