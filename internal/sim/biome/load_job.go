package biome

import (
	"fmt"

	"tileforge.ai/internal/sim/biome/lookup"
	"tileforge.ai/internal/sim/catalogs"
	"tileforge.ai/internal/sim/dungeon"
	"tileforge.ai/internal/sim/generation"
	"tileforge.ai/internal/sim/geom"
	"tileforge.ai/internal/sim/grid"
	"tileforge.ai/internal/sim/tasks"
)

// chunkHost answers biome questions for a dungeon run inside a chunk load.
// Streamed content stays reversible, so it never reserves tiles or turns
// painting off.
type chunkHost struct{ b *Biome }

func (h chunkHost) BiomeSeed(string) (int64, bool) { return h.b.Seed, true }
func (h chunkHost) DisablePainting(string) {}
func (h chunkHost) MarkModified(string, []geom.Vec2i) {}

// catalogPinner resolves templates against the catalogs a job captured.
type catalogPinner interface {
	For(cats *catalogs.Catalogs) dungeon.TemplateSource
}

// chunkSeed gives each chunk of each layer its own stream.
func chunkSeed(b *Biome, layer string, origin geom.Vec2i) int64 {
	return geom.TileSeed(geom.HashString(b.Seed, layer), origin.X, origin.Y)
}

func (m *Manager) runLoad(y *tasks.Yield, cats *catalogs.Catalogs, b *Biome, refs []ChunkRef) error {
	for _, ref := range refs {
		if err := y.Checkpoint(); err != nil {
			return err
		}
		l, ok := b.Layers[ref.Layer]
		if !ok || b.Loaded(ref.Layer, ref.Origin) {
			continue
		}
		chunk := newLoadedChunk()
		if b.LoadedData[ref.Layer] == nil {
			b.LoadedData[ref.Layer] = map[geom.Vec2i]*LoadedChunk{}
		}
		// Registered first so an interrupted load can still be unloaded.
		b.LoadedData[ref.Layer][ref.Origin] = chunk
		tgt := &chunkTarget{
			host:     b.host,
			clip:     l.Box(ref.Origin),
			modified: b.ModifiedTiles.Has,
			rec:      chunk,
		}

		var err error
		if l.Template != "" {
			err = paintChunk(y, cats, b, l, ref.Origin, tgt)
		} else {
			err = m.generateChunk(y, cats, b, l, ref.Origin, tgt)
		}
		if err != nil {
			return fmt.Errorf("layer %s chunk %v: %w", l.ID, ref.Origin, err)
		}
		m.emit(ChunkEvent{
			Kind:     EventLoad,
			MapID:    b.MapID,
			BiomeID:  b.BiomeID,
			Layer:    l.ID,
			Origin:   ref.Origin,
			Size:     l.ChunkSize,
			Tiles:    len(chunk.Tiles),
			Entities: len(chunk.Entities),
			Decals:   len(chunk.Decals),
		})
	}
	return nil
}

func (m *Manager) generateChunk(y *tasks.Yield, cats *catalogs.Catalogs, b *Biome, l MetaLayer, origin geom.Vec2i, tgt grid.Target) error {
	cfg, ok := cats.DungeonConfigs[l.Config]
	if !ok {
		return fmt.Errorf("unknown dungeon config %q", l.Config)
	}
	dc := dungeon.NewContext(tgt, cats, cfg, origin, chunkSeed(b, l.ID, origin))
	dc.Yield = y
	dc.Templates = m.templates
	if p, ok := m.templates.(catalogPinner); ok {
		dc.Templates = p.For(cats)
	}
	dc.Biomes = chunkHost{b: b}
	dc.Log = m.log
	_, err := generation.RunPipeline(dc)
	return err
}

// paintChunk fills a chunk straight from a biome template. The lookup is
// seeded by the biome alone so neighbouring chunks line up.
func paintChunk(y *tasks.Yield, cats *catalogs.Catalogs, b *Biome, l MetaLayer, origin geom.Vec2i, tgt grid.Target) error {
	lk, ok := lookup.ForTemplate(cats, l.Template, b.Seed)
	if !ok {
		return fmt.Errorf("unknown biome template %q", l.Template)
	}
	tiles := l.Box(origin).Tiles()
	sets := make([]grid.TileSet, 0, len(tiles))
	for _, p := range tiles {
		if err := y.Checkpoint(); err != nil {
			return err
		}
		if b.ModifiedTiles.Has(p) {
			continue
		}
		t, ok := lk.Tile(p)
		if !ok {
			continue
		}
		sets = append(sets, grid.TileSet{Pos: p, Tile: t})
	}
	tgt.SetTiles(sets)

	for _, ts := range sets {
		if proto, pos, ok := lk.Decal(ts.Pos, ts.Tile); ok {
			tgt.AddDecal(proto, pos, 0)
		}
		if proto, ok := lk.Entity(ts.Pos, ts.Tile); ok && len(tgt.AnchoredAt(ts.Pos)) == 0 {
			def := cats.Entities[proto]
			tgt.Spawn(proto, ts.Pos.Center(), 0, def.Anchored, def.Defaults)
		}
	}
	return nil
}
