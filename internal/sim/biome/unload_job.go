package biome

import (
	"maps"
	"sort"

	"go.uber.org/zap"

	"tileforge.ai/internal/sim/geom"
	"tileforge.ai/internal/sim/grid"
	"tileforge.ai/internal/sim/tasks"
)

func (m *Manager) runUnload(y *tasks.Yield, b *Biome, refs []ChunkRef) error {
	for _, ref := range refs {
		if err := y.Checkpoint(); err != nil {
			return err
		}
		chunk, ok := b.LoadedData[ref.Layer][ref.Origin]
		if !ok {
			continue
		}
		marked, err := m.reconcile(y, b, chunk)
		if err != nil {
			return err
		}
		delete(b.LoadedData[ref.Layer], ref.Origin)
		if len(b.LoadedData[ref.Layer]) == 0 {
			delete(b.LoadedData, ref.Layer)
		}
		if marked > 0 {
			m.log.Debug("chunk unload kept modified tiles",
				zap.String("map", b.MapID),
				zap.String("layer", ref.Layer),
				zap.Stringer("origin", ref.Origin),
				zap.Int("modified", marked))
		}
		m.emit(ChunkEvent{
			Kind:     EventUnload,
			MapID:    b.MapID,
			BiomeID:  b.BiomeID,
			Layer:    ref.Layer,
			Origin:   ref.Origin,
			Size:     b.Layers[ref.Layer].ChunkSize,
			Tiles:    len(chunk.Tiles),
			Entities: len(chunk.Entities),
			Decals:   len(chunk.Decals),
			Modified: marked,
		})
	}
	return nil
}

// reconcile tears down one chunk. Anything a player touched is left in place
// and its tile joins ModifiedTiles; only untouched content is removed. It
// returns how many tiles were newly marked.
func (m *Manager) reconcile(y *tasks.Yield, b *Biome, chunk *LoadedChunk) (int, error) {
	host := b.host
	marked := 0
	mark := func(p geom.Vec2i) {
		if b.markModified(p) {
			marked++
		}
	}

	ids := make([]grid.EntityID, 0, len(chunk.Entities))
	for id := range chunk.Entities {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		if err := y.Checkpoint(); err != nil {
			return marked, err
		}
		placed := chunk.Entities[id]
		e, ok := host.Entity(id)
		if !ok || e.Detached || e.Pos != placed.Pos || !maps.Equal(e.Data, placed.Data) {
			mark(placed.Tile)
			continue
		}
		host.Delete(id)
	}

	dids := make([]grid.DecalID, 0, len(chunk.Decals))
	for id := range chunk.Decals {
		dids = append(dids, id)
	}
	sort.Slice(dids, func(i, j int) bool { return dids[i] < dids[j] })
	for _, id := range dids {
		pos := chunk.Decals[id]
		d, ok := host.Decal(id)
		if !ok || d.Pos != pos {
			mark(pos.Floor())
			continue
		}
		host.RemoveDecal(id)
	}

	tiles := make([]geom.Vec2i, 0, len(chunk.Tiles))
	for p := range chunk.Tiles {
		tiles = append(tiles, p)
	}
	geom.SortTiles(tiles)
	restores := make([]grid.TileSet, 0, len(tiles))
	for _, p := range tiles {
		if err := y.Checkpoint(); err != nil {
			return marked, err
		}
		if b.ModifiedTiles.Has(p) {
			continue
		}
		under := b.covering(p, chunk)
		cur := host.Tile(p)
		ours := cur == chunk.Tiles[p]
		if (!ours && !recorded(under, p, cur)) || foreignContent(host, p, under) {
			mark(p)
			continue
		}
		if !ours {
			// A still loaded chunk painted over this one.
			continue
		}
		restores = append(restores, grid.TileSet{Pos: p, Tile: topTile(under, p)})
	}
	host.SetTiles(restores)
	return marked, nil
}

// covering lists the other loaded chunks of b whose box holds p, in layer
// order.
func (b *Biome) covering(p geom.Vec2i, self *LoadedChunk) []*LoadedChunk {
	var out []*LoadedChunk
	for _, id := range b.order {
		size := b.Layers[id].ChunkSize
		if size <= 0 {
			continue
		}
		o := geom.Vec2i{X: geom.SnapDown(p.X, size), Y: geom.SnapDown(p.Y, size)}
		if c, ok := b.LoadedData[id][o]; ok && c != self {
			out = append(out, c)
		}
	}
	return out
}

func recorded(chunks []*LoadedChunk, p geom.Vec2i, t grid.Tile) bool {
	for _, c := range chunks {
		if rt, ok := c.Tiles[p]; ok && rt == t {
			return true
		}
	}
	return false
}

// topTile is the tile the highest remaining layer placed at p, or Empty.
func topTile(chunks []*LoadedChunk, p geom.Vec2i) grid.Tile {
	for i := len(chunks) - 1; i >= 0; i-- {
		if t, ok := chunks[i].Tiles[p]; ok {
			return t
		}
	}
	return grid.Empty
}

// foreignContent reports entities or decals on p that no loaded chunk in
// chunks placed.
func foreignContent(host *grid.Map, p geom.Vec2i, chunks []*LoadedChunk) bool {
	box := geom.BoxAt(p, geom.Vec2i{X: 1, Y: 1}).ToBox2()
	for _, id := range host.EntitiesIn(box) {
		if !ownsEntity(chunks, id) {
			return true
		}
	}
	for _, id := range host.DecalsIn(box) {
		if !ownsDecal(chunks, id) {
			return true
		}
	}
	return false
}

func ownsEntity(chunks []*LoadedChunk, id grid.EntityID) bool {
	for _, c := range chunks {
		if _, ok := c.Entities[id]; ok {
			return true
		}
	}
	return false
}

func ownsDecal(chunks []*LoadedChunk, id grid.DecalID) bool {
	for _, c := range chunks {
		if _, ok := c.Decals[id]; ok {
			return true
		}
	}
	return false
}
