package biome

import (
	"maps"

	"tileforge.ai/internal/sim/geom"
	"tileforge.ai/internal/sim/grid"
)

// chunkTarget is the write surface of one chunk load. Writes outside the
// chunk or onto modified tiles are dropped; everything else is recorded so
// the chunk can be unloaded later.
type chunkTarget struct {
	host     grid.Target
	clip     geom.Box2i
	modified func(geom.Vec2i) bool
	rec      *LoadedChunk
}

var _ grid.Target = (*chunkTarget)(nil)

func (t *chunkTarget) writable(p geom.Vec2i) bool {
	return t.clip.Contains(p) && !t.modified(p)
}

func (t *chunkTarget) ID() string { return t.host.ID() }

func (t *chunkTarget) Tile(p geom.Vec2i) grid.Tile { return t.host.Tile(p) }

func (t *chunkTarget) SetTiles(tiles []grid.TileSet) {
	kept := make([]grid.TileSet, 0, len(tiles))
	for _, ts := range tiles {
		if !t.writable(ts.Pos) {
			continue
		}
		kept = append(kept, ts)
		t.rec.Tiles[ts.Pos] = ts.Tile
	}
	t.host.SetTiles(kept)
}

func (t *chunkTarget) Spawn(proto string, pos geom.Vec2, rot geom.Angle, anchored bool, data map[string]string) grid.EntityID {
	p := pos.Floor()
	if !t.writable(p) {
		return 0
	}
	id := t.host.Spawn(proto, pos, rot, anchored, data)
	t.rec.Entities[id] = PlacedEntity{Tile: p, Pos: pos, Data: maps.Clone(data)}
	return id
}

func (t *chunkTarget) Delete(id grid.EntityID) bool {
	e, ok := t.host.Entity(id)
	if !ok || !t.writable(e.Tile()) {
		return false
	}
	delete(t.rec.Entities, id)
	return t.host.Delete(id)
}

func (t *chunkTarget) Entity(id grid.EntityID) (grid.Entity, bool) { return t.host.Entity(id) }

func (t *chunkTarget) SetTransform(id grid.EntityID, pos geom.Vec2, rot geom.Angle) bool {
	if !t.writable(pos.Floor()) {
		return false
	}
	pe, ours := t.rec.Entities[id]
	if !t.host.SetTransform(id, pos, rot) {
		return false
	}
	if ours {
		pe.Pos, pe.Tile = pos, pos.Floor()
		t.rec.Entities[id] = pe
	}
	return true
}

func (t *chunkTarget) AnchoredAt(p geom.Vec2i) []grid.EntityID { return t.host.AnchoredAt(p) }

func (t *chunkTarget) EntitiesIn(b geom.Box2) []grid.EntityID { return t.host.EntitiesIn(b) }

func (t *chunkTarget) AddDecal(proto string, pos geom.Vec2, rot geom.Angle) grid.DecalID {
	if !t.writable(pos.Floor()) {
		return 0
	}
	id := t.host.AddDecal(proto, pos, rot)
	t.rec.Decals[id] = pos
	return id
}

func (t *chunkTarget) RemoveDecal(id grid.DecalID) bool {
	d, ok := t.host.Decal(id)
	if !ok || !t.writable(d.Tile()) {
		return false
	}
	delete(t.rec.Decals, id)
	return t.host.RemoveDecal(id)
}

func (t *chunkTarget) Decal(id grid.DecalID) (grid.Decal, bool) { return t.host.Decal(id) }

func (t *chunkTarget) DecalsIn(b geom.Box2) []grid.DecalID { return t.host.DecalsIn(b) }
