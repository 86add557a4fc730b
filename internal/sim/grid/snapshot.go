package grid

import (
	"fmt"
	"maps"

	snapv1 "tileforge.ai/internal/persistence/snapshot"
	"tileforge.ai/internal/sim/geom"
)

// Export converts a map into its snapshot form.
func Export(m *Map) snapv1.MapV1 {
	out := snapv1.MapV1{
		ID:         m.id,
		NextEntity: m.nextEntity,
		NextDecal:  m.nextDecal,
	}
	for _, k := range m.ChunkKeys() {
		ch := m.Chunks[k]
		c := snapv1.ChunkV1{
			CX:       k.CX,
			CY:       k.CY,
			Size:     ChunkSize,
			Types:    make([]uint16, len(ch.Tiles)),
			Variants: make([]uint8, len(ch.Tiles)),
		}
		for i, t := range ch.Tiles {
			c.Types[i] = t.Type
			c.Variants[i] = t.Variant
		}
		out.Chunks = append(out.Chunks, c)
	}
	for _, id := range m.EntityIDs() {
		e := m.entities[id]
		if e.Detached {
			continue
		}
		out.Entities = append(out.Entities, snapv1.EntityV1{
			ID:       uint64(e.ID),
			Proto:    e.Proto,
			Pos:      [2]float64{e.Pos.X, e.Pos.Y},
			Rot:      int(e.Rot),
			Anchored: e.Anchored,
			Data:     maps.Clone(e.Data),
		})
	}
	for id := DecalID(1); uint64(id) <= m.nextDecal; id++ {
		d, ok := m.decals[id]
		if !ok {
			continue
		}
		out.Decals = append(out.Decals, snapv1.DecalV1{
			ID:    uint64(d.ID),
			Proto: d.Proto,
			Pos:   [2]float64{d.Pos.X, d.Pos.Y},
			Rot:   int(d.Rot),
		})
	}
	return out
}

// Import rebuilds a map from its snapshot form.
func Import(s snapv1.MapV1) (*Map, error) {
	m := NewMap(s.ID)
	for _, c := range s.Chunks {
		if c.Size != ChunkSize {
			return nil, fmt.Errorf("snapshot chunk size mismatch: got %d want %d", c.Size, ChunkSize)
		}
		if len(c.Types) != ChunkSize*ChunkSize || len(c.Variants) != len(c.Types) {
			return nil, fmt.Errorf("snapshot chunk tiles length mismatch: got %d/%d want %d", len(c.Types), len(c.Variants), ChunkSize*ChunkSize)
		}
		ch := newChunk(ChunkKey{CX: c.CX, CY: c.CY})
		for i := range c.Types {
			ch.Tiles[i] = Tile{Type: c.Types[i], Variant: c.Variants[i]}
		}
		ch.recount()
		_ = ch.Digest()
		m.Chunks[ChunkKey{CX: c.CX, CY: c.CY}] = ch
	}
	for _, e := range s.Entities {
		ent := &Entity{
			ID:       EntityID(e.ID),
			Proto:    e.Proto,
			Pos:      geom.Vec2{X: e.Pos[0], Y: e.Pos[1]},
			Rot:      geom.Angle(e.Rot),
			Anchored: e.Anchored,
			Data:     maps.Clone(e.Data),
		}
		m.entities[ent.ID] = ent
		m.indexEntity(ent)
	}
	for _, d := range s.Decals {
		dec := &Decal{ID: DecalID(d.ID), Proto: d.Proto, Pos: geom.Vec2{X: d.Pos[0], Y: d.Pos[1]}, Rot: geom.Angle(d.Rot)}
		m.decals[dec.ID] = dec
		p := dec.Tile()
		m.decalAt[p] = append(m.decalAt[p], dec.ID)
	}
	m.nextEntity = s.NextEntity
	m.nextDecal = s.NextDecal
	return m, nil
}
