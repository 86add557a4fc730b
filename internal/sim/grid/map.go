package grid

import (
	"crypto/sha256"
	"encoding/hex"
	"maps"
	"sort"

	"tileforge.ai/internal/sim/geom"
)

type EntityID uint64

type DecalID uint64

// Entity is a placed prototype instance.
type Entity struct {
	ID       EntityID
	Proto    string
	Pos      geom.Vec2
	Rot      geom.Angle
	Anchored bool
	// Detached entities left the grid (picked up, moved to another map).
	Detached bool
	Data     map[string]string
}

// Tile is the cell the entity stands on.
func (e Entity) Tile() geom.Vec2i { return e.Pos.Floor() }

// Decal is a corner-anchored tile overlay.
type Decal struct {
	ID    DecalID
	Proto string
	Pos   geom.Vec2
	Rot   geom.Angle
}

func (d Decal) Tile() geom.Vec2i { return d.Pos.Floor() }

// Target is the write surface of generation and streaming.
type Target interface {
	ID() string

	SetTiles(tiles []TileSet)
	Tile(p geom.Vec2i) Tile

	Spawn(proto string, pos geom.Vec2, rot geom.Angle, anchored bool, data map[string]string) EntityID
	Delete(id EntityID) bool
	Entity(id EntityID) (Entity, bool)
	SetTransform(id EntityID, pos geom.Vec2, rot geom.Angle) bool
	AnchoredAt(p geom.Vec2i) []EntityID
	EntitiesIn(b geom.Box2) []EntityID

	AddDecal(proto string, pos geom.Vec2, rot geom.Angle) DecalID
	RemoveDecal(id DecalID) bool
	Decal(id DecalID) (Decal, bool)
	DecalsIn(b geom.Box2) []DecalID
}

// Map is a chunked grid plus its entities and decals.
type Map struct {
	id     string
	Chunks map[ChunkKey]*Chunk

	entities   map[EntityID]*Entity
	entityAt   map[geom.Vec2i][]EntityID
	nextEntity uint64

	decals    map[DecalID]*Decal
	decalAt   map[geom.Vec2i][]DecalID
	nextDecal uint64
}

var _ Target = (*Map)(nil)

func NewMap(id string) *Map {
	return &Map{
		id:       id,
		Chunks:   map[ChunkKey]*Chunk{},
		entities: map[EntityID]*Entity{},
		entityAt: map[geom.Vec2i][]EntityID{},
		decals:   map[DecalID]*Decal{},
		decalAt:  map[geom.Vec2i][]DecalID{},
	}
}

func (m *Map) ID() string { return m.id }

func (m *Map) Tile(p geom.Vec2i) Tile {
	ch, ok := m.Chunks[KeyOf(p)]
	if !ok {
		return Empty
	}
	return ch.Get(geom.Mod(p.X, ChunkSize), geom.Mod(p.Y, ChunkSize))
}

// SetTiles writes a batch. Chunks are created on demand and dropped when
// they become empty.
func (m *Map) SetTiles(tiles []TileSet) {
	var touched []ChunkKey
	for _, ts := range tiles {
		k := KeyOf(ts.Pos)
		ch, ok := m.Chunks[k]
		if !ok {
			if ts.Tile.IsEmpty() {
				continue
			}
			ch = newChunk(k)
			m.Chunks[k] = ch
		}
		if ch.Set(geom.Mod(ts.Pos.X, ChunkSize), geom.Mod(ts.Pos.Y, ChunkSize), ts.Tile) && ts.Tile.IsEmpty() {
			touched = append(touched, k)
		}
	}
	for _, k := range touched {
		if ch, ok := m.Chunks[k]; ok && ch.Filled() == 0 {
			delete(m.Chunks, k)
		}
	}
}

func (m *Map) SetTile(p geom.Vec2i, t Tile) {
	m.SetTiles([]TileSet{{Pos: p, Tile: t}})
}

func (m *Map) ChunkKeys() []ChunkKey {
	keys := make([]ChunkKey, 0, len(m.Chunks))
	for k := range m.Chunks {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].CY != keys[j].CY {
			return keys[i].CY < keys[j].CY
		}
		return keys[i].CX < keys[j].CX
	})
	return keys
}

// TileCount counts non-empty tiles.
func (m *Map) TileCount() int {
	n := 0
	for _, ch := range m.Chunks {
		n += ch.Filled()
	}
	return n
}

// Digest hashes tile content in chunk order.
func (m *Map) Digest() string {
	h := sha256.New()
	for _, k := range m.ChunkKeys() {
		d := m.Chunks[k].Digest()
		h.Write(d[:])
	}
	return hex.EncodeToString(h.Sum(nil))
}

func (m *Map) Spawn(proto string, pos geom.Vec2, rot geom.Angle, anchored bool, data map[string]string) EntityID {
	m.nextEntity++
	id := EntityID(m.nextEntity)
	e := &Entity{ID: id, Proto: proto, Pos: pos, Rot: rot.Norm(), Anchored: anchored, Data: maps.Clone(data)}
	m.entities[id] = e
	m.indexEntity(e)
	return id
}

func (m *Map) Delete(id EntityID) bool {
	e, ok := m.entities[id]
	if !ok {
		return false
	}
	m.unindexEntity(e)
	delete(m.entities, id)
	return true
}

func (m *Map) Entity(id EntityID) (Entity, bool) {
	e, ok := m.entities[id]
	if !ok {
		return Entity{}, false
	}
	out := *e
	out.Data = maps.Clone(e.Data)
	return out, true
}

func (m *Map) SetTransform(id EntityID, pos geom.Vec2, rot geom.Angle) bool {
	e, ok := m.entities[id]
	if !ok || e.Detached {
		return false
	}
	m.unindexEntity(e)
	e.Pos = pos
	e.Rot = rot.Norm()
	m.indexEntity(e)
	return true
}

// SetData overwrites one data key on an entity.
func (m *Map) SetData(id EntityID, key, value string) bool {
	e, ok := m.entities[id]
	if !ok {
		return false
	}
	if e.Data == nil {
		e.Data = map[string]string{}
	}
	e.Data[key] = value
	return true
}

// Detach takes an entity off the grid without deleting it.
func (m *Map) Detach(id EntityID) bool {
	e, ok := m.entities[id]
	if !ok || e.Detached {
		return false
	}
	m.unindexEntity(e)
	e.Detached = true
	return true
}

func (m *Map) AnchoredAt(p geom.Vec2i) []EntityID {
	var out []EntityID
	for _, id := range m.entityAt[p] {
		if m.entities[id].Anchored {
			out = append(out, id)
		}
	}
	return out
}

// EntitiesAt lists every grid entity on tile p.
func (m *Map) EntitiesAt(p geom.Vec2i) []EntityID {
	return append([]EntityID(nil), m.entityAt[p]...)
}

func (m *Map) EntitiesIn(b geom.Box2) []EntityID {
	var out []EntityID
	tb := b.TileBounds()
	if tb.Area() <= len(m.entities) {
		for _, p := range tb.Tiles() {
			for _, id := range m.entityAt[p] {
				if b.Contains(m.entities[id].Pos) {
					out = append(out, id)
				}
			}
		}
	} else {
		for id, e := range m.entities {
			if !e.Detached && b.Contains(e.Pos) {
				out = append(out, id)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// EntityIDs lists every entity, detached ones included, in id order.
func (m *Map) EntityIDs() []EntityID {
	out := make([]EntityID, 0, len(m.entities))
	for id := range m.entities {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (m *Map) EntityCount() int { return len(m.entities) }

func (m *Map) indexEntity(e *Entity) {
	if e.Detached {
		return
	}
	p := e.Tile()
	m.entityAt[p] = append(m.entityAt[p], e.ID)
}

func (m *Map) unindexEntity(e *Entity) {
	if e.Detached {
		return
	}
	p := e.Tile()
	ids := m.entityAt[p]
	for i, id := range ids {
		if id == e.ID {
			ids = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(ids) == 0 {
		delete(m.entityAt, p)
	} else {
		m.entityAt[p] = ids
	}
}

func (m *Map) AddDecal(proto string, pos geom.Vec2, rot geom.Angle) DecalID {
	m.nextDecal++
	id := DecalID(m.nextDecal)
	d := &Decal{ID: id, Proto: proto, Pos: pos, Rot: rot.Norm()}
	m.decals[id] = d
	p := d.Tile()
	m.decalAt[p] = append(m.decalAt[p], id)
	return id
}

func (m *Map) RemoveDecal(id DecalID) bool {
	d, ok := m.decals[id]
	if !ok {
		return false
	}
	p := d.Tile()
	ids := m.decalAt[p]
	for i, v := range ids {
		if v == id {
			ids = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(ids) == 0 {
		delete(m.decalAt, p)
	} else {
		m.decalAt[p] = ids
	}
	delete(m.decals, id)
	return true
}

func (m *Map) Decal(id DecalID) (Decal, bool) {
	d, ok := m.decals[id]
	if !ok {
		return Decal{}, false
	}
	return *d, true
}

func (m *Map) DecalsIn(b geom.Box2) []DecalID {
	var out []DecalID
	for _, p := range b.TileBounds().Tiles() {
		for _, id := range m.decalAt[p] {
			if b.Contains(m.decals[id].Pos) {
				out = append(out, id)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// DecalsAt lists decals anchored on tile p.
func (m *Map) DecalsAt(p geom.Vec2i) []DecalID {
	return append([]DecalID(nil), m.decalAt[p]...)
}

func (m *Map) DecalCount() int { return len(m.decals) }

// DecalIDs lists every decal in id order.
func (m *Map) DecalIDs() []DecalID {
	out := make([]DecalID, 0, len(m.decals))
	for id := range m.decals {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
