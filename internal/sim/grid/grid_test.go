package grid

import (
	"errors"
	"testing"

	"tileforge.ai/internal/sim/geom"
)

func TestSetTilesAcrossChunks(t *testing.T) {
	m := NewMap("m")
	m.SetTiles([]TileSet{
		{Pos: geom.Vec2i{X: -1, Y: -1}, Tile: Tile{Type: 3}},
		{Pos: geom.Vec2i{X: 16, Y: 0}, Tile: Tile{Type: 4, Variant: 2}},
		{Pos: geom.Vec2i{X: 0, Y: 0}, Tile: Empty},
	})
	if got := m.Tile(geom.Vec2i{X: -1, Y: -1}); got.Type != 3 {
		t.Fatalf("tile (-1,-1) = %+v", got)
	}
	if got := m.Tile(geom.Vec2i{X: 16, Y: 0}); got != (Tile{Type: 4, Variant: 2}) {
		t.Fatalf("tile (16,0) = %+v", got)
	}
	if len(m.Chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(m.Chunks))
	}
	if m.TileCount() != 2 {
		t.Fatalf("TileCount=%d", m.TileCount())
	}

	m.SetTile(geom.Vec2i{X: -1, Y: -1}, Empty)
	if len(m.Chunks) != 1 {
		t.Fatalf("empty chunk not dropped: %d chunks", len(m.Chunks))
	}
}

func TestDigestTracksContent(t *testing.T) {
	a, b := NewMap("a"), NewMap("b")
	a.SetTile(geom.Vec2i{X: 1, Y: 2}, Tile{Type: 1})
	b.SetTile(geom.Vec2i{X: 1, Y: 2}, Tile{Type: 1})
	if a.Digest() != b.Digest() {
		t.Fatalf("equal content, different digest")
	}
	b.SetTile(geom.Vec2i{X: 1, Y: 2}, Tile{Type: 1, Variant: 1})
	if a.Digest() == b.Digest() {
		t.Fatalf("digest did not change")
	}
}

func TestEntityIndex(t *testing.T) {
	m := NewMap("m")
	wall := m.Spawn("WallSolid", geom.Vec2{X: 2.5, Y: 3.5}, 0, true, map[string]string{"hp": "10"})
	crate := m.Spawn("Crate", geom.Vec2{X: 2.2, Y: 3.9}, 1, false, nil)

	if got := m.AnchoredAt(geom.Vec2i{X: 2, Y: 3}); len(got) != 1 || got[0] != wall {
		t.Fatalf("AnchoredAt = %v", got)
	}
	if got := m.EntitiesIn(geom.Box2{Min: geom.Vec2{X: 2, Y: 3}, Max: geom.Vec2{X: 3, Y: 4}}); len(got) != 2 {
		t.Fatalf("EntitiesIn = %v", got)
	}

	m.SetTransform(crate, geom.Vec2{X: 10.5, Y: 10.5}, 0)
	if got := m.EntitiesAt(geom.Vec2i{X: 2, Y: 3}); len(got) != 1 {
		t.Fatalf("moved entity still indexed: %v", got)
	}
	e, ok := m.Entity(wall)
	if !ok || e.Data["hp"] != "10" {
		t.Fatalf("entity lookup = %+v %v", e, ok)
	}
	e.Data["hp"] = "0"
	if e2, _ := m.Entity(wall); e2.Data["hp"] != "10" {
		t.Fatalf("Entity must return a copy of Data")
	}

	m.Detach(crate)
	if len(m.EntitiesIn(geom.Box2{Min: geom.Vec2{X: 0, Y: 0}, Max: geom.Vec2{X: 20, Y: 20}})) != 1 {
		t.Fatalf("detached entity still found by area query")
	}
	if !m.Delete(wall) || m.Delete(wall) {
		t.Fatalf("delete should succeed once")
	}
}

func TestDecals(t *testing.T) {
	m := NewMap("m")
	id := m.AddDecal("Moss", geom.Vec2{X: 4, Y: 4}, 2)
	if got := m.DecalsIn(geom.Box2{Min: geom.Vec2{X: 4, Y: 4}, Max: geom.Vec2{X: 5, Y: 5}}); len(got) != 1 || got[0] != id {
		t.Fatalf("DecalsIn = %v", got)
	}
	if !m.RemoveDecal(id) {
		t.Fatalf("RemoveDecal failed")
	}
	if len(m.DecalsAt(geom.Vec2i{X: 4, Y: 4})) != 0 {
		t.Fatalf("decal still indexed")
	}
}

func TestStoreLifecycle(t *testing.T) {
	s := NewStore()
	if _, err := s.Create("a"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.Create("a"); !errors.Is(err, ErrMapExists) {
		t.Fatalf("expected ErrMapExists, got %v", err)
	}
	if !s.Exists("a") || s.Exists("b") {
		t.Fatalf("Exists mismatch")
	}
	if !s.Delete("a") || s.Exists("a") {
		t.Fatalf("Delete did not remove map")
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	m := NewMap("m")
	m.SetTiles([]TileSet{
		{Pos: geom.Vec2i{X: 0, Y: 0}, Tile: Tile{Type: 2}},
		{Pos: geom.Vec2i{X: -20, Y: 5}, Tile: Tile{Type: 7, Variant: 3}},
	})
	eid := m.Spawn("Door", geom.Vec2{X: 0.5, Y: 0.5}, 1, true, map[string]string{"locked": "true"})
	did := m.AddDecal("Dirt", geom.Vec2{X: 0, Y: 0}, 0)

	got, err := Import(Export(m))
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if got.Digest() != m.Digest() {
		t.Fatalf("digest mismatch after round trip")
	}
	if e, ok := got.Entity(eid); !ok || e.Data["locked"] != "true" || len(got.AnchoredAt(geom.Vec2i{})) != 1 {
		t.Fatalf("entity lost: %+v", e)
	}
	if _, ok := got.Decal(did); !ok {
		t.Fatalf("decal lost")
	}
	if next := got.Spawn("X", geom.Vec2{}, 0, false, nil); next <= eid {
		t.Fatalf("entity ids reused: %d", next)
	}
}
