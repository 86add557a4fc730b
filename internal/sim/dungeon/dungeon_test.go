package dungeon

import (
	"testing"

	"tileforge.ai/internal/sim/catalogs"
	"tileforge.ai/internal/sim/geom"
	"tileforge.ai/internal/sim/grid"
)

func TestAddRoomDropsClashingTiles(t *testing.T) {
	d := New()
	if !d.AddRoom(NewRoom(geom.NewBox2i(0, 0, 3, 3).Tiles())) {
		t.Fatalf("first room rejected")
	}
	if !d.AddRoom(NewRoom(geom.NewBox2i(2, 0, 5, 3).Tiles())) {
		t.Fatalf("overlapping room rejected")
	}
	if got := d.Rooms[1].Tiles.Size(); got != 6 {
		t.Fatalf("expected 6 tiles after clash, got %d", got)
	}
	if d.Rooms[1].Bounds != geom.NewBox2i(3, 0, 5, 3) {
		t.Fatalf("bounds not refreshed: %v", d.Rooms[1].Bounds)
	}
	if d.AddRoom(NewRoom(geom.NewBox2i(0, 0, 2, 2).Tiles())) {
		t.Fatalf("fully covered room accepted")
	}
}

func TestRoomTilesNeverCorridor(t *testing.T) {
	d := New()
	d.AddCorridor(geom.Vec2i{X: 1, Y: 1}, geom.Vec2i{X: 9, Y: 9})
	d.AddRoom(NewRoom(geom.NewBox2i(0, 0, 3, 3).Tiles()))
	if d.CorridorTiles.Has(geom.Vec2i{X: 1, Y: 1}) {
		t.Fatalf("room tile left in corridor set")
	}
	d.AddCorridor(geom.Vec2i{X: 2, Y: 2})
	if d.CorridorTiles.Has(geom.Vec2i{X: 2, Y: 2}) {
		t.Fatalf("corridor accepted a room tile")
	}
}

func TestRefreshExteriors(t *testing.T) {
	d := New()
	d.AddRoom(NewRoom(geom.NewBox2i(0, 0, 2, 2).Tiles()))
	d.AddCorridor(geom.Vec2i{X: 2, Y: 0}, geom.Vec2i{X: 3, Y: 0})
	d.RefreshExteriors()
	if got := d.Rooms[0].Exterior.Size(); got != 12 {
		t.Fatalf("2x2 room ring should be 12 tiles, got %d", got)
	}
	d.RoomExteriorTiles.Each(func(p geom.Vec2i) {
		if d.RoomTiles.Has(p) {
			t.Fatalf("room exterior %v is a room tile", p)
		}
	})
	d.CorridorExteriorTiles.Each(func(p geom.Vec2i) {
		if d.RoomTiles.Has(p) || d.CorridorTiles.Has(p) {
			t.Fatalf("corridor exterior %v overlaps the layout", p)
		}
	})
}

func TestCenterAndBounds(t *testing.T) {
	d := New()
	d.AddRoom(NewRoom(geom.NewBox2i(0, 0, 2, 2).Tiles()))
	d.AddRoom(NewRoom(geom.NewBox2i(8, 0, 10, 2).Tiles()))
	d.AddEntrance(1, geom.Vec2i{X: 10, Y: 1})
	d.ComputeCenter()
	if d.Center != (geom.Vec2{X: 5, Y: 1}) {
		t.Fatalf("unexpected center %v", d.Center)
	}
	if b := d.Bounds(); b != geom.NewBox2i(0, 0, 11, 2) {
		t.Fatalf("unexpected bounds %v", b)
	}
	if d.RoomAt(geom.Vec2i{X: 9, Y: 1}) != 1 || d.RoomAt(geom.Vec2i{X: 5, Y: 1}) != -1 {
		t.Fatalf("RoomAt misreports ownership")
	}
}

func TestInstantiateTemplate(t *testing.T) {
	cats, err := catalogs.Load("../../../configs/prototypes")
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	tpl, err := InstantiateTemplate(cats, cats.Rooms["StoreRoom"])
	if err != nil {
		t.Fatalf("instantiate: %v", err)
	}
	if tpl.Map.TileCount() != 25 {
		t.Fatalf("expected 25 tiles, got %d", tpl.Map.TileCount())
	}
	plating, _ := cats.TileID("Plating")
	if tpl.Map.Tile(geom.Vec2i{X: 2, Y: 2}).Type != plating {
		t.Fatalf("legend not applied")
	}
	if tpl.Map.EntityCount() != 2 || tpl.Map.DecalCount() != 1 {
		t.Fatalf("expected 2 entities and 1 decal, got %d and %d", tpl.Map.EntityCount(), tpl.Map.DecalCount())
	}
}

func TestContextFillPicksVariants(t *testing.T) {
	cats, err := catalogs.Load("../../../configs/prototypes")
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	m := grid.NewMap("m")
	dc := NewContext(m, cats, catalogs.DungeonConfigDef{}, geom.Vec2i{}, 1)
	sets, err := dc.Fill("FloorSteel", geom.NewBox2i(0, 0, 8, 8).Tiles())
	if err != nil {
		t.Fatalf("fill: %v", err)
	}
	variants := map[uint8]bool{}
	for _, s := range sets {
		variants[s.Tile.Variant] = true
	}
	if len(variants) < 2 {
		t.Fatalf("expected several variants over 64 tiles, got %v", variants)
	}
	if _, err := dc.Fill("NoSuchTile", []geom.Vec2i{{}}); err == nil {
		t.Fatalf("expected unknown tile error")
	}
}
