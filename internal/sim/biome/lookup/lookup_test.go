package lookup

import (
	"testing"

	"tileforge.ai/internal/sim/catalogs"
	"tileforge.ai/internal/sim/geom"
)

func loadCatalogs(t *testing.T) *catalogs.Catalogs {
	t.Helper()
	cats, err := catalogs.Load("../../../../configs/prototypes")
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	return cats
}

func TestLookupDeterministic(t *testing.T) {
	cats := loadCatalogs(t)
	a, ok := ForTemplate(cats, "Caves", 99)
	if !ok {
		t.Fatalf("missing Caves template")
	}
	b, _ := ForTemplate(cats, "Caves", 99)
	for _, p := range geom.NewBox2i(-8, -8, 8, 8).Tiles() {
		ta, oka := a.Tile(p)
		tb, okb := b.Tile(p)
		if ta != tb || oka != okb {
			t.Fatalf("tile at %v differs: %v vs %v", p, ta, tb)
		}
		ea, _ := a.Entity(p, ta)
		eb, _ := b.Entity(p, tb)
		if ea != eb {
			t.Fatalf("entity at %v differs: %q vs %q", p, ea, eb)
		}
	}
}

func TestLookupBaseLayerCoversEverything(t *testing.T) {
	cats := loadCatalogs(t)
	l, _ := ForTemplate(cats, "Caves", 1)
	asteroid, _ := cats.TileID("FloorAsteroid")
	cave, _ := cats.TileID("FloorCave")
	for _, p := range geom.NewBox2i(0, 0, 32, 32).Tiles() {
		tile, ok := l.Tile(p)
		if !ok {
			t.Fatalf("no tile at %v", p)
		}
		if tile.Type != asteroid && tile.Type != cave {
			t.Fatalf("unexpected tile %s at %v", cats.TileName(tile.Type), p)
		}
	}
}

func TestLookupRespectsAllowedTiles(t *testing.T) {
	cats := loadCatalogs(t)
	l, _ := ForTemplate(cats, "Caves", 7)
	cave, _ := cats.TileID("FloorCave")
	for _, p := range geom.NewBox2i(0, 0, 32, 32).Tiles() {
		tile, _ := l.Tile(p)
		proto, ok := l.Entity(p, tile)
		if ok && tile.Type == cave {
			t.Fatalf("entity %s on disallowed tile at %v", proto, p)
		}
		if proto, _, ok := l.Decal(p, tile); ok && tile.Type != cave {
			t.Fatalf("decal %s on disallowed tile at %v", proto, p)
		}
	}
}

func TestSeedChangesOutput(t *testing.T) {
	cats := loadCatalogs(t)
	a, _ := ForTemplate(cats, "Caves", 1)
	b, _ := ForTemplate(cats, "Caves", 2)
	diff := 0
	for _, p := range geom.NewBox2i(0, 0, 32, 32).Tiles() {
		ta, _ := a.Tile(p)
		tb, _ := b.Tile(p)
		if ta != tb {
			diff++
		}
	}
	if diff == 0 {
		t.Fatalf("different seeds produced identical terrain")
	}
}

func TestUnknownTemplate(t *testing.T) {
	cats := loadCatalogs(t)
	if _, ok := ForTemplate(cats, "Nope", 1); ok {
		t.Fatalf("expected unknown template to fail")
	}
}
