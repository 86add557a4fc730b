package postgen

import (
	"errors"
	"testing"

	"tileforge.ai/internal/sim/catalogs"
	"tileforge.ai/internal/sim/dungeon"
	"tileforge.ai/internal/sim/dungeon/gen"
	"tileforge.ai/internal/sim/geom"
	"tileforge.ai/internal/sim/grid"
)

func loadCatalogs(t *testing.T) *catalogs.Catalogs {
	t.Helper()
	cats, err := catalogs.Load("../../../../configs/prototypes")
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	return cats
}

func newContext(t *testing.T, cats *catalogs.Catalogs, seed int64) (*dungeon.Context, *grid.Map) {
	t.Helper()
	m := grid.NewMap("test")
	return dungeon.NewContext(m, cats, catalogs.DungeonConfigDef{ID: "test"}, geom.Vec2i{}, seed), m
}

// layout runs only the base generator of a config.
func layout(t *testing.T, dc *dungeon.Context, configID string) *dungeon.Dungeon {
	t.Helper()
	cfg, ok := dc.Catalogs.DungeonConfigs[configID]
	if !ok {
		t.Fatalf("missing config %s", configID)
	}
	dc.Config = cfg
	g, err := gen.Resolve(cfg.Generator)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	d, err := g.Generate(dc)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	return d
}

// boxRoom paints a rectangular room and adds it to d.
func boxRoom(t *testing.T, dc *dungeon.Context, d *dungeon.Dungeon, b geom.Box2i) int {
	t.Helper()
	sets, err := dc.Fill("FloorSteel", b.Tiles())
	if err != nil {
		t.Fatalf("fill: %v", err)
	}
	dc.Target.SetTiles(sets)
	if !d.AddRoom(dungeon.NewRoom(b.Tiles())) {
		t.Fatalf("room %v rejected", b)
	}
	return len(d.Rooms) - 1
}

func countProto(m *grid.Map, proto string) int {
	n := 0
	for _, id := range m.EntityIDs() {
		if e, _ := m.Entity(id); e.Proto == proto {
			n++
		}
	}
	return n
}

func reachable(tiles dungeon.TileSet, from, to geom.Vec2i) bool {
	if !tiles.Has(from) || !tiles.Has(to) {
		return false
	}
	seen := map[geom.Vec2i]bool{from: true}
	queue := []geom.Vec2i{from}
	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]
		if p == to {
			return true
		}
		for _, dir := range geom.CardinalDirs {
			n := p.Add(dir)
			if tiles.Has(n) && !seen[n] {
				seen[n] = true
				queue = append(queue, n)
			}
		}
	}
	return false
}

func TestResolveUnknownKind(t *testing.T) {
	_, err := Resolve(catalogs.PostGenSpec{Kind: "confetti"})
	if !errors.Is(err, ErrUnknownPostGen) {
		t.Fatalf("expected ErrUnknownPostGen, got %v", err)
	}
}

func TestWormCorridorLinksEntrances(t *testing.T) {
	cats := loadCatalogs(t)
	for _, seed := range []int64{1, 2, 3, 4, 5} {
		dc, _ := newContext(t, cats, seed)
		d := dungeon.New()
		a := boxRoom(t, dc, d, geom.NewBox2i(0, 0, 5, 5))
		b := boxRoom(t, dc, d, geom.NewBox2i(30, 0, 35, 5))
		ea, eb := geom.Vec2i{X: 5, Y: 2}, geom.Vec2i{X: 29, Y: 2}
		d.AddEntrance(a, ea)
		d.AddEntrance(b, eb)
		d.ComputeCenter()
		d.RefreshExteriors()

		step := &WormCorridor{Spec: catalogs.WormCorridorPost{
			Count: 5, Length: 20, Width: 1, MaxAngleChange: 20, PathLimit: 256, Tile: "FloorDirt",
		}}
		if err := step.Apply(dc, d); err != nil {
			t.Fatalf("seed %d: apply: %v", seed, err)
		}
		if !reachable(d.CorridorTiles, ea, eb) {
			t.Fatalf("seed %d: entrances not linked through corridor tiles (warnings %v)", seed, d.Warnings)
		}
		d.CorridorTiles.Each(func(p geom.Vec2i) {
			if d.RoomTiles.Has(p) {
				t.Fatalf("seed %d: corridor tile %v inside a room", seed, p)
			}
		})
	}
}

func TestBoundaryWallCompleteness(t *testing.T) {
	cats := loadCatalogs(t)
	dc, m := newContext(t, cats, 21)
	d := layout(t, dc, "LabBSP")

	before := map[geom.Vec2i]bool{}
	for _, id := range m.EntityIDs() {
		if e, _ := m.Entity(id); e.Anchored {
			before[e.Tile()] = true
		}
	}
	step := &BoundaryWall{Spec: catalogs.BoundaryWallPost{Tile: "Plating", Wall: "WallSolid", Corridors: true}}
	if err := step.Apply(dc, d); err != nil {
		t.Fatalf("apply: %v", err)
	}
	check := func(p geom.Vec2i) {
		for _, off := range geom.AllDirs {
			n := p.Add(off)
			if d.RoomTiles.Has(n) || d.CorridorTiles.Has(n) || before[n] {
				continue
			}
			walled := false
			for _, id := range m.AnchoredAt(n) {
				if e, _ := m.Entity(id); e.Proto == "WallSolid" {
					walled = true
				}
			}
			if !walled {
				t.Fatalf("tile %v next to %v has no wall", n, p)
			}
			if m.Tile(n).IsEmpty() {
				t.Fatalf("wall tile %v has no floor", n)
			}
		}
	}
	d.RoomTiles.Each(check)
	d.CorridorTiles.Each(check)
}

func TestBoundaryWallSkipsOccupied(t *testing.T) {
	cats := loadCatalogs(t)
	dc, m := newContext(t, cats, 1)
	d := dungeon.New()
	boxRoom(t, dc, d, geom.NewBox2i(0, 0, 3, 3))
	m.Spawn("Girder", geom.Vec2i{X: 3, Y: 1}.Center(), 0, true, nil)

	step := &BoundaryWall{Spec: catalogs.BoundaryWallPost{Wall: "WallSolid"}}
	if err := step.Apply(dc, d); err != nil {
		t.Fatalf("apply: %v", err)
	}
	// A 3x3 room has a 16 tile ring; one was taken.
	if got := countProto(m, "WallSolid"); got != 15 {
		t.Fatalf("expected 15 walls, got %d", got)
	}
	if got := len(m.AnchoredAt(geom.Vec2i{X: 3, Y: 1})); got != 1 {
		t.Fatalf("occupied tile got %d anchored entities", got)
	}
}

func TestEntranceFacesOpenGround(t *testing.T) {
	cats := loadCatalogs(t)
	dc, m := newContext(t, cats, 8)
	d := dungeon.New()
	boxRoom(t, dc, d, geom.NewBox2i(0, 0, 5, 5))
	boxRoom(t, dc, d, geom.NewBox2i(20, 0, 25, 5))
	d.ComputeCenter()
	d.RefreshExteriors()

	step := &Entrance{Spec: catalogs.EntrancePost{Count: 2, Tile: "Plating", Door: "AirlockMaint"}}
	if err := step.Apply(dc, d); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if d.Entrances.Size() != 2 {
		t.Fatalf("expected 2 entrances, got %d (%v)", d.Entrances.Size(), d.Warnings)
	}
	for i, r := range d.Rooms {
		if r.Entrances.Size() != 1 {
			t.Fatalf("room %d has %d entrances", i, r.Entrances.Size())
		}
		r.Entrances.Each(func(p geom.Vec2i) {
			dir, ok := outward(r, p)
			if !ok {
				t.Fatalf("entrance %v does not touch room %d", p, i)
			}
			for k := 0; k <= entranceReach; k++ {
				if d.RoomTiles.Has(p.Add(dir.Scale(k))) {
					t.Fatalf("entrance %v walks into a room", p)
				}
			}
			if m.Tile(p).IsEmpty() {
				t.Fatalf("entrance %v not carved", p)
			}
		})
	}
	if got := countProto(m, "AirlockMaint"); got != 2 {
		t.Fatalf("expected 2 doors, got %d", got)
	}
}

func TestEntranceClearsRadius(t *testing.T) {
	cats := loadCatalogs(t)
	dc, m := newContext(t, cats, 3)
	d := dungeon.New()
	boxRoom(t, dc, d, geom.NewBox2i(0, 0, 3, 3))
	d.ComputeCenter()
	// Rocks two tiles off every side, outside the walk line.
	for _, p := range []geom.Vec2i{{X: 5, Y: 3}, {X: -3, Y: -1}, {X: 3, Y: 5}, {X: -1, Y: -3}} {
		m.Spawn("AsteroidRock", p.Center(), 0, true, nil)
	}
	step := &Entrance{Spec: catalogs.EntrancePost{Count: 1, ClearRadius: 3}}
	if err := step.Apply(dc, d); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if d.Entrances.Size() != 1 {
		t.Fatalf("expected one entrance, got %d", d.Entrances.Size())
	}
	door := dungeon.Sorted(d.Entrances)[0]
	for _, id := range m.EntityIDs() {
		e, _ := m.Entity(id)
		tp := e.Tile()
		if geom.AbsInt(tp.X-door.X) <= 3 && geom.AbsInt(tp.Y-door.Y) <= 3 {
			t.Fatalf("rock at %v survived inside clear radius of %v", tp, door)
		}
	}
}

func TestMiddleConnectionJoinsPrefab(t *testing.T) {
	cats := loadCatalogs(t)
	dc, _ := newContext(t, cats, 17)
	d := layout(t, dc, "Vault")
	step := &MiddleConnection{Spec: catalogs.MiddleConnectionPost{Count: 1, Width: 1, Tile: "Plating", Door: "AirlockMaint"}}
	if err := step.Apply(dc, d); err != nil {
		t.Fatalf("apply: %v", err)
	}
	all := dungeon.Clone(d.RoomTiles)
	d.Entrances.Each(func(p geom.Vec2i) { all.Put(p) })
	first := dungeon.Sorted(d.Rooms[0].Tiles)[0]
	for i, r := range d.Rooms {
		if !reachable(all, first, dungeon.Sorted(r.Tiles)[0]) {
			t.Fatalf("room %d not reachable through doors", i)
		}
	}
}

func TestCorridorSpansRooms(t *testing.T) {
	cats := loadCatalogs(t)
	dc, m := newContext(t, cats, 5)
	d := layout(t, dc, "Vault")
	step := &Corridor{Spec: catalogs.CorridorPost{Width: 1, PathLimit: 512, Tile: "Plating"}}
	if err := step.Apply(dc, d); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(d.Paths) != len(d.Rooms)-1 {
		t.Fatalf("expected %d paths, got %d (%v)", len(d.Rooms)-1, len(d.Paths), d.Warnings)
	}
	all := dungeon.Clone(d.RoomTiles)
	d.CorridorTiles.Each(func(p geom.Vec2i) {
		all.Put(p)
		if m.Tile(p).IsEmpty() {
			t.Fatalf("corridor tile %v not painted", p)
		}
	})
	first := dungeon.Sorted(d.Rooms[0].Tiles)[0]
	for i, r := range d.Rooms {
		if !reachable(all, first, dungeon.Sorted(r.Tiles)[0]) {
			t.Fatalf("room %d not reachable", i)
		}
	}
}

type fakeHost struct {
	seed     int64
	disabled []string
}

func (h *fakeHost) BiomeSeed(string) (int64, bool)    { return h.seed, true }
func (h *fakeHost) DisablePainting(mapID string)      { h.disabled = append(h.disabled, mapID) }
func (h *fakeHost) MarkModified(string, []geom.Vec2i) {}

func TestBiomePaintsRoomsAndDisablesStreaming(t *testing.T) {
	cats := loadCatalogs(t)
	dc, m := newContext(t, cats, 4)
	host := &fakeHost{seed: 77}
	dc.Biomes = host
	d := layout(t, dc, "Outpost")

	if err := (&Biome{Spec: catalogs.BiomePost{Template: "Caves"}}).Apply(dc, d); err != nil {
		t.Fatalf("apply: %v", err)
	}
	cave, _ := cats.TileID("FloorCave")
	asteroid, _ := cats.TileID("FloorAsteroid")
	d.RoomTiles.Each(func(p geom.Vec2i) {
		if tt := m.Tile(p).Type; tt != cave && tt != asteroid {
			t.Fatalf("tile %v painted %s", p, cats.TileName(tt))
		}
	})
	if len(host.disabled) != 1 || host.disabled[0] != "test" {
		t.Fatalf("painting not disabled: %v", host.disabled)
	}
}

func TestBiomeUnknownTemplate(t *testing.T) {
	cats := loadCatalogs(t)
	dc, _ := newContext(t, cats, 4)
	d := layout(t, dc, "Outpost")
	if err := (&Biome{Spec: catalogs.BiomePost{Template: "Nope"}}).Apply(dc, d); err == nil {
		t.Fatalf("expected error for unknown template")
	}
}

func TestMarkerLayerPlacesWithinRange(t *testing.T) {
	cats := loadCatalogs(t)
	dc, m := newContext(t, cats, 6)
	d := layout(t, dc, "Outpost")
	if err := (&MarkerLayer{Spec: catalogs.BiomeMarkerLayerPost{MarkerLayers: []string{"Lamps"}}}).Apply(dc, d); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if got := countProto(m, "Lamp"); got < 1 || got > 3 {
		t.Fatalf("lamp count %d outside [1,3]", got)
	}
}

func TestMarkerLayerReplacesMaskedEntities(t *testing.T) {
	cats := loadCatalogs(t)
	dc, m := newContext(t, cats, 6)
	d := dungeon.New()
	boxRoom(t, dc, d, geom.NewBox2i(0, 0, 10, 1))
	for x := 0; x < 10; x++ {
		m.Spawn("AsteroidRock", geom.Vec2i{X: x, Y: 0}.Center(), 0, true, nil)
	}
	if err := (&MarkerLayer{Spec: catalogs.BiomeMarkerLayerPost{MarkerLayers: []string{"IronVeins"}}}).Apply(dc, d); err != nil {
		t.Fatalf("apply: %v", err)
	}
	ore := countProto(m, "OreIron")
	if ore < 2 || ore > 5 {
		t.Fatalf("ore count %d outside [2,5]", ore)
	}
	if rocks := countProto(m, "AsteroidRock"); rocks+ore != 10 {
		t.Fatalf("expected rocks+ore = 10, got %d+%d", rocks, ore)
	}
}

func TestCorridorClutterOnlyOnCorridors(t *testing.T) {
	cats := loadCatalogs(t)
	dc, m := newContext(t, cats, 2)
	d := dungeon.New()
	for x := 0; x < 50; x++ {
		d.AddCorridor(geom.Vec2i{X: x, Y: 0})
	}
	step := &CorridorClutter{Spec: catalogs.CorridorClutterPost{Chance: 1, Entities: []string{"Crate"}}}
	if err := step.Apply(dc, d); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if got := countProto(m, "Crate"); got != 50 {
		t.Fatalf("expected a crate on every tile, got %d", got)
	}
}
