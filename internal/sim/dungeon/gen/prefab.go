package gen

import (
	"slices"
	"sort"

	"go.uber.org/zap"

	"tileforge.ai/internal/sim/catalogs"
	"tileforge.ai/internal/sim/dungeon"
	"tileforge.ai/internal/sim/geom"
	"tileforge.ai/internal/sim/grid"
)

// Prefab assembles a preset out of room packs and room templates.
type Prefab struct {
	Spec catalogs.PrefabGen
}

// adjacency is the set of gap tiles two preset slots share.
type adjacency struct {
	a, b  int
	nodes map[geom.Vec2i]struct{}
}

type packCandidate struct {
	pack catalogs.RoomPackDef
	rot  geom.Angle
}

func sizeOf(s [2]int) geom.Vec2i { return geom.Vec2i{X: s[0], Y: s[1]} }

// rotationsFitting lists the quarter turns that turn size into want.
func rotationsFitting(size, want geom.Vec2i) []geom.Angle {
	var out []geom.Angle
	for r := geom.Angle(0); r < 4; r++ {
		if r.RotatedSize(size) == want {
			out = append(out, r)
		}
	}
	return out
}

func (g *Prefab) Generate(dc *dungeon.Context) (*dungeon.Dungeon, error) {
	d := dungeon.New()
	preset, ok := g.pickPreset(dc)
	if !ok {
		dc.Warn(d, "no usable preset in %v", g.Spec.Presets)
		return d, nil
	}
	dungeonTf := geom.Transform{Rot: geom.Angle(dc.Rand.Intn(4)), Offset: dc.Position}

	slots := make([]geom.Box2i, len(preset.Packs))
	for i, b := range preset.Packs {
		slots[i] = boxOf(b)
	}
	groups := presetAdjacency(slots)

	packIDs := make([]string, 0, len(dc.Catalogs.RoomPacks))
	for id := range dc.Catalogs.RoomPacks {
		packIDs = append(packIDs, id)
	}
	sort.Strings(packIDs)

	var sets []grid.TileSet
	for si, slot := range slots {
		if err := dc.Checkpoint(); err != nil {
			return nil, err
		}
		var candidates []packCandidate
		for _, id := range packIDs {
			pack := dc.Catalogs.RoomPacks[id]
			for _, r := range rotationsFitting(sizeOf(pack.Size), slot.Size()) {
				candidates = append(candidates, packCandidate{pack: pack, rot: r})
			}
		}
		dc.Rand.Shuffle(len(candidates), func(i, j int) { candidates[i], candidates[j] = candidates[j], candidates[i] })

		placed := false
		for _, c := range candidates {
			packTf := geom.Translation(slot.Min).Mul(geom.RotateInPlace(sizeOf(c.pack.Size), c.rot))
			if !packConnects(si, slot, packTf, c.pack, groups) {
				continue
			}
			more, err := g.placePack(dc, d, dungeonTf, packTf, c.pack)
			if err != nil {
				return nil, err
			}
			sets = append(sets, more...)
			placed = true
			break
		}
		if !placed {
			dc.Warn(d, "preset %s: no room pack fits slot %v", preset.ID, slot)
		}
	}

	dc.Target.SetTiles(sets)
	d.ComputeCenter()
	d.RefreshExteriors()
	return d, nil
}

func (g *Prefab) pickPreset(dc *dungeon.Context) (catalogs.PresetDef, bool) {
	var usable []catalogs.PresetDef
	for _, id := range g.Spec.Presets {
		if p, ok := dc.Catalogs.Presets[id]; ok && len(p.Packs) > 0 {
			usable = append(usable, p)
		}
	}
	if len(usable) == 0 {
		return catalogs.PresetDef{}, false
	}
	return usable[dc.Rand.Intn(len(usable))], true
}

// presetAdjacency finds every pair of slots separated by a one tile gap.
func presetAdjacency(slots []geom.Box2i) []adjacency {
	var out []adjacency
	for i := range slots {
		for j := i + 1; j < len(slots); j++ {
			shared := geom.EdgeIntersection(slots[i], slots[j])
			if len(shared) == 0 {
				continue
			}
			adj := adjacency{a: i, b: j, nodes: map[geom.Vec2i]struct{}{}}
			for _, p := range shared {
				adj.nodes[p] = struct{}{}
			}
			out = append(out, adj)
		}
	}
	return out
}

// packConnects reports whether the pack placed by packTf has a room edge
// reaching into every gap its slot shares with a neighbour.
func packConnects(si int, slot geom.Box2i, packTf geom.Transform, pack catalogs.RoomPackDef, groups []adjacency) bool {
	external := map[geom.Vec2i]struct{}{}
	for _, rb := range pack.Rooms {
		for _, p := range geom.Edges(packTf.Box(boxOf(rb))) {
			if !slot.Contains(p) {
				external[p] = struct{}{}
			}
		}
	}
	for _, grp := range groups {
		if grp.a != si && grp.b != si {
			continue
		}
		hit := false
		for p := range grp.nodes {
			if _, ok := external[p]; ok {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	return true
}

func (g *Prefab) roomAllowed(def catalogs.DungeonRoomDef) bool {
	if len(g.Spec.RoomWhitelist) == 0 {
		return true
	}
	for _, tag := range def.Tags {
		if slices.Contains(g.Spec.RoomWhitelist, tag) {
			return true
		}
	}
	return false
}

func (g *Prefab) placePack(dc *dungeon.Context, d *dungeon.Dungeon, dungeonTf, packTf geom.Transform, pack catalogs.RoomPackDef) ([]grid.TileSet, error) {
	roomIDs := make([]string, 0, len(dc.Catalogs.Rooms))
	for id, def := range dc.Catalogs.Rooms {
		if g.roomAllowed(def) {
			roomIDs = append(roomIDs, id)
		}
	}
	sort.Strings(roomIDs)

	var sets []grid.TileSet
	for _, rb := range pack.Rooms {
		if err := dc.Checkpoint(); err != nil {
			return nil, err
		}
		box := boxOf(rb)
		type fit struct {
			id  string
			rot geom.Angle
		}
		var fits []fit
		for _, id := range roomIDs {
			for _, r := range rotationsFitting(sizeOf(dc.Catalogs.Rooms[id].Size), box.Size()) {
				fits = append(fits, fit{id: id, rot: r})
			}
		}
		if len(fits) == 0 {
			dc.Warn(d, "pack %s: no room fits %v", pack.ID, box)
			continue
		}
		pick := fits[dc.Rand.Intn(len(fits))]
		tpl, err := dc.Template(pick.id)
		if err != nil {
			dc.Warn(d, "pack %s: room %s: %v", pack.ID, pick.id, err)
			continue
		}
		roomTf := geom.Translation(box.Min).Mul(geom.RotateInPlace(tpl.Size, pick.rot))
		full := dungeonTf.Mul(packTf).Mul(roomTf)
		sets = append(sets, g.copyTemplate(dc, d, tpl, full)...)
	}
	return sets, nil
}

// copyTemplate adds the template's room to d and stamps its entities and
// decals. Tiles are returned for the caller's bulk write.
func (g *Prefab) copyTemplate(dc *dungeon.Context, d *dungeon.Dungeon, tpl *dungeon.Template, full geom.Transform) []grid.TileSet {
	var sets []grid.TileSet
	var floor []geom.Vec2i
	for _, p := range tpl.Box().Tiles() {
		t := tpl.Map.Tile(p)
		if t.IsEmpty() {
			continue
		}
		wp := full.Tile(p)
		if d.RoomTiles.Has(wp) {
			continue
		}
		if n := dc.Catalogs.Tiles.Defs[dc.Catalogs.TileName(t.Type)].Variants; n > 1 {
			t.Variant = uint8(dc.Rand.Intn(n))
		}
		sets = append(sets, grid.TileSet{Pos: wp, Tile: t})
		floor = append(floor, wp)
	}
	if len(floor) == 0 {
		return nil
	}
	d.AddRoom(dungeon.NewRoom(floor))

	for _, id := range tpl.Map.EntityIDs() {
		e, _ := tpl.Map.Entity(id)
		dc.Target.Spawn(e.Proto, full.Point(e.Pos), (e.Rot + full.Rot).Norm(), e.Anchored, e.Data)
	}
	for _, id := range tpl.Map.DecalIDs() {
		dd, _ := tpl.Map.Decal(id)
		dc.Target.AddDecal(dd.Proto, full.Decal(dd.Pos), (dd.Rot + full.Rot).Norm())
	}
	dc.Log.Debug("room stamped", zap.String("room", tpl.ID), zap.Int("tiles", len(floor)))
	return sets
}
