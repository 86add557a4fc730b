package dungeon

import (
	"fmt"

	"tileforge.ai/internal/sim/catalogs"
	"tileforge.ai/internal/sim/geom"
	"tileforge.ai/internal/sim/grid"
)

// InstantiateTemplate paints a room prototype into a fresh map whose box is
// [0, size).
func InstantiateTemplate(cats *catalogs.Catalogs, def catalogs.DungeonRoomDef) (*Template, error) {
	m := grid.NewMap("template:" + def.ID)
	var tiles []grid.TileSet
	for y, row := range def.Rows {
		for x := 0; x < len(row); x++ {
			id, ok := def.Legend[string(row[x])]
			if !ok {
				continue
			}
			v, ok := cats.TileID(id)
			if !ok {
				return nil, fmt.Errorf("room %s: %w: %q", def.ID, ErrUnknownTile, id)
			}
			tiles = append(tiles, grid.TileSet{Pos: geom.Vec2i{X: x, Y: y}, Tile: grid.Tile{Type: v}})
		}
	}
	m.SetTiles(tiles)
	for _, e := range def.Entities {
		ed := cats.Entities[e.Proto]
		m.Spawn(e.Proto, geom.Vec2{X: e.Pos[0], Y: e.Pos[1]}, geom.Angle(e.Rot), ed.Anchored, ed.Defaults)
	}
	for _, d := range def.Decals {
		m.AddDecal(d.Proto, geom.Vec2{X: d.Pos[0], Y: d.Pos[1]}, geom.Angle(d.Rot))
	}
	return &Template{
		ID:   def.ID,
		Size: geom.Vec2i{X: def.Size[0], Y: def.Size[1]},
		Map:  m,
	}, nil
}

// Box is the template's tile box.
func (t *Template) Box() geom.Box2i {
	return geom.BoxAt(geom.Vec2i{}, t.Size)
}

// Template resolves a room through dc.Templates, or instantiates it directly.
func (dc *Context) Template(roomID string) (*Template, error) {
	if dc.Templates != nil {
		return dc.Templates.Template(roomID)
	}
	def, ok := dc.Catalogs.Rooms[roomID]
	if !ok {
		return nil, fmt.Errorf("unknown room %q", roomID)
	}
	return InstantiateTemplate(dc.Catalogs, def)
}
