package gen

import (
	"tileforge.ai/internal/sim/catalogs"
	"tileforge.ai/internal/sim/dungeon"
	"tileforge.ai/internal/sim/geom"
)

// BSP splits the bounds recursively, places one room per leaf and joins
// sibling subtrees with L-shaped corridors.
type BSP struct {
	Spec catalogs.BSPGen
}

type bspNode struct {
	box         geom.Box2i
	left, right *bspNode
	room        int // index into Dungeon.Rooms, -1 when none
}

func (g *BSP) Generate(dc *dungeon.Context) (*dungeon.Dungeon, error) {
	d := dungeon.New()
	bounds := boxOf(g.Spec.Bounds).Translated(dc.Position)
	minRoom := geom.Vec2i{X: max(1, g.Spec.MinimumRoomDimensions[0]), Y: max(1, g.Spec.MinimumRoomDimensions[1])}
	pad := max(0, g.Spec.Padding)
	minLeaf := minRoom.Add(geom.Vec2i{X: 2 * pad, Y: 2 * pad})

	if bounds.Width() < minLeaf.X || bounds.Height() < minLeaf.Y {
		dc.Warn(d, "bsp bounds %v smaller than one room", bounds)
		return d, nil
	}

	root := &bspNode{box: bounds, room: -1}
	if err := g.split(dc, root, minLeaf); err != nil {
		return nil, err
	}
	if err := g.placeRooms(dc, d, root, minRoom, pad); err != nil {
		return nil, err
	}
	if err := g.connect(dc, d, root); err != nil {
		return nil, err
	}
	d.ComputeCenter()
	d.RefreshExteriors()

	floor := g.Spec.Tile
	corridor := g.Spec.CorridorTile
	if corridor == "" {
		corridor = floor
	}
	sets, err := dc.Fill(floor, dungeon.Sorted(d.RoomTiles))
	if err != nil {
		return nil, err
	}
	more, err := dc.Fill(corridor, dungeon.Sorted(d.CorridorTiles))
	if err != nil {
		return nil, err
	}
	sets = append(sets, more...)
	if g.Spec.WallTile != "" {
		walls := dungeon.NewTileSet()
		d.RoomExteriorTiles.Each(func(p geom.Vec2i) {
			if !d.CorridorTiles.Has(p) {
				walls.Put(p)
			}
		})
		d.CorridorExteriorTiles.Each(func(p geom.Vec2i) {
			if !d.RoomTiles.Has(p) {
				walls.Put(p)
			}
		})
		more, err := dc.Fill(g.Spec.WallTile, dungeon.Sorted(walls))
		if err != nil {
			return nil, err
		}
		sets = append(sets, more...)
	}
	dc.Target.SetTiles(sets)
	return d, nil
}

// split partitions node until neither axis can hold two leaves.
func (g *BSP) split(dc *dungeon.Context, node *bspNode, minLeaf geom.Vec2i) error {
	if err := dc.Checkpoint(); err != nil {
		return err
	}
	w, h := node.box.Width(), node.box.Height()
	canX := w >= 2*minLeaf.X
	canY := h >= 2*minLeaf.Y
	if !canX && !canY {
		return nil
	}

	// Cut across the long side when the box is clearly stretched.
	var vertical bool
	switch {
	case float64(w) > float64(h)*1.25:
		vertical = true
	case float64(h) > float64(w)*1.25:
		vertical = false
	default:
		vertical = dc.Rand.Intn(2) == 0
	}
	if vertical && !canX {
		vertical = false
	} else if !vertical && !canY {
		vertical = true
	}

	b := node.box
	if vertical {
		at := b.Min.X + minLeaf.X + dc.Rand.Intn(w-2*minLeaf.X+1)
		node.left = &bspNode{box: geom.NewBox2i(b.Min.X, b.Min.Y, at, b.Max.Y), room: -1}
		node.right = &bspNode{box: geom.NewBox2i(at, b.Min.Y, b.Max.X, b.Max.Y), room: -1}
	} else {
		at := b.Min.Y + minLeaf.Y + dc.Rand.Intn(h-2*minLeaf.Y+1)
		node.left = &bspNode{box: geom.NewBox2i(b.Min.X, b.Min.Y, b.Max.X, at), room: -1}
		node.right = &bspNode{box: geom.NewBox2i(b.Min.X, at, b.Max.X, b.Max.Y), room: -1}
	}
	if err := g.split(dc, node.left, minLeaf); err != nil {
		return err
	}
	return g.split(dc, node.right, minLeaf)
}

func (g *BSP) placeRooms(dc *dungeon.Context, d *dungeon.Dungeon, node *bspNode, minRoom geom.Vec2i, pad int) error {
	if node.left != nil {
		if err := g.placeRooms(dc, d, node.left, minRoom, pad); err != nil {
			return err
		}
		return g.placeRooms(dc, d, node.right, minRoom, pad)
	}
	if err := dc.Checkpoint(); err != nil {
		return err
	}
	inner := node.box.Enlarged(-pad)
	w := minRoom.X + dc.Rand.Intn(inner.Width()-minRoom.X+1)
	h := minRoom.Y + dc.Rand.Intn(inner.Height()-minRoom.Y+1)
	x := inner.Min.X + dc.Rand.Intn(inner.Width()-w+1)
	y := inner.Min.Y + dc.Rand.Intn(inner.Height()-h+1)
	room := dungeon.NewRoom(geom.NewBox2i(x, y, x+w, y+h).Tiles())
	if d.AddRoom(room) {
		node.room = len(d.Rooms) - 1
	}
	return nil
}

// anyRoom picks a room from the subtree, walking a random branch.
func (g *BSP) anyRoom(dc *dungeon.Context, node *bspNode) int {
	for node.left != nil {
		if dc.Rand.Intn(2) == 0 {
			node = node.left
		} else {
			node = node.right
		}
	}
	return node.room
}

func (g *BSP) connect(dc *dungeon.Context, d *dungeon.Dungeon, node *bspNode) error {
	if node.left == nil {
		return nil
	}
	if err := g.connect(dc, d, node.left); err != nil {
		return err
	}
	if err := g.connect(dc, d, node.right); err != nil {
		return err
	}
	if err := dc.Checkpoint(); err != nil {
		return err
	}
	a, b := g.anyRoom(dc, node.left), g.anyRoom(dc, node.right)
	if a < 0 || b < 0 {
		return nil
	}
	from := d.Rooms[a].Center.Floor()
	to := d.Rooms[b].Center.Floor()
	path := LPath(from, to, dc.Rand.Intn(2) == 0)
	d.AddCorridor(path...)
	d.Paths = append(d.Paths, dungeon.Path{From: a, To: b, Tiles: path})
	return nil
}

// LPath walks from a to b along one axis then the other. Every step is a
// 4-neighbour move.
func LPath(a, b geom.Vec2i, xFirst bool) []geom.Vec2i {
	out := []geom.Vec2i{a}
	p := a
	stepX := func() {
		for p.X != b.X {
			if p.X < b.X {
				p.X++
			} else {
				p.X--
			}
			out = append(out, p)
		}
	}
	stepY := func() {
		for p.Y != b.Y {
			if p.Y < b.Y {
				p.Y++
			} else {
				p.Y--
			}
			out = append(out, p)
		}
	}
	if xFirst {
		stepX()
		stepY()
	} else {
		stepY()
		stepX()
	}
	return out
}
