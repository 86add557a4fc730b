// Package dungeon holds the in-memory result of one generation request and
// the context shared by generators and post-generation steps.
package dungeon

import (
	"fmt"

	"github.com/zyedidia/generic/mapset"

	"tileforge.ai/internal/sim/geom"
)

type TileSet = mapset.Set[geom.Vec2i]

func NewTileSet(tiles ...geom.Vec2i) TileSet {
	s := mapset.New[geom.Vec2i]()
	for _, t := range tiles {
		s.Put(t)
	}
	return s
}

// Sorted lists a set in (Y, X) order.
func Sorted(s TileSet) []geom.Vec2i {
	out := make([]geom.Vec2i, 0, s.Size())
	s.Each(func(p geom.Vec2i) { out = append(out, p) })
	geom.SortTiles(out)
	return out
}

func Clone(s TileSet) TileSet {
	out := mapset.New[geom.Vec2i]()
	s.Each(func(p geom.Vec2i) { out.Put(p) })
	return out
}

// Room is one contiguous placed room.
type Room struct {
	Tiles     TileSet
	Center    geom.Vec2
	Bounds    geom.Box2i
	Entrances TileSet
	// Exterior is the one tile ring around Tiles, minus every room tile.
	Exterior TileSet
}

// NewRoom builds a room from its floor tiles.
func NewRoom(tiles []geom.Vec2i) *Room {
	r := &Room{
		Tiles:     NewTileSet(tiles...),
		Entrances: NewTileSet(),
		Exterior:  NewTileSet(),
	}
	r.refreshShape()
	return r
}

func (r *Room) refreshShape() {
	var sx, sy float64
	first := true
	r.Tiles.Each(func(p geom.Vec2i) {
		sx += float64(p.X) + 0.5
		sy += float64(p.Y) + 0.5
		tb := geom.BoxAt(p, geom.Vec2i{X: 1, Y: 1})
		if first {
			r.Bounds = tb
			first = false
		} else {
			r.Bounds = r.Bounds.Union(tb)
		}
	})
	if n := r.Tiles.Size(); n > 0 {
		r.Center = geom.Vec2{X: sx / float64(n), Y: sy / float64(n)}
	}
}

func (r *Room) SortedTiles() []geom.Vec2i { return Sorted(r.Tiles) }

// Path is a planned connection between two rooms.
type Path struct {
	From, To int
	Tiles    []geom.Vec2i
}

// Dungeon is the result of one generation request.
type Dungeon struct {
	Rooms []*Room

	RoomTiles             TileSet
	RoomExteriorTiles     TileSet
	CorridorTiles         TileSet
	CorridorExteriorTiles TileSet
	Entrances             TileSet

	Paths  []Path
	Center geom.Vec2

	// Warnings lists units that were skipped. They never fail the request.
	Warnings []string
}

func New() *Dungeon {
	return &Dungeon{
		RoomTiles:             NewTileSet(),
		RoomExteriorTiles:     NewTileSet(),
		CorridorTiles:         NewTileSet(),
		CorridorExteriorTiles: NewTileSet(),
		Entrances:             NewTileSet(),
	}
}

// AddRoom appends r. Tiles already owned by another room are dropped from r;
// a room left empty is rejected.
func (d *Dungeon) AddRoom(r *Room) bool {
	var clash []geom.Vec2i
	r.Tiles.Each(func(p geom.Vec2i) {
		if d.RoomTiles.Has(p) {
			clash = append(clash, p)
		}
	})
	for _, p := range clash {
		r.Tiles.Remove(p)
	}
	if r.Tiles.Size() == 0 {
		return false
	}
	if len(clash) > 0 {
		r.refreshShape()
	}
	r.Tiles.Each(func(p geom.Vec2i) {
		d.RoomTiles.Put(p)
		d.CorridorTiles.Remove(p)
	})
	d.Rooms = append(d.Rooms, r)
	return true
}

// AddCorridor marks tiles as corridor. Room tiles are never corridor.
func (d *Dungeon) AddCorridor(tiles ...geom.Vec2i) {
	for _, p := range tiles {
		if !d.RoomTiles.Has(p) {
			d.CorridorTiles.Put(p)
		}
	}
}

// AddEntrance records an entrance on room i (or no room when i < 0).
func (d *Dungeon) AddEntrance(i int, p geom.Vec2i) {
	d.Entrances.Put(p)
	if i >= 0 && i < len(d.Rooms) {
		d.Rooms[i].Entrances.Put(p)
	}
}

// RefreshExteriors re-derives every exterior ring from the current tiles.
func (d *Dungeon) RefreshExteriors() {
	d.RoomExteriorTiles = NewTileSet()
	for _, r := range d.Rooms {
		r.Exterior = NewTileSet()
		r.Tiles.Each(func(p geom.Vec2i) {
			for _, off := range geom.AllDirs {
				n := p.Add(off)
				if !d.RoomTiles.Has(n) {
					r.Exterior.Put(n)
					d.RoomExteriorTiles.Put(n)
				}
			}
		})
	}
	d.CorridorExteriorTiles = NewTileSet()
	d.CorridorTiles.Each(func(p geom.Vec2i) {
		for _, off := range geom.AllDirs {
			n := p.Add(off)
			if !d.RoomTiles.Has(n) && !d.CorridorTiles.Has(n) {
				d.CorridorExteriorTiles.Put(n)
			}
		}
	})
}

// ComputeCenter sets Center to the mean of the room centers.
func (d *Dungeon) ComputeCenter() {
	if len(d.Rooms) == 0 {
		return
	}
	var c geom.Vec2
	for _, r := range d.Rooms {
		c = c.Add(r.Center)
	}
	d.Center = c.Scale(1 / float64(len(d.Rooms)))
}

// Bounds is the box covering every room, corridor and entrance tile.
func (d *Dungeon) Bounds() geom.Box2i {
	var b geom.Box2i
	first := true
	grow := func(p geom.Vec2i) {
		tb := geom.BoxAt(p, geom.Vec2i{X: 1, Y: 1})
		if first {
			b, first = tb, false
			return
		}
		b = b.Union(tb)
	}
	for _, r := range d.Rooms {
		if r.Tiles.Size() > 0 {
			grow(r.Bounds.Min)
			grow(r.Bounds.Max.Sub(geom.Vec2i{X: 1, Y: 1}))
		}
	}
	d.CorridorTiles.Each(grow)
	d.Entrances.Each(grow)
	return b
}

// RoomAt returns the index of the room owning p, or -1.
func (d *Dungeon) RoomAt(p geom.Vec2i) int {
	if !d.RoomTiles.Has(p) {
		return -1
	}
	for i, r := range d.Rooms {
		if r.Tiles.Has(p) {
			return i
		}
	}
	return -1
}

func (d *Dungeon) Warn(format string, args ...any) {
	d.Warnings = append(d.Warnings, fmt.Sprintf(format, args...))
}
