// Package geom holds the integer grid math shared by generation and streaming.
package geom

import (
	"fmt"
	"math"
	"sort"
)

// Vec2i is an integer grid coordinate.
type Vec2i struct{ X, Y int }

func (v Vec2i) Add(o Vec2i) Vec2i { return Vec2i{v.X + o.X, v.Y + o.Y} }
func (v Vec2i) Sub(o Vec2i) Vec2i { return Vec2i{v.X - o.X, v.Y - o.Y} }
func (v Vec2i) Scale(k int) Vec2i { return Vec2i{v.X * k, v.Y * k} }
func (v Vec2i) Center() Vec2 { return Vec2{float64(v.X) + 0.5, float64(v.Y) + 0.5} }
func (v Vec2i) ToVec2() Vec2 { return Vec2{float64(v.X), float64(v.Y)} }
func (v Vec2i) String() string { return fmt.Sprintf("(%d,%d)", v.X, v.Y) }
func (v Vec2i) Manhattan(o Vec2i) int { return AbsInt(v.X-o.X) + AbsInt(v.Y-o.Y) }

// CardinalDirs are the 4-neighbour offsets in a fixed order.
var CardinalDirs = [4]Vec2i{{0, -1}, {1, 0}, {0, 1}, {-1, 0}}

// AllDirs are the 8-neighbour offsets in a fixed order.
var AllDirs = [8]Vec2i{{-1, -1}, {0, -1}, {1, -1}, {-1, 0}, {1, 0}, {-1, 1}, {0, 1}, {1, 1}}

// Vec2 is a world-space position.
type Vec2 struct{ X, Y float64 }

func (v Vec2) Add(o Vec2) Vec2 { return Vec2{v.X + o.X, v.Y + o.Y} }
func (v Vec2) Sub(o Vec2) Vec2 { return Vec2{v.X - o.X, v.Y - o.Y} }
func (v Vec2) Scale(k float64) Vec2 { return Vec2{v.X * k, v.Y * k} }
func (v Vec2) Length() float64 { return math.Hypot(v.X, v.Y) }
func (v Vec2) LengthSquared() float64 { return v.X*v.X + v.Y*v.Y }

// Floor returns the tile containing v.
func (v Vec2) Floor() Vec2i {
	return Vec2i{int(math.Floor(v.X)), int(math.Floor(v.Y))}
}

// Box2i is a tile box: Min inclusive, Max exclusive.
type Box2i struct{ Min, Max Vec2i }

func NewBox2i(x0, y0, x1, y1 int) Box2i { return Box2i{Vec2i{x0, y0}, Vec2i{x1, y1}} }

// BoxAt returns the box of the given size with its bottom-left at origin.
func BoxAt(origin Vec2i, size Vec2i) Box2i {
	return Box2i{Min: origin, Max: origin.Add(size)}
}

func (b Box2i) Width() int { return b.Max.X - b.Min.X }
func (b Box2i) Height() int { return b.Max.Y - b.Min.Y }
func (b Box2i) Size() Vec2i { return Vec2i{b.Width(), b.Height()} }
func (b Box2i) Empty() bool { return b.Max.X <= b.Min.X || b.Max.Y <= b.Min.Y }
func (b Box2i) Area() int { return b.Width() * b.Height() }
func (b Box2i) String() string { return fmt.Sprintf("[%v..%v)", b.Min, b.Max) }

func (b Box2i) Contains(p Vec2i) bool {
	return p.X >= b.Min.X && p.X < b.Max.X && p.Y >= b.Min.Y && p.Y < b.Max.Y
}

func (b Box2i) Intersects(o Box2i) bool {
	return b.Min.X < o.Max.X && o.Min.X < b.Max.X && b.Min.Y < o.Max.Y && o.Min.Y < b.Max.Y
}

func (b Box2i) Union(o Box2i) Box2i {
	if b.Empty() {
		return o
	}
	if o.Empty() {
		return b
	}
	return Box2i{
		Min: Vec2i{min(b.Min.X, o.Min.X), min(b.Min.Y, o.Min.Y)},
		Max: Vec2i{max(b.Max.X, o.Max.X), max(b.Max.Y, o.Max.Y)},
	}
}

func (b Box2i) Enlarged(n int) Box2i {
	return Box2i{Min: Vec2i{b.Min.X - n, b.Min.Y - n}, Max: Vec2i{b.Max.X + n, b.Max.Y + n}}
}

func (b Box2i) Translated(o Vec2i) Box2i {
	return Box2i{Min: b.Min.Add(o), Max: b.Max.Add(o)}
}

// Snapped grows b outward to multiples of size.
func (b Box2i) Snapped(size int) Box2i {
	return Box2i{
		Min: Vec2i{SnapDown(b.Min.X, size), SnapDown(b.Min.Y, size)},
		Max: Vec2i{SnapUp(b.Max.X, size), SnapUp(b.Max.Y, size)},
	}
}

// ToBox2 converts to world space.
func (b Box2i) ToBox2() Box2 {
	return Box2{Min: b.Min.ToVec2(), Max: b.Max.ToVec2()}
}

// Tiles lists every tile in row order.
func (b Box2i) Tiles() []Vec2i {
	if b.Empty() {
		return nil
	}
	out := make([]Vec2i, 0, b.Area())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			out = append(out, Vec2i{x, y})
		}
	}
	return out
}

// ChunkOrigins lists the origins of every size-aligned chunk overlapping b.
func (b Box2i) ChunkOrigins(size int) []Vec2i {
	s := b.Snapped(size)
	var out []Vec2i
	for y := s.Min.Y; y < s.Max.Y; y += size {
		for x := s.Min.X; x < s.Max.X; x += size {
			out = append(out, Vec2i{x, y})
		}
	}
	return out
}

// Box2 is a world-space box.
type Box2 struct{ Min, Max Vec2 }

// CenteredBox2 returns the square box of half extent r around c.
func CenteredBox2(c Vec2, r float64) Box2 {
	return Box2{Min: Vec2{c.X - r, c.Y - r}, Max: Vec2{c.X + r, c.Y + r}}
}

func (b Box2) Width() float64 { return b.Max.X - b.Min.X }
func (b Box2) Height() float64 { return b.Max.Y - b.Min.Y }
func (b Box2) Center() Vec2 { return Vec2{(b.Min.X + b.Max.X) / 2, (b.Min.Y + b.Max.Y) / 2} }

func (b Box2) Contains(p Vec2) bool {
	return p.X >= b.Min.X && p.X < b.Max.X && p.Y >= b.Min.Y && p.Y < b.Max.Y
}

func (b Box2) Intersects(o Box2) bool {
	return b.Min.X < o.Max.X && o.Min.X < b.Max.X && b.Min.Y < o.Max.Y && o.Min.Y < b.Max.Y
}

func (b Box2) Enlarged(n float64) Box2 {
	return Box2{Min: Vec2{b.Min.X - n, b.Min.Y - n}, Max: Vec2{b.Max.X + n, b.Max.Y + n}}
}

func (b Box2) Union(o Box2) Box2 {
	return Box2{
		Min: Vec2{math.Min(b.Min.X, o.Min.X), math.Min(b.Min.Y, o.Min.Y)},
		Max: Vec2{math.Max(b.Max.X, o.Max.X), math.Max(b.Max.Y, o.Max.Y)},
	}
}

// Extended stretches b along d (each axis grows only on the side d points to).
func (b Box2) Extended(d Vec2) Box2 {
	out := b
	if d.X > 0 {
		out.Max.X += d.X
	} else {
		out.Min.X += d.X
	}
	if d.Y > 0 {
		out.Max.Y += d.Y
	} else {
		out.Min.Y += d.Y
	}
	return out
}

// TileBounds returns the smallest tile box covering b.
func (b Box2) TileBounds() Box2i {
	return Box2i{
		Min: Vec2i{int(math.Floor(b.Min.X)), int(math.Floor(b.Min.Y))},
		Max: Vec2i{int(math.Ceil(b.Max.X)), int(math.Ceil(b.Max.Y))},
	}
}

// SortTiles orders tiles by row then column so set iteration is reproducible.
func SortTiles(tiles []Vec2i) {
	sort.Slice(tiles, func(i, j int) bool {
		if tiles[i].Y != tiles[j].Y {
			return tiles[i].Y < tiles[j].Y
		}
		return tiles[i].X < tiles[j].X
	})
}
