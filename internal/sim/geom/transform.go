package geom

import "math"

// Angle is a rotation in quarter turns counter-clockwise.
type Angle int

func (a Angle) Norm() Angle { return Angle(Mod(int(a), 4)) }

func (a Angle) Radians() float64 { return float64(a.Norm()) * math.Pi / 2 }

// Rotate turns v around the origin.
func (a Angle) Rotate(v Vec2i) Vec2i {
	switch a.Norm() {
	case 1:
		return Vec2i{-v.Y, v.X}
	case 2:
		return Vec2i{-v.X, -v.Y}
	case 3:
		return Vec2i{v.Y, -v.X}
	default:
		return v
	}
}

func (a Angle) RotateVec2(v Vec2) Vec2 {
	switch a.Norm() {
	case 1:
		return Vec2{-v.Y, v.X}
	case 2:
		return Vec2{-v.X, -v.Y}
	case 3:
		return Vec2{v.Y, -v.X}
	default:
		return v
	}
}

// RotatedSize swaps the axes of size for odd turns.
func (a Angle) RotatedSize(size Vec2i) Vec2i {
	if a.Norm()%2 == 1 {
		return Vec2i{size.Y, size.X}
	}
	return size
}

// Transform rotates then translates. Tiles are transformed through their centers.
type Transform struct {
	Rot    Angle
	Offset Vec2i
}

var Identity = Transform{}

func Translation(o Vec2i) Transform { return Transform{Offset: o} }

// Point maps a world-space point.
func (t Transform) Point(p Vec2) Vec2 {
	return t.Rot.RotateVec2(p).Add(t.Offset.ToVec2())
}

// Tile maps a tile coordinate.
func (t Transform) Tile(v Vec2i) Vec2i {
	c := t.Point(v.Center())
	return Vec2{c.X - 0.5, c.Y - 0.5}.Floor()
}

// Box maps a tile box.
func (t Transform) Box(b Box2i) Box2i {
	a := t.Tile(b.Min)
	c := t.Tile(b.Max.Sub(Vec2i{1, 1}))
	return Box2i{
		Min: Vec2i{min(a.X, c.X), min(a.Y, c.Y)},
		Max: Vec2i{max(a.X, c.X) + 1, max(a.Y, c.Y) + 1},
	}
}

// Mul returns the transform that applies o first, then t.
func (t Transform) Mul(o Transform) Transform {
	return Transform{
		Rot:    (t.Rot + o.Rot).Norm(),
		Offset: t.Rot.Rotate(o.Offset).Add(t.Offset),
	}
}

// RotateInPlace returns the transform that rotates a box of the given size
// at the origin so that the rotated box again starts at the origin.
func RotateInPlace(size Vec2i, rot Angle) Transform {
	switch rot.Norm() {
	case 1:
		return Transform{Rot: 1, Offset: Vec2i{size.Y, 0}}
	case 2:
		return Transform{Rot: 2, Offset: Vec2i{size.X, size.Y}}
	case 3:
		return Transform{Rot: 3, Offset: Vec2i{0, size.X}}
	default:
		return Identity
	}
}

// decalCorner is added to a rotated decal origin. Decals hang off the bottom
// left corner of their tile, so a rotation moves the anchor to another corner.
var decalCorner = [4]Vec2{{0, 0}, {-1, 0}, {-1, -1}, {0, -1}}

// Decal maps a corner-anchored decal position.
func (t Transform) Decal(p Vec2) Vec2 {
	return t.Point(p).Add(decalCorner[t.Rot.Norm()])
}
