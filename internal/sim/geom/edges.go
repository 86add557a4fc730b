package geom

// Edges lists the tiles immediately outside each side of b: bottom, right,
// top, then left. Corners are not included.
func Edges(b Box2i) []Vec2i {
	if b.Empty() {
		return nil
	}
	out := make([]Vec2i, 0, 2*(b.Width()+b.Height()))
	for x := b.Min.X; x < b.Max.X; x++ {
		out = append(out, Vec2i{x, b.Min.Y - 1})
	}
	for y := b.Min.Y; y < b.Max.Y; y++ {
		out = append(out, Vec2i{b.Max.X, y})
	}
	for x := b.Min.X; x < b.Max.X; x++ {
		out = append(out, Vec2i{x, b.Max.Y})
	}
	for y := b.Min.Y; y < b.Max.Y; y++ {
		out = append(out, Vec2i{b.Min.X - 1, y})
	}
	return out
}

// EdgeIntersection returns the tiles that lie on the edges of both boxes, in
// the order Edges(a) yields them.
func EdgeIntersection(a, b Box2i) []Vec2i {
	eb := map[Vec2i]struct{}{}
	for _, p := range Edges(b) {
		eb[p] = struct{}{}
	}
	var out []Vec2i
	for _, p := range Edges(a) {
		if _, ok := eb[p]; ok {
			out = append(out, p)
		}
	}
	return out
}
