package geom

import (
	"container/heap"
	"errors"
)

var ErrNoPath = errors.New("no path")

// PathRequest describes one grid search.
type PathRequest struct {
	Start Vec2i
	// Goal drives the heuristic. When IsGoal is nil it is also the only goal.
	Goal   Vec2i
	IsGoal func(Vec2i) bool

	// Forbidden tiles are never entered, except Start and any goal tile.
	Forbidden func(Vec2i) bool
	// Corridor marks tiles whose step cost is scaled by CorridorCost.
	Corridor     func(Vec2i) bool
	CorridorCost float64
	// TurnPenalty is added when the step direction changes.
	TurnPenalty float64

	// Bounds limits the search when non-empty.
	Bounds Box2i
	// MaxLength caps the path length in steps. 0 means no cap.
	MaxLength int
	// MaxExpansions caps popped nodes. 0 means a default of 1<<16.
	MaxExpansions int
}

type pathNode struct {
	pos    Vec2i
	dir    int
	steps  int
	g, f   float64
	parent *pathNode
	index  int
	closed bool
}

// pathKey separates arrivals from different directions so turn costs stay
// exact.
type pathKey struct {
	pos Vec2i
	dir int
}

type pathHeap []*pathNode

func (h pathHeap) Len() int { return len(h) }
func (h pathHeap) Less(i, j int) bool {
	if h[i].f != h[j].f {
		return h[i].f < h[j].f
	}
	// Stable tie-break keeps results reproducible.
	if h[i].pos.Y != h[j].pos.Y {
		return h[i].pos.Y < h[j].pos.Y
	}
	if h[i].pos.X != h[j].pos.X {
		return h[i].pos.X < h[j].pos.X
	}
	return h[i].dir < h[j].dir
}
func (h pathHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *pathHeap) Push(x any) {
	n := x.(*pathNode)
	n.index = len(*h)
	*h = append(*h, n)
}

func (h *pathHeap) Pop() any {
	old := *h
	n := len(old)
	node := old[n-1]
	old[n-1] = nil
	node.index = -1
	*h = old[:n-1]
	return node
}

// FindPath runs A* with 4-neighbour moves and a Manhattan heuristic. The
// returned path includes both the start and the reached goal tile.
func FindPath(req PathRequest) ([]Vec2i, error) {
	isGoal := req.IsGoal
	if isGoal == nil {
		goal := req.Goal
		isGoal = func(p Vec2i) bool { return p == goal }
	}
	corridorCost := req.CorridorCost
	if corridorCost <= 0 {
		corridorCost = 1
	}
	// Keep the heuristic admissible when corridor steps are cheaper than 1.
	hScale := 1.0
	if req.Corridor != nil && corridorCost < 1 {
		hScale = corridorCost
	}
	h := func(p Vec2i) float64 { return hScale * float64(p.Manhattan(req.Goal)) }
	maxExp := req.MaxExpansions
	if maxExp <= 0 {
		maxExp = 1 << 16
	}

	open := &pathHeap{}
	nodes := map[pathKey]*pathNode{}
	start := &pathNode{pos: req.Start, dir: -1, f: h(req.Start)}
	nodes[pathKey{req.Start, -1}] = start
	heap.Push(open, start)

	for expansions := 0; open.Len() > 0 && expansions < maxExp; expansions++ {
		cur := heap.Pop(open).(*pathNode)
		cur.closed = true
		if isGoal(cur.pos) {
			return reconstructPath(cur), nil
		}
		if req.MaxLength > 0 && cur.steps >= req.MaxLength {
			continue
		}

		for d, off := range CardinalDirs {
			np := cur.pos.Add(off)
			if !req.Bounds.Empty() && !req.Bounds.Contains(np) {
				continue
			}
			goal := isGoal(np)
			if !goal && req.Forbidden != nil && req.Forbidden(np) {
				continue
			}
			step := 1.0
			if req.Corridor != nil && req.Corridor(np) {
				step *= corridorCost
			}
			if cur.dir >= 0 && cur.dir != d {
				step += req.TurnPenalty
			}
			g := cur.g + step

			key := pathKey{np, d}
			n, ok := nodes[key]
			if !ok {
				n = &pathNode{pos: np, dir: d, steps: cur.steps + 1, g: g, parent: cur}
				n.f = g + h(np)
				nodes[key] = n
				heap.Push(open, n)
				continue
			}
			if n.closed || g >= n.g {
				continue
			}
			n.g = g
			n.f = g + h(np)
			n.steps = cur.steps + 1
			n.parent = cur
			heap.Fix(open, n.index)
		}
	}
	return nil, ErrNoPath
}

func reconstructPath(n *pathNode) []Vec2i {
	var out []Vec2i
	for ; n != nil; n = n.parent {
		out = append(out, n.pos)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}
