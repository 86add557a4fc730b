package geom

import (
	"math"
	"math/rand"
)

// Edge joins two points by index.
type Edge struct {
	A, B int
}

// MinimumSpanningTree connects every point. It starts from a random point and
// repeatedly attaches the cheapest edge from the tree to a point outside it.
// Ties resolve to the lower index pair so output depends only on rng.
func MinimumSpanningTree(points []Vec2, rng *rand.Rand) []Edge {
	n := len(points)
	if n < 2 {
		return nil
	}

	dist := make([][]float64, n)
	for i := range dist {
		dist[i] = make([]float64, n)
		for j := range dist[i] {
			dist[i][j] = points[i].Sub(points[j]).LengthSquared()
		}
	}

	inTree := make([]bool, n)
	inTree[rng.Intn(n)] = true
	edges := make([]Edge, 0, n-1)

	for len(edges) < n-1 {
		best := math.Inf(1)
		bi, bj := -1, -1
		for i := 0; i < n; i++ {
			if !inTree[i] {
				continue
			}
			for j := 0; j < n; j++ {
				if inTree[j] {
					continue
				}
				if dist[i][j] < best {
					best = dist[i][j]
					bi, bj = i, j
				}
			}
		}
		inTree[bj] = true
		edges = append(edges, Edge{A: bi, B: bj})
	}
	return edges
}
