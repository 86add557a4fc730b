package gen

import (
	"math"

	"github.com/aquilax/go-perlin"
	"go.uber.org/zap"

	"tileforge.ai/internal/sim/catalogs"
	"tileforge.ai/internal/sim/dungeon"
	"tileforge.ai/internal/sim/geom"
	"tileforge.ai/internal/sim/grid"
)

const (
	perlinAlpha    = 2
	perlinBeta     = 2
	defaultOctaves = 3
)

// Noise floods over tiles whose noise value clears a layer threshold,
// starting from seed points spread along the bounds border. A border seed
// that misses walks towards the center until it hits floor. Values are normalised to [0, 1]. When Distance is
// set the value is blended towards a radial falloff around the bounds center.
type Noise struct {
	Spec     catalogs.NoiseGen
	Distance *catalogs.NoiseDistanceGen
}

type noiseSampler struct {
	layers []catalogs.NoiseLayer
	gens   []*perlin.Perlin
	dist   *catalogs.NoiseDistanceGen
	center geom.Vec2
}

func newNoiseSampler(spec catalogs.NoiseGen, dist *catalogs.NoiseDistanceGen, seed int64, center geom.Vec2) *noiseSampler {
	s := &noiseSampler{layers: spec.Layers, dist: dist, center: center}
	for i, l := range spec.Layers {
		oct := l.Octaves
		if oct <= 0 {
			oct = defaultOctaves
		}
		s.gens = append(s.gens, perlin.NewPerlin(perlinAlpha, perlinBeta, oct, seed+int64(i)))
	}
	return s
}

// falloff is 0 at the center and 1 at or beyond the configured extent.
func (s *noiseSampler) falloff(p geom.Vec2) float64 {
	hx := math.Max(1, float64(s.dist.Size[0])/2)
	hy := math.Max(1, float64(s.dist.Size[1])/2)
	nx := math.Min(1, math.Abs(p.X-s.center.X)/hx)
	ny := math.Min(1, math.Abs(p.Y-s.center.Y)/hy)
	switch s.dist.Distance {
	case catalogs.DistanceSquareBump:
		return 1 - (1-nx*nx)*(1-ny*ny)
	default:
		return math.Min(1, nx*nx+ny*ny)
	}
}

// sample returns the index of the first layer that marks p as floor, or -1.
func (s *noiseSampler) sample(p geom.Vec2i) int {
	c := p.Center()
	for i, l := range s.layers {
		f := l.Frequency
		if f == 0 {
			f = 0.1
		}
		v := (s.gens[i].Noise2D(c.X*f, c.Y*f) + 1) / 2
		if s.dist != nil {
			w := s.dist.BlendWeight
			v = v*(1-w) + (1-s.falloff(c))*w
		}
		if v > l.Threshold {
			return i
		}
	}
	return -1
}

func (g *Noise) Generate(dc *dungeon.Context) (*dungeon.Dungeon, error) {
	d := dungeon.New()
	bounds := boxOf(g.Spec.Bounds).Translated(dc.Position)
	if bounds.Empty() || len(g.Spec.Layers) == 0 {
		dc.Warn(d, "noise generator has no bounds or layers")
		return d, nil
	}
	center := bounds.ToBox2().Center()
	sampler := newNoiseSampler(g.Spec, g.Distance, dc.Seed, center)

	seeds := borderSeeds(bounds, g.Spec.SeedPoints, dc.Rand.Intn(perimeter(bounds)))

	tileCap := g.Spec.TileCap
	if tileCap <= 0 {
		tileCap = bounds.Area()
	}
	layerOf := map[geom.Vec2i]int{}
	seen := dungeon.NewTileSet()
	total := 0
	for _, from := range seeds {
		if total >= tileCap {
			break
		}
		seed, li, ok := marchInward(sampler, from, center.Floor(), layerOf)
		if !ok || seen.Has(seed) {
			continue
		}
		seen.Put(seed)
		var component []geom.Vec2i
		queue := []geom.Vec2i{seed}
		layerOf[seed] = li
		for len(queue) > 0 && total < tileCap {
			if err := dc.Checkpoint(); err != nil {
				return nil, err
			}
			p := queue[0]
			queue = queue[1:]
			component = append(component, p)
			total++
			for _, dir := range geom.CardinalDirs {
				n := p.Add(dir)
				if !bounds.Contains(n) || seen.Has(n) {
					continue
				}
				seen.Put(n)
				if nl := sampler.sample(n); nl >= 0 {
					layerOf[n] = nl
					queue = append(queue, n)
				}
			}
		}
		d.AddRoom(dungeon.NewRoom(component))
	}
	if total >= tileCap {
		dc.Log.Debug("noise flood capped", zap.String("config", dc.Config.ID), zap.Int("tiles", total))
	}

	d.ComputeCenter()
	d.RefreshExteriors()

	var sets []grid.TileSet
	for _, p := range dungeon.Sorted(d.RoomTiles) {
		t, err := dc.Tile(g.Spec.Layers[layerOf[p]].Tile)
		if err != nil {
			return nil, err
		}
		sets = append(sets, grid.TileSet{Pos: p, Tile: t})
	}
	dc.Target.SetTiles(sets)
	return d, nil
}

const defaultSeedPoints = 4

// perimeter is the number of border tiles of b.
func perimeter(b geom.Box2i) int {
	return max(1, 2*(b.Width()-1+b.Height()-1))
}

// perimeterTile walks the border of b from Min, x first.
func perimeterTile(b geom.Box2i, t int) geom.Vec2i {
	w, h := b.Width()-1, b.Height()-1
	t = geom.Mod(t, perimeter(b))
	switch {
	case w+h == 0:
		return b.Min
	case t < w:
		return geom.Vec2i{X: b.Min.X + t, Y: b.Min.Y}
	case t < w+h:
		return geom.Vec2i{X: b.Min.X + w, Y: b.Min.Y + t - w}
	case t < 2*w+h:
		return geom.Vec2i{X: b.Min.X + w - (t - w - h), Y: b.Min.Y + h}
	default:
		return geom.Vec2i{X: b.Min.X, Y: b.Min.Y + h - (t - 2*w - h)}
	}
}

// borderSeeds spaces n points evenly along the border of b, starting at
// phase.
func borderSeeds(b geom.Box2i, n, phase int) []geom.Vec2i {
	if n <= 0 {
		n = defaultSeedPoints
	}
	per := perimeter(b)
	out := make([]geom.Vec2i, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, perimeterTile(b, phase+i*per/n))
	}
	return out
}

// marchInward steps from a border tile towards center and returns the first
// floor tile. It gives up on reaching a tile an earlier flood already took.
func marchInward(s *noiseSampler, from, center geom.Vec2i, taken map[geom.Vec2i]int) (geom.Vec2i, int, bool) {
	dx, dy := center.X-from.X, center.Y-from.Y
	steps := max(geom.AbsInt(dx), geom.AbsInt(dy))
	for k := 0; k <= steps; k++ {
		p := from
		if steps > 0 {
			p = geom.Vec2i{X: from.X + dx*k/steps, Y: from.Y + dy*k/steps}
		}
		if _, ok := taken[p]; ok {
			return p, 0, false
		}
		if li := s.sample(p); li >= 0 {
			return p, li, true
		}
	}
	return from, -1, false
}
