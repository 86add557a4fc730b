// Package lookup answers what a biome template puts on a single tile. Every
// answer is a pure function of the biome seed and the tile coordinate, so a
// chunk painted twice comes out identical.
package lookup

import (
	"slices"
	"strconv"

	"github.com/aquilax/go-perlin"

	"tileforge.ai/internal/sim/catalogs"
	"tileforge.ai/internal/sim/geom"
	"tileforge.ai/internal/sim/grid"
)

const (
	perlinAlpha    = 2
	perlinBeta     = 2
	defaultOctaves = 3
	defaultFreq    = 0.1
)

// Salts keep the per-tile hash streams of the three lookups apart.
const (
	saltTile = iota + 1
	saltVariant
	saltDecal
	saltDecalPick
	saltEntity
	saltEntityPick
)

// Lookup evaluates one biome template under one seed. Layers are read from
// last to first: the last matching tile layer wins, and a passing dummy layer
// hides every decal and entity layer declared before it.
type Lookup struct {
	cats   *catalogs.Catalogs
	tpl    catalogs.BiomeTemplateDef
	seed   int64
	layers []*perlin.Perlin
}

func New(cats *catalogs.Catalogs, tpl catalogs.BiomeTemplateDef, seed int64) *Lookup {
	l := &Lookup{cats: cats, tpl: tpl, seed: seed}
	for i, def := range tpl.Layers {
		oct := def.Octaves
		if oct <= 0 {
			oct = defaultOctaves
		}
		ls := geom.HashString(seed, tpl.ID+"/"+strconv.Itoa(i))
		l.layers = append(l.layers, perlin.NewPerlin(perlinAlpha, perlinBeta, oct, ls))
	}
	return l
}

// ForTemplate resolves a template id.
func ForTemplate(cats *catalogs.Catalogs, templateID string, seed int64) (*Lookup, bool) {
	tpl, ok := cats.BiomeTemplates[templateID]
	if !ok {
		return nil, false
	}
	return New(cats, tpl, seed), true
}

func (l *Lookup) TemplateID() string { return l.tpl.ID }

func (l *Lookup) passes(i int, p geom.Vec2i) bool {
	def := l.tpl.Layers[i]
	f := def.Frequency
	if f == 0 {
		f = defaultFreq
	}
	v := l.layers[i].Noise2D(float64(p.X)*f, float64(p.Y)*f)
	if def.Invert {
		v = -v
	}
	return v > def.Threshold
}

func (l *Lookup) hash(p geom.Vec2i, salt int) uint64 {
	return geom.Hash3(geom.TileSeed(l.seed, p.X, p.Y), p.X, p.Y, salt)
}

func (l *Lookup) allowed(def catalogs.BiomeLayerDef, t grid.Tile) bool {
	if t.IsEmpty() {
		return false
	}
	if len(def.AllowedTiles) == 0 {
		return true
	}
	return slices.Contains(def.AllowedTiles, l.cats.TileName(t.Type))
}

func (l *Lookup) chance(def catalogs.BiomeLayerDef, p geom.Vec2i, salt int) bool {
	if def.Chance <= 0 {
		return true
	}
	return geom.Unit(l.hash(p, salt)) < def.Chance
}

// Tile returns the terrain at p, or false when no tile layer covers it.
func (l *Lookup) Tile(p geom.Vec2i) (grid.Tile, bool) {
	for i := len(l.tpl.Layers) - 1; i >= 0; i-- {
		def := l.tpl.Layers[i]
		if def.Kind != catalogs.BiomeLayerTile || len(def.Tiles) == 0 || !l.passes(i, p) {
			continue
		}
		name := def.Tiles[int(l.hash(p, saltTile)%uint64(len(def.Tiles)))]
		v, ok := l.cats.TileID(name)
		if !ok {
			continue
		}
		t := grid.Tile{Type: v}
		if n := l.cats.Tiles.Defs[name].Variants; n > 1 {
			t.Variant = uint8(l.hash(p, saltVariant) % uint64(n))
		}
		return t, true
	}
	return grid.Empty, false
}

// Decal returns the decal anchored at p's corner on top of tile t.
func (l *Lookup) Decal(p geom.Vec2i, t grid.Tile) (string, geom.Vec2, bool) {
	for i := len(l.tpl.Layers) - 1; i >= 0; i-- {
		def := l.tpl.Layers[i]
		switch def.Kind {
		case catalogs.BiomeLayerDummy:
			if l.passes(i, p) {
				return "", geom.Vec2{}, false
			}
		case catalogs.BiomeLayerDecal:
			if len(def.Decals) == 0 || !l.allowed(def, t) || !l.passes(i, p) || !l.chance(def, p, saltDecal) {
				continue
			}
			proto := def.Decals[int(l.hash(p, saltDecalPick)%uint64(len(def.Decals)))]
			return proto, p.ToVec2(), true
		}
	}
	return "", geom.Vec2{}, false
}

// Entity returns the entity prototype standing on p over tile t.
func (l *Lookup) Entity(p geom.Vec2i, t grid.Tile) (string, bool) {
	for i := len(l.tpl.Layers) - 1; i >= 0; i-- {
		def := l.tpl.Layers[i]
		switch def.Kind {
		case catalogs.BiomeLayerDummy:
			if l.passes(i, p) {
				return "", false
			}
		case catalogs.BiomeLayerEntity:
			if len(def.Entities) == 0 || !l.allowed(def, t) || !l.passes(i, p) || !l.chance(def, p, saltEntity) {
				continue
			}
			return def.Entities[int(l.hash(p, saltEntityPick)%uint64(len(def.Entities)))], true
		}
	}
	return "", false
}
