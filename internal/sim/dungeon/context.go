package dungeon

import (
	"errors"
	"fmt"
	"math/rand"

	"go.uber.org/zap"

	"tileforge.ai/internal/sim/catalogs"
	"tileforge.ai/internal/sim/geom"
	"tileforge.ai/internal/sim/grid"
)

var ErrUnknownTile = errors.New("unknown tile prototype")

// Yielder is the cooperative suspend point of the running job.
type Yielder interface {
	Checkpoint() error
}

type noYield struct{}

func (noYield) Checkpoint() error { return nil }

// NoYield never suspends. It suits tests and offline tools.
var NoYield Yielder = noYield{}

// Template is an instantiated room prototype.
type Template struct {
	ID   string
	Size geom.Vec2i
	Map  *grid.Map
}

// TemplateSource resolves room prototypes to instantiated templates.
type TemplateSource interface {
	Template(roomID string) (*Template, error)
}

// BiomeHost is what post-generation steps need from biome streaming.
type BiomeHost interface {
	// BiomeSeed returns the seed of the biome hosted on mapID.
	BiomeSeed(mapID string) (int64, bool)
	// DisablePainting stops streaming from repainting mapID.
	DisablePainting(mapID string)
	// MarkModified keeps streaming from overwriting tiles on mapID.
	MarkModified(mapID string, tiles []geom.Vec2i)
}

// Context is shared by the generator and every post-generation step of one
// request. Rand is seeded once and threaded through all of them.
type Context struct {
	Target    grid.Target
	Catalogs  *catalogs.Catalogs
	Config    catalogs.DungeonConfigDef
	Position  geom.Vec2i
	Seed      int64
	Rand      *rand.Rand
	Yield     Yielder
	Templates TemplateSource
	Biomes    BiomeHost
	Log       *zap.Logger
}

// NewContext fills defaults and seeds Rand from seed.
func NewContext(target grid.Target, cats *catalogs.Catalogs, cfg catalogs.DungeonConfigDef, pos geom.Vec2i, seed int64) *Context {
	return &Context{
		Target:   target,
		Catalogs: cats,
		Config:   cfg,
		Position: pos,
		Seed:     seed,
		Rand:     rand.New(rand.NewSource(seed)),
		Yield:    NoYield,
		Log:      zap.NewNop(),
	}
}

func (dc *Context) Checkpoint() error {
	if dc.Yield == nil {
		return nil
	}
	return dc.Yield.Checkpoint()
}

// Tile resolves a tile prototype and picks a variant from Rand.
func (dc *Context) Tile(id string) (grid.Tile, error) {
	v, ok := dc.Catalogs.TileID(id)
	if !ok {
		return grid.Tile{}, fmt.Errorf("%w: %q", ErrUnknownTile, id)
	}
	t := grid.Tile{Type: v}
	if n := dc.Catalogs.Tiles.Defs[id].Variants; n > 1 {
		t.Variant = uint8(dc.Rand.Intn(n))
	}
	return t, nil
}

// Fill builds a bulk write of one tile prototype over tiles, in (Y, X) order.
func (dc *Context) Fill(id string, tiles []geom.Vec2i) ([]grid.TileSet, error) {
	out := make([]grid.TileSet, 0, len(tiles))
	for _, p := range tiles {
		t, err := dc.Tile(id)
		if err != nil {
			return nil, err
		}
		out = append(out, grid.TileSet{Pos: p, Tile: t})
	}
	return out, nil
}

// Occupied reports whether p already holds a tile or an anchored entity.
func (dc *Context) Occupied(p geom.Vec2i) bool {
	return !dc.Target.Tile(p).IsEmpty() || len(dc.Target.AnchoredAt(p)) > 0
}

// Spawn places an entity prototype centred on tile p with its defaults.
func (dc *Context) Spawn(proto string, p geom.Vec2i, rot geom.Angle) grid.EntityID {
	def := dc.Catalogs.Entities[proto]
	return dc.Target.Spawn(proto, p.Center(), rot, def.Anchored, def.Defaults)
}

// Warn logs a skipped unit and records it on d.
func (dc *Context) Warn(d *Dungeon, format string, args ...any) {
	d.Warn(format, args...)
	dc.Log.Warn("generation degraded",
		zap.String("config", dc.Config.ID),
		zap.Int64("seed", dc.Seed),
		zap.String("reason", fmt.Sprintf(format, args...)))
}
