// Package biome streams layered biome content in and out of maps around
// moving viewers.
package biome

import (
	"errors"
	"sort"

	"github.com/zyedidia/generic/mapset"

	"tileforge.ai/internal/sim/catalogs"
	"tileforge.ai/internal/sim/geom"
	"tileforge.ai/internal/sim/grid"
)

var (
	ErrUnknownBiome = errors.New("unknown biome")
	ErrBiomeExists  = errors.New("map already hosts a biome")
	ErrBiomeBusy    = errors.New("biome is loading")
	ErrLayerCycle   = errors.New("layer dependency cycle")
	ErrUnknownLayer = errors.New("unknown layer")
	ErrBadLayer     = errors.New("invalid layer")
)

// MetaLayer is one streamed layer. Exactly one of Config and Template is set.
type MetaLayer struct {
	ID        string
	ChunkSize int
	DependsOn []string
	// Config runs a dungeon config per chunk.
	Config string
	// Template paints a biome template directly.
	Template  string
	CanUnload bool
}

func layerFromDef(def catalogs.MetaLayerDef) MetaLayer {
	return MetaLayer{
		ID:        def.ID,
		ChunkSize: def.ChunkSize,
		DependsOn: append([]string(nil), def.DependsOn...),
		Config:    def.Config,
		Template:  def.Template,
		CanUnload: def.Unloadable(),
	}
}

// Box is the tile box covered by the chunk at origin.
func (l MetaLayer) Box(origin geom.Vec2i) geom.Box2i {
	return geom.BoxAt(origin, geom.Vec2i{X: l.ChunkSize, Y: l.ChunkSize})
}

// PlacedEntity is what a chunk load spawned, as it was spawned.
type PlacedEntity struct {
	Tile geom.Vec2i
	Pos  geom.Vec2
	Data map[string]string
}

// LoadedChunk records everything one chunk load placed so an unload can
// reverse it.
type LoadedChunk struct {
	Tiles    map[geom.Vec2i]grid.Tile
	Entities map[grid.EntityID]PlacedEntity
	Decals   map[grid.DecalID]geom.Vec2
}

func newLoadedChunk() *LoadedChunk {
	return &LoadedChunk{
		Tiles:    map[geom.Vec2i]grid.Tile{},
		Entities: map[grid.EntityID]PlacedEntity{},
		Decals:   map[grid.DecalID]geom.Vec2{},
	}
}

// ChunkRef names one chunk of one layer.
type ChunkRef struct {
	Layer  string
	Origin geom.Vec2i
}

// Biome is the streaming state of one host map.
type Biome struct {
	MapID   string
	BiomeID string
	Seed    int64
	// Enabled is false once painting was disabled on the map.
	Enabled bool
	Layers  map[string]MetaLayer
	// LoadedBounds holds the viewer and preload boxes of the current tick.
	LoadedBounds []geom.Box2i
	PreloadAreas []geom.Box2i
	// Loading gates the biome to one outstanding load or unload job.
	Loading    bool
	LoadedData map[string]map[geom.Vec2i]*LoadedChunk
	// ModifiedTiles only grows. Streaming never writes or clears them.
	ModifiedTiles mapset.Set[geom.Vec2i]
	// Unloading lists the chunks of the outstanding unload job.
	Unloading []ChunkRef

	host        *grid.Map
	order       []string
	layerBounds map[string][]geom.Box2i
}

func newBiome(host *grid.Map, biomeID string, seed int64) *Biome {
	return &Biome{
		MapID:         host.ID(),
		BiomeID:       biomeID,
		Seed:          seed,
		Enabled:       true,
		Layers:        map[string]MetaLayer{},
		LoadedData:    map[string]map[geom.Vec2i]*LoadedChunk{},
		ModifiedTiles: mapset.New[geom.Vec2i](),
		host:          host,
	}
}

// Order lists layer ids with every dependency before its dependents.
func (b *Biome) Order() []string { return append([]string(nil), b.order...) }

// LayerBounds returns the chunk-aligned boxes requested for a layer this tick.
func (b *Biome) LayerBounds(layer string) []geom.Box2i {
	return append([]geom.Box2i(nil), b.layerBounds[layer]...)
}

// Loaded reports whether the chunk at origin of layer is loaded.
func (b *Biome) Loaded(layer string, origin geom.Vec2i) bool {
	_, ok := b.LoadedData[layer][origin]
	return ok
}

// LoadedChunks lists the loaded chunk origins of a layer in (Y, X) order.
func (b *Biome) LoadedChunks(layer string) []geom.Vec2i {
	out := make([]geom.Vec2i, 0, len(b.LoadedData[layer]))
	for o := range b.LoadedData[layer] {
		out = append(out, o)
	}
	geom.SortTiles(out)
	return out
}

func (b *Biome) markModified(p geom.Vec2i) bool {
	if b.ModifiedTiles.Has(p) {
		return false
	}
	b.ModifiedTiles.Put(p)
	return true
}

// sortLayers orders layers so dependencies come first. Ties break by id.
func sortLayers(layers map[string]MetaLayer) ([]string, error) {
	ids := make([]string, 0, len(layers))
	for id := range layers {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	const (
		unseen = iota
		visiting
		done
	)
	mark := map[string]int{}
	var out []string
	var visit func(id string) error
	visit = func(id string) error {
		switch mark[id] {
		case visiting:
			return ErrLayerCycle
		case done:
			return nil
		}
		mark[id] = visiting
		deps := append([]string(nil), layers[id].DependsOn...)
		sort.Strings(deps)
		for _, dep := range deps {
			if _, ok := layers[dep]; !ok {
				return ErrUnknownLayer
			}
			if err := visit(dep); err != nil {
				return err
			}
		}
		mark[id] = done
		out = append(out, id)
		return nil
	}
	for _, id := range ids {
		if err := visit(id); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// expandBounds derives per-layer boxes from one requested box. Dependents
// are resolved first so every dependency covers the bound of each layer that
// depends on it, rounded out to its own chunk size.
func (b *Biome) expandBounds(req geom.Box2i) map[string]geom.Box2i {
	out := make(map[string]geom.Box2i, len(b.order))
	for i := len(b.order) - 1; i >= 0; i-- {
		id := b.order[i]
		box := req
		for _, other := range b.order[i+1:] {
			for _, dep := range b.Layers[other].DependsOn {
				if dep == id {
					box = box.Union(out[other])
				}
			}
		}
		out[id] = box.Snapped(b.Layers[id].ChunkSize)
	}
	return out
}
