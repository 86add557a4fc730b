package biome

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"tileforge.ai/internal/sim/catalogs"
	"tileforge.ai/internal/sim/dungeon"
	"tileforge.ai/internal/sim/geom"
	"tileforge.ai/internal/sim/grid"
	"tileforge.ai/internal/sim/tasks"
)

const (
	DefaultLoadRange         = 32
	DefaultVelocityLookahead = 1.0
)

// Viewer is one position content must be streamed around.
type Viewer struct {
	MapID    string
	Pos      geom.Vec2
	Velocity geom.Vec2
}

// ChunkEvent reports one finished chunk load or unload.
type ChunkEvent struct {
	Kind     string     `json:"kind"`
	MapID    string     `json:"map"`
	BiomeID  string     `json:"biome"`
	Layer    string     `json:"layer"`
	Origin   geom.Vec2i `json:"origin"`
	Size     int        `json:"size"`
	Tiles    int        `json:"tiles"`
	Entities int        `json:"entities"`
	Decals   int        `json:"decals"`
	// Modified counts tiles that entered ModifiedTiles during an unload.
	Modified int `json:"modified,omitempty"`
}

const (
	EventLoad   = "load"
	EventUnload = "unload"
)

type Recorder interface {
	RecordChunk(ev ChunkEvent)
}

type Options struct {
	// LoadRange is the half extent of a viewer box in tiles.
	LoadRange int
	// VelocityLookahead stretches viewer boxes along velocity, in seconds.
	VelocityLookahead float64
	Templates         dungeon.TemplateSource
	Recorder          Recorder
	Logger            *zap.Logger
}

// Manager owns every biome. All methods must run on the goroutine that
// drives the job queue.
type Manager struct {
	store *grid.Store
	queue *tasks.Queue
	cats  *catalogs.Catalogs

	loadRange int
	lookahead float64
	templates dungeon.TemplateSource
	rec       Recorder
	log       *zap.Logger

	biomes map[string]*Biome
}

var _ dungeon.BiomeHost = (*Manager)(nil)

func NewManager(store *grid.Store, queue *tasks.Queue, cats *catalogs.Catalogs, opts Options) *Manager {
	if opts.LoadRange <= 0 {
		opts.LoadRange = DefaultLoadRange
	}
	if opts.VelocityLookahead < 0 {
		opts.VelocityLookahead = 0
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Manager{
		store:     store,
		queue:     queue,
		cats:      cats,
		loadRange: opts.LoadRange,
		lookahead: opts.VelocityLookahead,
		templates: opts.Templates,
		rec:       opts.Recorder,
		log:       opts.Logger,
		biomes:    map[string]*Biome{},
	}
}

func (m *Manager) LoadRange() int { return m.loadRange }

// SetCatalogs swaps in reloaded prototypes. Running jobs keep theirs.
func (m *Manager) SetCatalogs(cats *catalogs.Catalogs) { m.cats = cats }

func (m *Manager) Biome(mapID string) (*Biome, bool) {
	b, ok := m.biomes[mapID]
	return b, ok
}

// MapIDs lists every biome host in id order.
func (m *Manager) MapIDs() []string {
	out := make([]string, 0, len(m.biomes))
	for id := range m.biomes {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// AddBiome makes mapID host the biome prototype biomeID.
func (m *Manager) AddBiome(mapID, biomeID string, seed int64) (*Biome, error) {
	host, ok := m.store.Get(mapID)
	if !ok {
		return nil, fmt.Errorf("add biome: %w: %q", grid.ErrUnknownMap, mapID)
	}
	if _, ok := m.biomes[mapID]; ok {
		return nil, fmt.Errorf("add biome to %q: %w", mapID, ErrBiomeExists)
	}
	def, ok := m.cats.Biomes[biomeID]
	if !ok {
		return nil, fmt.Errorf("add biome: %w: %q", ErrUnknownBiome, biomeID)
	}
	b := newBiome(host, biomeID, seed)
	for _, ld := range def.Layers {
		if err := m.checkLayer(ld.ID, layerFromDef(ld)); err != nil {
			return nil, fmt.Errorf("biome %s: %w", biomeID, err)
		}
		b.Layers[ld.ID] = layerFromDef(ld)
	}
	order, err := sortLayers(b.Layers)
	if err != nil {
		return nil, fmt.Errorf("biome %s: %w", biomeID, err)
	}
	b.order = order
	m.biomes[mapID] = b
	m.log.Info("biome added",
		zap.String("map", mapID),
		zap.String("biome", biomeID),
		zap.Int64("seed", seed),
		zap.Strings("layers", order))
	return b, nil
}

// RemoveBiome stops streaming on mapID. Placed content stays. An
// outstanding job is abandoned at its next resume.
func (m *Manager) RemoveBiome(mapID string) bool {
	if _, ok := m.biomes[mapID]; !ok {
		return false
	}
	delete(m.biomes, mapID)
	m.log.Info("biome removed", zap.String("map", mapID))
	return true
}

func (m *Manager) checkLayer(id string, l MetaLayer) error {
	switch {
	case id == "":
		return fmt.Errorf("%w: empty id", ErrBadLayer)
	case l.ChunkSize <= 0:
		return fmt.Errorf("%w: layer %s: chunk size %d", ErrBadLayer, id, l.ChunkSize)
	case (l.Config == "") == (l.Template == ""):
		return fmt.Errorf("%w: layer %s needs exactly one of config and template", ErrBadLayer, id)
	}
	if l.Config != "" {
		if _, ok := m.cats.DungeonConfigs[l.Config]; !ok {
			return fmt.Errorf("%w: layer %s: unknown dungeon config %q", ErrBadLayer, id, l.Config)
		}
	}
	if l.Template != "" {
		if _, ok := m.cats.BiomeTemplates[l.Template]; !ok {
			return fmt.Errorf("%w: layer %s: unknown biome template %q", ErrBadLayer, id, l.Template)
		}
	}
	return nil
}

// AddLayer adds a streamed layer to the biome on mapID.
func (m *Manager) AddLayer(mapID string, l MetaLayer) error {
	b, ok := m.biomes[mapID]
	if !ok {
		return fmt.Errorf("add layer: %w on %q", ErrUnknownBiome, mapID)
	}
	if b.Loading {
		return fmt.Errorf("add layer %s: %w", l.ID, ErrBiomeBusy)
	}
	if _, ok := b.Layers[l.ID]; ok {
		return fmt.Errorf("%w: layer %s already exists", ErrBadLayer, l.ID)
	}
	if err := m.checkLayer(l.ID, l); err != nil {
		return err
	}
	layers := make(map[string]MetaLayer, len(b.Layers)+1)
	for id, v := range b.Layers {
		layers[id] = v
	}
	layers[l.ID] = l
	order, err := sortLayers(layers)
	if err != nil {
		return fmt.Errorf("add layer %s: %w", l.ID, err)
	}
	b.Layers, b.order = layers, order
	m.log.Info("biome layer added", zap.String("map", mapID), zap.String("layer", l.ID), zap.Strings("order", order))
	return nil
}

// RemoveLayer unloads every chunk of the layer, unloadable or not, and then
// drops it. Layers other layers depend on cannot be removed.
func (m *Manager) RemoveLayer(mapID, layerID string) error {
	b, ok := m.biomes[mapID]
	if !ok {
		return fmt.Errorf("remove layer: %w on %q", ErrUnknownBiome, mapID)
	}
	if _, ok := b.Layers[layerID]; !ok {
		return fmt.Errorf("remove layer: %w: %q", ErrUnknownLayer, layerID)
	}
	if b.Loading {
		return fmt.Errorf("remove layer %s: %w", layerID, ErrBiomeBusy)
	}
	for _, id := range b.order {
		for _, dep := range b.Layers[id].DependsOn {
			if dep == layerID {
				return fmt.Errorf("%w: layer %s is needed by %s", ErrBadLayer, layerID, id)
			}
		}
	}
	var refs []ChunkRef
	for _, o := range b.LoadedChunks(layerID) {
		refs = append(refs, ChunkRef{Layer: layerID, Origin: o})
	}
	drop := func() {
		delete(b.Layers, layerID)
		delete(b.LoadedData, layerID)
		order, _ := sortLayers(b.Layers)
		b.order = order
		m.log.Info("biome layer removed", zap.String("map", mapID), zap.String("layer", layerID))
	}
	if len(refs) == 0 {
		drop()
		return nil
	}
	m.enqueueUnload(b, refs, drop)
	return nil
}

// Preload keeps box loaded on mapID regardless of viewers.
func (m *Manager) Preload(mapID string, box geom.Box2i) error {
	b, ok := m.biomes[mapID]
	if !ok {
		return fmt.Errorf("preload: %w on %q", ErrUnknownBiome, mapID)
	}
	if box.Empty() {
		return fmt.Errorf("preload: empty box %v", box)
	}
	b.PreloadAreas = append(b.PreloadAreas, box)
	return nil
}

// Disable stops streaming on mapID. Loaded content stays.
func (m *Manager) Disable(mapID string) bool {
	b, ok := m.biomes[mapID]
	if !ok || !b.Enabled {
		return false
	}
	b.Enabled = false
	m.log.Info("biome painting disabled", zap.String("map", mapID))
	return true
}

func (m *Manager) BiomeSeed(mapID string) (int64, bool) {
	b, ok := m.biomes[mapID]
	if !ok {
		return 0, false
	}
	return b.Seed, true
}

func (m *Manager) DisablePainting(mapID string) { m.Disable(mapID) }

func (m *Manager) MarkModified(mapID string, tiles []geom.Vec2i) {
	b, ok := m.biomes[mapID]
	if !ok {
		return
	}
	for _, p := range tiles {
		b.ModifiedTiles.Put(p)
	}
}

// ViewerBox is the tile box streamed around v.
func (m *Manager) ViewerBox(v Viewer) geom.Box2i {
	box := geom.CenteredBox2(v.Pos, float64(m.loadRange))
	if m.lookahead > 0 {
		box = box.Extended(v.Velocity.Scale(m.lookahead))
	}
	return box.TileBounds()
}

// Update runs one streaming pass: collect bounds, queue unloads, then queue
// loads. The caller drains the job queue afterwards.
func (m *Manager) Update(viewers []Viewer) {
	m.prune()
	ids := m.MapIDs()

	for _, id := range ids {
		b := m.biomes[id]
		if !b.Loading {
			b.LoadedBounds = b.LoadedBounds[:0]
			b.layerBounds = map[string][]geom.Box2i{}
		}
	}
	for _, v := range viewers {
		b, ok := m.biomes[v.MapID]
		if !ok || b.Loading || !b.Enabled {
			continue
		}
		b.LoadedBounds = append(b.LoadedBounds, m.ViewerBox(v))
	}

	for _, id := range ids {
		b := m.biomes[id]
		if b.Loading || !b.Enabled {
			continue
		}
		b.LoadedBounds = append(b.LoadedBounds, b.PreloadAreas...)
		for _, box := range b.LoadedBounds {
			for layer, lb := range b.expandBounds(box) {
				b.layerBounds[layer] = append(b.layerBounds[layer], lb)
			}
		}

		if refs := m.unloadSet(b); len(refs) > 0 {
			m.enqueueUnload(b, refs, nil)
			continue
		}
		if refs := m.missing(b); len(refs) > 0 {
			m.enqueueLoad(b, refs)
		}
	}
}

// prune drops biomes whose map was deleted or replaced.
func (m *Manager) prune() {
	for id, b := range m.biomes {
		if cur, ok := m.store.Get(id); !ok || cur != b.host {
			delete(m.biomes, id)
			m.log.Info("biome dropped with its map", zap.String("map", id))
		}
	}
}

// unloadSet lists loaded chunks of unloadable layers that no layer bound,
// enlarged by the load range, touches. Dependents come before dependencies.
func (m *Manager) unloadSet(b *Biome) []ChunkRef {
	var refs []ChunkRef
	for i := len(b.order) - 1; i >= 0; i-- {
		id := b.order[i]
		l := b.Layers[id]
		if !l.CanUnload {
			continue
		}
		for _, o := range b.LoadedChunks(id) {
			box := l.Box(o)
			keep := false
			for _, lb := range b.layerBounds[id] {
				if lb.Enlarged(m.loadRange).Intersects(box) {
					keep = true
					break
				}
			}
			if !keep {
				refs = append(refs, ChunkRef{Layer: id, Origin: o})
			}
		}
	}
	return refs
}

// missing lists unloaded chunks inside the layer bounds, dependencies first.
func (m *Manager) missing(b *Biome) []ChunkRef {
	var refs []ChunkRef
	for _, id := range b.order {
		l := b.Layers[id]
		seen := map[geom.Vec2i]bool{}
		for _, lb := range b.layerBounds[id] {
			for _, o := range lb.ChunkOrigins(l.ChunkSize) {
				if seen[o] || b.Loaded(id, o) {
					continue
				}
				seen[o] = true
				refs = append(refs, ChunkRef{Layer: id, Origin: o})
			}
		}
	}
	return refs
}

// guard aborts a job once its biome or map is gone.
func (m *Manager) guard(b *Biome) func() error {
	return func() error {
		if cur, ok := m.biomes[b.MapID]; !ok || cur != b {
			return tasks.ErrTargetInvalidated
		}
		if host, ok := m.store.Get(b.MapID); !ok || host != b.host {
			return tasks.ErrTargetInvalidated
		}
		return nil
	}
}

func (m *Manager) enqueueLoad(b *Biome, refs []ChunkRef) {
	b.Loading = true
	cats := m.cats
	work := func(y *tasks.Yield) error {
		return m.runLoad(y, cats, b, refs)
	}
	j := tasks.NewJob(context.Background(), "biome-load:"+b.MapID, work).
		WithGuard(m.guard(b)).
		OnDone(func(j *tasks.Job) {
			b.Loading = false
			m.jobDone(j, b, "load", len(refs))
		})
	m.queue.Enqueue(j)
}

func (m *Manager) enqueueUnload(b *Biome, refs []ChunkRef, then func()) {
	b.Loading = true
	b.Unloading = refs
	work := func(y *tasks.Yield) error {
		return m.runUnload(y, b, refs)
	}
	j := tasks.NewJob(context.Background(), "biome-unload:"+b.MapID, work).
		WithGuard(m.guard(b)).
		OnDone(func(j *tasks.Job) {
			b.Loading = false
			b.Unloading = nil
			if then != nil && j.State() == tasks.Completed {
				then()
			}
			m.jobDone(j, b, "unload", len(refs))
		})
	m.queue.Enqueue(j)
}

func (m *Manager) jobDone(j *tasks.Job, b *Biome, kind string, chunks int) {
	fields := []zap.Field{
		zap.String("job", j.ID),
		zap.String("map", b.MapID),
		zap.String("kind", kind),
		zap.Int("chunks", chunks),
		zap.Stringer("state", j.State()),
		zap.Duration("elapsed", j.Elapsed()),
	}
	if j.State() == tasks.Faulted {
		m.log.Error("biome job faulted", append(fields, zap.Error(j.Err()))...)
		return
	}
	m.log.Debug("biome job finished", fields...)
}

func (m *Manager) emit(ev ChunkEvent) {
	if m.rec != nil {
		m.rec.RecordChunk(ev)
	}
}
