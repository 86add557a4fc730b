// Package world owns the maps, the job queue and every system that writes to
// them, and drives them from a single goroutine.
package world

import (
	"sync/atomic"

	"go.uber.org/zap"

	snapv1 "tileforge.ai/internal/persistence/snapshot"
	"tileforge.ai/internal/sim/biome"
	"tileforge.ai/internal/sim/catalogs"
	"tileforge.ai/internal/sim/generation"
	"tileforge.ai/internal/sim/grid"
	"tileforge.ai/internal/sim/tasks"
)

type Options struct {
	Logger *zap.Logger
	// GenerationLog and ChunkLog receive every finished dungeon job and
	// chunk event. Either may be nil.
	GenerationLog generation.Recorder
	ChunkLog      biome.Recorder
}

type World struct {
	cfg WorldConfig
	log *zap.Logger

	// cats is swapped by reloads on the loop goroutine and read anywhere.
	cats   atomic.Pointer[catalogs.Catalogs]
	store  *grid.Store
	queue  *tasks.Queue
	gen    *generation.System
	biomes *biome.Manager

	genLog   generation.Recorder
	chunkLog biome.Recorder

	tick      atomic.Uint64
	lastStats tasks.Stats

	snapshotSink chan<- snapv1.SnapshotV1

	admin         chan adminReq
	observerJoin  chan ObserverJoinRequest
	observerSub   chan ObserverSubscribeRequest
	observerLeave chan string
	stop          chan struct{}

	observers map[string]*observerClient
}

var (
	_ generation.Recorder = (*World)(nil)
	_ biome.Recorder      = (*World)(nil)
)

func New(cfg WorldConfig, cats *catalogs.Catalogs, opts Options) *World {
	cfg.applyDefaults()
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	w := &World{
		cfg:           cfg,
		log:           log,
		store:         grid.NewStore(),
		genLog:        opts.GenerationLog,
		chunkLog:      opts.ChunkLog,
		admin:         make(chan adminReq, 64),
		observerJoin:  make(chan ObserverJoinRequest, 16),
		observerSub:   make(chan ObserverSubscribeRequest, 64),
		observerLeave: make(chan string, 16),
		stop:          make(chan struct{}),
		observers:     map[string]*observerClient{},
	}
	w.cats.Store(cats)
	w.queue = tasks.NewQueue(tasks.Options{
		CheckEvery: cfg.CheckEvery,
		Logger:     log.Named("tasks"),
	})
	w.gen = generation.NewSystem(w.store, w.queue, cats, generation.Options{
		Recorder: w,
		Logger:   log.Named("generation"),
	})
	w.biomes = biome.NewManager(w.store, w.queue, cats, biome.Options{
		LoadRange:         cfg.LoadRange,
		VelocityLookahead: cfg.VelocityLookahead,
		Templates:         w.gen.Templates(),
		Recorder:          w,
		Logger:            log.Named("biome"),
	})
	w.gen.SetBiomeHost(w.biomes)
	return w
}

func (w *World) ID() string {
	if w == nil {
		return ""
	}
	return w.cfg.ID
}

func (w *World) Config() WorldConfig { return w.cfg }

func (w *World) CurrentTick() uint64 { return w.tick.Load() }

func (w *World) Catalogs() *catalogs.Catalogs { return w.cats.Load() }

func (w *World) TilePalette() []string {
	return append([]string(nil), w.cats.Load().Tiles.Palette...)
}

func (w *World) SetSnapshotSink(ch chan<- snapv1.SnapshotV1) { w.snapshotSink = ch }

// The accessors below are for the loop goroutine and for tests that drive
// the world with StepOnce.

func (w *World) Store() *grid.Store { return w.store }

func (w *World) Queue() *tasks.Queue { return w.queue }

func (w *World) Generation() *generation.System { return w.gen }

func (w *World) Biomes() *biome.Manager { return w.biomes }

// RecordGeneration forwards a finished dungeon job to the generation log.
func (w *World) RecordGeneration(rec generation.Record) {
	if w.genLog != nil {
		w.genLog.RecordGeneration(rec)
	}
}

// RecordChunk forwards a chunk event to the chunk log and to observers of
// the map.
func (w *World) RecordChunk(ev biome.ChunkEvent) {
	if w.chunkLog != nil {
		w.chunkLog.RecordChunk(ev)
	}
	w.broadcastChunk(ev)
}
