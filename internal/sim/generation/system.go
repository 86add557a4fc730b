// Package generation turns dungeon requests into cooperative jobs on the
// shared task queue.
package generation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"tileforge.ai/internal/sim/catalogs"
	"tileforge.ai/internal/sim/dungeon"
	"tileforge.ai/internal/sim/geom"
	"tileforge.ai/internal/sim/grid"
	"tileforge.ai/internal/sim/tasks"
)

var (
	ErrUnknownConfig = errors.New("unknown dungeon config")
	ErrUnknownMap    = errors.New("unknown map")
)

// Request asks for one dungeon on one map.
type Request struct {
	ConfigID string     `json:"config" validate:"required"`
	MapID    string     `json:"map" validate:"required"`
	Position geom.Vec2i `json:"position"`
	Seed     int64      `json:"seed"`
}

// Result is delivered once per GenerateAsync call.
type Result struct {
	JobID   string
	Request Request
	State   tasks.State
	Dungeon *dungeon.Dungeon
	Err     error
}

// Record summarises a finished job for the generation log.
type Record struct {
	JobID      string   `json:"job_id"`
	Config     string   `json:"config"`
	Map        string   `json:"map"`
	Seed       int64    `json:"seed"`
	Position   [2]int   `json:"position"`
	State      string   `json:"state"`
	Rooms      int      `json:"rooms"`
	Tiles      int      `json:"tiles"`
	Warnings   []string `json:"warnings,omitempty"`
	Error      string   `json:"error,omitempty"`
	DurationMS int64    `json:"duration_ms"`
	FinishedAt string   `json:"finished_at"`
}

type Recorder interface {
	RecordGeneration(rec Record)
}

type Options struct {
	Biomes   dungeon.BiomeHost
	Recorder Recorder
	Logger   *zap.Logger
}

// System validates requests and runs them on the queue. All methods must be
// called from the goroutine that drives the queue.
type System struct {
	store     *grid.Store
	queue     *tasks.Queue
	cats      *catalogs.Catalogs
	templates *TemplateCache
	biomes    dungeon.BiomeHost
	rec       Recorder
	log       *zap.Logger
	validate  *validator.Validate
}

func NewSystem(store *grid.Store, queue *tasks.Queue, cats *catalogs.Catalogs, opts Options) *System {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &System{
		store:     store,
		queue:     queue,
		cats:      cats,
		templates: NewTemplateCache(cats),
		biomes:    opts.Biomes,
		rec:       opts.Recorder,
		log:       log,
		validate:  validator.New(),
	}
}

// SetBiomeHost wires the streaming manager after both sides exist.
func (s *System) SetBiomeHost(h dungeon.BiomeHost) { s.biomes = h }

func (s *System) Catalogs() *catalogs.Catalogs { return s.cats }

func (s *System) Templates() *TemplateCache { return s.templates }

// Validate checks a request before anything is queued.
func (s *System) Validate(req Request) error {
	if err := s.validate.Struct(req); err != nil {
		return err
	}
	if _, ok := s.cats.DungeonConfigs[req.ConfigID]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownConfig, req.ConfigID)
	}
	if !s.store.Exists(req.MapID) {
		return fmt.Errorf("%w: %q", ErrUnknownMap, req.MapID)
	}
	return nil
}

// Generate queues a request. Faults are only logged.
func (s *System) Generate(ctx context.Context, req Request) (string, error) {
	j, err := s.enqueue(ctx, req, nil)
	if err != nil {
		return "", err
	}
	return j.ID, nil
}

// GenerateAsync queues a request and delivers its outcome on the returned
// channel, faults included.
func (s *System) GenerateAsync(ctx context.Context, req Request) (<-chan Result, error) {
	ch := make(chan Result, 1)
	if _, err := s.enqueue(ctx, req, ch); err != nil {
		return nil, err
	}
	return ch, nil
}

func (s *System) Cancel(jobID string) bool {
	return s.queue.Cancel(jobID)
}

// OnPrototypesReloaded swaps in new catalogs. Queued jobs keep the catalogs
// they were created with.
func (s *System) OnPrototypesReloaded(cats *catalogs.Catalogs, changes catalogs.Changes) {
	s.cats = cats
	dropped := s.templates.Invalidate(cats, changes)
	s.log.Info("prototypes reloaded",
		zap.Int("added", len(changes.Added)),
		zap.Int("removed", len(changes.Removed)),
		zap.Int("modified", len(changes.Modified)),
		zap.Int("templates_dropped", dropped))
}

func (s *System) enqueue(ctx context.Context, req Request, out chan<- Result) (*tasks.Job, error) {
	if err := s.Validate(req); err != nil {
		return nil, err
	}
	cats := s.cats
	cfg := cats.DungeonConfigs[req.ConfigID]
	m, _ := s.store.Get(req.MapID)

	templates := s.templates.For(cats)

	var result *dungeon.Dungeon
	work := func(y *tasks.Yield) error {
		dc := dungeon.NewContext(m, cats, cfg, req.Position, req.Seed)
		dc.Yield = y
		dc.Templates = templates
		dc.Biomes = s.biomes
		dc.Log = s.log
		d, err := RunPipeline(dc)
		result = d
		return err
	}

	j := tasks.NewJob(ctx, "dungeon:"+req.ConfigID, work).
		WithGuard(func() error {
			cur, ok := s.store.Get(req.MapID)
			if !ok || cur != m {
				return tasks.ErrTargetInvalidated
			}
			return nil
		}).
		OnDone(func(j *tasks.Job) {
			s.finished(j, req, result, out)
		})
	s.queue.Enqueue(j)
	s.log.Info("dungeon queued",
		zap.String("job", j.ID),
		zap.String("config", req.ConfigID),
		zap.String("map", req.MapID),
		zap.Int64("seed", req.Seed),
		zap.Stringer("position", req.Position))
	return j, nil
}

func (s *System) finished(j *tasks.Job, req Request, d *dungeon.Dungeon, out chan<- Result) {
	state := j.State()
	if state != tasks.Completed {
		// A partial dungeon is never handed out.
		d = nil
	}
	fields := []zap.Field{
		zap.String("job", j.ID),
		zap.String("config", req.ConfigID),
		zap.Stringer("state", state),
		zap.Duration("elapsed", j.Elapsed()),
	}
	switch {
	case state == tasks.Faulted && out == nil:
		s.log.Error("dungeon generation faulted", append(fields, zap.Error(j.Err()))...)
	case state == tasks.Completed && len(d.Warnings) > 0:
		s.log.Warn("dungeon generated with warnings", append(fields, zap.Strings("warnings", d.Warnings))...)
	default:
		s.log.Info("dungeon job finished", fields...)
	}

	if s.rec != nil {
		rec := Record{
			JobID:      j.ID,
			Config:     req.ConfigID,
			Map:        req.MapID,
			Seed:       req.Seed,
			Position:   [2]int{req.Position.X, req.Position.Y},
			State:      state.String(),
			DurationMS: j.Elapsed().Milliseconds(),
			FinishedAt: time.Now().UTC().Format(time.RFC3339),
		}
		if d != nil {
			rec.Rooms = len(d.Rooms)
			rec.Tiles = d.RoomTiles.Size() + d.CorridorTiles.Size()
			rec.Warnings = d.Warnings
		}
		if err := j.Err(); err != nil {
			rec.Error = err.Error()
		}
		s.rec.RecordGeneration(rec)
	}
	if out != nil {
		out <- Result{JobID: j.ID, Request: req, State: state, Dungeon: d, Err: j.Err()}
		close(out)
	}
}
