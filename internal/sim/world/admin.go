package world

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"tileforge.ai/internal/sim/biome"
	"tileforge.ai/internal/sim/catalogs"
	"tileforge.ai/internal/sim/generation"
	"tileforge.ai/internal/sim/geom"
	"tileforge.ai/internal/sim/grid"
)

var ErrNotRunning = errors.New("world loop not available")

type adminReq struct {
	run  func() (any, error)
	resp chan adminResp

	// snapshot requests wait for the end of the current tick.
	snapshot *adminSnapshotReq
}

type adminResp struct {
	val any
	err error
}

// call runs fn on the world loop goroutine and waits for its result. It is
// safe to call from other goroutines (e.g. HTTP handlers).
func call[T any](ctx context.Context, w *World, fn func() (T, error)) (T, error) {
	var zero T
	if w == nil || w.admin == nil {
		return zero, ErrNotRunning
	}
	resp := make(chan adminResp, 1)
	req := adminReq{
		run:  func() (any, error) { return fn() },
		resp: resp,
	}
	select {
	case w.admin <- req:
	case <-ctx.Done():
		return zero, ctx.Err()
	}
	select {
	case r := <-resp:
		v, _ := r.val.(T)
		return v, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func (w *World) handleAdmin(req adminReq) {
	v, err := req.run()
	select {
	case req.resp <- adminResp{val: v, err: err}:
	default:
		// Client timed out; don't block the sim loop.
	}
}

func (w *World) CreateMap(ctx context.Context, id string) error {
	_, err := call(ctx, w, func() (struct{}, error) { return struct{}{}, w.createMap(id) })
	return err
}

func (w *World) DeleteMap(ctx context.Context, id string) error {
	_, err := call(ctx, w, func() (struct{}, error) { return struct{}{}, w.deleteMap(id) })
	return err
}

// GenerateDungeon validates and queues req and returns the job id. Faults
// after queueing are only logged.
func (w *World) GenerateDungeon(ctx context.Context, req generation.Request) (string, error) {
	return call(ctx, w, func() (string, error) { return w.gen.Generate(context.Background(), req) })
}

// GenerateDungeonWait queues req and waits for the job to finish.
func (w *World) GenerateDungeonWait(ctx context.Context, req generation.Request) (generation.Result, error) {
	ch, err := call(ctx, w, func() (<-chan generation.Result, error) {
		return w.gen.GenerateAsync(context.Background(), req)
	})
	if err != nil {
		return generation.Result{}, err
	}
	select {
	case res := <-ch:
		return res, nil
	case <-ctx.Done():
		return generation.Result{}, ctx.Err()
	}
}

func (w *World) CancelJob(ctx context.Context, jobID string) (bool, error) {
	return call(ctx, w, func() (bool, error) { return w.queue.Cancel(jobID), nil })
}

func (w *World) AddBiome(ctx context.Context, mapID, biomeID string, seed int64) error {
	_, err := call(ctx, w, func() (struct{}, error) {
		_, err := w.biomes.AddBiome(mapID, biomeID, seed)
		return struct{}{}, err
	})
	return err
}

// DisableBiome stops streaming for mapID. Loaded chunks stay in place.
func (w *World) DisableBiome(ctx context.Context, mapID string) (bool, error) {
	return call(ctx, w, func() (bool, error) { return w.biomes.Disable(mapID), nil })
}

func (w *World) AddLayer(ctx context.Context, mapID string, l biome.MetaLayer) error {
	_, err := call(ctx, w, func() (struct{}, error) { return struct{}{}, w.biomes.AddLayer(mapID, l) })
	return err
}

func (w *World) RemoveLayer(ctx context.Context, mapID, layerID string) error {
	_, err := call(ctx, w, func() (struct{}, error) { return struct{}{}, w.biomes.RemoveLayer(mapID, layerID) })
	return err
}

func (w *World) Preload(ctx context.Context, mapID string, box geom.Box2i) error {
	_, err := call(ctx, w, func() (struct{}, error) { return struct{}{}, w.biomes.Preload(mapID, box) })
	return err
}

// Reload reads the prototype directory again. Queued jobs keep the catalogs
// they started with.
func (w *World) Reload(ctx context.Context) (catalogs.Changes, error) {
	return call(ctx, w, w.reload)
}

func (w *World) State(ctx context.Context) (State, error) {
	return call(ctx, w, func() (State, error) { return w.state(), nil })
}

func (w *World) createMap(id string) error {
	if _, err := w.store.Create(id); err != nil {
		return err
	}
	w.log.Info("map created", zap.String("map", id))
	return nil
}

func (w *World) deleteMap(id string) error {
	if !w.store.Delete(id) {
		return fmt.Errorf("delete map: %w: %q", grid.ErrUnknownMap, id)
	}
	w.biomes.RemoveBiome(id)
	w.log.Info("map deleted", zap.String("map", id))
	return nil
}

func (w *World) reload() (catalogs.Changes, error) {
	cats, changes, err := catalogs.Reload(w.cats.Load())
	if err != nil {
		w.log.Error("prototype reload failed", zap.Error(err))
		return catalogs.Changes{}, err
	}
	w.gen.OnPrototypesReloaded(cats, changes)
	w.biomes.SetCatalogs(cats)
	w.cats.Store(cats)
	return changes, nil
}
