package world

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	snapv1 "tileforge.ai/internal/persistence/snapshot"
	"tileforge.ai/internal/sim/grid"
)

type adminSnapshotReq struct {
	Resp chan adminSnapshotResp
}

type adminSnapshotResp struct {
	Tick uint64
	Err  string
}

// RequestSnapshot asks the world loop goroutine to hand a snapshot to the
// sink at the end of the current tick.
func (w *World) RequestSnapshot(ctx context.Context) (tick uint64, err error) {
	if w == nil || w.admin == nil {
		return 0, ErrNotRunning
	}
	resp := make(chan adminSnapshotResp, 1)
	req := adminReq{snapshot: &adminSnapshotReq{Resp: resp}}

	select {
	case w.admin <- req:
	case <-ctx.Done():
		return 0, ctx.Err()
	}

	select {
	case r := <-resp:
		if r.Err != "" {
			return r.Tick, errors.New(r.Err)
		}
		return r.Tick, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (w *World) handleAdminSnapshotRequests(reqs []adminSnapshotReq) {
	if len(reqs) == 0 {
		return
	}
	cur := w.tick.Load()
	snapTick := uint64(0)
	if cur > 0 {
		snapTick = cur - 1
	}

	errStr := ""
	if w.snapshotSink == nil {
		errStr = "snapshot sink not configured"
	} else {
		snap := w.ExportSnapshot(snapTick)
		select {
		case w.snapshotSink <- snap:
		default:
			errStr = "snapshot sink backpressure"
		}
	}

	resp := adminSnapshotResp{Tick: snapTick, Err: errStr}
	for _, r := range reqs {
		if r.Resp == nil {
			continue
		}
		select {
		case r.Resp <- resp:
		default:
		}
	}
}

// ExportSnapshot captures every map and biome. It must run on the loop
// goroutine.
func (w *World) ExportSnapshot(tick uint64) snapv1.SnapshotV1 {
	snap := snapv1.SnapshotV1{
		Header: snapv1.Header{
			Version: snapv1.Version,
			WorldID: w.cfg.ID,
			Tick:    tick,
		},
		Seed:          w.cfg.Seed,
		TickRate:      w.cfg.TickRateHz,
		CatalogDigest: w.cats.Load().Digest,
		Biomes:        w.biomes.ExportAll(),
	}
	for _, id := range w.store.IDs() {
		m, _ := w.store.Get(id)
		snap.Maps = append(snap.Maps, grid.Export(m))
	}
	return snap
}

// ImportSnapshot replaces the world's maps and biomes. Call it before Run.
// The tick resumes after the snapshot's tick.
func (w *World) ImportSnapshot(snap snapv1.SnapshotV1) error {
	if snap.Header.Version != snapv1.Version {
		return fmt.Errorf("unsupported snapshot version %d", snap.Header.Version)
	}
	if w.queue.Len() > 0 {
		return fmt.Errorf("import snapshot: %d jobs queued", w.queue.Len())
	}
	if d := w.cats.Load().Digest; snap.CatalogDigest != "" && snap.CatalogDigest != d {
		w.log.Warn("snapshot was taken with different prototypes",
			zap.String("snapshot_digest", snap.CatalogDigest),
			zap.String("catalog_digest", d))
	}

	store := grid.NewStore()
	for _, ms := range snap.Maps {
		m, err := grid.Import(ms)
		if err != nil {
			return fmt.Errorf("import map %q: %w", ms.ID, err)
		}
		store.Put(m)
	}
	for _, id := range w.store.IDs() {
		w.store.Delete(id)
	}
	for _, id := range store.IDs() {
		m, _ := store.Get(id)
		w.store.Put(m)
	}
	for _, id := range w.biomes.MapIDs() {
		w.biomes.RemoveBiome(id)
	}
	for _, bs := range snap.Biomes {
		if err := w.biomes.Import(bs); err != nil {
			return err
		}
	}
	w.tick.Store(snap.Header.Tick + 1)
	w.log.Info("snapshot imported",
		zap.Uint64("tick", snap.Header.Tick),
		zap.Int("maps", len(snap.Maps)),
		zap.Int("biomes", len(snap.Biomes)))
	return nil
}
