package world

import (
	"context"
	"time"

	"go.uber.org/zap"

	"tileforge.ai/internal/sim/tasks"
)

func (w *World) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(w.cfg.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	defer w.queue.Close()

	var pendingSnapshots []adminSnapshotReq

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stop:
			return nil
		case req := <-w.observerJoin:
			w.handleObserverJoin(req)
		case req := <-w.observerSub:
			w.handleObserverSubscribe(req)
		case id := <-w.observerLeave:
			w.handleObserverLeave(id)
		case req := <-w.admin:
			if req.snapshot != nil {
				pendingSnapshots = append(pendingSnapshots, *req.snapshot)
				continue
			}
			w.handleAdmin(req)
		case <-ticker.C:
			w.step()
			w.handleAdminSnapshotRequests(pendingSnapshots)
			pendingSnapshots = pendingSnapshots[:0]
		}
	}
}

func (w *World) Stop() { close(w.stop) }

// StepOnce advances the world by a single tick with the same ordering as
// Run. It is meant for tests that drive the world directly.
func (w *World) StepOnce() (tick uint64, stats tasks.Stats) {
	tick = w.tick.Load()
	w.step()
	return tick, w.lastStats
}

// step streams biomes around the current viewers, then gives the job queue
// its slice of the tick.
func (w *World) step() {
	tick := w.tick.Load()

	w.biomes.Update(w.viewers())
	st := w.queue.Process(w.cfg.JobBudget)
	w.lastStats = st
	if st.Suspended {
		w.log.Debug("job suspended", zap.Uint64("tick", tick), zap.Duration("elapsed", st.Elapsed), zap.Int("queued", w.queue.Len()))
	}

	w.broadcastTick(tick, st)

	if every := w.cfg.SnapshotEveryTicks; w.snapshotSink != nil && every > 0 && tick != 0 && tick%uint64(every) == 0 {
		snap := w.ExportSnapshot(tick)
		select {
		case w.snapshotSink <- snap:
		default:
			w.log.Warn("snapshot sink backpressure", zap.Uint64("tick", tick))
		}
	}

	w.tick.Add(1)
}

func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	// Drop one.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}
