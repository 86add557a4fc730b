package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"tileforge.ai/internal/persistence/r2s3"
	"tileforge.ai/internal/sim/world"
)

// metricsHandler serves a minimal Prometheus text exposition.
func metricsHandler(w *world.World, mirror *r2s3.Mirror) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		st, err := w.State(ctx)
		if err != nil {
			http.Error(rw, "world busy", http.StatusServiceUnavailable)
			return
		}
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		writeWorldMetrics(rw, st)
		if mirror != nil {
			writeMirrorMetrics(rw, st.WorldID, mirror.Stats())
		}
	}
}

func gauge(out io.Writer, name, help, world string, v any) {
	fmt.Fprintf(out, "# HELP %s %s\n# TYPE %s gauge\n%s{world=%q} %v\n", name, help, name, name, world, v)
}

func writeWorldMetrics(out io.Writer, st world.State) {
	id := st.WorldID
	gauge(out, "tileforge_world_tick", "Current world tick.", id, st.Tick)
	gauge(out, "tileforge_world_maps", "Number of maps.", id, len(st.Maps))
	gauge(out, "tileforge_world_observers", "Connected observers.", id, st.Observers)
	gauge(out, "tileforge_queue_len", "Jobs waiting or running.", id, st.Queue.Len)
	gauge(out, "tileforge_queue_last_resumed", "Jobs resumed in the last tick.", id, st.Queue.LastResumed)
	gauge(out, "tileforge_queue_last_elapsed_us", "Queue time used in the last tick.", id, st.Queue.LastElapsedUS)
	gauge(out, "tileforge_templates_cached", "Cached dungeon templates.", id, st.TemplatesCached)

	fmt.Fprintf(out, "# HELP tileforge_biome_loaded_chunks Loaded chunks per map and layer.\n# TYPE tileforge_biome_loaded_chunks gauge\n")
	for _, m := range st.Maps {
		if m.Biome == nil {
			continue
		}
		for layer, n := range m.Biome.Loaded {
			fmt.Fprintf(out, "tileforge_biome_loaded_chunks{world=%q,map=%q,layer=%q} %d\n", id, m.ID, layer, n)
		}
	}
	fmt.Fprintf(out, "# HELP tileforge_map_tiles Non-empty tiles per map.\n# TYPE tileforge_map_tiles gauge\n")
	for _, m := range st.Maps {
		fmt.Fprintf(out, "tileforge_map_tiles{world=%q,map=%q} %d\n", id, m.ID, m.Tiles)
	}
}

func writeMirrorMetrics(out io.Writer, id string, s r2s3.Stats) {
	gauge(out, "tileforge_mirror_queue_depth", "Files waiting for upload.", id, s.QueueDepth)
	gauge(out, "tileforge_mirror_uploaded_total", "Successful uploads.", id, s.Uploaded)
	gauge(out, "tileforge_mirror_failed_total", "Uploads that failed after retry.", id, s.Failed)
	gauge(out, "tileforge_mirror_dropped_total", "Files dropped on a full queue.", id, s.Dropped)
	gauge(out, "tileforge_mirror_last_success_unix", "Time of the last successful upload.", id, s.LastSuccessAt)
}
