package world

// State is the admin view of the world.
type State struct {
	WorldID         string     `json:"world_id"`
	Tick            uint64     `json:"tick"`
	CatalogDigest   string     `json:"catalog_digest"`
	Queue           QueueState `json:"queue"`
	Maps            []MapState `json:"maps"`
	Observers       int        `json:"observers"`
	TemplatesCached int        `json:"templates_cached"`
}

type QueueState struct {
	Len  int        `json:"len"`
	Jobs []JobState `json:"jobs,omitempty"`

	// Last* describe the most recent tick.
	LastResumed   int   `json:"last_resumed"`
	LastFinished  int   `json:"last_finished"`
	LastSuspended bool  `json:"last_suspended"`
	LastElapsedUS int64 `json:"last_elapsed_us"`
}

type JobState struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	State       string `json:"state"`
	Suspensions int    `json:"suspensions"`
}

type MapState struct {
	ID       string      `json:"id"`
	Tiles    int         `json:"tiles"`
	Entities int         `json:"entities"`
	Decals   int         `json:"decals"`
	Digest   string      `json:"digest"`
	Biome    *BiomeState `json:"biome,omitempty"`
}

type BiomeState struct {
	BiomeID      string         `json:"biome"`
	Seed         int64          `json:"seed"`
	Enabled      bool           `json:"enabled"`
	Loading      bool           `json:"loading"`
	Layers       []string       `json:"layers"`
	Loaded       map[string]int `json:"loaded"`
	Modified     int            `json:"modified"`
	Unloading    int            `json:"unloading,omitempty"`
	PreloadAreas int            `json:"preload_areas,omitempty"`
}

func (w *World) state() State {
	st := State{
		WorldID:         w.cfg.ID,
		Tick:            w.tick.Load(),
		CatalogDigest:   w.cats.Load().Digest,
		Observers:       len(w.observers),
		TemplatesCached: w.gen.Templates().Len(),
		Queue: QueueState{
			Len:           w.queue.Len(),
			LastResumed:   w.lastStats.Resumed,
			LastFinished:  w.lastStats.Finished,
			LastSuspended: w.lastStats.Suspended,
			LastElapsedUS: w.lastStats.Elapsed.Microseconds(),
		},
	}
	for _, j := range w.queue.Pending() {
		st.Queue.Jobs = append(st.Queue.Jobs, JobState{
			ID:          j.ID,
			Name:        j.Name,
			State:       j.State().String(),
			Suspensions: j.Suspensions(),
		})
	}
	for _, id := range w.store.IDs() {
		m, _ := w.store.Get(id)
		ms := MapState{
			ID:       id,
			Tiles:    m.TileCount(),
			Entities: m.EntityCount(),
			Decals:   m.DecalCount(),
			Digest:   m.Digest(),
			Biome:    w.biomeState(id),
		}
		st.Maps = append(st.Maps, ms)
	}
	return st
}

func (w *World) biomeState(mapID string) *BiomeState {
	b, ok := w.biomes.Biome(mapID)
	if !ok {
		return nil
	}
	bs := &BiomeState{
		BiomeID:      b.BiomeID,
		Seed:         b.Seed,
		Enabled:      b.Enabled,
		Loading:      b.Loading,
		Layers:       b.Order(),
		Loaded:       map[string]int{},
		Modified:     b.ModifiedTiles.Size(),
		Unloading:    len(b.Unloading),
		PreloadAreas: len(b.PreloadAreas),
	}
	for _, l := range bs.Layers {
		bs.Loaded[l] = len(b.LoadedData[l])
	}
	return bs
}
