package world

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"tileforge.ai/internal/observerproto"
	snapv1 "tileforge.ai/internal/persistence/snapshot"
	"tileforge.ai/internal/sim/biome"
	"tileforge.ai/internal/sim/catalogs"
	"tileforge.ai/internal/sim/encoding"
	"tileforge.ai/internal/sim/generation"
	"tileforge.ai/internal/sim/grid"
)

type memLog struct {
	gens   []generation.Record
	chunks []biome.ChunkEvent
}

func (l *memLog) RecordGeneration(rec generation.Record) { l.gens = append(l.gens, rec) }
func (l *memLog) RecordChunk(ev biome.ChunkEvent)        { l.chunks = append(l.chunks, ev) }

func newTestWorld(t *testing.T, cfg WorldConfig) (*World, *memLog) {
	t.Helper()
	cats, err := catalogs.Load("../../../configs/prototypes")
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	if cfg.JobBudget == 0 {
		cfg.JobBudget = 50 * time.Millisecond
	}
	if cfg.LoadRange == 0 {
		cfg.LoadRange = 8
	}
	log := &memLog{}
	w := New(cfg, cats, Options{GenerationLog: log, ChunkLog: log})
	return w, log
}

// settle steps until the queue is empty.
func settle(t *testing.T, w *World) {
	t.Helper()
	for i := 0; i < 2000; i++ {
		w.StepOnce()
		if w.queue.Len() == 0 {
			return
		}
	}
	t.Fatalf("queue did not drain")
}

func join(w *World, id string, sub observerproto.SubscribeMsg) (tick, data chan []byte) {
	tick = make(chan []byte, 512)
	data = make(chan []byte, 512)
	w.handleObserverJoin(ObserverJoinRequest{SessionID: id, TickOut: tick, DataOut: data, Subscription: sub})
	return tick, data
}

func TestGenerateRunsOnTicks(t *testing.T) {
	w, log := newTestWorld(t, WorldConfig{ID: "test"})
	if err := w.createMap("a"); err != nil {
		t.Fatalf("create map: %v", err)
	}
	id, err := w.gen.Generate(context.Background(), generation.Request{ConfigID: "Bunker", MapID: "a", Seed: 3})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	st := w.state()
	if st.Queue.Len != 1 || st.Queue.Jobs[0].ID != id {
		t.Fatalf("expected queued job %s, got %+v", id, st.Queue)
	}
	settle(t, w)

	m, _ := w.store.Get("a")
	if m.TileCount() == 0 {
		t.Fatalf("dungeon wrote no tiles")
	}
	if len(log.gens) != 1 || log.gens[0].JobID != id || log.gens[0].State != "COMPLETED" {
		t.Fatalf("unexpected generation log %+v", log.gens)
	}
}

func TestObserverStreamsBiome(t *testing.T) {
	w, log := newTestWorld(t, WorldConfig{ID: "test"})
	if err := w.createMap("a"); err != nil {
		t.Fatalf("create map: %v", err)
	}
	if _, err := w.biomes.AddBiome("a", "Meadow", 11); err != nil {
		t.Fatalf("add biome: %v", err)
	}
	tickOut, dataOut := join(w, "s1", observerproto.SubscribeMsg{MapID: "a", IncludeTiles: true})
	settle(t, w)

	b, _ := w.biomes.Biome("a")
	if len(b.LoadedData["ground"]) == 0 {
		t.Fatalf("viewer did not load any chunk")
	}
	if len(log.chunks) != len(b.LoadedData["ground"]) {
		t.Fatalf("chunk log has %d events for %d chunks", len(log.chunks), len(b.LoadedData["ground"]))
	}

	var tick observerproto.TickMsg
	if err := json.Unmarshal(<-tickOut, &tick); err != nil {
		t.Fatalf("tick msg: %v", err)
	}
	if tick.Type != observerproto.TypeTick || tick.Biome == nil || tick.Biome.BiomeID != "Meadow" {
		t.Fatalf("unexpected tick msg %+v", tick)
	}

	loads, tiles := 0, 0
	for len(dataOut) > 0 {
		raw := <-dataOut
		var head struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(raw, &head); err != nil {
			t.Fatalf("data msg: %v", err)
		}
		switch head.Type {
		case observerproto.TypeChunkLoad:
			loads++
		case observerproto.TypeChunkTiles:
			tiles++
			var msg observerproto.ChunkTilesMsg
			if err := json.Unmarshal(raw, &msg); err != nil {
				t.Fatalf("tiles msg: %v", err)
			}
			types, err := encoding.DecodeTiles(msg.Data, 0)
			if err != nil {
				t.Fatalf("decode tiles: %v", err)
			}
			if len(types) != msg.Size*msg.Size {
				t.Fatalf("chunk tiles: got %d want %d", len(types), msg.Size*msg.Size)
			}
		}
	}
	if loads == 0 || loads != tiles {
		t.Fatalf("expected one tiles msg per load, got %d loads %d tiles", loads, tiles)
	}
}

func TestObserverLimit(t *testing.T) {
	w, _ := newTestWorld(t, WorldConfig{ID: "test", MaxObservers: 1})
	join(w, "s1", observerproto.SubscribeMsg{})
	tickOut, _ := join(w, "s2", observerproto.SubscribeMsg{})
	if _, ok := <-tickOut; ok {
		t.Fatalf("expected rejected session to be closed")
	}
	if len(w.observers) != 1 {
		t.Fatalf("expected one observer, got %d", len(w.observers))
	}
	w.handleObserverLeave("s1")
	if len(w.observers) != 0 {
		t.Fatalf("leave did not remove observer")
	}
}

func TestViewerOnDeletedMapIsIgnored(t *testing.T) {
	w, _ := newTestWorld(t, WorldConfig{ID: "test"})
	if err := w.createMap("a"); err != nil {
		t.Fatalf("create map: %v", err)
	}
	if _, err := w.biomes.AddBiome("a", "Meadow", 1); err != nil {
		t.Fatalf("add biome: %v", err)
	}
	join(w, "s1", observerproto.SubscribeMsg{MapID: "a"})
	if err := w.deleteMap("a"); err != nil {
		t.Fatalf("delete map: %v", err)
	}
	if len(w.viewers()) != 0 {
		t.Fatalf("viewer kept on deleted map")
	}
	if _, ok := w.biomes.Biome("a"); ok {
		t.Fatalf("biome survived its map")
	}
	if err := w.deleteMap("a"); !errors.Is(err, grid.ErrUnknownMap) {
		t.Fatalf("expected ErrUnknownMap, got %v", err)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	w, _ := newTestWorld(t, WorldConfig{ID: "test", Seed: 7})
	if err := w.createMap("a"); err != nil {
		t.Fatalf("create map: %v", err)
	}
	if _, err := w.biomes.AddBiome("a", "Meadow", 5); err != nil {
		t.Fatalf("add biome: %v", err)
	}
	join(w, "s1", observerproto.SubscribeMsg{MapID: "a", Pos: [2]float64{3, -2}})
	settle(t, w)
	tick := w.tick.Load()
	snap := w.ExportSnapshot(tick)

	w2, _ := newTestWorld(t, WorldConfig{ID: "test", Seed: 7})
	if err := w2.ImportSnapshot(snap); err != nil {
		t.Fatalf("import: %v", err)
	}
	if w2.tick.Load() != tick+1 {
		t.Fatalf("tick: got %d want %d", w2.tick.Load(), tick+1)
	}
	a, b := w.state(), w2.state()
	if len(a.Maps) != 1 || len(b.Maps) != 1 || a.Maps[0].Digest != b.Maps[0].Digest {
		t.Fatalf("map digests differ: %+v vs %+v", a.Maps, b.Maps)
	}
	if a.Maps[0].Biome == nil || b.Maps[0].Biome == nil || a.Maps[0].Biome.Loaded["ground"] != b.Maps[0].Biome.Loaded["ground"] {
		t.Fatalf("biome state differs: %+v vs %+v", a.Maps[0].Biome, b.Maps[0].Biome)
	}

	snap.Header.Version = 99
	if err := w2.ImportSnapshot(snap); err == nil {
		t.Fatalf("expected version error")
	}
}

func TestReloadKeepsCatalogsWhenUnchanged(t *testing.T) {
	w, _ := newTestWorld(t, WorldConfig{ID: "test"})
	before := w.Catalogs().Digest
	changes, err := w.reload()
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !changes.Empty() {
		t.Fatalf("expected no changes, got %+v", changes)
	}
	if w.Catalogs().Digest != before {
		t.Fatalf("digest changed on identical reload")
	}
}

func TestPeriodicSnapshot(t *testing.T) {
	w, _ := newTestWorld(t, WorldConfig{ID: "test", SnapshotEveryTicks: 2})
	sink := make(chan snapv1.SnapshotV1, 4)
	w.SetSnapshotSink(sink)
	for i := 0; i < 5; i++ {
		w.StepOnce()
	}
	// ticks 2 and 4
	if len(sink) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(sink))
	}
	if s := <-sink; s.Header.Tick != 2 || s.Header.WorldID != "test" {
		t.Fatalf("unexpected header %+v", s.Header)
	}
}

func TestRunServesAdminRequests(t *testing.T) {
	w, _ := newTestWorld(t, WorldConfig{ID: "test", TickRateHz: 100})
	sink := make(chan snapv1.SnapshotV1, 1)
	w.SetSnapshotSink(sink)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	if err := w.CreateMap(ctx, "a"); err != nil {
		t.Fatalf("create map: %v", err)
	}
	if err := w.CreateMap(ctx, "a"); !errors.Is(err, grid.ErrMapExists) {
		t.Fatalf("expected ErrMapExists, got %v", err)
	}
	res, err := w.GenerateDungeonWait(ctx, generation.Request{ConfigID: "Outpost", MapID: "a", Seed: 2})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if res.Err != nil || res.Dungeon == nil {
		t.Fatalf("dungeon failed: %v", res.Err)
	}
	if _, err := w.GenerateDungeon(ctx, generation.Request{ConfigID: "Nope", MapID: "a"}); !errors.Is(err, generation.ErrUnknownConfig) {
		t.Fatalf("expected ErrUnknownConfig, got %v", err)
	}
	st, err := w.State(ctx)
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if len(st.Maps) != 1 || st.Maps[0].Tiles == 0 {
		t.Fatalf("unexpected state %+v", st)
	}
	if _, err := w.RequestSnapshot(ctx); err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if s := <-sink; len(s.Maps) != 1 {
		t.Fatalf("snapshot has %d maps", len(s.Maps))
	}

	w.Stop()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
}
