package indexdb

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"tileforge.ai/internal/persistence/snapshot"
	"tileforge.ai/internal/sim/biome"
	"tileforge.ai/internal/sim/catalogs"
	"tileforge.ai/internal/sim/generation"
	"tileforge.ai/internal/sim/geom"
	"tileforge.ai/internal/sim/tuning"
)

func TestSQLiteIndexRecordsAndQueries(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "index", "tileforge.sqlite")
	idx, err := OpenSQLite(dbPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	idx.RecordGeneration(generation.Record{
		JobID: "j1", Config: "LabBSP", Map: "a", Seed: 4, Position: [2]int{2, 3},
		State: "COMPLETED", Rooms: 6, Tiles: 900, Warnings: []string{"w1", "w2"},
		FinishedAt: "2026-01-01T00:00:00Z",
	})
	idx.RecordGeneration(generation.Record{
		JobID: "j2", Config: "Bunker", Map: "b", State: "FAULTED", Error: "boom",
		FinishedAt: "2026-01-01T00:00:01Z",
	})
	for i := 0; i < 3; i++ {
		idx.RecordChunk(biome.ChunkEvent{Kind: biome.EventLoad, MapID: "a", BiomeID: "Meadow", Layer: "ground", Origin: geom.Vec2i{X: 16 * i}, Size: 16, Tiles: 256})
	}
	idx.RecordChunk(biome.ChunkEvent{Kind: biome.EventUnload, MapID: "a", BiomeID: "Meadow", Layer: "ground", Size: 16, Modified: 2})
	idx.RecordSnapshot("/tmp/1.snap.zst", snapshot.SnapshotV1{
		Header:        snapshot.Header{Version: 1, WorldID: "w", Tick: 100},
		Seed:          9,
		Maps:          []snapshot.MapV1{{ID: "a"}, {ID: "b"}},
		Biomes:        []snapshot.BiomeV1{{MapID: "a"}},
		CatalogDigest: "abc",
	})
	if err := idx.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	// Writes after close are dropped, not panics.
	idx.RecordChunk(biome.ChunkEvent{MapID: "a"})

	r, err := OpenReader(dbPath)
	if err != nil {
		t.Fatalf("open reader: %v", err)
	}
	defer r.Close()
	ctx := context.Background()

	gens, err := r.Generations(ctx, "", 10)
	if err != nil {
		t.Fatalf("generations: %v", err)
	}
	if len(gens) != 2 || gens[0].JobID != "j2" || gens[0].Error != "boom" {
		t.Fatalf("unexpected generations %+v", gens)
	}
	gens, err = r.Generations(ctx, "a", 10)
	if err != nil {
		t.Fatalf("generations: %v", err)
	}
	if len(gens) != 1 || gens[0].Position != [2]int{2, 3} || len(gens[0].Warnings) != 2 {
		t.Fatalf("unexpected filtered generations %+v", gens)
	}

	evs, err := r.ChunkEvents(ctx, "a", 2)
	if err != nil {
		t.Fatalf("chunk events: %v", err)
	}
	if len(evs) != 2 || evs[0].Kind != biome.EventUnload || evs[0].Modified != 2 || evs[1].Origin[0] != 32 {
		t.Fatalf("unexpected chunk events %+v", evs)
	}

	snap, ok, err := r.LatestSnapshot(ctx)
	if err != nil || !ok {
		t.Fatalf("latest snapshot: %v %v", ok, err)
	}
	if snap.Tick != 100 || snap.Maps != 2 || snap.Biomes != 1 || snap.CatalogDigest != "abc" {
		t.Fatalf("unexpected snapshot row %+v", snap)
	}
}

func TestUpsertCatalogs(t *testing.T) {
	cats, err := catalogs.Load("../../../configs/prototypes")
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	dbPath := filepath.Join(t.TempDir(), "tileforge.sqlite")
	idx, err := OpenSQLite(dbPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := idx.UpsertCatalogs(cats, tuning.Defaults()); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	// A second upsert replaces rather than duplicates.
	if err := idx.UpsertCatalogs(cats, tuning.Defaults()); err != nil {
		t.Fatalf("upsert again: %v", err)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	r, err := OpenReader(dbPath)
	if err != nil {
		t.Fatalf("open reader: %v", err)
	}
	defer r.Close()
	rows, err := r.Catalogs(context.Background())
	if err != nil {
		t.Fatalf("catalogs: %v", err)
	}
	protos := 0
	names := map[string]bool{}
	for _, row := range rows {
		names[row.Name] = true
		if strings.HasPrefix(row.Name, "proto:") {
			protos++
		}
	}
	if protos != len(cats.Digests) {
		t.Fatalf("expected %d prototype rows, got %d", len(cats.Digests), protos)
	}
	if !names["tile_palette"] || !names["tuning"] || !names["proto:dungeonConfig/LabBSP"] {
		t.Fatalf("missing rows in %v", names)
	}
}

func TestOpenReaderMissingFile(t *testing.T) {
	if _, err := OpenReader(filepath.Join(t.TempDir(), "none.sqlite")); err == nil {
		t.Fatalf("expected error for missing db")
	}
}
