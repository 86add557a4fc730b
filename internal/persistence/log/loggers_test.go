package log

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"

	"tileforge.ai/internal/sim/biome"
	"tileforge.ai/internal/sim/generation"
	"tileforge.ai/internal/sim/geom"
)

func readLines(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		t.Fatalf("zstd reader: %v", err)
	}
	defer dec.Close()
	var out []string
	sc := bufio.NewScanner(dec)
	for sc.Scan() {
		out = append(out, sc.Text())
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("scan: %v", err)
	}
	return out
}

func TestGenerationLogger(t *testing.T) {
	dir := t.TempDir()
	l := NewGenerationLogger(dir, nil)
	now := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	l.w.now = func() time.Time { return now }

	l.RecordGeneration(generation.Record{JobID: "j1", Config: "LabBSP", Map: "a", Rooms: 4, State: "COMPLETED"})
	l.RecordGeneration(generation.Record{JobID: "j2", Config: "Bunker", Map: "a", Error: "boom", State: "FAULTED"})
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	lines := readLines(t, filepath.Join(dir, "generations", "generations-2026-03-04-05.jsonl.zst"))
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	var rec generation.Record
	if err := json.Unmarshal([]byte(lines[1]), &rec); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if rec.JobID != "j2" || rec.Error != "boom" {
		t.Fatalf("unexpected record %+v", rec)
	}
}

func TestChunkLoggerRotatesHourly(t *testing.T) {
	dir := t.TempDir()
	l := NewChunkLogger(dir, nil)
	now := time.Date(2026, 3, 4, 5, 59, 0, 0, time.UTC)
	l.w.now = func() time.Time { return now }

	ev := biome.ChunkEvent{Kind: biome.EventLoad, MapID: "a", Layer: "ground", Origin: geom.Vec2i{X: 16}, Size: 16, Tiles: 256}
	l.RecordChunk(ev)
	now = now.Add(2 * time.Minute)
	ev.Kind = biome.EventUnload
	ev.Modified = 3
	l.RecordChunk(ev)
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	first := readLines(t, filepath.Join(dir, "chunks", "chunks-2026-03-04-05.jsonl.zst"))
	second := readLines(t, filepath.Join(dir, "chunks", "chunks-2026-03-04-06.jsonl.zst"))
	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("expected one line per hour, got %d and %d", len(first), len(second))
	}
	var e ChunkEntry
	if err := json.Unmarshal([]byte(second[0]), &e); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if e.Kind != biome.EventUnload || e.Modified != 3 || e.Origin.X != 16 || e.At != "2026-03-04T06:01:00Z" {
		t.Fatalf("unexpected entry %+v", e)
	}
}
