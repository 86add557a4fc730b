package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	persistlog "tileforge.ai/internal/persistence/log"
	"tileforge.ai/internal/persistence/snapshot"
)

func TestParseBoxOrdersCorners(t *testing.T) {
	lo, hi, err := parseBox("8,-2:-4,6")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if lo != [2]int{-4, -2} || hi != [2]int{8, 6} {
		t.Fatalf("got %v %v", lo, hi)
	}
	for _, bad := range []string{"1,2", "1,2:3", "a,b:1,2"} {
		if _, _, err := parseBox(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestSummarizeCountsTilesAndLoadedChunks(t *testing.T) {
	snap := snapshot.SnapshotV1{
		Header: snapshot.Header{WorldID: "w", Tick: 42},
		Seed:   9,
		Maps: []snapshot.MapV1{{
			ID:       "a",
			Chunks:   []snapshot.ChunkV1{{Size: 2, Types: []uint16{0, 3, 3, 0}}},
			Entities: []snapshot.EntityV1{{ID: 1, Proto: "Door"}},
		}},
		Biomes: []snapshot.BiomeV1{{
			MapID: "a", BiomeID: "Meadow", Enabled: true,
			Layers:   []snapshot.LayerV1{{ID: "ground"}, {ID: "deco"}},
			Loaded:   []snapshot.LoadedChunkV1{{Layer: "ground"}, {Layer: "ground"}, {Layer: "deco"}},
			Modified: [][2]int{{1, 1}},
		}},
	}
	s := summarize("x.snap.zst", snap)
	if s.Tick != 42 || s.Seed != 9 || len(s.Maps) != 1 || s.Maps[0].Tiles != 2 || s.Maps[0].Entities != 1 {
		t.Fatalf("unexpected map summary %+v", s)
	}
	b := s.Biomes[0]
	if b.Loaded["ground"] != 2 || b.Loaded["deco"] != 1 || b.Modified != 1 || len(b.Layers) != 2 {
		t.Fatalf("unexpected biome summary %+v", b)
	}
}

func TestReadLogsFiltersByMap(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "generations")
	w := persistlog.NewJSONLZstdWriter(dir, "generations")
	for _, m := range []string{"a", "b", "a"} {
		if err := w.Write(map[string]string{"map": m, "config": "Outpost"}); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	var out bytes.Buffer
	if err := readLogs(dir, "generations-", "a", &out); err != nil {
		t.Fatalf("read: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("want 2 records for map a, got %q", out.String())
	}
}

func TestAdminClientReportsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/admin/v1/maps" || r.Header.Get("Content-Type") != "application/json" {
			http.Error(rw, `{"error":{"code":"BAD_REQUEST","message":"x"}}`, http.StatusBadRequest)
			return
		}
		_, _ = rw.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := newAdminClient(srv.URL+"/", time.Second)
	status, b, err := c.do(http.MethodPost, "/admin/v1/maps", map[string]string{"action": "create", "id": "a"})
	if err != nil || status != http.StatusOK || !strings.Contains(string(b), "ok") {
		t.Fatalf("got %d %s %v", status, b, err)
	}
	status, _, err = c.do(http.MethodGet, "/admin/v1/nope", nil)
	if err != nil || status != http.StatusBadRequest {
		t.Fatalf("got %d %v", status, err)
	}
}
