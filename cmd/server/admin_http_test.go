package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"tileforge.ai/internal/persistence/archive"
	"tileforge.ai/internal/persistence/snapshot"
	"tileforge.ai/internal/sim/catalogs"
	"tileforge.ai/internal/sim/tuning"
	"tileforge.ai/internal/sim/world"
)

func newTestServer(t *testing.T) (*world.World, *httptest.Server) {
	t.Helper()
	cats, err := catalogs.Load("../../configs/prototypes")
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	w := world.New(world.WorldConfig{ID: "srv", TickRateHz: 100, LoadRange: 8, JobBudget: 20 * time.Millisecond}, cats, world.Options{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = w.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	srv := httptest.NewServer(newMux(w, tuning.Defaults(), nil, false))
	t.Cleanup(srv.Close)
	return w, srv
}

type errBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func post(t *testing.T, srv *httptest.Server, path, body string) (int, []byte) {
	t.Helper()
	resp, err := http.Post(srv.URL+path, "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("post %s: %v", path, err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, b
}

func wantError(t *testing.T, status int, b []byte, wantStatus int, wantCode string) {
	t.Helper()
	var e errBody
	if err := json.Unmarshal(b, &e); err != nil {
		t.Fatalf("decode error body %q: %v", b, err)
	}
	if status != wantStatus || e.Error.Code != wantCode {
		t.Fatalf("got %d %s (%s), want %d %s", status, e.Error.Code, e.Error.Message, wantStatus, wantCode)
	}
}

func TestAdminMapsAndDungeon(t *testing.T) {
	_, srv := newTestServer(t)

	if st, b := post(t, srv, "/admin/v1/maps", `{"action":"create","id":"a"}`); st != http.StatusOK {
		t.Fatalf("create map: %d %s", st, b)
	}
	st, b := post(t, srv, "/admin/v1/maps", `{"action":"create","id":"a"}`)
	wantError(t, st, b, http.StatusConflict, "MAP_EXISTS")

	st, b = post(t, srv, "/admin/v1/dungeon", `{"config":"Outpost","map":"a","x":4,"y":-3,"seed":2,"wait":true}`)
	if st != http.StatusOK {
		t.Fatalf("dungeon: %d %s", st, b)
	}
	var res dungeonResponse
	if err := json.Unmarshal(b, &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.JobID == "" || res.State != "COMPLETED" || res.Rooms == 0 || res.Error != "" {
		t.Fatalf("unexpected dungeon response %+v", res)
	}

	cases := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"unknown map", `{"config":"Outpost","map":"nope"}`, http.StatusNotFound, "BAD_MAP"},
		{"unknown config", `{"config":"Nope","map":"a"}`, http.StatusBadRequest, "BAD_PROTOTYPE"},
		{"missing config", `{"map":"a"}`, http.StatusBadRequest, "BAD_PROTOTYPE"},
		{"malformed coordinate", `{"config":"Outpost","map":"a","x":"east"}`, http.StatusBadRequest, "BAD_COORDS"},
		{"coordinate out of range", `{"config":"Outpost","map":"a","y":99999999}`, http.StatusBadRequest, "BAD_COORDS"},
		{"unknown field", `{"config":"Outpost","map":"a","z":1}`, http.StatusBadRequest, "BAD_REQUEST"},
	}
	for _, tc := range cases {
		st, b := post(t, srv, "/admin/v1/dungeon", tc.body)
		if st != tc.status {
			t.Fatalf("%s: status %d body %s", tc.name, st, b)
		}
		wantError(t, st, b, tc.status, tc.code)
	}

	st, b = post(t, srv, "/admin/v1/jobs/cancel", `{"id":"missing"}`)
	wantError(t, st, b, http.StatusNotFound, "BAD_JOB")

	if st, b := post(t, srv, "/admin/v1/maps", `{"action":"delete","id":"a"}`); st != http.StatusOK {
		t.Fatalf("delete map: %d %s", st, b)
	}
	st, b = post(t, srv, "/admin/v1/maps", `{"action":"delete","id":"a"}`)
	wantError(t, st, b, http.StatusNotFound, "BAD_MAP")
}

func TestAdminBiomeCommands(t *testing.T) {
	_, srv := newTestServer(t)
	if st, b := post(t, srv, "/admin/v1/maps", `{"action":"create","id":"m"}`); st != http.StatusOK {
		t.Fatalf("create map: %d %s", st, b)
	}

	st, b := post(t, srv, "/admin/v1/biome/add", `{"map":"m","biome":"Nope"}`)
	wantError(t, st, b, http.StatusBadRequest, "BAD_PROTOTYPE")
	if st, b := post(t, srv, "/admin/v1/biome/add", `{"map":"m","biome":"Meadow","seed":5}`); st != http.StatusOK {
		t.Fatalf("add biome: %d %s", st, b)
	}
	st, b = post(t, srv, "/admin/v1/biome/add", `{"map":"m","biome":"Meadow"}`)
	wantError(t, st, b, http.StatusConflict, "BIOME_EXISTS")

	st, b = post(t, srv, "/admin/v1/biome/addlayer", `{"map":"m","id":"deco","chunk_size":16,"template":"Nope"}`)
	wantError(t, st, b, http.StatusBadRequest, "BAD_LAYER")
	st, b = post(t, srv, "/admin/v1/biome/addlayer", `{"map":"m","id":"deco","chunk_size":16}`)
	wantError(t, st, b, http.StatusBadRequest, "BAD_PROTOTYPE")
	st, b = post(t, srv, "/admin/v1/biome/addlayer", `{"map":"m","id":"deco","chunk_size":0,"template":"Grasslands"}`)
	wantError(t, st, b, http.StatusBadRequest, "BAD_REQUEST")

	st, b = post(t, srv, "/admin/v1/biome/preload", `{"map":"m","min":[4,4],"max":[4,9]}`)
	wantError(t, st, b, http.StatusBadRequest, "BAD_COORDS")
	if st, b := post(t, srv, "/admin/v1/biome/preload", `{"map":"m","min":[0,0],"max":[16,16]}`); st != http.StatusOK {
		t.Fatalf("preload: %d %s", st, b)
	}

	st, b = post(t, srv, "/admin/v1/biome/rmlayer", `{"map":"m","layer":"nope"}`)
	wantError(t, st, b, http.StatusBadRequest, "BAD_LAYER")

	resp, err := http.Get(srv.URL + "/admin/v1/state")
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	defer resp.Body.Close()
	var state world.State
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if len(state.Maps) != 1 || state.Maps[0].Biome == nil || state.Maps[0].Biome.BiomeID != "Meadow" || state.Maps[0].Biome.PreloadAreas != 1 {
		t.Fatalf("unexpected state %+v", state)
	}

	if st, b := post(t, srv, "/admin/v1/biome/disable", `{"map":"m"}`); st != http.StatusOK || !strings.Contains(string(b), `"changed":true`) {
		t.Fatalf("disable: %d %s", st, b)
	}
}

func TestAdminRejectsWrongMethodAndRemote(t *testing.T) {
	_, srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/admin/v1/dungeon")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status %d", resp.StatusCode)
	}

	api := newAdminAPI(nil, nil, 0)
	req := httptest.NewRequest(http.MethodGet, "/admin/v1/state", nil)
	req.RemoteAddr = "10.1.2.3:5555"
	rec := httptest.NewRecorder()
	api.get(api.handleState)(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("remote request status %d", rec.Code)
	}
}

func TestMetricsAndSnapshot(t *testing.T) {
	_, srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	b, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(b), `tileforge_world_tick{world="srv"}`) {
		t.Fatalf("metrics missing tick:\n%s", b)
	}

	// No snapshot sink in tests.
	st, body := post(t, srv, "/admin/v1/snapshot", ``)
	wantError(t, st, body, http.StatusServiceUnavailable, "UNAVAILABLE")
}

func TestLoadTuningLayers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tuning.yaml")
	if err := os.WriteFile(path, []byte("tick_rate_hz: 10\ndata_dir: from-file\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	env := map[string]string{"TILEFORGE_DATA_DIR": "from-env", "TILEFORGE_SEED": "7"}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	f, set, err := parseFlags([]string{"-tuning", path, "-seed", "99"})
	if err != nil {
		t.Fatalf("flags: %v", err)
	}
	tune, err := loadTuning(f, set, lookup)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if tune.TickRateHz != 10 || tune.DataDir != "from-env" || tune.DefaultSeed != 99 {
		t.Fatalf("unexpected layering %+v", tune)
	}

	f, set, _ = parseFlags([]string{"-tuning", path, "-data", "from-flag", "-log_level", "loud"})
	if _, err := loadTuning(f, set, lookup); err == nil {
		t.Fatalf("expected invalid log level to fail validation")
	}
}

func TestSnapshotWriterPrunesAndArchives(t *testing.T) {
	dataDir := t.TempDir()
	sw := &snapshotWriter{dataDir: dataDir, keep: 2, archiveEvery: 20, log: zap.NewNop()}
	for _, tick := range []uint64{10, 20, 30} {
		snap := snapshot.SnapshotV1{Header: snapshot.Header{WorldID: "w", Tick: tick}, Seed: 3}
		if _, err := sw.write(snap); err != nil {
			t.Fatalf("write %d: %v", tick, err)
		}
	}
	if _, err := os.Stat(archive.SnapshotPath(sw.dir(), 10)); !os.IsNotExist(err) {
		t.Fatalf("tick 10 should be pruned, stat err=%v", err)
	}
	path, tick, ok, err := archive.Latest(sw.dir())
	if err != nil || !ok || tick != 30 {
		t.Fatalf("latest: %s %d %v %v", path, tick, ok, err)
	}
	got, err := snapshot.ReadSnapshot(path)
	if err != nil || got.Seed != 3 {
		t.Fatalf("read back: %+v %v", got.Header, err)
	}
	if _, err := os.Stat(filepath.Join(dataDir, "archives", "tick_000000000020", "meta.json")); err != nil {
		t.Fatalf("milestone not archived: %v", err)
	}
}
