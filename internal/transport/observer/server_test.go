package observer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"tileforge.ai/internal/observerproto"
	"tileforge.ai/internal/sim/catalogs"
	"tileforge.ai/internal/sim/world"
)

func startWorld(t *testing.T) (*world.World, *httptest.Server) {
	t.Helper()
	cats, err := catalogs.Load("../../../configs/prototypes")
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	w := world.New(world.WorldConfig{ID: "obs", TickRateHz: 50, LoadRange: 8, JobBudget: 20 * time.Millisecond}, cats, world.Options{})
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

	if err := w.CreateMap(ctx, "a"); err != nil {
		t.Fatalf("create map: %v", err)
	}
	if err := w.AddBiome(ctx, "a", "Meadow", 3); err != nil {
		t.Fatalf("add biome: %v", err)
	}

	s := NewServer(w, nil)
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/observer", s.WSHandler())
	mux.HandleFunc("/admin/v1/observer/bootstrap", s.BootstrapHandler())
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return w, srv
}

func TestBootstrap(t *testing.T) {
	_, srv := startWorld(t)
	resp, err := http.Get(srv.URL + "/admin/v1/observer/bootstrap")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	var boot observerproto.BootstrapResponse
	if err := json.NewDecoder(resp.Body).Decode(&boot); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if boot.WorldID != "obs" || len(boot.TilePalette) == 0 || len(boot.Maps) != 1 || boot.Maps[0].Biome != "Meadow" {
		t.Fatalf("unexpected bootstrap %+v", boot)
	}
}

func TestSubscriberStreamsChunks(t *testing.T) {
	_, srv := startWorld(t)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/observer"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	sub := observerproto.SubscribeMsg{
		Type:            observerproto.TypeSubscribe,
		ProtocolVersion: observerproto.Version,
		MapID:           "a",
	}
	if err := conn.WriteJSON(sub); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	seenTick, seenLoad := false, false
	deadline := time.Now().Add(10 * time.Second)
	for !(seenTick && seenLoad) {
		_ = conn.SetReadDeadline(deadline)
		_, msg, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v (tick=%v load=%v)", err, seenTick, seenLoad)
		}
		var head struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(msg, &head); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		switch head.Type {
		case observerproto.TypeTick:
			seenTick = true
		case observerproto.TypeChunkLoad:
			var ev observerproto.ChunkEventMsg
			if err := json.Unmarshal(msg, &ev); err != nil {
				t.Fatalf("chunk event: %v", err)
			}
			if ev.Layer != "ground" || ev.Size != 16 {
				t.Fatalf("unexpected chunk event %+v", ev)
			}
			seenLoad = true
		}
	}
}

func TestRejectsBadHandshake(t *testing.T) {
	_, srv := startWorld(t)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/observer"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if err := conn.WriteJSON(map[string]string{"type": "HELLO"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Fatalf("expected policy violation close, got %v", err)
	}
}

func TestIsLoopbackRemote(t *testing.T) {
	cases := map[string]bool{
		"127.0.0.1:5000": true,
		"[::1]:80":       true,
		"10.0.0.2:443":   false,
		"not-an-ip":      false,
	}
	for addr, want := range cases {
		if got := isLoopbackRemote(addr); got != want {
			t.Fatalf("%s: got %v want %v", addr, got, want)
		}
	}
}

func TestNormalizeSubscribe(t *testing.T) {
	sub := observerproto.SubscribeMsg{MapID: "  a  "}
	normalizeSubscribe(&sub)
	if sub.MapID != "a" {
		t.Fatalf("map id not trimmed: %q", sub.MapID)
	}
}
