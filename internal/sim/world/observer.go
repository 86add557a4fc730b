package world

import (
	"encoding/json"
	"math"
	"sort"

	"go.uber.org/zap"

	"tileforge.ai/internal/observerproto"
	"tileforge.ai/internal/sim/biome"
	"tileforge.ai/internal/sim/encoding"
	"tileforge.ai/internal/sim/geom"
	"tileforge.ai/internal/sim/tasks"
)

// ObserverJoinRequest registers a read-only observer session. Its position
// becomes a biome viewer; it receives:
//   - per-tick queue and biome state (TickOut)
//   - chunk events of its map (DataOut)
//
// All observer state is maintained by the world loop goroutine.
type ObserverJoinRequest struct {
	SessionID string
	TickOut   chan []byte
	DataOut   chan []byte

	Subscription observerproto.SubscribeMsg
}

// ObserverSubscribeRequest moves an existing session.
type ObserverSubscribeRequest struct {
	SessionID    string
	Subscription observerproto.SubscribeMsg
}

type observerClient struct {
	id      string
	tickOut chan []byte
	dataOut chan []byte

	mapID        string
	pos          geom.Vec2
	vel          geom.Vec2
	includeTiles bool
}

func (w *World) ObserverJoin() chan<- ObserverJoinRequest           { return w.observerJoin }
func (w *World) ObserverSubscribe() chan<- ObserverSubscribeRequest { return w.observerSub }
func (w *World) ObserverLeave() chan<- string                       { return w.observerLeave }

func (w *World) handleObserverJoin(req ObserverJoinRequest) {
	if req.SessionID == "" || req.TickOut == nil || req.DataOut == nil {
		return
	}
	if _, ok := w.observers[req.SessionID]; !ok && len(w.observers) >= w.cfg.MaxObservers {
		w.log.Warn("observer rejected", zap.String("session", req.SessionID), zap.Int("max", w.cfg.MaxObservers))
		close(req.TickOut)
		return
	}
	c := &observerClient{
		id:      req.SessionID,
		tickOut: req.TickOut,
		dataOut: req.DataOut,
	}
	w.applySubscription(c, req.Subscription)
	w.observers[c.id] = c
	w.log.Info("observer joined", zap.String("session", c.id), zap.String("map", c.mapID))
}

func (w *World) handleObserverSubscribe(req ObserverSubscribeRequest) {
	c, ok := w.observers[req.SessionID]
	if !ok {
		return
	}
	w.applySubscription(c, req.Subscription)
}

func (w *World) handleObserverLeave(id string) {
	if _, ok := w.observers[id]; !ok {
		return
	}
	delete(w.observers, id)
	w.log.Info("observer left", zap.String("session", id))
}

func (w *World) applySubscription(c *observerClient, sub observerproto.SubscribeMsg) {
	lim := w.cfg.ObserverMaxCoord
	c.mapID = sub.MapID
	c.pos = geom.Vec2{X: clampCoord(sub.Pos[0], lim), Y: clampCoord(sub.Pos[1], lim)}
	c.vel = geom.Vec2{X: clampCoord(sub.Velocity[0], lim), Y: clampCoord(sub.Velocity[1], lim)}
	c.includeTiles = sub.IncludeTiles
}

func clampCoord(v, lim float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(-lim, math.Min(lim, v))
}

// viewers lists observer positions on existing maps in session order.
func (w *World) viewers() []biome.Viewer {
	ids := make([]string, 0, len(w.observers))
	for id := range w.observers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]biome.Viewer, 0, len(ids))
	for _, id := range ids {
		c := w.observers[id]
		if c.mapID == "" || !w.store.Exists(c.mapID) {
			continue
		}
		out = append(out, biome.Viewer{MapID: c.mapID, Pos: c.pos, Velocity: c.vel})
	}
	return out
}

func (w *World) broadcastTick(tick uint64, st tasks.Stats) {
	if len(w.observers) == 0 {
		return
	}
	msg := observerproto.TickMsg{
		Type:            observerproto.TypeTick,
		ProtocolVersion: observerproto.Version,
		Tick:            tick,
		Queue: observerproto.QueueState{
			Pending:   w.queue.Len(),
			Resumed:   st.Resumed,
			Finished:  st.Finished,
			Suspended: st.Suspended,
			ElapsedUS: st.Elapsed.Microseconds(),
		},
	}
	for _, c := range w.observers {
		m := msg
		m.Biome = w.observerBiome(c.mapID)
		b, err := json.Marshal(m)
		if err != nil {
			continue
		}
		sendLatest(c.tickOut, b)
	}
}

func (w *World) observerBiome(mapID string) *observerproto.BiomeState {
	bs := w.biomeState(mapID)
	if bs == nil {
		return nil
	}
	return &observerproto.BiomeState{
		MapID:    mapID,
		BiomeID:  bs.BiomeID,
		Enabled:  bs.Enabled,
		Loading:  bs.Loading,
		Loaded:   bs.Loaded,
		Modified: bs.Modified,
	}
}

func (w *World) broadcastChunk(ev biome.ChunkEvent) {
	var evMsg, tilesMsg []byte
	for _, c := range w.observers {
		if c.mapID != ev.MapID {
			continue
		}
		if evMsg == nil {
			evMsg, _ = json.Marshal(chunkEventMsg(ev))
		}
		sendLatest(c.dataOut, evMsg)
		if !c.includeTiles || ev.Kind != biome.EventLoad {
			continue
		}
		if tilesMsg == nil {
			tilesMsg = w.chunkTiles(ev)
		}
		if tilesMsg != nil {
			sendLatest(c.dataOut, tilesMsg)
		}
	}
}

func chunkEventMsg(ev biome.ChunkEvent) observerproto.ChunkEventMsg {
	typ := observerproto.TypeChunkLoad
	if ev.Kind == biome.EventUnload {
		typ = observerproto.TypeChunkUnload
	}
	return observerproto.ChunkEventMsg{
		Type:            typ,
		ProtocolVersion: observerproto.Version,
		Layer:           ev.Layer,
		Origin:          [2]int{ev.Origin.X, ev.Origin.Y},
		Size:            ev.Size,
		Tiles:           ev.Tiles,
		Entities:        ev.Entities,
		Decals:          ev.Decals,
		Modified:        ev.Modified,
	}
}

func (w *World) chunkTiles(ev biome.ChunkEvent) []byte {
	m, ok := w.store.Get(ev.MapID)
	if !ok {
		return nil
	}
	box := geom.BoxAt(ev.Origin, geom.Vec2i{X: ev.Size, Y: ev.Size})
	types := make([]uint16, 0, box.Area())
	for _, p := range box.Tiles() {
		types = append(types, m.Tile(p).Type)
	}
	b, err := json.Marshal(observerproto.ChunkTilesMsg{
		Type:            observerproto.TypeChunkTiles,
		ProtocolVersion: observerproto.Version,
		Origin:          [2]int{ev.Origin.X, ev.Origin.Y},
		Size:            ev.Size,
		Encoding:        observerproto.EncodingRLEU16,
		Data:            encoding.EncodeTiles(types),
	})
	if err != nil {
		return nil
	}
	return b
}
