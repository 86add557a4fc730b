package observer

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"tileforge.ai/internal/observerproto"
	"tileforge.ai/internal/sim/grid"
	"tileforge.ai/internal/sim/world"
)

type Server struct {
	world *world.World
	log   *zap.Logger

	upgrader websocket.Upgrader
}

func NewServer(w *world.World, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		world: w,
		log:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // loopback only, see isLoopbackRemote
		},
	}
}

func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		st, err := s.world.State(ctx)
		if err != nil {
			http.Error(rw, "world busy", http.StatusServiceUnavailable)
			return
		}

		cfg := s.world.Config()
		resp := observerproto.BootstrapResponse{
			ProtocolVersion: observerproto.Version,
			WorldID:         cfg.ID,
			Tick:            st.Tick,
			WorldParams: observerproto.WorldParams{
				TickRateHz: cfg.TickRateHz,
				ChunkSize:  grid.ChunkSize,
				LoadRange:  cfg.LoadRange,
				Seed:       cfg.Seed,
			},
			TilePalette: s.world.TilePalette(),
		}
		for _, m := range st.Maps {
			info := observerproto.MapInfo{ID: m.ID, Tiles: m.Tiles}
			if m.Biome != nil {
				info.Biome = m.Biome.BiomeID
			}
			resp.Maps = append(resp.Maps, info)
		}

		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(resp)
	}
}

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake: must send SUBSCRIBE first.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		sub, ok := parseSubscribe(msg)
		if !ok {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected SUBSCRIBE"), time.Now().Add(time.Second))
			return
		}

		sid := uuid.NewString()
		queue := s.world.Config().ObserverSendQ
		tickOut := make(chan []byte, 8)
		dataOut := make(chan []byte, queue)

		joinReq := world.ObserverJoinRequest{
			SessionID:    sid,
			TickOut:      tickOut,
			DataOut:      dataOut,
			Subscription: sub,
		}
		select {
		case s.world.ObserverJoin() <- joinReq:
		default:
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "server busy"), time.Now().Add(time.Second))
			return
		}
		s.log.Debug("observer connected", zap.String("session", sid), zap.String("remote", r.RemoteAddr), zap.String("map", sub.MapID))
		defer func() {
			select {
			case s.world.ObserverLeave() <- sid:
			default:
				// World loop is stopping; nothing else to do.
			}
		}()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine. A closed tickOut means the world refused the
		// session.
		writeErr := make(chan error, 1)
		go func() {
			for {
				var b []byte
				var ok bool
				select {
				case <-ctx.Done():
					writeErr <- ctx.Err()
					return
				case b, ok = <-dataOut:
				case b, ok = <-tickOut:
				}
				if !ok {
					_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "observer limit"), time.Now().Add(time.Second))
					_ = conn.Close()
					writeErr <- nil
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
					writeErr <- err
					return
				}
			}
		}()

		// Reader loop: SUBSCRIBE updates move the viewer.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			sub, ok := parseSubscribe(msg)
			if !ok {
				continue
			}
			req := world.ObserverSubscribeRequest{SessionID: sid, Subscription: sub}
			select {
			case s.world.ObserverSubscribe() <- req:
			default:
				// Drop updates under load; the client resends as it moves.
			}
		}

		cancel()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))

		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func parseSubscribe(msg []byte) (observerproto.SubscribeMsg, bool) {
	var sub observerproto.SubscribeMsg
	if err := json.Unmarshal(msg, &sub); err != nil {
		return sub, false
	}
	if sub.Type != observerproto.TypeSubscribe || sub.ProtocolVersion != observerproto.Version {
		return sub, false
	}
	normalizeSubscribe(&sub)
	return sub, true
}

func normalizeSubscribe(sub *observerproto.SubscribeMsg) {
	sub.MapID = strings.TrimSpace(sub.MapID)
	if len(sub.MapID) > 128 {
		sub.MapID = sub.MapID[:128]
	}
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
