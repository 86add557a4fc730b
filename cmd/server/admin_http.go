package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"tileforge.ai/internal/sim/biome"
	"tileforge.ai/internal/sim/generation"
	"tileforge.ai/internal/sim/geom"
	"tileforge.ai/internal/sim/grid"
	"tileforge.ai/internal/sim/world"
)

type adminAPI struct {
	w           *world.World
	log         *zap.Logger
	validate    *validator.Validate
	defaultSeed int64
	timeout     time.Duration
}

func newAdminAPI(w *world.World, log *zap.Logger, defaultSeed int64) *adminAPI {
	if log == nil {
		log = zap.NewNop()
	}
	return &adminAPI{
		w:           w,
		log:         log,
		validate:    validator.New(),
		defaultSeed: defaultSeed,
		timeout:     5 * time.Second,
	}
}

func (a *adminAPI) register(mux *http.ServeMux) {
	mux.HandleFunc("/admin/v1/state", a.get(a.handleState))
	mux.HandleFunc("/admin/v1/snapshot", a.post(a.handleSnapshot))
	mux.HandleFunc("/admin/v1/reload", a.post(a.handleReload))
	mux.HandleFunc("/admin/v1/dungeon", a.post(a.handleDungeon))
	mux.HandleFunc("/admin/v1/jobs/cancel", a.post(a.handleCancel))
	mux.HandleFunc("/admin/v1/maps", a.post(a.handleMaps))
	mux.HandleFunc("/admin/v1/biome/add", a.post(a.handleBiomeAdd))
	mux.HandleFunc("/admin/v1/biome/disable", a.post(a.handleBiomeDisable))
	mux.HandleFunc("/admin/v1/biome/addlayer", a.post(a.handleAddLayer))
	mux.HandleFunc("/admin/v1/biome/rmlayer", a.post(a.handleRemoveLayer))
	mux.HandleFunc("/admin/v1/biome/preload", a.post(a.handlePreload))
}

type apiError struct {
	status  int
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *apiError) Error() string { return e.Code + ": " + e.Message }

func badRequest(code, format string, args ...any) *apiError {
	return &apiError{status: http.StatusBadRequest, Code: code, Message: fmt.Sprintf(format, args...)}
}

// classify maps world errors onto stable admin error codes.
func classify(err error) *apiError {
	var ae *apiError
	if errors.As(err, &ae) {
		return ae
	}
	e := &apiError{Message: err.Error()}
	switch {
	case errors.Is(err, grid.ErrUnknownMap), errors.Is(err, generation.ErrUnknownMap):
		e.status, e.Code = http.StatusNotFound, "BAD_MAP"
	case errors.Is(err, grid.ErrMapExists):
		e.status, e.Code = http.StatusConflict, "MAP_EXISTS"
	case errors.Is(err, generation.ErrUnknownConfig), errors.Is(err, biome.ErrUnknownBiome):
		e.status, e.Code = http.StatusBadRequest, "BAD_PROTOTYPE"
	case errors.Is(err, biome.ErrBiomeExists):
		e.status, e.Code = http.StatusConflict, "BIOME_EXISTS"
	case errors.Is(err, biome.ErrBiomeBusy):
		e.status, e.Code = http.StatusConflict, "BIOME_BUSY"
	case errors.Is(err, biome.ErrLayerCycle), errors.Is(err, biome.ErrUnknownLayer), errors.Is(err, biome.ErrBadLayer):
		e.status, e.Code = http.StatusBadRequest, "BAD_LAYER"
	case errors.Is(err, world.ErrNotRunning), errors.Is(err, context.DeadlineExceeded):
		e.status, e.Code = http.StatusServiceUnavailable, "UNAVAILABLE"
	default:
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return validationError(verrs)
		}
		e.status, e.Code = http.StatusInternalServerError, "INTERNAL"
	}
	return e
}

func validationError(verrs validator.ValidationErrors) *apiError {
	fe := verrs[0]
	code := "BAD_REQUEST"
	field := fe.Field()
	if i := strings.IndexByte(field, '['); i >= 0 {
		field = field[:i]
	}
	switch field {
	case "X", "Y", "Min", "Max":
		code = "BAD_COORDS"
	case "Map", "MapID":
		code = "BAD_MAP"
	case "Config", "ConfigID", "Biome":
		code = "BAD_PROTOTYPE"
	}
	return badRequest(code, "%s failed %q", fe.Namespace(), fe.Tag())
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}

func (a *adminAPI) writeError(rw http.ResponseWriter, r *http.Request, err error) {
	e := classify(err)
	if e.status >= 500 {
		a.log.Error("admin request failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	writeJSON(rw, e.status, map[string]any{"error": e})
}

type handlerFunc func(ctx context.Context, r *http.Request) (any, error)

func (a *adminAPI) wrap(method string, h handlerFunc) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			writeJSON(rw, http.StatusForbidden, map[string]any{"error": apiError{Code: "FORBIDDEN", Message: "admin endpoints are loopback only"}})
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), a.timeout)
		defer cancel()
		out, err := h(ctx, r)
		if err != nil {
			a.writeError(rw, r, err)
			return
		}
		writeJSON(rw, http.StatusOK, out)
	}
}

func (a *adminAPI) get(h handlerFunc) http.HandlerFunc  { return a.wrap(http.MethodGet, h) }
func (a *adminAPI) post(h handlerFunc) http.HandlerFunc { return a.wrap(http.MethodPost, h) }

// decode reads a JSON body into v and validates its struct tags.
func (a *adminAPI) decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var ute *json.UnmarshalTypeError
		if errors.As(err, &ute) && isCoordField(ute.Field) {
			return badRequest("BAD_COORDS", "%s: %v", ute.Field, err)
		}
		return badRequest("BAD_REQUEST", "decode body: %v", err)
	}
	if err := a.validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return validationError(verrs)
		}
		return badRequest("BAD_REQUEST", "%v", err)
	}
	return nil
}

func isCoordField(f string) bool {
	switch f {
	case "x", "y", "min", "max":
		return true
	}
	return strings.HasPrefix(f, "min.") || strings.HasPrefix(f, "max.")
}

func (a *adminAPI) handleState(ctx context.Context, _ *http.Request) (any, error) {
	return a.w.State(ctx)
}

func (a *adminAPI) handleSnapshot(ctx context.Context, _ *http.Request) (any, error) {
	tick, err := a.w.RequestSnapshot(ctx)
	if err != nil {
		return nil, &apiError{status: http.StatusServiceUnavailable, Code: "UNAVAILABLE", Message: err.Error()}
	}
	return map[string]any{"ok": true, "tick": tick}, nil
}

func (a *adminAPI) handleReload(ctx context.Context, _ *http.Request) (any, error) {
	changes, err := a.w.Reload(ctx)
	if errors.Is(err, world.ErrNotRunning) || errors.Is(err, context.DeadlineExceeded) {
		return nil, err
	}
	if err != nil {
		return nil, &apiError{status: http.StatusBadRequest, Code: "BAD_PROTOTYPE", Message: err.Error()}
	}
	return map[string]any{"ok": true, "changes": changes}, nil
}

type dungeonRequest struct {
	Config string `json:"config" validate:"required,max=128"`
	Map    string `json:"map" validate:"required,max=128"`
	X      int    `json:"x" validate:"min=-1048576,max=1048576"`
	Y      int    `json:"y" validate:"min=-1048576,max=1048576"`
	Seed   *int64 `json:"seed"`
	// Wait blocks until the job finishes and returns its summary.
	Wait bool `json:"wait"`
}

type dungeonResponse struct {
	JobID    string   `json:"job_id"`
	State    string   `json:"state,omitempty"`
	Rooms    int      `json:"rooms,omitempty"`
	Tiles    int      `json:"tiles,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
	Error    string   `json:"error,omitempty"`
}

func (a *adminAPI) handleDungeon(ctx context.Context, r *http.Request) (any, error) {
	var req dungeonRequest
	if err := a.decode(r, &req); err != nil {
		return nil, err
	}
	seed := a.defaultSeed
	if req.Seed != nil {
		seed = *req.Seed
	}
	greq := generation.Request{
		ConfigID: req.Config,
		MapID:    req.Map,
		Position: geom.Vec2i{X: req.X, Y: req.Y},
		Seed:     seed,
	}
	if !req.Wait {
		id, err := a.w.GenerateDungeon(ctx, greq)
		if err != nil {
			return nil, err
		}
		return dungeonResponse{JobID: id}, nil
	}

	// Generation may outlast the default admin timeout.
	wctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	res, err := a.w.GenerateDungeonWait(wctx, greq)
	if err != nil {
		return nil, err
	}
	out := dungeonResponse{JobID: res.JobID, State: res.State.String()}
	if res.Err != nil {
		out.Error = res.Err.Error()
	}
	if d := res.Dungeon; d != nil {
		out.Rooms = len(d.Rooms)
		out.Tiles = d.RoomTiles.Size() + d.CorridorTiles.Size()
		out.Warnings = d.Warnings
	}
	return out, nil
}

type cancelRequest struct {
	ID string `json:"id" validate:"required"`
}

func (a *adminAPI) handleCancel(ctx context.Context, r *http.Request) (any, error) {
	var req cancelRequest
	if err := a.decode(r, &req); err != nil {
		return nil, err
	}
	ok, err := a.w.CancelJob(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &apiError{status: http.StatusNotFound, Code: "BAD_JOB", Message: fmt.Sprintf("no queued job %q", req.ID)}
	}
	return map[string]any{"ok": true}, nil
}

type mapRequest struct {
	Action string `json:"action" validate:"required,oneof=create delete"`
	ID     string `json:"id" validate:"required,max=128"`
}

func (a *adminAPI) handleMaps(ctx context.Context, r *http.Request) (any, error) {
	var req mapRequest
	if err := a.decode(r, &req); err != nil {
		return nil, err
	}
	var err error
	if req.Action == "create" {
		err = a.w.CreateMap(ctx, req.ID)
	} else {
		err = a.w.DeleteMap(ctx, req.ID)
	}
	if err != nil {
		return nil, err
	}
	return map[string]any{"ok": true, "map": req.ID}, nil
}

type biomeRequest struct {
	Map   string `json:"map" validate:"required,max=128"`
	Biome string `json:"biome" validate:"required,max=128"`
	Seed  *int64 `json:"seed"`
}

func (a *adminAPI) handleBiomeAdd(ctx context.Context, r *http.Request) (any, error) {
	var req biomeRequest
	if err := a.decode(r, &req); err != nil {
		return nil, err
	}
	seed := a.defaultSeed
	if req.Seed != nil {
		seed = *req.Seed
	}
	if err := a.w.AddBiome(ctx, req.Map, req.Biome, seed); err != nil {
		return nil, err
	}
	return map[string]any{"ok": true}, nil
}

type mapOnlyRequest struct {
	Map string `json:"map" validate:"required,max=128"`
}

func (a *adminAPI) handleBiomeDisable(ctx context.Context, r *http.Request) (any, error) {
	var req mapOnlyRequest
	if err := a.decode(r, &req); err != nil {
		return nil, err
	}
	ok, err := a.w.DisableBiome(ctx, req.Map)
	if err != nil {
		return nil, err
	}
	return map[string]any{"ok": true, "changed": ok}, nil
}

type layerRequest struct {
	Map       string   `json:"map" validate:"required,max=128"`
	ID        string   `json:"id" validate:"required,max=64"`
	ChunkSize int      `json:"chunk_size" validate:"min=1,max=256"`
	DependsOn []string `json:"depends_on" validate:"dive,required"`
	Config    string   `json:"config" validate:"required_without=Template,excluded_with=Template"`
	Template  string   `json:"template" validate:"required_without=Config"`
	CanUnload bool     `json:"can_unload"`
}

func (a *adminAPI) handleAddLayer(ctx context.Context, r *http.Request) (any, error) {
	var req layerRequest
	if err := a.decode(r, &req); err != nil {
		return nil, err
	}
	l := biome.MetaLayer{
		ID:        req.ID,
		ChunkSize: req.ChunkSize,
		DependsOn: req.DependsOn,
		Config:    req.Config,
		Template:  req.Template,
		CanUnload: req.CanUnload,
	}
	if err := a.w.AddLayer(ctx, req.Map, l); err != nil {
		return nil, err
	}
	return map[string]any{"ok": true}, nil
}

type removeLayerRequest struct {
	Map   string `json:"map" validate:"required,max=128"`
	Layer string `json:"layer" validate:"required,max=64"`
}

func (a *adminAPI) handleRemoveLayer(ctx context.Context, r *http.Request) (any, error) {
	var req removeLayerRequest
	if err := a.decode(r, &req); err != nil {
		return nil, err
	}
	if err := a.w.RemoveLayer(ctx, req.Map, req.Layer); err != nil {
		return nil, err
	}
	return map[string]any{"ok": true}, nil
}

type preloadRequest struct {
	Map string `json:"map" validate:"required,max=128"`
	Min [2]int `json:"min" validate:"dive,min=-1048576,max=1048576"`
	Max [2]int `json:"max" validate:"dive,min=-1048576,max=1048576"`
}

func (a *adminAPI) handlePreload(ctx context.Context, r *http.Request) (any, error) {
	var req preloadRequest
	if err := a.decode(r, &req); err != nil {
		return nil, err
	}
	box := geom.NewBox2i(req.Min[0], req.Min[1], req.Max[0], req.Max[1])
	if box.Empty() {
		return nil, badRequest("BAD_COORDS", "empty preload box %v..%v", req.Min, req.Max)
	}
	if err := a.w.Preload(ctx, req.Map, box); err != nil {
		return nil, err
	}
	return map[string]any{"ok": true}, nil
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	ip := net.ParseIP(strings.Trim(host, "[]"))
	return ip != nil && ip.IsLoopback()
}
