package main

import (
	"context"
	"flag"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"tileforge.ai/internal/logger"
	"tileforge.ai/internal/persistence/archive"
	"tileforge.ai/internal/persistence/indexdb"
	persistlog "tileforge.ai/internal/persistence/log"
	"tileforge.ai/internal/persistence/r2s3"
	"tileforge.ai/internal/persistence/snapshot"
	"tileforge.ai/internal/sim/biome"
	"tileforge.ai/internal/sim/catalogs"
	"tileforge.ai/internal/sim/generation"
	"tileforge.ai/internal/sim/tuning"
	"tileforge.ai/internal/sim/world"
	"tileforge.ai/internal/transport/observer"
)

type serverFlags struct {
	addr       string
	worldID    string
	tuningPath string
	envPath    string
	prototypes string
	dataDir    string
	seed       int64
	logLevel   string
	snapPath   string
	loadLatest bool
	disableDB  bool
	pprof      bool
}

func parseFlags(args []string) (serverFlags, map[string]bool, error) {
	var f serverFlags
	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.StringVar(&f.addr, "addr", "127.0.0.1:8080", "http listen address")
	fs.StringVar(&f.worldID, "world", "tileforge", "world id")
	fs.StringVar(&f.tuningPath, "tuning", "./configs/tuning.yaml", "path to tuning.yaml")
	fs.StringVar(&f.envPath, "env", ".env", "optional .env file with TILEFORGE_* overrides")
	fs.StringVar(&f.prototypes, "prototypes", "", "prototype directory (overrides tuning)")
	fs.StringVar(&f.dataDir, "data", "", "runtime data directory (overrides tuning)")
	fs.Int64Var(&f.seed, "seed", 0, "default seed for requests without one (overrides tuning)")
	fs.StringVar(&f.logLevel, "log_level", "", "debug|info|warn|error (overrides tuning)")
	fs.StringVar(&f.snapPath, "snapshot", "", "snapshot to restore (optional)")
	fs.BoolVar(&f.loadLatest, "load_latest_snapshot", true, "restore the newest snapshot in the data dir when -snapshot is empty")
	fs.BoolVar(&f.disableDB, "disable_db", false, "disable the sqlite index")
	fs.BoolVar(&f.pprof, "pprof", false, "serve /debug/pprof")
	if err := fs.Parse(args); err != nil {
		return f, nil, err
	}
	set := map[string]bool{}
	fs.Visit(func(fl *flag.Flag) { set[fl.Name] = true })
	return f, set, nil
}

// loadTuning layers defaults < tuning file < environment < flags.
func loadTuning(f serverFlags, set map[string]bool, lookup func(string) (string, bool)) (tuning.Tuning, error) {
	tune, err := tuning.Load(f.tuningPath)
	if err != nil {
		return tune, err
	}
	if err := tuning.ApplyEnv(&tune, lookup); err != nil {
		return tune, err
	}
	if set["prototypes"] {
		tune.PrototypesDir = f.prototypes
	}
	if set["data"] {
		tune.DataDir = f.dataDir
	}
	if set["seed"] {
		tune.DefaultSeed = f.seed
	}
	if set["log_level"] {
		tune.Log.Level = f.logLevel
	}
	return tune, tune.Validate()
}

func main() {
	f, set, err := parseFlags(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}
	if err := tuning.LoadDotEnv(f.envPath); err != nil {
		fatalStartup("load env", err)
	}
	tune, err := loadTuning(f, set, os.LookupEnv)
	if err != nil {
		fatalStartup("load tuning", err)
	}
	if err := logger.Init(tune.Log.Level, tune.Log.File); err != nil {
		fatalStartup("init logger", err)
	}
	defer logger.Sync()
	log := logger.Named("server")

	cats, err := catalogs.Load(tune.PrototypesDir)
	if err != nil {
		log.Fatal("load prototypes", zap.String("dir", tune.PrototypesDir), zap.Error(err))
	}
	log.Info("prototypes loaded", zap.String("dir", tune.PrototypesDir), zap.String("digest", cats.Digest), zap.Int("prototypes", len(cats.Digests)))

	if err := os.MkdirAll(tune.DataDir, 0o755); err != nil {
		log.Fatal("create data dir", zap.Error(err))
	}

	var idx *indexdb.SQLiteIndex
	if !f.disableDB {
		idx, err = indexdb.OpenSQLite(filepath.Join(tune.DataDir, "index", "tileforge.sqlite"))
		if err != nil {
			log.Fatal("open index", zap.Error(err))
		}
		defer idx.Close()
		if err := idx.UpsertCatalogs(cats, tune); err != nil {
			log.Warn("index catalogs", zap.Error(err))
		}
	}

	mirror, err := buildMirror(tune.DataDir, os.LookupEnv, logger.Named("mirror"))
	if err != nil {
		log.Fatal("init mirror", zap.Error(err))
	}
	defer mirror.Close()

	genLog := persistlog.NewGenerationLogger(tune.DataDir, logger.Named("genlog"))
	chunkLog := persistlog.NewChunkLogger(tune.DataDir, logger.Named("chunklog"))
	defer genLog.Close()
	defer chunkLog.Close()

	opts := world.Options{
		Logger:        logger.Named("world"),
		GenerationLog: generationTee{genLog, recorderOrNil(idx)},
		ChunkLog:      chunkTee{chunkLog, chunkRecorderOrNil(idx)},
	}
	w, err := restoreOrCreate(f, tune, cats, opts, log)
	if err != nil {
		log.Fatal("world", zap.Error(err))
	}

	ctx, cancel := signalContext()
	defer cancel()

	snapCh := make(chan snapshot.SnapshotV1, 2)
	w.SetSnapshotSink(snapCh)
	sw := &snapshotWriter{
		dataDir:      tune.DataDir,
		keep:         tune.SnapshotKeep,
		archiveEvery: uint64(tune.ArchiveEveryTicks),
		idx:          idx,
		mirror:       mirror,
		log:          logger.Named("snapshot"),
	}
	go sw.run(ctx, snapCh)

	worldDone := make(chan struct{})
	go func() {
		defer close(worldDone)
		if err := w.Run(ctx); err != nil && err != context.Canceled {
			log.Error("world stopped", zap.Error(err))
		}
	}()

	srv := &http.Server{
		Addr:              f.addr,
		Handler:           newMux(w, tune, mirror, f.pprof),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	log.Info("listening", zap.String("addr", f.addr), zap.String("world", w.ID()))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("listen", zap.Error(err))
		cancel()
	}
	<-worldDone
}

func newMux(w *world.World, tune tuning.Tuning, mirror *r2s3.Mirror, withPprof bool) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", metricsHandler(w, mirror))

	newAdminAPI(w, logger.Named("admin"), tune.DefaultSeed).register(mux)

	obs := observer.NewServer(w, logger.Named("observer"))
	mux.HandleFunc("/admin/v1/observer/bootstrap", obs.BootstrapHandler())
	mux.HandleFunc("/v1/observer/ws", obs.WSHandler())

	if withPprof {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	return mux
}

// restoreOrCreate resumes from a snapshot when one is given or found, else
// starts an empty world.
func restoreOrCreate(f serverFlags, tune tuning.Tuning, cats *catalogs.Catalogs, opts world.Options, log *zap.Logger) (*world.World, error) {
	cfg := world.ConfigFromTuning(f.worldID, tune)

	path := strings.TrimSpace(f.snapPath)
	if path == "" && f.loadLatest {
		latest, _, ok, err := archive.Latest(filepath.Join(tune.DataDir, "snapshots"))
		if err != nil {
			return nil, err
		}
		if ok {
			path = latest
		}
	}
	if path == "" {
		return world.New(cfg, cats, opts), nil
	}

	snap, err := snapshot.ReadSnapshot(path)
	if err != nil {
		return nil, err
	}
	if snap.Header.WorldID != "" && snap.Header.WorldID != f.worldID {
		log.Warn("snapshot from another world", zap.String("snapshot_world", snap.Header.WorldID), zap.String("world", f.worldID))
	}
	cfg.Seed = snap.Seed
	w := world.New(cfg, cats, opts)
	if err := w.ImportSnapshot(snap); err != nil {
		return nil, err
	}
	log.Info("resumed from snapshot", zap.String("path", filepath.Base(path)), zap.Uint64("tick", w.CurrentTick()),
		zap.Int("maps", len(snap.Maps)), zap.Int("biomes", len(snap.Biomes)))
	return w, nil
}

func buildMirror(dataDir string, lookup func(string) (string, bool), log *zap.Logger) (*r2s3.Mirror, error) {
	cfg, ok, err := r2s3.ConfigFromEnv(lookup)
	if !ok || err != nil {
		return nil, err
	}
	client, err := r2s3.New(cfg)
	if err != nil {
		return nil, err
	}
	log.Info("mirror enabled", zap.String("bucket", cfg.Bucket), zap.String("prefix", cfg.Prefix))
	return r2s3.NewMirror(client, dataDir, cfg.Prefix, cfg.Workers, log), nil
}

func recorderOrNil(idx *indexdb.SQLiteIndex) generation.Recorder {
	if idx == nil {
		return nil
	}
	return idx
}

func chunkRecorderOrNil(idx *indexdb.SQLiteIndex) biome.Recorder {
	if idx == nil {
		return nil
	}
	return idx
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func fatalStartup(what string, err error) {
	_, _ = os.Stderr.WriteString("tileforge: " + what + ": " + err.Error() + "\n")
	os.Exit(1)
}
