// Package indexdb keeps a queryable sqlite index next to the JSONL logs and
// snapshot files. The logs remain the source of truth.
package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"tileforge.ai/internal/persistence/snapshot"
	"tileforge.ai/internal/sim/biome"
	"tileforge.ai/internal/sim/catalogs"
	"tileforge.ai/internal/sim/generation"
	"tileforge.ai/internal/sim/tuning"
)

type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool
}

var (
	_ generation.Recorder = (*SQLiteIndex)(nil)
	_ biome.Recorder      = (*SQLiteIndex)(nil)
)

type reqKind int

const (
	reqGeneration reqKind = iota + 1
	reqChunk
	reqSnapshot
)

type req struct {
	kind reqKind
	at   string

	gen      generation.Record
	chunk    biome.ChunkEvent
	snapshot snapshotRow
}

type snapshotRow struct {
	Tick          uint64
	Path          string
	Seed          int64
	Maps          int
	Biomes        int
	CatalogDigest string
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		// Streaming can emit bursts of chunk events.
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS catalogs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS generations (
			job_id TEXT PRIMARY KEY,
			config TEXT NOT NULL,
			map TEXT NOT NULL,
			seed INTEGER NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			state TEXT NOT NULL,
			rooms INTEGER NOT NULL,
			tiles INTEGER NOT NULL,
			warnings TEXT,
			error TEXT,
			duration_ms INTEGER NOT NULL,
			finished_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_generations_map ON generations(map, finished_at);`,
		`CREATE TABLE IF NOT EXISTS chunk_events (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			at TEXT NOT NULL,
			kind TEXT NOT NULL,
			map TEXT NOT NULL,
			biome TEXT NOT NULL,
			layer TEXT NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			size INTEGER NOT NULL,
			tiles INTEGER NOT NULL,
			entities INTEGER NOT NULL,
			decals INTEGER NOT NULL,
			modified INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_chunk_events_map ON chunk_events(map, layer, x, y);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			tick INTEGER PRIMARY KEY,
			path TEXT NOT NULL,
			seed INTEGER NOT NULL,
			maps INTEGER NOT NULL,
			biomes INTEGER NOT NULL,
			catalog_digest TEXT NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) send(r req) {
	if s == nil || s.closed.Load() {
		return
	}
	r.at = time.Now().UTC().Format(time.RFC3339Nano)
	select {
	case s.ch <- r:
	default:
		// Drop if the indexer falls behind; JSONL logs remain the source of truth.
	}
}

func (s *SQLiteIndex) RecordGeneration(rec generation.Record) {
	s.send(req{kind: reqGeneration, gen: rec})
}

func (s *SQLiteIndex) RecordChunk(ev biome.ChunkEvent) {
	s.send(req{kind: reqChunk, chunk: ev})
}

func (s *SQLiteIndex) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	s.send(req{kind: reqSnapshot, snapshot: snapshotRow{
		Tick:          snap.Header.Tick,
		Path:          path,
		Seed:          snap.Seed,
		Maps:          len(snap.Maps),
		Biomes:        len(snap.Biomes),
		CatalogDigest: snap.CatalogDigest,
	}})
}

// UpsertCatalogs stores one row per prototype digest plus the tile palette
// and the applied tuning.
func (s *SQLiteIndex) UpsertCatalogs(cats *catalogs.Catalogs, tune tuning.Tuning) error {
	if s == nil {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	type kv struct {
		name   string
		digest string
		json   []byte
	}
	var rows []kv
	for ref, d := range cats.Digests {
		b, _ := json.Marshal(map[string]string{"kind": ref.Kind, "id": ref.ID})
		rows = append(rows, kv{name: "proto:" + ref.String(), digest: d, json: b})
	}
	if b, _ := json.Marshal(cats.Tiles.Palette); len(b) > 0 {
		rows = append(rows, kv{name: "tile_palette", digest: cats.Tiles.PaletteDigest, json: b})
	}
	{
		b, _ := json.Marshal(tune)
		sum := sha256.Sum256(b)
		rows = append(rows, kv{name: "tuning", digest: hex.EncodeToString(sum[:]), json: b})
	}

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('catalog_digest',?)`, cats.Digest); err != nil {
		return err
	}
	// Prototypes removed by a reload must not linger.
	if _, err := tx.Exec(`DELETE FROM catalogs WHERE name LIKE 'proto:%'`); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO catalogs(name,digest,json,updated_at) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range rows {
		if r.name == "" || r.digest == "" || len(r.json) == 0 {
			continue
		}
		if _, err := stmt.Exec(r.name, r.digest, string(r.json), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertGen, _ := s.db.Prepare(`INSERT OR REPLACE INTO generations(job_id,config,map,seed,x,y,state,rooms,tiles,warnings,error,duration_ms,finished_at) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	insertChunk, _ := s.db.Prepare(`INSERT INTO chunk_events(at,kind,map,biome,layer,x,y,size,tiles,entities,decals,modified) VALUES(?,?,?,?,?,?,?,?,?,?,?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(tick,path,seed,maps,biomes,catalog_digest) VALUES(?,?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertGen, insertChunk, insertSnapshot} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 1000
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	exec := func(st *sql.Stmt, args ...any) {
		if st == nil {
			return
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			rollback()
			return
		}
		opCount++
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqGeneration:
			g := r.gen
			exec(insertGen,
				g.JobID, g.Config, g.Map, g.Seed,
				g.Position[0], g.Position[1],
				g.State, g.Rooms, g.Tiles,
				strings.Join(g.Warnings, "\n"), g.Error,
				g.DurationMS, g.FinishedAt,
			)
		case reqChunk:
			c := r.chunk
			exec(insertChunk,
				r.at, c.Kind, c.MapID, c.BiomeID, c.Layer,
				c.Origin.X, c.Origin.Y, c.Size,
				c.Tiles, c.Entities, c.Decals, c.Modified,
			)
		case reqSnapshot:
			sn := r.snapshot
			exec(insertSnapshot, int64(sn.Tick), sn.Path, sn.Seed, sn.Maps, sn.Biomes, sn.CatalogDigest)
		}
		if tx != nil && (opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait) {
			commit()
		}
	}

	commit()
}
