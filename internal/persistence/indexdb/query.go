package indexdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
)

// Reader queries an index database. It may be opened while a server is
// writing to the same file.
type Reader struct {
	db *sql.DB
}

func OpenReader(path string) (*Reader, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000;"); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Reader{db: db}, nil
}

func (r *Reader) Close() error { return r.db.Close() }

type SnapshotRow struct {
	Tick          uint64 `json:"tick"`
	Path          string `json:"path"`
	Seed          int64  `json:"seed"`
	Maps          int    `json:"maps"`
	Biomes        int    `json:"biomes"`
	CatalogDigest string `json:"catalog_digest"`
}

type GenerationRow struct {
	JobID      string   `json:"job_id"`
	Config     string   `json:"config"`
	Map        string   `json:"map"`
	Seed       int64    `json:"seed"`
	Position   [2]int   `json:"position"`
	State      string   `json:"state"`
	Rooms      int      `json:"rooms"`
	Tiles      int      `json:"tiles"`
	Warnings   []string `json:"warnings,omitempty"`
	Error      string   `json:"error,omitempty"`
	DurationMS int64    `json:"duration_ms"`
	FinishedAt string   `json:"finished_at"`
}

type ChunkEventRow struct {
	Seq      int64  `json:"seq"`
	At       string `json:"at"`
	Kind     string `json:"kind"`
	Map      string `json:"map"`
	Biome    string `json:"biome"`
	Layer    string `json:"layer"`
	Origin   [2]int `json:"origin"`
	Size     int    `json:"size"`
	Tiles    int    `json:"tiles"`
	Entities int    `json:"entities"`
	Decals   int    `json:"decals"`
	Modified int    `json:"modified"`
}

type CatalogRow struct {
	Name      string `json:"name"`
	Digest    string `json:"digest"`
	UpdatedAt string `json:"updated_at"`
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	return min(limit, 10000)
}

func (r *Reader) Snapshots(ctx context.Context, limit int) ([]SnapshotRow, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT tick,path,seed,maps,biomes,catalog_digest FROM snapshots ORDER BY tick DESC LIMIT ?`, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()
	var out []SnapshotRow
	for rows.Next() {
		var s SnapshotRow
		var tick int64
		if err := rows.Scan(&tick, &s.Path, &s.Seed, &s.Maps, &s.Biomes, &s.CatalogDigest); err != nil {
			return nil, err
		}
		s.Tick = uint64(tick)
		out = append(out, s)
	}
	return out, rows.Err()
}

// LatestSnapshot returns the newest indexed snapshot. ok is false when none
// exists.
func (r *Reader) LatestSnapshot(ctx context.Context) (SnapshotRow, bool, error) {
	rows, err := r.Snapshots(ctx, 1)
	if err != nil || len(rows) == 0 {
		return SnapshotRow{}, false, err
	}
	return rows[0], true, nil
}

// Generations lists finished dungeon jobs, newest first. mapID filters when
// set.
func (r *Reader) Generations(ctx context.Context, mapID string, limit int) ([]GenerationRow, error) {
	q := `SELECT job_id,config,map,seed,x,y,state,rooms,tiles,warnings,error,duration_ms,finished_at FROM generations`
	args := []any{}
	if mapID != "" {
		q += ` WHERE map=?`
		args = append(args, mapID)
	}
	q += ` ORDER BY finished_at DESC, job_id LIMIT ?`
	args = append(args, clampLimit(limit))

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query generations: %w", err)
	}
	defer rows.Close()
	var out []GenerationRow
	for rows.Next() {
		var g GenerationRow
		var warnings, errText sql.NullString
		if err := rows.Scan(&g.JobID, &g.Config, &g.Map, &g.Seed, &g.Position[0], &g.Position[1],
			&g.State, &g.Rooms, &g.Tiles, &warnings, &errText, &g.DurationMS, &g.FinishedAt); err != nil {
			return nil, err
		}
		if warnings.String != "" {
			g.Warnings = strings.Split(warnings.String, "\n")
		}
		g.Error = errText.String
		out = append(out, g)
	}
	return out, rows.Err()
}

// ChunkEvents lists chunk events, newest first.
func (r *Reader) ChunkEvents(ctx context.Context, mapID string, limit int) ([]ChunkEventRow, error) {
	q := `SELECT seq,at,kind,map,biome,layer,x,y,size,tiles,entities,decals,modified FROM chunk_events`
	args := []any{}
	if mapID != "" {
		q += ` WHERE map=?`
		args = append(args, mapID)
	}
	q += ` ORDER BY seq DESC LIMIT ?`
	args = append(args, clampLimit(limit))

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query chunk events: %w", err)
	}
	defer rows.Close()
	var out []ChunkEventRow
	for rows.Next() {
		var c ChunkEventRow
		if err := rows.Scan(&c.Seq, &c.At, &c.Kind, &c.Map, &c.Biome, &c.Layer, &c.Origin[0], &c.Origin[1],
			&c.Size, &c.Tiles, &c.Entities, &c.Decals, &c.Modified); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *Reader) Catalogs(ctx context.Context) ([]CatalogRow, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT name,digest,updated_at FROM catalogs ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query catalogs: %w", err)
	}
	defer rows.Close()
	var out []CatalogRow
	for rows.Next() {
		var c CatalogRow
		if err := rows.Scan(&c.Name, &c.Digest, &c.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
