package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"tileforge.ai/internal/persistence/indexdb"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	limit := fs.Int("limit", 20, "result limit")
	mapID := fs.String("map", "", "map id filter (generations, chunks)")
	_ = fs.Parse(args)

	q := "snapshots"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		path = filepath.Join(*dataDir, "index", "tileforge.sqlite")
	}
	r, err := indexdb.OpenReader(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open db:", err)
		os.Exit(1)
	}
	defer r.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	out, err := queryIndex(ctx, r, q, *mapID, *limit)
	if err != nil {
		fmt.Fprintln(os.Stderr, "query:", err)
		os.Exit(1)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(out)
}

func queryIndex(ctx context.Context, r *indexdb.Reader, q, mapID string, limit int) (any, error) {
	switch q {
	case "snapshots":
		return r.Snapshots(ctx, limit)
	case "latest":
		row, ok, err := r.LatestSnapshot(ctx)
		if err != nil || !ok {
			return nil, err
		}
		return row, nil
	case "generations":
		return r.Generations(ctx, mapID, limit)
	case "chunks":
		return r.ChunkEvents(ctx, mapID, limit)
	case "catalogs":
		return r.Catalogs(ctx)
	default:
		return nil, fmt.Errorf("unknown query %q (snapshots|latest|generations|chunks|catalogs)", q)
	}
}
