package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"

	"tileforge.ai/internal/persistence/archive"
	"tileforge.ai/internal/persistence/snapshot"
)

func main() {
	if len(os.Args) < 2 {
		usageExit("admin <command> [flags]\n\ncommands: state snapshot reload cancel dungen map biome inspect snapshots logs db")
	}
	args := os.Args[2:]
	switch os.Args[1] {
	case "state":
		stateCmd(args)
	case "snapshot":
		snapshotCmd(args)
	case "reload":
		reloadCmd(args)
	case "cancel":
		cancelCmd(args)
	case "dungen":
		dungenCmd(args)
	case "map":
		mapCmd(args)
	case "biome":
		biomeCmd(args)
	case "inspect":
		inspectCmd(args)
	case "snapshots":
		listCmd(args)
	case "logs":
		logsCmd(args)
	case "db":
		dbCmd(args)
	default:
		usageExit("unknown command " + os.Args[1])
	}
}

func usageExit(msg string) {
	fmt.Fprintln(os.Stderr, "usage:", msg)
	os.Exit(2)
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("snapshots", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	_ = fs.Parse(args)

	dir := filepath.Join(*dataDir, "snapshots")
	entries, err := os.ReadDir(dir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		h, err := snapshot.ReadHeader(filepath.Join(dir, e.Name()))
		if err != nil {
			fmt.Printf("%s\terror=%v\n", e.Name(), err)
			continue
		}
		fmt.Printf("%s\tworld=%s\ttick=%d\n", e.Name(), h.WorldID, h.Tick)
	}
}

type inspectSummary struct {
	Path          string         `json:"path"`
	WorldID       string         `json:"world_id"`
	Tick          uint64         `json:"tick"`
	Seed          int64          `json:"seed"`
	CatalogDigest string         `json:"catalog_digest,omitempty"`
	Maps          []inspectMap   `json:"maps"`
	Biomes        []inspectBiome `json:"biomes,omitempty"`
}

type inspectMap struct {
	ID       string `json:"id"`
	Chunks   int    `json:"chunks"`
	Tiles    int    `json:"tiles"`
	Entities int    `json:"entities"`
	Decals   int    `json:"decals"`
}

type inspectBiome struct {
	Map      string         `json:"map"`
	Biome    string         `json:"biome"`
	Enabled  bool           `json:"enabled"`
	Layers   []string       `json:"layers"`
	Loaded   map[string]int `json:"loaded"`
	Modified int            `json:"modified"`
}

func summarize(path string, snap snapshot.SnapshotV1) inspectSummary {
	out := inspectSummary{
		Path:          path,
		WorldID:       snap.Header.WorldID,
		Tick:          snap.Header.Tick,
		Seed:          snap.Seed,
		CatalogDigest: snap.CatalogDigest,
	}
	for _, m := range snap.Maps {
		im := inspectMap{ID: m.ID, Chunks: len(m.Chunks), Entities: len(m.Entities), Decals: len(m.Decals)}
		for _, ch := range m.Chunks {
			for _, t := range ch.Types {
				if t != 0 {
					im.Tiles++
				}
			}
		}
		out.Maps = append(out.Maps, im)
	}
	for _, b := range snap.Biomes {
		ib := inspectBiome{Map: b.MapID, Biome: b.BiomeID, Enabled: b.Enabled, Loaded: map[string]int{}, Modified: len(b.Modified)}
		for _, l := range b.Layers {
			ib.Layers = append(ib.Layers, l.ID)
		}
		for _, c := range b.Loaded {
			ib.Loaded[c.Layer]++
		}
		out.Biomes = append(out.Biomes, ib)
	}
	return out
}

// inspectCmd summarises a snapshot file without a running server.
func inspectCmd(args []string) {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	_ = fs.Parse(args)

	path := fs.Arg(0)
	if path == "" {
		latest, _, ok, err := archive.Latest(filepath.Join(*dataDir, "snapshots"))
		if err != nil || !ok {
			fmt.Fprintln(os.Stderr, "no snapshot found; pass a path or run the server until it writes one")
			os.Exit(2)
		}
		path = latest
	}
	snap, err := snapshot.ReadSnapshot(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(summarize(path, snap))
}

// logsCmd prints generation or chunk log records, oldest first.
func logsCmd(args []string) {
	fs := flag.NewFlagSet("logs", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	mapID := fs.String("map", "", "map id filter")
	_ = fs.Parse(args)

	kind := "generations"
	if fs.NArg() > 0 {
		kind = fs.Arg(0)
	}
	if kind != "generations" && kind != "chunks" {
		usageExit("logs [-data d] [-map m] generations|chunks")
	}
	if err := readLogs(filepath.Join(*dataDir, kind), kind+"-", *mapID, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "read logs:", err)
		os.Exit(1)
	}
}

func readLogs(dir, prefix, mapID string, out io.Writer) error {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	var names []string
	for _, e := range ents {
		if !e.IsDir() && strings.HasPrefix(e.Name(), prefix) && strings.HasSuffix(e.Name(), ".jsonl.zst") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		if err := readLogFile(filepath.Join(dir, name), mapID, out); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

func readLogFile(path, mapID string, out io.Writer) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)
	for sc.Scan() {
		if mapID != "" {
			var rec struct {
				Map   string `json:"map"`
				MapID string `json:"map_id"`
			}
			if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
				return err
			}
			if rec.Map != mapID && rec.MapID != mapID {
				continue
			}
		}
		fmt.Fprintln(out, sc.Text())
	}
	return sc.Err()
}

func parseInt64(s string) (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(s), 10, 64)
}

func parseVec2(s string) ([2]int, error) {
	var v [2]int
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) != 2 {
		return v, fmt.Errorf("expected x,y")
	}
	for i := 0; i < 2; i++ {
		n, err := strconv.Atoi(strings.TrimSpace(parts[i]))
		if err != nil {
			return v, err
		}
		v[i] = n
	}
	return v, nil
}

// parseBox reads "x1,y1:x2,y2" and orders the corners.
func parseBox(s string) (lo, hi [2]int, err error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return lo, hi, fmt.Errorf("expected x1,y1:x2,y2")
	}
	a, err := parseVec2(parts[0])
	if err != nil {
		return lo, hi, err
	}
	b, err := parseVec2(parts[1])
	if err != nil {
		return lo, hi, err
	}
	for i := 0; i < 2; i++ {
		lo[i], hi[i] = min(a[i], b[i]), max(a[i], b[i])
	}
	return lo, hi, nil
}
