// Package archive manages snapshot files on disk: naming, finding the
// newest, keeping milestone copies and pruning old files.
package archive

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"tileforge.ai/internal/persistence/snapshot"
)

const snapSuffix = ".snap.zst"

type MilestoneMeta struct {
	Tick          uint64 `json:"tick"`
	Seed          int64  `json:"seed"`
	Snapshot      string `json:"snapshot"`
	Maps          int    `json:"maps"`
	Biomes        int    `json:"biomes"`
	CatalogDigest string `json:"catalog_digest,omitempty"`
	CreatedAt     string `json:"created_at"`
}

// SnapshotPath names the snapshot for tick inside dir.
func SnapshotPath(dir string, tick uint64) string {
	return filepath.Join(dir, strconv.FormatUint(tick, 10)+snapSuffix)
}

type entry struct {
	path string
	tick uint64
}

func list(dir string) ([]entry, error) {
	des, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []entry
	for _, de := range des {
		name := de.Name()
		if de.IsDir() || !strings.HasSuffix(name, snapSuffix) {
			continue
		}
		tick, err := strconv.ParseUint(strings.TrimSuffix(name, snapSuffix), 10, 64)
		if err != nil {
			continue
		}
		out = append(out, entry{path: filepath.Join(dir, name), tick: tick})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].tick < out[j].tick })
	return out, nil
}

// Latest returns the snapshot with the highest tick in dir. ok is false
// when dir holds none.
func Latest(dir string) (path string, tick uint64, ok bool, err error) {
	es, err := list(dir)
	if err != nil || len(es) == 0 {
		return "", 0, false, err
	}
	last := es[len(es)-1]
	return last.path, last.tick, true, nil
}

// Prune removes all but the newest keep snapshots from dir and returns the
// removed paths. keep <= 0 disables pruning.
func Prune(dir string, keep int) ([]string, error) {
	if keep <= 0 {
		return nil, nil
	}
	es, err := list(dir)
	if err != nil || len(es) <= keep {
		return nil, err
	}
	var removed []string
	for _, e := range es[:len(es)-keep] {
		if err := os.Remove(e.path); err != nil {
			return removed, err
		}
		removed = append(removed, e.path)
	}
	return removed, nil
}

// ArchiveMilestone copies the snapshot into dataDir/archives/tick_<N>/ when
// its tick is a multiple of every, and writes meta.json beside it.
func ArchiveMilestone(dataDir, snapshotPath string, snap snapshot.SnapshotV1, every uint64) (archivedPath string, archived bool, err error) {
	tick := snap.Header.Tick
	if every == 0 || tick == 0 || tick%every != 0 {
		return "", false, nil
	}
	dir := filepath.Join(dataDir, "archives", fmt.Sprintf("tick_%012d", tick))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", false, err
	}
	dst := filepath.Join(dir, filepath.Base(snapshotPath))
	if err := copyFile(snapshotPath, dst); err != nil {
		return "", false, err
	}

	meta := MilestoneMeta{
		Tick:          tick,
		Seed:          snap.Seed,
		Snapshot:      filepath.Base(dst),
		Maps:          len(snap.Maps),
		Biomes:        len(snap.Biomes),
		CatalogDigest: snap.CatalogDigest,
		CreatedAt:     time.Now().UTC().Format(time.RFC3339Nano),
	}
	b, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return dst, true, err
	}
	if err := os.WriteFile(filepath.Join(dir, "meta.json"), b, 0o644); err != nil {
		return dst, true, err
	}
	return dst, true, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
