package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

const Version = 1

type Header struct {
	Version int    `json:"version"`
	WorldID string `json:"world_id"`
	Tick    uint64 `json:"tick"`
}

type SnapshotV1 struct {
	Header Header `json:"header"`

	Seed     int64 `json:"seed"`
	TickRate int   `json:"tick_rate_hz"`

	// CatalogDigest identifies the prototype set the maps were generated from.
	CatalogDigest string `json:"catalog_digest,omitempty"`

	Maps   []MapV1   `json:"maps"`
	Biomes []BiomeV1 `json:"biomes,omitempty"`
}

type MapV1 struct {
	ID         string     `json:"id"`
	Chunks     []ChunkV1  `json:"chunks"`
	Entities   []EntityV1 `json:"entities,omitempty"`
	Decals     []DecalV1  `json:"decals,omitempty"`
	NextEntity uint64     `json:"next_entity"`
	NextDecal  uint64     `json:"next_decal"`
}

type ChunkV1 struct {
	CX       int      `json:"cx"`
	CY       int      `json:"cy"`
	Size     int      `json:"size"`
	Types    []uint16 `json:"types"`
	Variants []uint8  `json:"variants"`
}

type EntityV1 struct {
	ID       uint64            `json:"id"`
	Proto    string            `json:"proto"`
	Pos      [2]float64        `json:"pos"`
	Rot      int               `json:"rot"`
	Anchored bool              `json:"anchored,omitempty"`
	Data     map[string]string `json:"data,omitempty"`
}

type DecalV1 struct {
	ID    uint64     `json:"id"`
	Proto string     `json:"proto"`
	Pos   [2]float64 `json:"pos"`
	Rot   int        `json:"rot"`
}

type BiomeV1 struct {
	MapID        string          `json:"map_id"`
	BiomeID      string          `json:"biome_id"`
	Seed         int64           `json:"seed"`
	Enabled      bool            `json:"enabled"`
	Layers       []LayerV1       `json:"layers"`
	Loaded       []LoadedChunkV1 `json:"loaded,omitempty"`
	Modified     [][2]int        `json:"modified,omitempty"`
	PreloadAreas [][4]int        `json:"preload_areas,omitempty"`
}

type LayerV1 struct {
	ID        string   `json:"id"`
	ChunkSize int      `json:"chunk_size"`
	DependsOn []string `json:"depends_on,omitempty"`
	Config    string   `json:"config,omitempty"`
	Template  string   `json:"template,omitempty"`
	CanUnload bool     `json:"can_unload"`
}

type LoadedChunkV1 struct {
	Layer    string           `json:"layer"`
	Origin   [2]int           `json:"origin"`
	Tiles    []LoadedTileV1   `json:"tiles,omitempty"`
	Entities []LoadedEntityV1 `json:"entities,omitempty"`
	Decals   []LoadedDecalV1  `json:"decals,omitempty"`
}

type LoadedTileV1 struct {
	Pos     [2]int `json:"pos"`
	Type    uint16 `json:"type"`
	Variant uint8  `json:"variant"`
}

type LoadedEntityV1 struct {
	ID   uint64            `json:"id"`
	Tile [2]int            `json:"tile"`
	Pos  [2]float64        `json:"pos"`
	Data map[string]string `json:"data,omitempty"`
}

type LoadedDecalV1 struct {
	ID  uint64     `json:"id"`
	Pos [2]float64 `json:"pos"`
}

func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	if snap.Header.Version == 0 {
		snap.Header.Version = Version
	}
	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		enc.Close()
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		enc.Close()
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		enc.Close()
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}

// ReadHeader decodes only the JSON header line.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()

	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("decode header: %w", err)
	}
	return h, nil
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	// Header line is duplicated inside the gob payload.
	_, _ = br.ReadBytes('\n')

	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("unsupported snapshot version %d", snap.Header.Version)
	}
	return snap, nil
}
