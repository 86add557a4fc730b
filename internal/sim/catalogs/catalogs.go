package catalogs

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Catalogs is the read-only prototype set. A reload builds a new value.
type Catalogs struct {
	Dir string

	Tiles          TileCatalog
	Entities       map[string]EntityDef
	Decals         map[string]DecalDef
	DungeonConfigs map[string]DungeonConfigDef
	Rooms          map[string]DungeonRoomDef
	RoomPacks      map[string]RoomPackDef
	Presets        map[string]PresetDef
	BiomeTemplates map[string]BiomeTemplateDef
	MarkerLayers   map[string]MarkerLayerDef
	Biomes         map[string]BiomeDef

	// Digests holds one digest per prototype, keyed by Ref.
	Digests map[Ref]string
	// Digest covers every prototype file in load order.
	Digest string
}

// Ref names one prototype.
type Ref struct {
	Kind string
	ID   string
}

func (r Ref) String() string { return r.Kind + "/" + r.ID }

type TileCatalog struct {
	Palette       []string
	Index         map[string]uint16
	Defs          map[string]TileDef
	PaletteDigest string
}

// TileID returns the palette index of a tile prototype.
func (c *Catalogs) TileID(id string) (uint16, bool) {
	v, ok := c.Tiles.Index[id]
	return v, ok
}

// TileName returns the prototype id of a palette index.
func (c *Catalogs) TileName(v uint16) string {
	if int(v) >= len(c.Tiles.Palette) {
		return ""
	}
	return c.Tiles.Palette[v]
}

func newCatalogs(dir string) *Catalogs {
	return &Catalogs{
		Dir:            dir,
		Tiles:          TileCatalog{Defs: map[string]TileDef{}},
		Entities:       map[string]EntityDef{},
		Decals:         map[string]DecalDef{},
		DungeonConfigs: map[string]DungeonConfigDef{},
		Rooms:          map[string]DungeonRoomDef{},
		RoomPacks:      map[string]RoomPackDef{},
		Presets:        map[string]PresetDef{},
		BiomeTemplates: map[string]BiomeTemplateDef{},
		MarkerLayers:   map[string]MarkerLayerDef{},
		Biomes:         map[string]BiomeDef{},
		Digests:        map[Ref]string{},
	}
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Load reads every .yml/.yaml file under dir. Each file holds a sequence of
// prototype documents tagged by `type`.
func Load(dir string) (*Catalogs, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.HasSuffix(d.Name(), ".yml") || strings.HasSuffix(d.Name(), ".yaml") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("prototypes %s: %w", dir, err)
	}
	sort.Strings(files)

	c := newCatalogs(dir)
	var concat bytes.Buffer
	for _, p := range files {
		b, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		concat.Write(b)
		concat.WriteByte('\n')
		if err := c.loadFile(filepath.Base(p), b); err != nil {
			return nil, err
		}
	}
	c.Digest = sha256Hex(concat.Bytes())

	if err := c.buildPalette(); err != nil {
		return nil, err
	}
	if err := c.check(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Catalogs) loadFile(name string, b []byte) error {
	var root yaml.Node
	if err := yaml.Unmarshal(b, &root); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if len(root.Content) == 0 {
		return nil
	}
	seq := root.Content[0]
	if seq.Kind != yaml.SequenceNode {
		return fmt.Errorf("%s: expected a list of prototypes", name)
	}
	for i, node := range seq.Content {
		var doc map[string]any
		if err := node.Decode(&doc); err != nil {
			return fmt.Errorf("%s[%d]: %w", name, i, err)
		}
		canon, err := validateDoc(doc)
		if err != nil {
			return fmt.Errorf("%s[%d]: %w", name, i, err)
		}
		kind, _ := doc["type"].(string)
		id, _ := doc["id"].(string)
		ref := Ref{Kind: kind, ID: id}
		if _, dup := c.Digests[ref]; dup {
			return fmt.Errorf("%s[%d]: duplicate prototype %s", name, i, ref)
		}
		if err := c.decode(kind, id, node); err != nil {
			return fmt.Errorf("%s[%d] %s: %w", name, i, ref, err)
		}
		c.Digests[ref] = sha256Hex(canon)
	}
	return nil
}

func (c *Catalogs) decode(kind, id string, node *yaml.Node) error {
	switch kind {
	case KindTile:
		var d TileDef
		if err := node.Decode(&d); err != nil {
			return err
		}
		c.Tiles.Defs[id] = d
	case KindEntity:
		var d EntityDef
		if err := node.Decode(&d); err != nil {
			return err
		}
		c.Entities[id] = d
	case KindDecal:
		var d DecalDef
		if err := node.Decode(&d); err != nil {
			return err
		}
		c.Decals[id] = d
	case KindDungeonConfig:
		var d DungeonConfigDef
		if err := node.Decode(&d); err != nil {
			return err
		}
		c.DungeonConfigs[id] = d
	case KindRoom:
		var d DungeonRoomDef
		if err := node.Decode(&d); err != nil {
			return err
		}
		c.Rooms[id] = d
	case KindRoomPack:
		var d RoomPackDef
		if err := node.Decode(&d); err != nil {
			return err
		}
		c.RoomPacks[id] = d
	case KindPreset:
		var d PresetDef
		if err := node.Decode(&d); err != nil {
			return err
		}
		c.Presets[id] = d
	case KindBiomeTemplate:
		var d BiomeTemplateDef
		if err := node.Decode(&d); err != nil {
			return err
		}
		c.BiomeTemplates[id] = d
	case KindMarkerLayer:
		var d MarkerLayerDef
		if err := node.Decode(&d); err != nil {
			return err
		}
		c.MarkerLayers[id] = d
	case KindBiome:
		var d BiomeDef
		if err := node.Decode(&d); err != nil {
			return err
		}
		c.Biomes[id] = d
	default:
		return fmt.Errorf("unknown prototype type %q", kind)
	}
	return nil
}

func (c *Catalogs) buildPalette() error {
	if _, ok := c.Tiles.Defs[SpaceTile]; !ok {
		c.Tiles.Defs[SpaceTile] = TileDef{ID: SpaceTile, Name: "space"}
	}
	ids := make([]string, 0, len(c.Tiles.Defs))
	for id := range c.Tiles.Defs {
		if id != SpaceTile {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	ids = append([]string{SpaceTile}, ids...)
	if len(ids) > 1<<16 {
		return fmt.Errorf("tile palette too large: %d", len(ids))
	}
	c.Tiles.Palette = ids
	c.Tiles.Index = make(map[string]uint16, len(ids))
	for i, id := range ids {
		c.Tiles.Index[id] = uint16(i)
	}
	palJSON, _ := json.Marshal(ids)
	c.Tiles.PaletteDigest = sha256Hex(palJSON)
	return nil
}

// check resolves references between prototypes that the schema cannot see.
func (c *Catalogs) check() error {
	for id, r := range c.Rooms {
		if len(r.Rows) != r.Size[1] {
			return fmt.Errorf("dungeonRoom %s: %d rows, size says %d", id, len(r.Rows), r.Size[1])
		}
		for i, row := range r.Rows {
			if len(row) != r.Size[0] {
				return fmt.Errorf("dungeonRoom %s: row %d has width %d, size says %d", id, i, len(row), r.Size[0])
			}
		}
		for ch, tile := range r.Legend {
			if _, ok := c.Tiles.Index[tile]; !ok {
				return fmt.Errorf("dungeonRoom %s: legend %q uses unknown tile %q", id, ch, tile)
			}
		}
		for _, e := range r.Entities {
			if _, ok := c.Entities[e.Proto]; !ok {
				return fmt.Errorf("dungeonRoom %s: unknown entity %q", id, e.Proto)
			}
		}
		for _, d := range r.Decals {
			if _, ok := c.Decals[d.Proto]; !ok {
				return fmt.Errorf("dungeonRoom %s: unknown decal %q", id, d.Proto)
			}
		}
	}
	for id, b := range c.Biomes {
		for _, l := range b.Layers {
			if l.Config == "" && l.Template == "" {
				return fmt.Errorf("biome %s: layer %s needs config or template", id, l.ID)
			}
			if l.Config != "" {
				if _, ok := c.DungeonConfigs[l.Config]; !ok {
					return fmt.Errorf("biome %s: layer %s: unknown dungeonConfig %q", id, l.ID, l.Config)
				}
			}
			if l.Template != "" {
				if _, ok := c.BiomeTemplates[l.Template]; !ok {
					return fmt.Errorf("biome %s: layer %s: unknown biomeTemplate %q", id, l.ID, l.Template)
				}
			}
		}
	}
	return nil
}
