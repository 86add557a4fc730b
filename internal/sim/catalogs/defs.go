package catalogs

// Prototype kinds as they appear in the `type` field.
const (
	KindTile          = "tile"
	KindEntity        = "entity"
	KindDecal         = "decal"
	KindDungeonConfig = "dungeonConfig"
	KindRoom          = "dungeonRoom"
	KindRoomPack      = "dungeonRoomPack"
	KindPreset        = "dungeonPreset"
	KindBiomeTemplate = "biomeTemplate"
	KindMarkerLayer   = "biomeMarkerLayer"
	KindBiome         = "biome"
)

// SpaceTile is the empty tile. It always has palette index 0.
const SpaceTile = "Space"

type TileDef struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Variants int    `yaml:"variants"`
}

type EntityDef struct {
	ID       string            `yaml:"id"`
	Anchored bool              `yaml:"anchored"`
	Defaults map[string]string `yaml:"defaults"`
}

type DecalDef struct {
	ID string `yaml:"id"`
}

type DungeonConfigDef struct {
	ID        string        `yaml:"id"`
	Generator GeneratorSpec `yaml:"generator"`
	Layers    []PostGenSpec `yaml:"layers"`
	// MinOffset/MaxOffset shift the requested position by a random amount.
	MinOffset int `yaml:"min_offset"`
	MaxOffset int `yaml:"max_offset"`
	// ReserveTiles records generated floor as modified on biome maps.
	ReserveTiles bool `yaml:"reserve_tiles"`
}

type PlacedEntityDef struct {
	Proto string     `yaml:"proto"`
	Pos   [2]float64 `yaml:"pos"`
	Rot   int        `yaml:"rot"`
}

type PlacedDecalDef struct {
	Proto string     `yaml:"proto"`
	Pos   [2]float64 `yaml:"pos"`
	Rot   int        `yaml:"rot"`
}

// DungeonRoomDef is an ASCII room template. Rows run from y=0 upward and
// each character maps to a tile through Legend. '.' with no legend entry is
// left empty.
type DungeonRoomDef struct {
	ID       string            `yaml:"id"`
	Size     [2]int            `yaml:"size"`
	Tags     []string          `yaml:"tags"`
	Rows     []string          `yaml:"rows"`
	Legend   map[string]string `yaml:"legend"`
	Entities []PlacedEntityDef `yaml:"entities"`
	Decals   []PlacedDecalDef  `yaml:"decals"`
}

// RoomPackDef groups room slots inside a shared footprint.
type RoomPackDef struct {
	ID    string   `yaml:"id"`
	Size  [2]int   `yaml:"size"`
	Rooms [][4]int `yaml:"rooms"`
}

// PresetDef lays out pack slots. Slots whose edges meet across a one tile
// gap must be joined by any pack placed there.
type PresetDef struct {
	ID    string   `yaml:"id"`
	Packs [][4]int `yaml:"packs"`
}

type BiomeLayerKind string

const (
	BiomeLayerTile   BiomeLayerKind = "tile"
	BiomeLayerDecal  BiomeLayerKind = "decal"
	BiomeLayerEntity BiomeLayerKind = "entity"
	BiomeLayerDummy  BiomeLayerKind = "dummy"
)

type BiomeLayerDef struct {
	Kind      BiomeLayerKind `yaml:"kind"`
	Threshold float64        `yaml:"threshold"`
	Frequency float64        `yaml:"frequency"`
	Octaves   int32          `yaml:"octaves"`
	Invert    bool           `yaml:"invert"`
	// AllowedTiles restricts the layer to cells already holding one of these.
	AllowedTiles []string `yaml:"allowed_tiles"`
	Tiles        []string `yaml:"tiles"`
	Decals       []string `yaml:"decals"`
	Entities     []string `yaml:"entities"`
	// Chance thins decals and entities after the noise test.
	Chance float64 `yaml:"chance"`
}

type BiomeTemplateDef struct {
	ID     string          `yaml:"id"`
	Layers []BiomeLayerDef `yaml:"layers"`
}

type MarkerLayerDef struct {
	ID        string `yaml:"id"`
	Prototype string `yaml:"prototype"`
	// EntityMask maps an existing entity prototype to the one replacing it.
	EntityMask map[string]string `yaml:"entity_mask"`
	Min        int               `yaml:"min"`
	Max        int               `yaml:"max"`
}

type MetaLayerDef struct {
	ID        string   `yaml:"id"`
	ChunkSize int      `yaml:"chunk_size"`
	DependsOn []string `yaml:"depends_on"`
	Config    string   `yaml:"config"`
	Template  string   `yaml:"template"`
	CanUnload *bool    `yaml:"can_unload"`
}

// Unloadable defaults to true.
func (m MetaLayerDef) Unloadable() bool {
	return m.CanUnload == nil || *m.CanUnload
}

type BiomeDef struct {
	ID     string         `yaml:"id"`
	Layers []MetaLayerDef `yaml:"layers"`
}
