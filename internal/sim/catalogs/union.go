package catalogs

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

type GeneratorKind string

const (
	GenPrefab        GeneratorKind = "prefab"
	GenNoise         GeneratorKind = "noise"
	GenNoiseDistance GeneratorKind = "noiseDistance"
	GenWorm          GeneratorKind = "worm"
	GenRandomWalk    GeneratorKind = "randomWalk"
	GenBSP           GeneratorKind = "bsp"
)

// GeneratorSpec is a closed union. Kind selects which payload is set. An
// unrecognised kind decodes with no payload.
type GeneratorSpec struct {
	Kind GeneratorKind

	Prefab        *PrefabGen
	Noise         *NoiseGen
	NoiseDistance *NoiseDistanceGen
	Worm          *WormGen
	RandomWalk    *RandomWalkGen
	BSP           *BSPGen
}

type PrefabGen struct {
	Presets []string `yaml:"presets"`
	// RoomWhitelist limits rooms to those carrying one of these tags.
	RoomWhitelist []string `yaml:"room_whitelist"`
}

type NoiseLayer struct {
	Tile      string  `yaml:"tile"`
	Threshold float64 `yaml:"threshold"`
	Frequency float64 `yaml:"frequency"`
	Octaves   int32   `yaml:"octaves"`
}

type NoiseGen struct {
	Bounds     [4]int       `yaml:"bounds"`
	TileCap    int          `yaml:"tile_cap"`
	SeedPoints int          `yaml:"seed_points"`
	Layers     []NoiseLayer `yaml:"layers"`
}

type DistanceFunc string

const (
	DistanceEuclideanSquared DistanceFunc = "euclideanSquared"
	DistanceSquareBump       DistanceFunc = "squareBump"
)

type NoiseDistanceGen struct {
	NoiseGen    `yaml:",inline"`
	Distance    DistanceFunc `yaml:"distance"`
	BlendWeight float64      `yaml:"blend_weight"`
	// Size is the falloff extent around the origin.
	Size [2]int `yaml:"size"`
}

type WormGen struct {
	Count          int     `yaml:"count"`
	Length         int     `yaml:"length"`
	Width          int     `yaml:"width"`
	MaxAngleChange float64 `yaml:"max_angle_change"`
	Tile           string  `yaml:"tile"`
}

type RandomWalkGen struct {
	Position                [2]int `yaml:"position"`
	Steps                   int    `yaml:"steps"`
	Iterations              int    `yaml:"iterations"`
	StartFromRandomPosition bool   `yaml:"start_from_random_position"`
	Tile                    string `yaml:"tile"`
}

type BSPGen struct {
	Bounds                [4]int `yaml:"bounds"`
	MinimumRoomDimensions [2]int `yaml:"minimum_room_dimensions"`
	Padding               int    `yaml:"padding"`
	Tile                  string `yaml:"tile"`
	CorridorTile          string `yaml:"corridor_tile"`
	WallTile              string `yaml:"wall_tile"`
}

func (g *GeneratorSpec) UnmarshalYAML(node *yaml.Node) error {
	var head struct {
		Kind GeneratorKind `yaml:"kind"`
	}
	if err := node.Decode(&head); err != nil {
		return err
	}
	*g = GeneratorSpec{Kind: head.Kind}
	switch head.Kind {
	case GenPrefab:
		g.Prefab = &PrefabGen{}
		return node.Decode(g.Prefab)
	case GenNoise:
		g.Noise = &NoiseGen{}
		return node.Decode(g.Noise)
	case GenNoiseDistance:
		g.NoiseDistance = &NoiseDistanceGen{}
		return node.Decode(g.NoiseDistance)
	case GenWorm:
		g.Worm = &WormGen{}
		return node.Decode(g.Worm)
	case GenRandomWalk:
		g.RandomWalk = &RandomWalkGen{}
		return node.Decode(g.RandomWalk)
	case GenBSP:
		g.BSP = &BSPGen{}
		return node.Decode(g.BSP)
	case "":
		return fmt.Errorf("generator: missing kind")
	}
	return nil
}

type PostGenKind string

const (
	PostBoundaryWall     PostGenKind = "boundaryWall"
	PostEntrance         PostGenKind = "entrance"
	PostMiddleConnection PostGenKind = "middleConnection"
	PostWormCorridor     PostGenKind = "wormCorridor"
	PostCorridor         PostGenKind = "corridor"
	PostCorridorClutter  PostGenKind = "corridorClutter"
	PostBiome            PostGenKind = "biome"
	PostBiomeMarkerLayer PostGenKind = "biomeMarkerLayer"
)

// PostGenSpec is a closed union like GeneratorSpec.
type PostGenSpec struct {
	Kind PostGenKind

	BoundaryWall     *BoundaryWallPost
	Entrance         *EntrancePost
	MiddleConnection *MiddleConnectionPost
	WormCorridor     *WormCorridorPost
	Corridor         *CorridorPost
	CorridorClutter  *CorridorClutterPost
	Biome            *BiomePost
	BiomeMarkerLayer *BiomeMarkerLayerPost
}

type BoundaryWallPost struct {
	Tile       string `yaml:"tile"`
	Wall       string `yaml:"wall"`
	CornerWall string `yaml:"corner_wall"`
	Corridors  bool   `yaml:"corridors"`
}

type EntrancePost struct {
	Count       int    `yaml:"count"`
	Tile        string `yaml:"tile"`
	Door        string `yaml:"door"`
	ClearRadius int    `yaml:"clear_radius"`
}

type MiddleConnectionPost struct {
	Count int    `yaml:"count"`
	Width int    `yaml:"width"`
	Tile  string `yaml:"tile"`
	Door  string `yaml:"door"`
	// Flank entities are spawned on both sides of each door cluster.
	Flank string `yaml:"flank"`
}

type WormCorridorPost struct {
	Count          int     `yaml:"count"`
	Length         int     `yaml:"length"`
	Width          int     `yaml:"width"`
	MaxAngleChange float64 `yaml:"max_angle_change"`
	PathLimit      int     `yaml:"path_limit"`
	Tile           string  `yaml:"tile"`
}

type CorridorPost struct {
	Width     int    `yaml:"width"`
	PathLimit int    `yaml:"path_limit"`
	Tile      string `yaml:"tile"`
}

type CorridorClutterPost struct {
	Chance   float64  `yaml:"chance"`
	Entities []string `yaml:"entities"`
}

type BiomePost struct {
	Template string `yaml:"template"`
}

type BiomeMarkerLayerPost struct {
	MarkerLayers []string `yaml:"marker_layers"`
}

func (p *PostGenSpec) UnmarshalYAML(node *yaml.Node) error {
	var head struct {
		Kind PostGenKind `yaml:"kind"`
	}
	if err := node.Decode(&head); err != nil {
		return err
	}
	*p = PostGenSpec{Kind: head.Kind}
	switch head.Kind {
	case PostBoundaryWall:
		p.BoundaryWall = &BoundaryWallPost{}
		return node.Decode(p.BoundaryWall)
	case PostEntrance:
		p.Entrance = &EntrancePost{}
		return node.Decode(p.Entrance)
	case PostMiddleConnection:
		p.MiddleConnection = &MiddleConnectionPost{}
		return node.Decode(p.MiddleConnection)
	case PostWormCorridor:
		p.WormCorridor = &WormCorridorPost{}
		return node.Decode(p.WormCorridor)
	case PostCorridor:
		p.Corridor = &CorridorPost{}
		return node.Decode(p.Corridor)
	case PostCorridorClutter:
		p.CorridorClutter = &CorridorClutterPost{}
		return node.Decode(p.CorridorClutter)
	case PostBiome:
		p.Biome = &BiomePost{}
		return node.Decode(p.Biome)
	case PostBiomeMarkerLayer:
		p.BiomeMarkerLayer = &BiomeMarkerLayerPost{}
		return node.Decode(p.BiomeMarkerLayer)
	case "":
		return fmt.Errorf("post-gen layer: missing kind")
	}
	return nil
}
