package observerproto

// Version is the observer protocol version.
const Version = "0.1"

const (
	TypeSubscribe    = "SUBSCRIBE"
	TypeTick         = "TICK"
	TypeChunkLoad    = "CHUNK_LOAD"
	TypeChunkUnload  = "CHUNK_UNLOAD"
	TypeChunkTiles   = "CHUNK_TILES"
	EncodingRLEU16   = "RLE_U16"
	DefaultSendQueue = 64
)

// Client -> Server. First message on the observer WS connection. Re-sending
// it moves the viewer.
type SubscribeMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	MapID           string     `json:"map"`
	Pos             [2]float64 `json:"pos"`
	Velocity        [2]float64 `json:"vel"`

	// IncludeTiles asks for a CHUNK_TILES message after every chunk load.
	IncludeTiles bool `json:"include_tiles,omitempty"`
}

// HTTP response for GET /admin/v1/observer/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string      `json:"protocol_version"`
	WorldID         string      `json:"world_id"`
	Tick            uint64      `json:"tick"`
	WorldParams     WorldParams `json:"world_params"`
	TilePalette     []string    `json:"tile_palette"`
	Maps            []MapInfo   `json:"maps"`
}

type WorldParams struct {
	TickRateHz int   `json:"tick_rate_hz"`
	ChunkSize  int   `json:"chunk_size"`
	LoadRange  int   `json:"load_range"`
	Seed       int64 `json:"seed"`
}

type MapInfo struct {
	ID    string `json:"id"`
	Biome string `json:"biome,omitempty"`
	Tiles int    `json:"tiles"`
}

// Server -> Client. Sent every tick.
type TickMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	Tick            uint64      `json:"tick"`
	Queue           QueueState  `json:"queue"`
	Biome           *BiomeState `json:"biome,omitempty"`
}

type QueueState struct {
	Pending   int   `json:"pending"`
	Resumed   int   `json:"resumed"`
	Finished  int   `json:"finished"`
	Suspended bool  `json:"suspended"`
	ElapsedUS int64 `json:"elapsed_us"`
}

// BiomeState describes the biome on the subscribed map.
type BiomeState struct {
	MapID    string         `json:"map"`
	BiomeID  string         `json:"biome"`
	Enabled  bool           `json:"enabled"`
	Loading  bool           `json:"loading"`
	Loaded   map[string]int `json:"loaded"`
	Modified int            `json:"modified"`
}

// Server -> Client. One finished chunk load or unload on the subscribed map.
type ChunkEventMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Layer           string `json:"layer"`
	Origin          [2]int `json:"origin"`
	Size            int    `json:"size"`
	Tiles           int    `json:"tiles"`
	Entities        int    `json:"entities"`
	Decals          int    `json:"decals"`
	Modified        int    `json:"modified,omitempty"`
}

// Server -> Client. Tile types of one chunk box in row-major order.
type ChunkTilesMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Origin          [2]int `json:"origin"`
	Size            int    `json:"size"`
	Encoding        string `json:"encoding"`
	Data            string `json:"data"`
}
