// Package grid is the in-memory tile, entity and decal store that generation
// writes into and streaming reconciles against.
package grid

import (
	"crypto/sha256"
	"encoding/binary"

	"tileforge.ai/internal/sim/geom"
)

// ChunkSize is the storage chunk edge in tiles. It is unrelated to biome
// layer chunk sizes.
const ChunkSize = 16

// Tile is one grid cell. Type 0 is empty space.
type Tile struct {
	Type    uint16
	Variant uint8
}

var Empty = Tile{}

func (t Tile) IsEmpty() bool { return t.Type == 0 }

// TileSet is one entry of a bulk write.
type TileSet struct {
	Pos  geom.Vec2i
	Tile Tile
}

type ChunkKey struct {
	CX int
	CY int
}

func KeyOf(p geom.Vec2i) ChunkKey {
	return ChunkKey{CX: geom.FloorDiv(p.X, ChunkSize), CY: geom.FloorDiv(p.Y, ChunkSize)}
}

type Chunk struct {
	CX, CY int
	Tiles  []Tile // len = ChunkSize*ChunkSize

	filled int
	dirty  bool
	hash   [32]byte
}

func newChunk(k ChunkKey) *Chunk {
	return &Chunk{CX: k.CX, CY: k.CY, Tiles: make([]Tile, ChunkSize*ChunkSize), dirty: true}
}

func (c *Chunk) index(x, y int) int {
	return x + y*ChunkSize
}

func (c *Chunk) Get(x, y int) Tile {
	return c.Tiles[c.index(x, y)]
}

// Set stores t and reports whether the cell changed.
func (c *Chunk) Set(x, y int, t Tile) bool {
	i := c.index(x, y)
	old := c.Tiles[i]
	if old == t {
		return false
	}
	switch {
	case old.IsEmpty() && !t.IsEmpty():
		c.filled++
	case !old.IsEmpty() && t.IsEmpty():
		c.filled--
	}
	c.Tiles[i] = t
	c.dirty = true
	return true
}

// Filled counts non-empty tiles.
func (c *Chunk) Filled() int { return c.filled }

func (c *Chunk) Digest() [32]byte {
	if c.dirty || c.hash == ([32]byte{}) {
		h := sha256.New()
		var tmp [3]byte
		for _, v := range c.Tiles {
			binary.LittleEndian.PutUint16(tmp[:2], v.Type)
			tmp[2] = v.Variant
			h.Write(tmp[:])
		}
		copy(c.hash[:], h.Sum(nil))
		c.dirty = false
	}
	return c.hash
}

func (c *Chunk) recount() {
	c.filled = 0
	for _, t := range c.Tiles {
		if !t.IsEmpty() {
			c.filled++
		}
	}
}
