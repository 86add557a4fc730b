// Package postgen holds the ordered passes applied to a dungeon after its
// base layout exists. Passes share the request's Rand, so their order
// changes the output.
package postgen

import (
	"errors"
	"fmt"

	"tileforge.ai/internal/sim/catalogs"
	"tileforge.ai/internal/sim/dungeon"
	"tileforge.ai/internal/sim/geom"
)

var ErrUnknownPostGen = errors.New("unknown post-generation kind")

type Step interface {
	Apply(dc *dungeon.Context, d *dungeon.Dungeon) error
}

// Resolve maps a post-generation spec to its pass.
func Resolve(spec catalogs.PostGenSpec) (Step, error) {
	switch spec.Kind {
	case catalogs.PostBoundaryWall:
		if spec.BoundaryWall != nil {
			return &BoundaryWall{Spec: *spec.BoundaryWall}, nil
		}
	case catalogs.PostEntrance:
		if spec.Entrance != nil {
			return &Entrance{Spec: *spec.Entrance}, nil
		}
	case catalogs.PostMiddleConnection:
		if spec.MiddleConnection != nil {
			return &MiddleConnection{Spec: *spec.MiddleConnection}, nil
		}
	case catalogs.PostWormCorridor:
		if spec.WormCorridor != nil {
			return &WormCorridor{Spec: *spec.WormCorridor}, nil
		}
	case catalogs.PostCorridor:
		if spec.Corridor != nil {
			return &Corridor{Spec: *spec.Corridor}, nil
		}
	case catalogs.PostCorridorClutter:
		if spec.CorridorClutter != nil {
			return &CorridorClutter{Spec: *spec.CorridorClutter}, nil
		}
	case catalogs.PostBiome:
		if spec.Biome != nil {
			return &Biome{Spec: *spec.Biome}, nil
		}
	case catalogs.PostBiomeMarkerLayer:
		if spec.BiomeMarkerLayer != nil {
			return &MarkerLayer{Spec: *spec.BiomeMarkerLayer}, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownPostGen, spec.Kind)
}

// blocked reports whether an anchored entity stands on p.
func blocked(dc *dungeon.Context, p geom.Vec2i) bool {
	return len(dc.Target.AnchoredAt(p)) > 0
}

// cardinalBorder lists the tiles outside room that share a side with it.
func cardinalBorder(d *dungeon.Dungeon, r *dungeon.Room) dungeon.TileSet {
	out := dungeon.NewTileSet()
	r.Tiles.Each(func(p geom.Vec2i) {
		for _, dir := range geom.CardinalDirs {
			n := p.Add(dir)
			if !d.RoomTiles.Has(n) {
				out.Put(n)
			}
		}
	})
	return out
}

// pavement bulk-writes tile over tiles when tile is configured.
func pavement(dc *dungeon.Context, tile string, tiles []geom.Vec2i) error {
	if tile == "" || len(tiles) == 0 {
		return nil
	}
	sets, err := dc.Fill(tile, tiles)
	if err != nil {
		return err
	}
	dc.Target.SetTiles(sets)
	return nil
}
