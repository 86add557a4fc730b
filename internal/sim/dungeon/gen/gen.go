// Package gen holds the base layout strategies. Each one builds a Dungeon and
// commits its floor with a single bulk tile write.
package gen

import (
	"errors"
	"fmt"

	"tileforge.ai/internal/sim/catalogs"
	"tileforge.ai/internal/sim/dungeon"
	"tileforge.ai/internal/sim/geom"
)

var ErrUnknownGenerator = errors.New("unknown generator kind")

type Generator interface {
	Generate(dc *dungeon.Context) (*dungeon.Dungeon, error)
}

// Resolve maps a generator spec to its strategy.
func Resolve(spec catalogs.GeneratorSpec) (Generator, error) {
	switch spec.Kind {
	case catalogs.GenBSP:
		if spec.BSP != nil {
			return &BSP{Spec: *spec.BSP}, nil
		}
	case catalogs.GenRandomWalk:
		if spec.RandomWalk != nil {
			return &RandomWalk{Spec: *spec.RandomWalk}, nil
		}
	case catalogs.GenPrefab:
		if spec.Prefab != nil {
			return &Prefab{Spec: *spec.Prefab}, nil
		}
	case catalogs.GenNoise:
		if spec.Noise != nil {
			return &Noise{Spec: *spec.Noise}, nil
		}
	case catalogs.GenNoiseDistance:
		if spec.NoiseDistance != nil {
			return &Noise{Spec: spec.NoiseDistance.NoiseGen, Distance: spec.NoiseDistance}, nil
		}
	case catalogs.GenWorm:
		if spec.Worm != nil {
			return &Worm{Spec: *spec.Worm}, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownGenerator, spec.Kind)
}

func boxOf(b [4]int) geom.Box2i {
	return geom.NewBox2i(b[0], b[1], b[2], b[3])
}

// commitFloor writes tiles with one bulk write.
func commitFloor(dc *dungeon.Context, tile string, tiles []geom.Vec2i) error {
	sets, err := dc.Fill(tile, tiles)
	if err != nil {
		return err
	}
	dc.Target.SetTiles(sets)
	return nil
}
