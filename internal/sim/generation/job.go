package generation

import (
	"fmt"

	"go.uber.org/zap"

	"tileforge.ai/internal/sim/dungeon"
	"tileforge.ai/internal/sim/dungeon/gen"
	"tileforge.ai/internal/sim/dungeon/postgen"
	"tileforge.ai/internal/sim/geom"
)

// RunPipeline builds the base layout and applies every post-generation step
// in declared order. Writes go to dc.Target as each stage finishes.
func RunPipeline(dc *dungeon.Context) (*dungeon.Dungeon, error) {
	g, err := gen.Resolve(dc.Config.Generator)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", dc.Config.ID, err)
	}
	steps := make([]postgen.Step, 0, len(dc.Config.Layers))
	for i, spec := range dc.Config.Layers {
		s, err := postgen.Resolve(spec)
		if err != nil {
			return nil, fmt.Errorf("config %s layer %d: %w", dc.Config.ID, i, err)
		}
		steps = append(steps, s)
	}

	applyOffset(dc)

	d, err := g.Generate(dc)
	if err != nil {
		return nil, err
	}
	for i, s := range steps {
		if err := dc.Checkpoint(); err != nil {
			return nil, err
		}
		if err := s.Apply(dc, d); err != nil {
			return nil, fmt.Errorf("config %s layer %d (%s): %w", dc.Config.ID, i, dc.Config.Layers[i].Kind, err)
		}
	}

	if dc.Config.ReserveTiles && dc.Biomes != nil {
		dc.Biomes.MarkModified(dc.Target.ID(), footprint(d))
	}
	dc.Log.Debug("pipeline finished",
		zap.String("config", dc.Config.ID),
		zap.Int("rooms", len(d.Rooms)),
		zap.Int("room_tiles", d.RoomTiles.Size()),
		zap.Int("corridor_tiles", d.CorridorTiles.Size()),
		zap.Int("warnings", len(d.Warnings)))
	return d, nil
}

// applyOffset shifts the requested position by a random distance in
// [MinOffset, MaxOffset] along each axis.
func applyOffset(dc *dungeon.Context) {
	lo, hi := dc.Config.MinOffset, dc.Config.MaxOffset
	if hi <= 0 || hi < lo {
		return
	}
	pick := func() int {
		v := lo + dc.Rand.Intn(hi-lo+1)
		if dc.Rand.Intn(2) == 0 {
			v = -v
		}
		return v
	}
	dc.Position = dc.Position.Add(geom.Vec2i{X: pick(), Y: pick()})
}

// footprint lists every tile the dungeon occupies, in (Y, X) order.
func footprint(d *dungeon.Dungeon) []geom.Vec2i {
	all := dungeon.Clone(d.RoomTiles)
	d.CorridorTiles.Each(func(p geom.Vec2i) { all.Put(p) })
	d.Entrances.Each(func(p geom.Vec2i) { all.Put(p) })
	return dungeon.Sorted(all)
}
