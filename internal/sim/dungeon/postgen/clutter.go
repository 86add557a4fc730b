package postgen

import (
	"tileforge.ai/internal/sim/catalogs"
	"tileforge.ai/internal/sim/dungeon"
)

// CorridorClutter drops loose props on corridor tiles.
type CorridorClutter struct {
	Spec catalogs.CorridorClutterPost
}

func (s *CorridorClutter) Apply(dc *dungeon.Context, d *dungeon.Dungeon) error {
	if len(s.Spec.Entities) == 0 || s.Spec.Chance <= 0 {
		return nil
	}
	for _, p := range dungeon.Sorted(d.CorridorTiles) {
		if err := dc.Checkpoint(); err != nil {
			return err
		}
		if dc.Rand.Float64() >= s.Spec.Chance || blocked(dc, p) || d.Entrances.Has(p) {
			continue
		}
		dc.Spawn(s.Spec.Entities[dc.Rand.Intn(len(s.Spec.Entities))], p, 0)
	}
	return nil
}
