package world

import (
	"time"

	"tileforge.ai/internal/sim/tuning"
)

type WorldConfig struct {
	ID         string
	TickRateHz int
	// JobBudget is the queue's time slice per tick.
	JobBudget  time.Duration
	CheckEvery int
	Seed       int64

	// SnapshotEveryTicks is 0 to disable periodic snapshots.
	SnapshotEveryTicks int

	LoadRange         int
	VelocityLookahead float64

	// Observer limits.
	MaxObservers     int
	ObserverSendQ    int
	ObserverMaxCoord float64
}

// ConfigFromTuning maps the server tuning file onto a world config.
func ConfigFromTuning(id string, t tuning.Tuning) WorldConfig {
	return WorldConfig{
		ID:                 id,
		TickRateHz:         t.TickRateHz,
		JobBudget:          time.Duration(t.JobBudgetMs) * time.Millisecond,
		CheckEvery:         t.CheckEvery,
		Seed:               t.DefaultSeed,
		SnapshotEveryTicks: t.SnapshotEveryTicks,
		LoadRange:          t.Biome.LoadRange,
		VelocityLookahead:  t.Biome.VelocityLookahead,
		MaxObservers:       t.Observer.MaxSessions,
		ObserverSendQ:      t.Observer.SendQueue,
		ObserverMaxCoord:   float64(t.Observer.MaxCoord),
	}
}

func (c *WorldConfig) applyDefaults() {
	if c.ID == "" {
		c.ID = "tileforge"
	}
	if c.TickRateHz <= 0 {
		c.TickRateHz = 20
	}
	if c.JobBudget <= 0 {
		c.JobBudget = 8 * time.Millisecond
	}
	if c.MaxObservers <= 0 {
		c.MaxObservers = 64
	}
	if c.ObserverSendQ <= 0 {
		c.ObserverSendQ = 64
	}
	if c.ObserverMaxCoord <= 0 {
		c.ObserverMaxCoord = 1 << 20
	}
}
