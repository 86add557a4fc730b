package tuning

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Tuning struct {
	TickRateHz int `yaml:"tick_rate_hz" validate:"min=1,max=240"`
	// JobBudgetMs caps the time the job queue may use per tick.
	JobBudgetMs int `yaml:"job_budget_ms" validate:"min=1"`
	// CheckEvery is how many checkpoints pass between clock reads.
	CheckEvery         int   `yaml:"check_every" validate:"min=1"`
	SnapshotEveryTicks int   `yaml:"snapshot_every_ticks" validate:"min=0"`
	SnapshotKeep       int   `yaml:"snapshot_keep" validate:"min=0"`
	ArchiveEveryTicks  int   `yaml:"archive_every_ticks" validate:"min=0"`
	DefaultSeed        int64 `yaml:"default_seed"`

	PrototypesDir string `yaml:"prototypes_dir" validate:"required"`
	DataDir       string `yaml:"data_dir" validate:"required"`

	Biome    Biome    `yaml:"biome"`
	Observer Observer `yaml:"observer"`
	Log      Log      `yaml:"log"`
}

type Biome struct {
	LoadRange         int     `yaml:"load_range" validate:"min=1"`
	VelocityLookahead float64 `yaml:"velocity_lookahead" validate:"min=0"`
}

type Observer struct {
	MaxSessions int `yaml:"max_sessions" validate:"min=1"`
	SendQueue   int `yaml:"send_queue" validate:"min=1"`
	// MaxCoord bounds the viewer positions a subscription may report.
	MaxCoord int `yaml:"max_coord" validate:"min=1"`
}

type Log struct {
	Level string `yaml:"level" validate:"oneof=debug info warn warning error"`
	File  string `yaml:"file"`
}

func Defaults() Tuning {
	return Tuning{
		TickRateHz:         20,
		JobBudgetMs:        8,
		CheckEvery:         64,
		SnapshotEveryTicks: 6000,
		SnapshotKeep:       20,
		ArchiveEveryTicks:  72000,
		DefaultSeed:        1337,
		PrototypesDir:      "configs/prototypes",
		DataDir:            "data",
		Biome:              Biome{LoadRange: 32, VelocityLookahead: 1},
		Observer:           Observer{MaxSessions: 64, SendQueue: 64, MaxCoord: 1 << 20},
		Log:                Log{Level: "info"},
	}
}

// Load reads path over the defaults. A missing file keeps the defaults.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return t, nil
	}
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

// LoadDotEnv loads a .env file into the process environment. A missing
// file is not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides fields from TILEFORGE_* variables.
func ApplyEnv(t *Tuning, lookup func(string) (string, bool)) error {
	ints := []struct {
		key string
		dst *int
	}{
		{"TILEFORGE_TICK_RATE_HZ", &t.TickRateHz},
		{"TILEFORGE_JOB_BUDGET_MS", &t.JobBudgetMs},
		{"TILEFORGE_CHECK_EVERY", &t.CheckEvery},
		{"TILEFORGE_SNAPSHOT_EVERY_TICKS", &t.SnapshotEveryTicks},
		{"TILEFORGE_SNAPSHOT_KEEP", &t.SnapshotKeep},
		{"TILEFORGE_ARCHIVE_EVERY_TICKS", &t.ArchiveEveryTicks},
		{"TILEFORGE_LOAD_RANGE", &t.Biome.LoadRange},
		{"TILEFORGE_OBSERVER_MAX_SESSIONS", &t.Observer.MaxSessions},
	}
	for _, e := range ints {
		v, ok := lookup(e.key)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", e.key, err)
		}
		*e.dst = n
	}
	strs := []struct {
		key string
		dst *string
	}{
		{"TILEFORGE_PROTOTYPES", &t.PrototypesDir},
		{"TILEFORGE_DATA_DIR", &t.DataDir},
		{"TILEFORGE_LOG_LEVEL", &t.Log.Level},
		{"TILEFORGE_LOG_FILE", &t.Log.File},
	}
	for _, e := range strs {
		if v, ok := lookup(e.key); ok && v != "" {
			*e.dst = v
		}
	}
	if v, ok := lookup("TILEFORGE_SEED"); ok && v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("TILEFORGE_SEED: %w", err)
		}
		t.DefaultSeed = n
	}
	if v, ok := lookup("TILEFORGE_VELOCITY_LOOKAHEAD"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("TILEFORGE_VELOCITY_LOOKAHEAD: %w", err)
		}
		t.Biome.VelocityLookahead = f
	}
	return nil
}

func (t Tuning) Validate() error {
	if err := validator.New().Struct(t); err != nil {
		return fmt.Errorf("tuning: %w", err)
	}
	return nil
}
