package tuning

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadRepoTuning(t *testing.T) {
	tu, err := Load("../../../configs/tuning.yaml")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := tu.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if tu.TickRateHz != 20 || tu.Biome.LoadRange != 32 {
		t.Fatalf("unexpected tuning %+v", tu)
	}
}

func TestMissingFileKeepsDefaults(t *testing.T) {
	tu, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if tu != Defaults() {
		t.Fatalf("defaults changed")
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"TILEFORGE_TICK_RATE_HZ":       "30",
		"TILEFORGE_LOAD_RANGE":         "12",
		"TILEFORGE_SEED":               "-9",
		"TILEFORGE_VELOCITY_LOOKAHEAD": "0.5",
		"TILEFORGE_LOG_LEVEL":          "debug",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
	tu := Defaults()
	if err := ApplyEnv(&tu, lookup); err != nil {
		t.Fatalf("apply env: %v", err)
	}
	if tu.TickRateHz != 30 || tu.Biome.LoadRange != 12 || tu.DefaultSeed != -9 || tu.Biome.VelocityLookahead != 0.5 || tu.Log.Level != "debug" {
		t.Fatalf("env not applied: %+v", tu)
	}

	env["TILEFORGE_JOB_BUDGET_MS"] = "soon"
	if err := ApplyEnv(&tu, lookup); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestDotEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("TILEFORGE_CHECK_EVERY=7\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("TILEFORGE_CHECK_EVERY", "")
	os.Unsetenv("TILEFORGE_CHECK_EVERY")
	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("load dotenv: %v", err)
	}
	tu := Defaults()
	if err := ApplyEnv(&tu, os.LookupEnv); err != nil {
		t.Fatalf("apply env: %v", err)
	}
	if tu.CheckEvery != 7 {
		t.Fatalf("expected check_every 7, got %d", tu.CheckEvery)
	}
	if err := LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("missing .env should be ignored: %v", err)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := []func(*Tuning){
		func(t *Tuning) { t.TickRateHz = 0 },
		func(t *Tuning) { t.Biome.LoadRange = 0 },
		func(t *Tuning) { t.Log.Level = "loud" },
		func(t *Tuning) { t.PrototypesDir = "" },
	}
	for i, mut := range cases {
		tu := Defaults()
		mut(&tu)
		if err := tu.Validate(); err == nil {
			t.Fatalf("case %d: expected validation error", i)
		}
	}
}
