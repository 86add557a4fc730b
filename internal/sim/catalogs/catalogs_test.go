package catalogs

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const protoDir = "../../../configs/prototypes"

func TestLoadPrototypes(t *testing.T) {
	c, err := Load(protoDir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Tiles.Palette[0] != SpaceTile {
		t.Fatalf("palette[0] = %q, want %q", c.Tiles.Palette[0], SpaceTile)
	}
	if id, ok := c.TileID("FloorSteel"); !ok || c.TileName(id) != "FloorSteel" {
		t.Fatalf("TileID/TileName mismatch")
	}

	lab, ok := c.DungeonConfigs["LabBSP"]
	if !ok {
		t.Fatalf("missing LabBSP")
	}
	if lab.Generator.Kind != GenBSP || lab.Generator.BSP == nil {
		t.Fatalf("LabBSP generator = %+v", lab.Generator)
	}
	if lab.Generator.BSP.MinimumRoomDimensions != [2]int{4, 4} {
		t.Fatalf("min room = %v", lab.Generator.BSP.MinimumRoomDimensions)
	}
	if len(lab.Layers) != 2 || lab.Layers[0].BoundaryWall == nil || !lab.Layers[0].BoundaryWall.Corridors {
		t.Fatalf("LabBSP layers = %+v", lab.Layers)
	}

	cave := c.DungeonConfigs["CaveNoise"].Generator
	if cave.NoiseDistance == nil || cave.NoiseDistance.TileCap != 2500 || len(cave.NoiseDistance.Layers) != 1 {
		t.Fatalf("inline noise fields not decoded: %+v", cave.NoiseDistance)
	}

	if e := c.Entities["AirlockMaint"]; !e.Anchored || e.Defaults["locked"] != "false" {
		t.Fatalf("entity defaults = %+v", e)
	}
	if b := c.Biomes["Asteroid"]; len(b.Layers) != 2 || b.Layers[1].Unloadable() || !b.Layers[0].Unloadable() {
		t.Fatalf("biome layers = %+v", b.Layers)
	}
	if len(c.Digests) == 0 || c.Digest == "" {
		t.Fatalf("digests not computed")
	}
}

func writeProto(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestLoadRejectsSchemaViolations(t *testing.T) {
	cases := map[string]string{
		"missing id":   "- type: tile\n",
		"bad type":     "- type: spaceship\n  id: X\n",
		"room no rows": "- type: dungeonRoom\n  id: R\n  size: [2, 2]\n",
		"neg chunk":    "- type: biome\n  id: B\n  layers:\n    - {id: a, chunk_size: 0, template: T}\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			writeProto(t, dir, "bad.yml", body)
			if _, err := Load(dir); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestLoadRejectsBrokenReferences(t *testing.T) {
	dir := t.TempDir()
	writeProto(t, dir, "room.yml", `
- type: dungeonRoom
  id: R
  size: [2, 1]
  legend: {"#": NoSuchTile}
  rows: ["##"]
`)
	_, err := Load(dir)
	if err == nil || !strings.Contains(err.Error(), "NoSuchTile") {
		t.Fatalf("expected unknown tile error, got %v", err)
	}
}

func TestUnknownGeneratorKindDecodesWithoutPayload(t *testing.T) {
	dir := t.TempDir()
	writeProto(t, dir, "cfg.yml", `
- type: dungeonConfig
  id: Odd
  generator:
    kind: spiral
`)
	c, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	g := c.DungeonConfigs["Odd"].Generator
	if g.Kind != "spiral" || g.BSP != nil || g.Prefab != nil {
		t.Fatalf("unexpected generator %+v", g)
	}
}

func TestReloadReportsChanges(t *testing.T) {
	dir := t.TempDir()
	writeProto(t, dir, "a.yml", `
- type: tile
  id: FloorA
- type: dungeonRoom
  id: R
  size: [1, 1]
  legend: {"#": FloorA}
  rows: ["#"]
`)
	old, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	writeProto(t, dir, "a.yml", `
- type: tile
  id: FloorA
- type: tile
  id: FloorB
- type: dungeonRoom
  id: R
  size: [1, 1]
  legend: {"#": FloorB}
  rows: ["#"]
`)
	cur, ch, err := Reload(old)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if cur.Digest == old.Digest {
		t.Fatalf("digest unchanged")
	}
	if !ch.Touched(Ref{Kind: KindRoom, ID: "R"}) || !ch.Touched(Ref{Kind: KindTile, ID: "FloorB"}) {
		t.Fatalf("changes = %+v", ch)
	}
	if ch.Touched(Ref{Kind: KindTile, ID: "FloorA"}) {
		t.Fatalf("unchanged tile reported: %+v", ch)
	}
	if len(ch.Modified) != 1 || len(ch.Added) != 1 {
		t.Fatalf("changes = %+v", ch)
	}
}
