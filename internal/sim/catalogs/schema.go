package catalogs

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const prototypeSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["type", "id"],
  "properties": {
    "type": {"enum": ["tile", "entity", "decal", "dungeonConfig", "dungeonRoom", "dungeonRoomPack",
                      "dungeonPreset", "biomeTemplate", "biomeMarkerLayer", "biome"]},
    "id": {"type": "string", "pattern": "^[A-Za-z][A-Za-z0-9_]*$"}
  },
  "$defs": {
    "vec2": {"type": "array", "items": {"type": "integer"}, "minItems": 2, "maxItems": 2},
    "box": {"type": "array", "items": {"type": "integer"}, "minItems": 4, "maxItems": 4},
    "size": {"type": "array", "items": {"type": "integer", "minimum": 1}, "minItems": 2, "maxItems": 2},
    "kinded": {"type": "object", "required": ["kind"], "properties": {"kind": {"type": "string", "minLength": 1}}}
  },
  "allOf": [
    {"if": {"properties": {"type": {"const": "tile"}}},
     "then": {"properties": {"variants": {"type": "integer", "minimum": 0, "maximum": 255}}}},
    {"if": {"properties": {"type": {"const": "entity"}}},
     "then": {"properties": {"anchored": {"type": "boolean"},
                             "defaults": {"type": "object", "additionalProperties": {"type": "string"}}}}},
    {"if": {"properties": {"type": {"const": "dungeonConfig"}}},
     "then": {"required": ["generator"],
              "properties": {"generator": {"$ref": "#/$defs/kinded"},
                             "layers": {"type": "array", "items": {"$ref": "#/$defs/kinded"}},
                             "min_offset": {"type": "integer", "minimum": 0},
                             "max_offset": {"type": "integer", "minimum": 0},
                             "reserve_tiles": {"type": "boolean"}}}},
    {"if": {"properties": {"type": {"const": "dungeonRoom"}}},
     "then": {"required": ["size", "rows"],
              "properties": {"size": {"$ref": "#/$defs/size"},
                             "rows": {"type": "array", "items": {"type": "string"}, "minItems": 1},
                             "legend": {"type": "object", "additionalProperties": {"type": "string"}},
                             "tags": {"type": "array", "items": {"type": "string"}}}}},
    {"if": {"properties": {"type": {"const": "dungeonRoomPack"}}},
     "then": {"required": ["size", "rooms"],
              "properties": {"size": {"$ref": "#/$defs/size"},
                             "rooms": {"type": "array", "items": {"$ref": "#/$defs/box"}, "minItems": 1}}}},
    {"if": {"properties": {"type": {"const": "dungeonPreset"}}},
     "then": {"required": ["packs"],
              "properties": {"packs": {"type": "array", "items": {"$ref": "#/$defs/box"}, "minItems": 1}}}},
    {"if": {"properties": {"type": {"const": "biomeTemplate"}}},
     "then": {"required": ["layers"],
              "properties": {"layers": {"type": "array", "items": {
                "type": "object", "required": ["kind"],
                "properties": {"kind": {"enum": ["tile", "decal", "entity", "dummy"]},
                               "threshold": {"type": "number"},
                               "frequency": {"type": "number", "exclusiveMinimum": 0},
                               "chance": {"type": "number", "minimum": 0, "maximum": 1}}}}}}},
    {"if": {"properties": {"type": {"const": "biomeMarkerLayer"}}},
     "then": {"required": ["prototype"],
              "properties": {"min": {"type": "integer", "minimum": 0},
                             "max": {"type": "integer", "minimum": 0}}}},
    {"if": {"properties": {"type": {"const": "biome"}}},
     "then": {"required": ["layers"],
              "properties": {"layers": {"type": "array", "items": {
                "type": "object", "required": ["id", "chunk_size"],
                "properties": {"id": {"type": "string"},
                               "chunk_size": {"type": "integer", "minimum": 1},
                               "depends_on": {"type": "array", "items": {"type": "string"}},
                               "can_unload": {"type": "boolean"}}}}}}}
  ]
}`

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = jsonschema.CompileString("prototype.schema.json", prototypeSchema)
	})
	return schema, schemaErr
}

// validateDoc checks one decoded YAML document and returns its canonical JSON.
func validateDoc(doc any) ([]byte, error) {
	s, err := compiledSchema()
	if err != nil {
		return nil, fmt.Errorf("compile prototype schema: %w", err)
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	if err := s.Validate(v); err != nil {
		return nil, err
	}
	return raw, nil
}
