// Package schema validates produced records against an operation's declared
// output schema. The config-level type map ("summary": "string", "count":
// "int", ...) is compiled once into a JSON Schema document; records are then
// validated with gojsonschema. Extra fields are always allowed so pass-through
// fields never fail validation.
package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/linxule/docetl/internal/record"
)

// Sentinel errors for schema compilation.
var (
	// ErrEmptySchema is returned when the output schema has no fields.
	ErrEmptySchema = errors.New("output schema cannot be empty")

	// ErrUnknownType is returned when a schema field declares an unsupported type.
	ErrUnknownType = errors.New("unknown schema type")
)

// Validator checks records against a compiled output schema.
type Validator struct {
	schema *gojsonschema.Schema
	fields map[string]string
}

// Compile builds a Validator from a config type map. Supported types are
// string/str, int/integer, float/number, bool/boolean, list[...] and
// map/dict.
func Compile(fields map[string]string) (*Validator, error) {
	if len(fields) == 0 {
		return nil, ErrEmptySchema
	}

	properties := make(map[string]any, len(fields))
	required := make([]string, 0, len(fields))

	for name, typ := range fields {
		prop, err := typeToProperty(typ)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", name, err)
		}

		properties[name] = prop
		required = append(required, name)
	}

	doc := map[string]any{
		"type":                 "object",
		"properties":           properties,
		"required":             required,
		"additionalProperties": true,
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal schema document: %w", err)
	}

	compiled, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	return &Validator{schema: compiled, fields: fields}, nil
}

// Validate reports whether the record satisfies the output schema.
// Validation failure is an expected outcome, not an error: transport-level
// problems never surface here.
func (v *Validator) Validate(rec record.Record) bool {
	if rec == nil {
		return false
	}

	result, err := v.schema.Validate(gojsonschema.NewGoLoader(map[string]any(rec)))
	if err != nil {
		return false
	}

	return result.Valid()
}

// Fields returns the declared field type map.
func (v *Validator) Fields() map[string]string {
	return v.fields
}

// typeToProperty maps a config type string to a JSON Schema property.
func typeToProperty(typ string) (map[string]any, error) {
	normalized := strings.ToLower(strings.TrimSpace(typ))

	if item, ok := strings.CutPrefix(normalized, "list["); ok {
		inner := strings.TrimSuffix(item, "]")

		itemProp, err := typeToProperty(inner)
		if err != nil {
			return nil, err
		}

		return map[string]any{"type": "array", "items": itemProp}, nil
	}

	switch normalized {
	case "string", "str", "text":
		return map[string]any{"type": "string"}, nil
	case "int", "integer":
		return map[string]any{"type": "integer"}, nil
	case "float", "number":
		return map[string]any{"type": "number"}, nil
	case "bool", "boolean":
		return map[string]any{"type": "boolean"}, nil
	case "list":
		return map[string]any{"type": "array"}, nil
	case "map", "dict", "object":
		return map[string]any{"type": "object"}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, typ)
	}
}
