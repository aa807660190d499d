package workflow

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

const workflowSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["steps"],
  "properties": {
    "steps": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "id":       {"type": "string"},
          "tool":     {"type": "string"},
          "command":  {"type": "string"},
          "input":    {"$ref": "#/definitions/stringOrList"},
          "output":   {"$ref": "#/definitions/stringOrList"},
          "threads":  {"type": "integer"},
          "previous": {"$ref": "#/definitions/stringList"},
          "next":     {"$ref": "#/definitions/stringList"},
          "wildcard_files": {
            "type": ["object", "null"],
            "additionalProperties": {"$ref": "#/definitions/stringList"}
          }
        }
      }
    }
  },
  "definitions": {
    "stringList": {
      "type": ["array", "null"],
      "items": {"type": "string"}
    },
    "stringOrList": {
      "oneOf": [
        {"type": "string"},
        {"type": "null"},
        {"type": "array", "items": {"type": "string"}}
      ]
    }
  }
}`

var schemaLoader = gojsonschema.NewStringLoader(workflowSchema)

// ValidateSchema checks a decoded workflow document against the workflow JSON
// schema. Every schema violation is reported in a single *StructuralError.
func ValidateSchema(document any) error {
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewGoLoader(document))
	if err != nil {
		return fmt.Errorf("failed to validate workflow schema: %w", err)
	}

	if result.Valid() {
		return nil
	}

	violations := make([]Violation, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		violations = append(violations, Violation{Message: desc.String()})
	}

	return &StructuralError{Violations: violations}
}
