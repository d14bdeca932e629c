package catalog

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// definitionSchema is the JSON Schema every workflow definition file must
// satisfy before it is admitted into the catalog. Violations are startup
// errors, never runtime surprises.
const definitionSchema = `{
  "type": "object",
  "required": ["workflows"],
  "properties": {
    "workflows": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["id", "name", "steps"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "name": {"type": "string", "minLength": 1},
          "description": {"type": "string"},
          "category": {"type": "string"},
          "estimated_time": {"type": "integer", "minimum": 0},
          "steps": {
            "type": "array",
            "minItems": 1,
            "items": {
              "type": "object",
              "required": ["id", "name", "tool"],
              "properties": {
                "id": {"type": "string", "minLength": 1},
                "name": {"type": "string", "minLength": 1},
                "description": {"type": "string"},
                "tool": {"type": "string", "minLength": 1},
                "required_params": {"type": "array", "items": {"type": "string"}},
                "optional_params": {"type": "array", "items": {"type": "string"}},
                "validation": {
                  "type": "object",
                  "additionalProperties": {
                    "type": "object",
                    "properties": {
                      "pattern": {"type": "string"},
                      "min_length": {"type": "integer", "minimum": 0},
                      "max_length": {"type": "integer", "minimum": 0},
                      "message": {"type": "string"}
                    }
                  }
                }
              }
            }
          }
        }
      }
    }
  }
}`

func validateDefinitions(raw []byte) error {
	schemaLoader := gojsonschema.NewStringLoader(definitionSchema)
	dataLoader := gojsonschema.NewBytesLoader(raw)

	result, err := gojsonschema.Validate(schemaLoader, dataLoader)
	if err != nil {
		return err
	}

	if !result.Valid() {
		var errs []string
		for _, desc := range result.Errors() {
			errs = append(errs, desc.String())
		}

		return fmt.Errorf("validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}
