package relay

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

const statusSchemaJSON = `{
  "type": "object",
  "required": ["deviceId", "relays"],
  "properties": {
    "deviceId":   {"type": "string", "minLength": 1},
    "deviceType": {"type": "string"},
    "numOutputs": {"type": "integer", "minimum": 0},
    "relays": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["index", "state"],
        "properties": {
          "index": {"type": "integer", "minimum": 0},
          "state": {"type": "boolean"}
        }
      }
    }
  }
}`

const controlSchemaJSON = `{
  "type": "object",
  "required": ["relay", "state"],
  "properties": {
    "relay": {"type": "integer", "minimum": 0},
    "state": {"type": "boolean"}
  }
}`

var (
	statusSchema  = mustCompile(statusSchemaJSON)
	controlSchema = mustCompile(controlSchemaJSON)
)

func mustCompile(schema string) *gojsonschema.Schema {
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schema))
	if err != nil {
		panic(fmt.Sprintf("relay: invalid built-in schema: %v", err))
	}
	return compiled
}

// validate checks payload against schema and folds every violation into one ErrDecode.
func validate(schema *gojsonschema.Schema, payload []byte) error {
	result, err := schema.Validate(gojsonschema.NewBytesLoader(payload))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if result.Valid() {
		return nil
	}

	violations := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		violations = append(violations, desc.String())
	}
	return fmt.Errorf("%w: %s", ErrDecode, strings.Join(violations, "; "))
}
