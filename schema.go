package trolyindex

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// InferJSONSchema reflects v into an inline JSON schema that rejects unknown
// properties, the shape MCP tool inputs expect.
func InferJSONSchema(v any) *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		Anonymous:                 true,
		DoNotReference:            true,
		AllowAdditionalProperties: false,
	}

	return reflector.Reflect(v)
}

// MarshalToSchema is InferJSONSchema as a generic map.
func MarshalToSchema(v any) map[string]any {
	data, err := json.Marshal(InferJSONSchema(v))
	if err != nil {
		return map[string]any{"type": "object"}
	}

	var schema map[string]any
	if err := json.Unmarshal(data, &schema); err != nil {
		return map[string]any{"type": "object"}
	}

	return schema
}
