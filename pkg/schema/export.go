package schema

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// GenerateJSONSchema produces a JSON Schema Draft 2020-12 document from
// the Go Tool struct using invopop/jsonschema. The same document drives
// editor completion and the semantic validation phase.
func GenerateJSONSchema() ([]byte, error) {
	r := new(jsonschema.Reflector)
	r.DoNotReference = false

	s := r.Reflect(&Tool{})
	s.ID = "https://github.com/toolmint/toolmint/schemas/tool-v1.json"
	s.Title = "Toolmint Tool Definition v1"
	s.Description = "Schema for toolmint tool definition YAML documents (.tool.yaml)"

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal tool schema: %w", err)
	}
	return data, nil
}
