// Package render maps an execution result into one of the declared
// presentation formats: text, json, markdown, table, or card. Formats
// that embed user data in markup escape every raw value, so a tool
// result can never inject HTML into the rendered output.
package render

import (
	"encoding/json"
	"fmt"

	"github.com/toolmint/toolmint/pkg/schema"
)

// Rendered is the final presentation of an execution result.
type Rendered struct {
	Format  string `json:"format"`
	Content string `json:"content"`
}

// ConfigError reports an output configuration an author must fix, such
// as a table format with no field mappings. It surfaces at test time
// and is never shown to an end user of a published tool.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return e.Message
}

// Render presents result according to cfg. A nil cfg defaults to text.
func Render(result any, cfg *schema.OutputConfig) (*Rendered, error) {
	if cfg == nil {
		cfg = &schema.OutputConfig{Format: "text"}
	}
	switch cfg.Format {
	case "", "text":
		return &Rendered{Format: "text", Content: renderText(result)}, nil
	case "json":
		content, err := renderJSON(result)
		if err != nil {
			return nil, err
		}
		return &Rendered{Format: "json", Content: content}, nil
	case "markdown":
		return &Rendered{Format: "markdown", Content: renderMarkdown(result, cfg)}, nil
	case "table":
		if len(cfg.FieldMappings) == 0 {
			return nil, &ConfigError{Message: "table output requires field_mappings"}
		}
		return &Rendered{Format: "table", Content: renderTable(result, cfg.FieldMappings)}, nil
	case "card":
		if len(cfg.FieldMappings) == 0 {
			return nil, &ConfigError{Message: "card output requires field_mappings"}
		}
		return &Rendered{Format: "card", Content: renderCard(result, cfg)}, nil
	}
	return nil, &ConfigError{Message: fmt.Sprintf("unknown output format %q", cfg.Format)}
}

// renderText stringifies scalars directly and pretty-prints composites.
func renderText(result any) string {
	switch result.(type) {
	case map[string]any, []any:
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Sprintf("%v", result)
		}
		return string(data)
	}
	return stringifyValue(result)
}

func renderJSON(result any) (string, error) {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("serialize result: %w", err)
	}
	return string(data), nil
}

// lookupValue resolves a mapped field against the result. A map result
// is indexed by key; anything else only answers its own value when a
// single mapping targets it.
func lookupValue(result any, fieldID string) (any, bool) {
	if m, ok := result.(map[string]any); ok {
		v, ok := m[fieldID]
		return v, ok
	}
	return nil, false
}
