// Package schema defines the Go struct types for the tool definition
// YAML schema and provides strict parsing and validation. A tool is a
// user-authored micro-application: a typed input form, a pipeline of
// logic steps, and an output view.
package schema

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Tool is the top-level document defining a tool draft or published tool.
// The engine consumes an immutable snapshot of this document at
// execution time; the authoring lifecycle (draft → testing → published)
// is owned by the store, not the engine.
type Tool struct {
	APIVersion  string            `yaml:"apiVersion"            json:"apiVersion"            jsonschema:"required,enum=tool/v1"`
	ID          string            `yaml:"id"                    json:"id"                    jsonschema:"required"`
	Name        string            `yaml:"name"                  json:"name"                  jsonschema:"required"`
	Description string            `yaml:"description,omitempty" json:"description,omitempty"`
	Category    string            `yaml:"category,omitempty"    json:"category,omitempty"`
	Status      string            `yaml:"status"                json:"status"                jsonschema:"required,enum=draft,enum=testing,enum=published"`
	Inputs      []FormField       `yaml:"inputs,omitempty"      json:"inputs,omitempty"`
	Logic       []Step            `yaml:"logic"                 json:"logic"                 jsonschema:"required"`
	Output      *OutputConfig     `yaml:"output,omitempty"      json:"output,omitempty"`
	Governance  *GovernancePolicy `yaml:"governance,omitempty"  json:"governance,omitempty"`
	Defaults    *Defaults         `yaml:"defaults,omitempty"    json:"defaults,omitempty"`
}

// FormField declares one typed input in the tool's form.
// Options must be present exactly when Type is "select".
type FormField struct {
	ID          string        `yaml:"id"                    json:"id"    jsonschema:"required"`
	Type        string        `yaml:"type"                  json:"type"  jsonschema:"required,enum=text,enum=textarea,enum=number,enum=boolean,enum=select,enum=email,enum=tel,enum=url,enum=date"`
	Label       string        `yaml:"label"                 json:"label" jsonschema:"required"`
	Placeholder string        `yaml:"placeholder,omitempty" json:"placeholder,omitempty"`
	Required    bool          `yaml:"required,omitempty"    json:"required,omitempty"`
	Default     any           `yaml:"default,omitempty"     json:"default,omitempty"`
	Options     []FieldOption `yaml:"options,omitempty"     json:"options,omitempty"`
}

// FieldOption is one selectable value of a select field. Declared order
// is display order and must survive serialization.
type FieldOption struct {
	Label string `yaml:"label" json:"label" jsonschema:"required"`
	Value string `yaml:"value" json:"value" jsonschema:"required"`
}

// Step is a single unit of the logic pipeline. Exactly the config field
// matching Type must be set; the other config pointers stay nil. This is
// the Go encoding of the per-type tagged union, enforced by domain
// validation.
type Step struct {
	ID              string             `yaml:"id"    json:"id"    jsonschema:"required"`
	Type            string             `yaml:"type"  json:"type"  jsonschema:"required,enum=calculation,enum=condition,enum=switch,enum=transform,enum=api_call,enum=ai_analysis"`
	Title           string             `yaml:"title,omitempty"             json:"title,omitempty"`
	ContinueOnError bool               `yaml:"continue_on_error,omitempty" json:"continue_on_error,omitempty"`
	Calculation     *CalculationConfig `yaml:"calculation,omitempty"       json:"calculation,omitempty"`
	Condition       *ConditionConfig   `yaml:"condition,omitempty"         json:"condition,omitempty"`
	Switch          *SwitchConfig      `yaml:"switch,omitempty"            json:"switch,omitempty"`
	Transform       *TransformConfig   `yaml:"transform,omitempty"         json:"transform,omitempty"`
	APICall         *APICallConfig     `yaml:"api_call,omitempty"          json:"api_call,omitempty"`
	AIAnalysis      *AIAnalysisConfig  `yaml:"ai_analysis,omitempty"       json:"ai_analysis,omitempty"`
}

// CalculationConfig evaluates a formula over explicitly bound variables
// and writes the result under the step's id.
type CalculationConfig struct {
	Formula   string            `yaml:"formula"             json:"formula" jsonschema:"required"`
	Variables []VariableBinding `yaml:"variables,omitempty" json:"variables,omitempty"`
}

// VariableBinding names a formula variable and the context key (field id
// or earlier step id) it is bound from.
type VariableBinding struct {
	Name string `yaml:"name" json:"name" jsonschema:"required"`
	From string `yaml:"from" json:"from" jsonschema:"required"`
}

// ConditionConfig routes control flow on a boolean expression. An unset
// branch falls through to the next sequential step.
type ConditionConfig struct {
	Expression string `yaml:"expression"     json:"expression" jsonschema:"required"`
	Then       string `yaml:"then,omitempty" json:"then,omitempty"`
	Else       string `yaml:"else,omitempty" json:"else,omitempty"`
}

// SwitchConfig evaluates a selector expression and routes to the first
// case whose value matches. Case order is match priority and must
// survive serialization.
type SwitchConfig struct {
	Selector string       `yaml:"selector"          json:"selector" jsonschema:"required"`
	Cases    []SwitchCase `yaml:"cases"             json:"cases"    jsonschema:"required,minItems=1"`
	Default  string       `yaml:"default,omitempty" json:"default,omitempty"`
}

// SwitchCase pairs a match value with the id of the step to run next.
type SwitchCase struct {
	Value any    `yaml:"value" json:"value" jsonschema:"required"`
	Next  string `yaml:"next"  json:"next"  jsonschema:"required"`
}

// TransformConfig applies a pure, deterministic data operation to one
// context value. The map and filter operations evaluate Expression once
// per element with `item` and `index` bound.
type TransformConfig struct {
	Input      string `yaml:"input"                json:"input" jsonschema:"required"`
	Op         string `yaml:"op"                   json:"op"    jsonschema:"required,enum=uppercase,enum=lowercase,enum=title,enum=trim,enum=round,enum=floor,enum=ceil,enum=map,enum=filter"`
	Precision  int    `yaml:"precision,omitempty"  json:"precision,omitempty"`
	Expression string `yaml:"expression,omitempty" json:"expression,omitempty"`
}

// APICallConfig issues one outbound HTTP request. Method, URL, headers
// and body are templated from the execution context.
type APICallConfig struct {
	Method  string            `yaml:"method,omitempty"  json:"method,omitempty" jsonschema:"enum=GET,enum=POST,enum=PUT,enum=PATCH,enum=DELETE"`
	URL     string            `yaml:"url"               json:"url"              jsonschema:"required"`
	Headers map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
	Body    string            `yaml:"body,omitempty"    json:"body,omitempty"`
	Timeout string            `yaml:"timeout,omitempty" json:"timeout,omitempty" jsonschema:"pattern=^[0-9]+(ms|s|m)$"`
}

// AIAnalysisConfig delegates to the inference collaborator with a
// context-built prompt. Inference latency is high, so its timeout is
// configured independently of api_call.
type AIAnalysisConfig struct {
	Prompt  string `yaml:"prompt"            json:"prompt" jsonschema:"required"`
	Model   string `yaml:"model,omitempty"   json:"model,omitempty"`
	Timeout string `yaml:"timeout,omitempty" json:"timeout,omitempty" jsonschema:"pattern=^[0-9]+(ms|s|m)$"`
}

// OutputConfig declares how the final context value is presented.
// table and card require non-empty FieldMappings.
type OutputConfig struct {
	Format        string          `yaml:"format"                   json:"format" jsonschema:"required,enum=text,enum=json,enum=markdown,enum=table,enum=card"`
	FieldMappings []FieldMapping  `yaml:"field_mappings,omitempty" json:"field_mappings,omitempty"`
	Sections      []OutputSection `yaml:"sections,omitempty"       json:"sections,omitempty"`
}

// FieldMapping projects a result key to a labeled, formatted display
// element. Declared order is column order and must survive serialization.
type FieldMapping struct {
	FieldID string `yaml:"field_id"         json:"field_id" jsonschema:"required"`
	Label   string `yaml:"label"            json:"label"    jsonschema:"required"`
	Format  string `yaml:"format,omitempty" json:"format,omitempty" jsonschema:"enum=currency,enum=date,enum=percentage,enum=number,enum=boolean,enum=text"`
}

// OutputSection groups mappings under a heading for markdown and card
// output.
type OutputSection struct {
	Title         string         `yaml:"title"                    json:"title" jsonschema:"required"`
	FieldMappings []FieldMapping `yaml:"field_mappings,omitempty" json:"field_mappings,omitempty"`
}

// GovernancePolicy constrains the hosts an api_call step may reach and
// redacts sensitive content from responses before it enters the context.
type GovernancePolicy struct {
	AllowedHosts []string        `yaml:"allowed_hosts,omitempty" json:"allowed_hosts,omitempty"`
	DeniedHosts  []string        `yaml:"denied_hosts,omitempty"  json:"denied_hosts,omitempty"`
	Redact       []RedactionRule `yaml:"redact,omitempty"        json:"redact,omitempty"`
}

// RedactionRule is a regex pattern-replacement pair for sanitizing
// response bodies.
type RedactionRule struct {
	Pattern string `yaml:"pattern" json:"pattern" jsonschema:"required"`
	Replace string `yaml:"replace" json:"replace" jsonschema:"required"`
}

// Defaults specifies per-tool execution settings that override the
// engine configuration.
type Defaults struct {
	Timeout   string `yaml:"timeout,omitempty"    json:"timeout,omitempty"    jsonschema:"pattern=^[0-9]+(ms|s|m)$"`
	AITimeout string `yaml:"ai_timeout,omitempty" json:"ai_timeout,omitempty" jsonschema:"pattern=^[0-9]+(ms|s|m)$"`
	MaxSteps  int    `yaml:"max_steps,omitempty"  json:"max_steps,omitempty"`
}

// Tool statuses.
const (
	StatusDraft     = "draft"
	StatusTesting   = "testing"
	StatusPublished = "published"
)

// LoadFile reads and parses a tool definition YAML file with strict
// unknown-field rejection. Returns the parsed Tool or an error.
func LoadFile(path string) (*Tool, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open tool definition: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load parses a tool definition from an io.Reader with strict
// unknown-field rejection.
func Load(r io.Reader) (*Tool, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true) // reject unknown fields

	var t Tool
	if err := dec.Decode(&t); err != nil {
		return nil, fmt.Errorf("decode tool definition: %w", err)
	}
	return &t, nil
}

// Clone returns a deep copy of the tool, so callers can hand out
// snapshots that later edits to the original cannot reach.
func (t *Tool) Clone() *Tool {
	data, err := yaml.Marshal(t)
	if err != nil {
		// Tool came from a successful decode; re-marshal cannot fail.
		panic(fmt.Sprintf("clone tool %q: %v", t.ID, err))
	}
	var out Tool
	if err := yaml.Unmarshal(data, &out); err != nil {
		panic(fmt.Sprintf("clone tool %q: %v", t.ID, err))
	}
	return &out
}

// StepIndex returns a map from step id to position in the logic array.
func (t *Tool) StepIndex() map[string]int {
	idx := make(map[string]int, len(t.Logic))
	for i, s := range t.Logic {
		idx[s.ID] = i
	}
	return idx
}
