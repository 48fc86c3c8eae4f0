package schema

import (
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	sjsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/toolmint/toolmint/pkg/formula"
)

// ValidationError represents a single validation error with location
// context. These are authoring-time errors: a definition that passes
// validation can be executed without the engine discovering structural
// problems at run time.
type ValidationError struct {
	Phase    string `json:"phase"` // structural, semantic, domain
	Path     string `json:"path"`  // JSON-path-like location (e.g., "logic[2].condition.then")
	Message  string `json:"message"`
	Severity string `json:"severity"` // error, warning
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Phase, e.Path, e.Message)
}

// ValidateFile performs the full 3-phase validation pipeline on a tool
// definition file.
// Phase 1: Structural (strict YAML decode)
// Phase 2: Semantic (JSON Schema validation)
// Phase 3: Domain (custom Go rules, including control-flow graph checks)
func ValidateFile(path string) (*Tool, []*ValidationError) {
	t, err := LoadFile(path)
	if err != nil {
		return nil, []*ValidationError{{
			Phase:    "structural",
			Message:  err.Error(),
			Severity: "error",
		}}
	}
	return t, Validate(t)
}

// Validate runs the semantic and domain phases on an already-decoded
// tool definition.
func Validate(t *Tool) []*ValidationError {
	var allErrors []*ValidationError
	allErrors = append(allErrors, validateSemantic(t)...)
	allErrors = append(allErrors, ValidateDomain(t)...)
	return allErrors
}

// validateSemantic validates the tool against the generated JSON Schema.
func validateSemantic(t *Tool) []*ValidationError {
	semErr := func(msg string) []*ValidationError {
		return []*ValidationError{{Phase: "semantic", Message: msg, Severity: "error"}}
	}

	data, err := json.Marshal(t)
	if err != nil {
		return semErr(fmt.Sprintf("marshal for schema validation: %v", err))
	}

	schemaJSON, err := GenerateJSONSchema()
	if err != nil {
		return semErr(fmt.Sprintf("generate schema: %v", err))
	}

	var schemaDoc any
	if err := json.Unmarshal(schemaJSON, &schemaDoc); err != nil {
		return semErr(fmt.Sprintf("unmarshal schema: %v", err))
	}

	c := sjsonschema.NewCompiler()
	if err := c.AddResource("tool-v1.json", schemaDoc); err != nil {
		return semErr(fmt.Sprintf("add schema resource: %v", err))
	}
	sch, err := c.Compile("tool-v1.json")
	if err != nil {
		return semErr(fmt.Sprintf("compile schema: %v", err))
	}

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return semErr(fmt.Sprintf("unmarshal document: %v", err))
	}

	if err := sch.Validate(doc); err != nil {
		var errs []*ValidationError
		if ve, ok := err.(*sjsonschema.ValidationError); ok {
			for _, cause := range flattenValidationErrors(ve) {
				errs = append(errs, &ValidationError{
					Phase:    "semantic",
					Path:     strings.Join(cause.InstanceLocation, "/"),
					Message:  fmt.Sprintf("%v", cause.ErrorKind),
					Severity: "error",
				})
			}
		} else {
			errs = semErr(err.Error())
		}
		return errs
	}
	return nil
}

// flattenValidationErrors recursively collects all leaf validation errors.
func flattenValidationErrors(ve *sjsonschema.ValidationError) []*sjsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return []*sjsonschema.ValidationError{ve}
	}
	var flat []*sjsonschema.ValidationError
	for _, cause := range ve.Causes {
		flat = append(flat, flattenValidationErrors(cause)...)
	}
	return flat
}

var fieldTypes = map[string]bool{
	"text": true, "textarea": true, "number": true, "boolean": true,
	"select": true, "email": true, "tel": true, "url": true, "date": true,
}

var transformOps = map[string]bool{
	"uppercase": true, "lowercase": true, "title": true, "trim": true,
	"round": true, "floor": true, "ceil": true, "map": true, "filter": true,
}

var displayFormats = map[string]bool{
	"currency": true, "date": true, "percentage": true,
	"number": true, "boolean": true, "text": true,
}

var httpMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "PATCH": true, "DELETE": true,
}

// ValidateDomain performs Phase 3 domain-level validation.
// Returns a slice of errors; empty means valid.
func ValidateDomain(t *Tool) []*ValidationError {
	var errs []*ValidationError
	addErr := func(path, format string, args ...any) {
		errs = append(errs, &ValidationError{
			Phase:    "domain",
			Path:     path,
			Message:  fmt.Sprintf(format, args...),
			Severity: "error",
		})
	}

	if t.APIVersion != "tool/v1" {
		addErr("apiVersion", "unrecognized apiVersion %q, expected %q", t.APIVersion, "tool/v1")
	}
	if t.ID == "" {
		addErr("id", "tool requires an id")
	}
	switch t.Status {
	case StatusDraft, StatusTesting, StatusPublished:
	default:
		addErr("status", "invalid status %q: must be draft, testing, or published", t.Status)
	}

	// Fields: id uniqueness, type enum, options iff select.
	fieldIDs := make(map[string]int)
	for i, f := range t.Inputs {
		if f.ID == "" {
			addErr(fmt.Sprintf("inputs[%d].id", i), "field requires an id")
			continue
		}
		if prev, ok := fieldIDs[f.ID]; ok {
			addErr(fmt.Sprintf("inputs[%d].id", i), "duplicate field id %q (first at inputs[%d])", f.ID, prev)
		}
		fieldIDs[f.ID] = i

		if !fieldTypes[f.Type] {
			addErr(fmt.Sprintf("inputs[%d].type", i), "field %q has invalid type %q", f.ID, f.Type)
		}
		if f.Type == "select" && len(f.Options) == 0 {
			addErr(fmt.Sprintf("inputs[%d].options", i), "select field %q requires options", f.ID)
		}
		if f.Type != "select" && len(f.Options) > 0 {
			addErr(fmt.Sprintf("inputs[%d].options", i), "field %q has options but type is %q, not select", f.ID, f.Type)
		}
	}

	// Steps: id uniqueness, no collision with field ids (they share the
	// context keyspace), exactly one config matching the declared type.
	if len(t.Logic) == 0 {
		addErr("logic", "tool must contain at least one logic step")
	}
	stepIDs := make(map[string]int)
	for i, s := range t.Logic {
		path := fmt.Sprintf("logic[%d]", i)
		if s.ID == "" {
			addErr(path+".id", "step requires an id")
			continue
		}
		if prev, ok := stepIDs[s.ID]; ok {
			addErr(path+".id", "duplicate step id %q (first at logic[%d])", s.ID, prev)
		}
		stepIDs[s.ID] = i
		if _, ok := fieldIDs[s.ID]; ok {
			addErr(path+".id", "step id %q collides with a field id; fields and steps share the context keyspace", s.ID)
		}
	}

	// knownRef reports whether a context key reference can ever resolve.
	knownRef := func(ref string) bool {
		_, isField := fieldIDs[ref]
		_, isStep := stepIDs[ref]
		return isField || isStep
	}

	for i, s := range t.Logic {
		path := fmt.Sprintf("logic[%d]", i)
		errs = append(errs, validateStepConfig(path, s, stepIDs, knownRef)...)
	}

	// Output: table/card require non-empty field mappings.
	if t.Output != nil {
		errs = append(errs, validateOutput("output", t.Output)...)
	}

	// Governance: host overlap and redaction regexes.
	if t.Governance != nil {
		gov := t.Governance
		allowSet := make(map[string]bool)
		for _, h := range gov.AllowedHosts {
			allowSet[h] = true
		}
		for _, h := range gov.DeniedHosts {
			if allowSet[h] {
				addErr("governance", "host %q appears in both allowed_hosts and denied_hosts (overlap not permitted)", h)
			}
		}
		for i, rule := range gov.Redact {
			if _, err := regexp.Compile(rule.Pattern); err != nil {
				addErr(fmt.Sprintf("governance.redact[%d].pattern", i), "invalid regex pattern %q: %v", rule.Pattern, err)
			}
		}
	}

	if t.Defaults != nil {
		for _, d := range []struct{ path, val string }{
			{"defaults.timeout", t.Defaults.Timeout},
			{"defaults.ai_timeout", t.Defaults.AITimeout},
		} {
			if d.val == "" {
				continue
			}
			if _, err := time.ParseDuration(d.val); err != nil {
				addErr(d.path, "invalid duration %q", d.val)
			}
		}
	}

	// Control-flow graph: every pointer target must exist and the unrolled
	// graph must be acyclic. Checked here, at save time, so the executor
	// never has to detect loops mid-run.
	errs = append(errs, validateGraph(t, stepIDs)...)

	return errs
}

// validateStepConfig checks the tagged-union invariant and the
// type-specific config of one step. Formulas are parsed here so syntax
// and disallowed-token errors surface at save time.
func validateStepConfig(path string, s Step, stepIDs map[string]int, knownRef func(string) bool) []*ValidationError {
	var errs []*ValidationError
	addErr := func(p, format string, args ...any) {
		errs = append(errs, &ValidationError{
			Phase: "domain", Path: p, Message: fmt.Sprintf(format, args...), Severity: "error",
		})
	}
	checkFormula := func(p, src string) {
		if _, err := formula.Parse(src); err != nil {
			addErr(p, "invalid formula: %v", err)
		}
	}
	checkTarget := func(p, target string) {
		if target == "" {
			return
		}
		if _, ok := stepIDs[target]; !ok {
			addErr(p, "step %q routes to unknown step id %q", s.ID, target)
		}
	}

	configs := map[string]bool{
		"calculation": s.Calculation != nil,
		"condition":   s.Condition != nil,
		"switch":      s.Switch != nil,
		"transform":   s.Transform != nil,
		"api_call":    s.APICall != nil,
		"ai_analysis": s.AIAnalysis != nil,
	}
	if set, ok := configs[s.Type]; !ok {
		addErr(path+".type", "step %q has unknown type %q", s.ID, s.Type)
		return errs
	} else if !set {
		addErr(path, "%s step %q requires a %q config block", s.Type, s.ID, s.Type)
	}
	for name, set := range configs {
		if set && name != s.Type {
			addErr(path+"."+name, "step %q is type %q but carries a %q config", s.ID, s.Type, name)
		}
	}

	switch s.Type {
	case "calculation":
		if s.Calculation == nil {
			return errs
		}
		cfg := s.Calculation
		if cfg.Formula == "" {
			addErr(path+".calculation.formula", "calculation step %q requires a formula", s.ID)
		} else {
			checkFormula(path+".calculation.formula", cfg.Formula)
		}
		seen := make(map[string]bool)
		for j, v := range cfg.Variables {
			vpath := fmt.Sprintf("%s.calculation.variables[%d]", path, j)
			if v.Name == "" {
				addErr(vpath+".name", "variable binding requires a name")
			} else if seen[v.Name] {
				addErr(vpath+".name", "duplicate variable name %q", v.Name)
			}
			seen[v.Name] = true
			if v.From == "" {
				addErr(vpath+".from", "variable %q requires a 'from' context key", v.Name)
			} else if !knownRef(v.From) {
				addErr(vpath+".from", "variable %q binds unknown context key %q", v.Name, v.From)
			}
		}

	case "condition":
		if s.Condition == nil {
			return errs
		}
		cfg := s.Condition
		if cfg.Expression == "" {
			addErr(path+".condition.expression", "condition step %q requires an expression", s.ID)
		} else {
			checkFormula(path+".condition.expression", cfg.Expression)
		}
		checkTarget(path+".condition.then", cfg.Then)
		checkTarget(path+".condition.else", cfg.Else)

	case "switch":
		if s.Switch == nil {
			return errs
		}
		cfg := s.Switch
		if cfg.Selector == "" {
			addErr(path+".switch.selector", "switch step %q requires a selector expression", s.ID)
		} else {
			checkFormula(path+".switch.selector", cfg.Selector)
		}
		if len(cfg.Cases) == 0 {
			addErr(path+".switch.cases", "switch step %q requires at least one case", s.ID)
		}
		for j, c := range cfg.Cases {
			if c.Next == "" {
				addErr(fmt.Sprintf("%s.switch.cases[%d].next", path, j), "switch case requires a next step id")
			} else {
				checkTarget(fmt.Sprintf("%s.switch.cases[%d].next", path, j), c.Next)
			}
		}
		checkTarget(path+".switch.default", cfg.Default)

	case "transform":
		if s.Transform == nil {
			return errs
		}
		cfg := s.Transform
		if !transformOps[cfg.Op] {
			addErr(path+".transform.op", "transform step %q has invalid op %q", s.ID, cfg.Op)
		}
		if cfg.Input == "" {
			addErr(path+".transform.input", "transform step %q requires an input context key", s.ID)
		} else if !knownRef(cfg.Input) {
			addErr(path+".transform.input", "transform step %q reads unknown context key %q", s.ID, cfg.Input)
		}
		if cfg.Op == "map" || cfg.Op == "filter" {
			if cfg.Expression == "" {
				addErr(path+".transform.expression", "transform op %q requires an expression", cfg.Op)
			} else {
				checkFormula(path+".transform.expression", cfg.Expression)
			}
		}
		if cfg.Precision < 0 {
			addErr(path+".transform.precision", "precision must be non-negative")
		}

	case "api_call":
		if s.APICall == nil {
			return errs
		}
		cfg := s.APICall
		if cfg.Method != "" && !httpMethods[cfg.Method] {
			addErr(path+".api_call.method", "invalid HTTP method %q", cfg.Method)
		}
		if cfg.URL == "" {
			addErr(path+".api_call.url", "api_call step %q requires a url", s.ID)
		} else if !strings.Contains(cfg.URL, "{{") {
			u, err := url.Parse(cfg.URL)
			if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
				addErr(path+".api_call.url", "api_call step %q url must be http(s): %q", s.ID, cfg.URL)
			}
		}
		if cfg.Timeout != "" {
			if _, err := time.ParseDuration(cfg.Timeout); err != nil {
				addErr(path+".api_call.timeout", "invalid duration %q", cfg.Timeout)
			}
		}

	case "ai_analysis":
		if s.AIAnalysis == nil {
			return errs
		}
		cfg := s.AIAnalysis
		if cfg.Prompt == "" {
			addErr(path+".ai_analysis.prompt", "ai_analysis step %q requires a prompt", s.ID)
		}
		if cfg.Timeout != "" {
			if _, err := time.ParseDuration(cfg.Timeout); err != nil {
				addErr(path+".ai_analysis.timeout", "invalid duration %q", cfg.Timeout)
			}
		}
	}
	return errs
}

func validateOutput(path string, out *OutputConfig) []*ValidationError {
	var errs []*ValidationError
	addErr := func(p, format string, args ...any) {
		errs = append(errs, &ValidationError{
			Phase: "domain", Path: p, Message: fmt.Sprintf(format, args...), Severity: "error",
		})
	}

	switch out.Format {
	case "text", "json", "markdown":
	case "table", "card":
		if len(out.FieldMappings) == 0 {
			addErr(path+".field_mappings", "%s output requires non-empty field_mappings", out.Format)
		}
	default:
		addErr(path+".format", "invalid output format %q", out.Format)
	}

	checkMappings := func(p string, ms []FieldMapping) {
		for j, m := range ms {
			if m.FieldID == "" {
				addErr(fmt.Sprintf("%s[%d].field_id", p, j), "field mapping requires a field_id")
			}
			if m.Format != "" && !displayFormats[m.Format] {
				addErr(fmt.Sprintf("%s[%d].format", p, j), "invalid display format %q", m.Format)
			}
		}
	}
	checkMappings(path+".field_mappings", out.FieldMappings)
	for i, sec := range out.Sections {
		if sec.Title == "" {
			addErr(fmt.Sprintf("%s.sections[%d].title", path, i), "section requires a title")
		}
		checkMappings(fmt.Sprintf("%s.sections[%d].field_mappings", path, i), sec.FieldMappings)
	}
	return errs
}

// validateGraph unrolls the pipeline's next-pointers into a directed
// graph and rejects definitions containing a cycle (Kahn's algorithm).
// Edges per step: condition → then/else (sequential fallthrough for an
// unset branch), switch → every case target plus the default (sequential
// fallthrough only when no default is declared), every other type → the
// next sequential step.
func validateGraph(t *Tool, stepIDs map[string]int) []*ValidationError {
	n := len(t.Logic)
	if n == 0 {
		return nil
	}

	adj := make([][]int, n)
	indegree := make([]int, n)
	addEdge := func(from, to int) {
		if to < 0 || to >= n {
			return
		}
		adj[from] = append(adj[from], to)
		indegree[to]++
	}
	target := func(id string) int {
		if id == "" {
			return -1
		}
		i, ok := stepIDs[id]
		if !ok {
			return -1 // unknown targets are reported by validateStepConfig
		}
		return i
	}

	for i, s := range t.Logic {
		next := i + 1
		switch s.Type {
		case "condition":
			if s.Condition == nil {
				addEdge(i, next)
				continue
			}
			if s.Condition.Then != "" {
				addEdge(i, target(s.Condition.Then))
			} else {
				addEdge(i, next)
			}
			if s.Condition.Else != "" {
				addEdge(i, target(s.Condition.Else))
			} else if s.Condition.Then != "" {
				addEdge(i, next)
			}
		case "switch":
			if s.Switch == nil {
				addEdge(i, next)
				continue
			}
			for _, c := range s.Switch.Cases {
				addEdge(i, target(c.Next))
			}
			if s.Switch.Default != "" {
				addEdge(i, target(s.Switch.Default))
			} else {
				// no default: a non-matching selector skips the step and
				// falls through sequentially
				addEdge(i, next)
			}
		default:
			addEdge(i, next)
		}
	}

	// Kahn's algorithm: if a topological order covers every step, the
	// graph is acyclic.
	queue := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if indegree[i] == 0 {
			queue = append(queue, i)
		}
	}
	visited := 0
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		visited++
		for _, next := range adj[cur] {
			indegree[next]--
			if indegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}
	if visited == n {
		return nil
	}

	var cyclic []string
	for i := 0; i < n; i++ {
		if indegree[i] > 0 {
			cyclic = append(cyclic, t.Logic[i].ID)
		}
	}
	return []*ValidationError{{
		Phase:    "domain",
		Path:     "logic",
		Message:  fmt.Sprintf("control flow contains a cycle through step(s): %s", strings.Join(cyclic, ", ")),
		Severity: "error",
	}}
}
