// Package runtime executes a tool's logic pipeline: a cursor walks the
// step arena, condition and switch steps redirect it by step id, and
// every completed step appends exactly one value to the execution
// context. One Engine instance serves one tool snapshot; each Execute
// call owns its context, so concurrent runs share no mutable state.
package runtime

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"
	"time"

	"go.uber.org/zap"

	"github.com/toolmint/toolmint/pkg/formula"
	"github.com/toolmint/toolmint/pkg/governance"
	"github.com/toolmint/toolmint/pkg/providers"
	"github.com/toolmint/toolmint/pkg/schema"
)

// Default resource bounds, overridable per tool and per engine.
const (
	DefaultMaxSteps  = 256
	DefaultHTTPWait  = 30 * time.Second
	DefaultInferWait = 2 * time.Minute
)

// GenerateRunID creates a run ID in format YYYYMMDDTHHmmss-xxxx.
func GenerateRunID() string {
	ts := time.Now().UTC().Format("20060102T150405")
	suffix := make([]byte, 4)
	rand.Read(suffix)
	return fmt.Sprintf("%s-%x", ts, suffix)
}

// Engine drives the execution of one tool definition.
type Engine struct {
	tool     *schema.Tool
	index    map[string]int
	formulas *formula.Cache
	gov      *governance.Engine
	http     providers.HTTPDoer
	ai       providers.Inferencer
	trace    *TraceWriter
	log      *zap.Logger

	maxSteps  int
	httpWait  time.Duration
	inferWait time.Duration
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithHTTPDoer sets the outbound HTTP collaborator for api_call steps.
func WithHTTPDoer(d providers.HTTPDoer) EngineOption {
	return func(e *Engine) {
		if d != nil {
			e.http = d
		}
	}
}

// WithInferencer sets the AI collaborator for ai_analysis steps.
func WithInferencer(inf providers.Inferencer) EngineOption {
	return func(e *Engine) {
		if inf != nil {
			e.ai = inf
		}
	}
}

// WithTrace attaches a JSONL trace writer; each step result is appended
// as it finishes.
func WithTrace(tw *TraceWriter) EngineOption {
	return func(e *Engine) { e.trace = tw }
}

// WithLogger sets the structured logger.
func WithLogger(log *zap.Logger) EngineOption {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// WithFormulaCache shares a parse cache across engines built for the
// same tool definition, so repeated runs parse each formula once.
func WithFormulaCache(c *formula.Cache) EngineOption {
	return func(e *Engine) {
		if c != nil {
			e.formulas = c
		}
	}
}

// WithMaxSteps overrides the per-run step execution limit.
func WithMaxSteps(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.maxSteps = n
		}
	}
}

// WithWaits overrides the per-step timeouts for api_call and
// ai_analysis steps. Options apply after tool-level defaults, so the
// host's limits win over the tool author's.
func WithWaits(httpWait, inferWait time.Duration) EngineOption {
	return func(e *Engine) {
		if httpWait > 0 {
			e.httpWait = httpWait
		}
		if inferWait > 0 {
			e.inferWait = inferWait
		}
	}
}

// NewEngine creates an engine for a validated tool snapshot. The
// governance policy is compiled here so a bad policy fails before any
// run starts.
func NewEngine(tool *schema.Tool, opts ...EngineOption) (*Engine, error) {
	gov, err := governance.NewEngine(tool.Governance)
	if err != nil {
		return nil, fmt.Errorf("governance policy: %w", err)
	}

	e := &Engine{
		tool:      tool,
		index:     tool.StepIndex(),
		formulas:  formula.NewCache(),
		gov:       gov,
		http:      providers.NewClient(),
		log:       zap.NewNop(),
		maxSteps:  DefaultMaxSteps,
		httpWait:  DefaultHTTPWait,
		inferWait: DefaultInferWait,
	}
	if d := tool.Defaults; d != nil {
		if d.MaxSteps > 0 {
			e.maxSteps = d.MaxSteps
		}
		if d.Timeout != "" {
			if w, err := time.ParseDuration(d.Timeout); err == nil {
				e.httpWait = w
			}
		}
		if d.AITimeout != "" {
			if w, err := time.ParseDuration(d.AITimeout); err == nil {
				e.inferWait = w
			}
		}
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e, nil
}

// Execute runs the pipeline against a seeded context. The returned
// RunResult always carries the partial context and step trail, even
// when the run halts on a failure.
func (e *Engine) Execute(ctx context.Context, seed map[string]any) (*RunResult, error) {
	runID := GenerateRunID()
	started := time.Now()
	values := NewContext(seed)
	n := len(e.tool.Logic)
	visited := make([]bool, n)
	blocked := make([]bool, n)
	var results []*StepResult

	run := &RunResult{
		RunID:     runID,
		Status:    StatusCompleted,
		StartedAt: started,
	}

	executed := 0
	cursor := 0
	for cursor >= 0 && cursor < n {
		if executed >= e.maxSteps {
			run.Status = StatusFailed
			run.Error = fmt.Sprintf("run exceeded step limit of %d", e.maxSteps)
			break
		}
		if err := ctx.Err(); err != nil {
			run.Status = StatusFailed
			run.Error = err.Error()
			break
		}

		step := e.tool.Logic[cursor]

		// A branch the router did not choose is skipped, never evaluated,
		// even when the cursor reaches it sequentially.
		if blocked[cursor] {
			if !visited[cursor] {
				visited[cursor] = true
				now := time.Now()
				results = append(results, &StepResult{
					RunID:     runID,
					StepID:    step.ID,
					StepIndex: cursor,
					Type:      step.Type,
					Status:    StatusSkipped,
					StartedAt: now,
					EndedAt:   now,
				})
			}
			cursor++
			continue
		}

		visited[cursor] = true
		executed++

		e.log.Debug("executing step",
			zap.String("run_id", runID),
			zap.String("step_id", step.ID),
			zap.String("type", step.Type),
		)

		res, next, blocks := e.runStep(ctx, runID, cursor, step, values)
		for _, b := range blocks {
			if b >= 0 && b < n && !visited[b] {
				blocked[b] = true
			}
		}
		results = append(results, res)
		if e.trace != nil {
			if err := e.trace.WriteStep(res); err != nil {
				return nil, fmt.Errorf("write trace for step %q: %w", step.ID, err)
			}
		}

		if res.Status == StatusFailed {
			if step.ContinueOnError {
				// Absorb the failure: a nil marker keeps downstream
				// references resolvable without hiding that the step failed.
				if err := values.Set(step.ID, nil); err != nil {
					return nil, &StepError{StepID: step.ID, Err: err}
				}
				e.log.Warn("step failed, continuing",
					zap.String("run_id", runID),
					zap.String("step_id", step.ID),
					zap.String("error", res.Error),
				)
				cursor = next
				continue
			}
			run.Status = StatusFailed
			run.FailedStepID = step.ID
			run.Error = res.Error
			break
		}

		cursor = next
	}

	// Steps the cursor never reached are skipped, not silently absent.
	for i := 0; i < n; i++ {
		if !visited[i] {
			now := time.Now()
			results = append(results, &StepResult{
				RunID:     runID,
				StepID:    e.tool.Logic[i].ID,
				StepIndex: i,
				Type:      e.tool.Logic[i].Type,
				Status:    StatusSkipped,
				StartedAt: now,
				EndedAt:   now,
			})
		}
	}

	run.Values = values.Values()
	run.Steps = results
	run.Duration = time.Since(started)

	if e.trace != nil {
		if err := e.trace.WriteRun(run); err != nil {
			return nil, fmt.Errorf("write run trace: %w", err)
		}
	}

	e.log.Info("run finished",
		zap.String("run_id", runID),
		zap.String("status", run.Status),
		zap.Int("steps", executed),
		zap.Duration("duration", run.Duration),
	)
	return run, nil
}

// runStep executes one step and returns its result, the index of the
// next step (len(logic) finishes the run), and the indexes of branch
// targets the step ruled out.
func (e *Engine) runStep(ctx context.Context, runID string, idx int, step schema.Step, values *Context) (*StepResult, int, []int) {
	res := &StepResult{
		RunID:     runID,
		StepID:    step.ID,
		StepIndex: idx,
		Type:      step.Type,
		Status:    StatusRunning,
		StartedAt: time.Now(),
	}
	next := idx + 1
	var blocks []int

	fail := func(err error) (*StepResult, int, []int) {
		res.Status = StatusFailed
		res.Error = err.Error()
		res.EndedAt = time.Now()
		return res, next, blocks
	}
	complete := func(v any) (*StepResult, int, []int) {
		if err := values.Set(step.ID, v); err != nil {
			return fail(err)
		}
		res.Status = StatusCompleted
		res.Value = v
		res.EndedAt = time.Now()
		return res, next, blocks
	}

	switch step.Type {
	case "calculation":
		bindings := make(map[string]any, len(step.Calculation.Variables))
		for _, b := range step.Calculation.Variables {
			v, ok := values.Get(b.From)
			if !ok {
				return fail(fmt.Errorf("variable %q: context key %q not set", b.Name, b.From))
			}
			bindings[b.Name] = v
		}
		v, err := e.formulas.Evaluate(step.Calculation.Formula, bindings)
		if err != nil {
			return fail(err)
		}
		return complete(v)

	case "condition":
		cfg := step.Condition
		truthy, err := e.formulas.EvaluateBool(cfg.Expression, values.Values())
		if err != nil {
			return fail(err)
		}
		if truthy {
			if cfg.Then != "" {
				next = e.index[cfg.Then]
			}
			// then and else may name the same step; never block the
			// chosen target.
			if cfg.Else != "" {
				if t := e.index[cfg.Else]; t != next {
					blocks = append(blocks, t)
				}
			}
		} else {
			if cfg.Else != "" {
				next = e.index[cfg.Else]
			}
			if cfg.Then != "" {
				if t := e.index[cfg.Then]; t != next {
					blocks = append(blocks, t)
				}
			}
		}
		if err := values.Set(step.ID, truthy); err != nil {
			return fail(err)
		}
		res.Status = StatusCompleted
		res.Value = truthy
		res.EndedAt = time.Now()
		return res, next, blocks

	case "switch":
		cfg := step.Switch
		selected, err := e.formulas.Evaluate(cfg.Selector, values.Values())
		if err != nil {
			return fail(err)
		}
		chosen := -1
		for _, c := range cfg.Cases {
			if caseMatches(selected, c.Value) {
				chosen = e.index[c.Next]
				break
			}
		}
		if chosen < 0 && cfg.Default != "" {
			chosen = e.index[cfg.Default]
		}
		if chosen < 0 {
			// no match and no default: the switch itself is skipped
			res.Status = StatusSkipped
			res.EndedAt = time.Now()
			return res, next, blocks
		}
		next = chosen
		for _, c := range cfg.Cases {
			if t := e.index[c.Next]; t != chosen {
				blocks = append(blocks, t)
			}
		}
		if cfg.Default != "" {
			if t := e.index[cfg.Default]; t != chosen {
				blocks = append(blocks, t)
			}
		}
		if err := values.Set(step.ID, selected); err != nil {
			return fail(err)
		}
		res.Status = StatusCompleted
		res.Value = selected
		res.EndedAt = time.Now()
		return res, next, blocks

	case "transform":
		input, ok := values.Get(step.Transform.Input)
		if !ok {
			return fail(fmt.Errorf("transform input %q not set", step.Transform.Input))
		}
		v, err := applyTransform(step.Transform, input, e.formulas)
		if err != nil {
			return fail(err)
		}
		return complete(v)

	case "api_call":
		v, err := e.runAPICall(ctx, step.APICall, values)
		if err != nil {
			return fail(&StepError{StepID: step.ID, Err: err})
		}
		return complete(v)

	case "ai_analysis":
		v, err := e.runAIAnalysis(ctx, step.AIAnalysis, values)
		if err != nil {
			return fail(&StepError{StepID: step.ID, Err: err})
		}
		return complete(v)
	}

	return fail(fmt.Errorf("unknown step type %q", step.Type))
}

// runAPICall templates, authorizes, and issues one outbound request.
// The response body is redacted per policy and parsed as JSON when it
// is JSON; otherwise the raw string enters the context.
func (e *Engine) runAPICall(ctx context.Context, cfg *schema.APICallConfig, values *Context) (any, error) {
	url, err := e.resolveTemplate(cfg.URL, values)
	if err != nil {
		return nil, fmt.Errorf("resolve url: %w", err)
	}
	if err := e.gov.CheckURL(url); err != nil {
		return nil, err
	}
	body, err := e.resolveTemplate(cfg.Body, values)
	if err != nil {
		return nil, fmt.Errorf("resolve body: %w", err)
	}
	headers := make(map[string]string, len(cfg.Headers))
	for k, v := range cfg.Headers {
		hv, err := e.resolveTemplate(v, values)
		if err != nil {
			return nil, fmt.Errorf("resolve header %q: %w", k, err)
		}
		headers[k] = hv
	}

	wait := e.httpWait
	if cfg.Timeout != "" {
		if w, err := time.ParseDuration(cfg.Timeout); err == nil {
			wait = w
		}
	}
	callCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	resp, err := e.http.Do(callCtx, &providers.HTTPRequest{
		Method:  cfg.Method,
		URL:     url,
		Headers: headers,
		Body:    body,
	})
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("request to %s returned status %d", url, resp.StatusCode)
	}

	redacted := e.gov.Redact(string(resp.Body))
	var parsed any
	if err := json.Unmarshal([]byte(redacted), &parsed); err == nil {
		return parsed, nil
	}
	return redacted, nil
}

// runAIAnalysis templates the prompt and delegates to the inference
// collaborator under its own, typically larger, timeout.
func (e *Engine) runAIAnalysis(ctx context.Context, cfg *schema.AIAnalysisConfig, values *Context) (any, error) {
	prompt, err := e.resolveTemplate(cfg.Prompt, values)
	if err != nil {
		return nil, fmt.Errorf("resolve prompt: %w", err)
	}
	if e.ai == nil {
		return nil, fmt.Errorf("no inference collaborator configured")
	}

	wait := e.inferWait
	if cfg.Timeout != "" {
		if w, err := time.ParseDuration(cfg.Timeout); err == nil {
			wait = w
		}
	}
	callCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	reply, err := e.ai.Infer(callCtx, &providers.InferenceRequest{
		Prompt: prompt,
		Model:  cfg.Model,
	})
	if err != nil {
		return nil, err
	}
	return e.gov.Redact(reply), nil
}

// resolveTemplate expands {{.key}} references against the context.
// Unknown keys error rather than render as "<no value>".
func (e *Engine) resolveTemplate(tmplStr string, values *Context) (string, error) {
	if !strings.Contains(tmplStr, "{{") {
		return tmplStr, nil
	}
	tmpl, err := template.New("resolve").Option("missingkey=error").Parse(tmplStr)
	if err != nil {
		return "", fmt.Errorf("parse template: %w", err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, values.Values()); err != nil {
		return "", fmt.Errorf("execute template: %w", err)
	}
	return buf.String(), nil
}

// caseMatches compares a switch selector result against a case value.
// Numbers compare numerically across representations; everything else
// compares by display string, which matches how case values arrive
// from YAML.
func caseMatches(selected, caseValue any) bool {
	if sf, ok := toFloat(selected); ok {
		if cf, ok := toFloat(caseValue); ok {
			return sf == cf
		}
	}
	return formula.Stringify(selected) == formula.Stringify(caseValue)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
