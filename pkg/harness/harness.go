// Package harness is the request/response surface over the execution
// engine: it validates submitted input against a tool's form fields,
// seeds the execution context, runs the pipeline, renders the output,
// and returns a structured result. One invocation is one isolated task;
// the only state shared across calls is the per-tool formula parse
// cache, which holds immutable ASTs.
package harness

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/toolmint/toolmint/pkg/formula"
	"github.com/toolmint/toolmint/pkg/providers"
	"github.com/toolmint/toolmint/pkg/render"
	"github.com/toolmint/toolmint/pkg/runtime"
	"github.com/toolmint/toolmint/pkg/schema"
	"github.com/toolmint/toolmint/pkg/store"
)

// TestResponse is returned by TestTool. Errors come back structured in
// the payload; the harness never panics outward.
type TestResponse struct {
	Success         bool             `json:"success"`
	Result          *render.Rendered `json:"result,omitempty"`
	Values          map[string]any   `json:"values,omitempty"`
	Error           string           `json:"error,omitempty"`
	FailedFields    []string         `json:"failedFields,omitempty"`
	ExecutionTimeMs int64            `json:"executionTimeMs"`
}

// RunResponse is returned by RunPublishedTool.
type RunResponse struct {
	Success    bool             `json:"success"`
	Outputs    *render.Rendered `json:"outputs,omitempty"`
	Error      string           `json:"error,omitempty"`
	DurationMs int64            `json:"durationMs"`
}

// Harness binds a tool store to the execution collaborators.
type Harness struct {
	store    *store.Store
	http     providers.HTTPDoer
	ai       providers.Inferencer
	log      *zap.Logger
	traceDir string

	maxSteps int
	httpWait time.Duration
	aiWait   time.Duration

	cacheMu sync.Mutex
	caches  map[string]*toolCache
}

// toolCache holds the shared formula parse cache for one tool revision.
type toolCache struct {
	rev      uint64
	formulas *formula.Cache
}

// Option configures a Harness.
type Option func(*Harness)

// WithHTTPDoer sets the HTTP collaborator handed to every engine.
func WithHTTPDoer(d providers.HTTPDoer) Option {
	return func(h *Harness) {
		if d != nil {
			h.http = d
		}
	}
}

// WithInferencer sets the AI collaborator handed to every engine.
func WithInferencer(inf providers.Inferencer) Option {
	return func(h *Harness) {
		if inf != nil {
			h.ai = inf
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(log *zap.Logger) Option {
	return func(h *Harness) {
		if log != nil {
			h.log = log
		}
	}
}

// WithTraceDir enables JSONL execution traces, one file per run, under
// the given directory.
func WithTraceDir(dir string) Option {
	return func(h *Harness) {
		h.traceDir = dir
	}
}

// WithExecutionLimits sets host-level run bounds applied to every
// engine. Zero values keep the engine defaults.
func WithExecutionLimits(maxSteps int, httpWait, aiWait time.Duration) Option {
	return func(h *Harness) {
		h.maxSteps = maxSteps
		h.httpWait = httpWait
		h.aiWait = aiWait
	}
}

// New creates a harness over a store.
func New(st *store.Store, opts ...Option) *Harness {
	h := &Harness{
		store:  st,
		http:   providers.NewClient(),
		log:    zap.NewNop(),
		caches: make(map[string]*toolCache),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// TestTool executes a draft (or any stored tool) against test data and
// returns the full structured outcome, including authoring-time
// configuration errors the author must fix.
func (h *Harness) TestTool(ctx context.Context, draftID string, testData map[string]any) *TestResponse {
	started := time.Now()
	fail := func(msg string, fields []string) *TestResponse {
		return &TestResponse{
			Success:         false,
			Error:           msg,
			FailedFields:    fields,
			ExecutionTimeMs: time.Since(started).Milliseconds(),
		}
	}

	tool, err := h.store.Get(draftID)
	if err != nil {
		return fail(err.Error(), nil)
	}

	run, err := h.execute(ctx, tool, testData)
	if err != nil {
		var inputErr *InputError
		if errors.As(err, &inputErr) {
			return fail(inputErr.Error(), inputErr.Fields())
		}
		return fail(err.Error(), nil)
	}
	if run.Status != runtime.StatusCompleted {
		resp := fail(run.Error, nil)
		resp.Values = run.Values
		return resp
	}

	rendered, err := render.Render(finalValue(tool, run), tool.Output)
	if err != nil {
		// ConfigError included: the author sees it here, at test time.
		resp := fail(err.Error(), nil)
		resp.Values = run.Values
		return resp
	}

	return &TestResponse{
		Success:         true,
		Result:          rendered,
		Values:          run.Values,
		ExecutionTimeMs: time.Since(started).Milliseconds(),
	}
}

// RunPublishedTool executes a published tool for an end user. Authoring
// mistakes (output misconfiguration) surface as a generic failure, not
// internals.
func (h *Harness) RunPublishedTool(ctx context.Context, toolID string, input map[string]any) *RunResponse {
	started := time.Now()
	fail := func(msg string) *RunResponse {
		return &RunResponse{
			Success:    false,
			Error:      msg,
			DurationMs: time.Since(started).Milliseconds(),
		}
	}

	tool, err := h.store.GetPublished(toolID)
	if err != nil {
		return fail(err.Error())
	}

	run, err := h.execute(ctx, tool, input)
	if err != nil {
		return fail(err.Error())
	}
	if run.Status != runtime.StatusCompleted {
		return fail(run.Error)
	}

	rendered, err := render.Render(finalValue(tool, run), tool.Output)
	if err != nil {
		var cfgErr *render.ConfigError
		if errors.As(err, &cfgErr) {
			h.log.Error("published tool has invalid output config",
				zap.String("tool_id", toolID),
				zap.String("error", cfgErr.Error()),
			)
			return fail("tool output is misconfigured; contact the tool's author")
		}
		return fail(err.Error())
	}

	return &RunResponse{
		Success:    true,
		Outputs:    rendered,
		DurationMs: time.Since(started).Milliseconds(),
	}
}

// execute validates input, seeds a fresh context, and runs the engine.
// Validation failures return before any step executes.
func (h *Harness) execute(ctx context.Context, tool *schema.Tool, input map[string]any) (*runtime.RunResult, error) {
	values, err := ValidateInput(tool.Inputs, input)
	if err != nil {
		return nil, err
	}

	engineOpts := []runtime.EngineOption{
		runtime.WithHTTPDoer(h.http),
		runtime.WithInferencer(h.ai),
		runtime.WithLogger(h.log),
		runtime.WithMaxSteps(h.maxSteps),
		runtime.WithWaits(h.httpWait, h.aiWait),
		runtime.WithFormulaCache(h.formulaCache(tool.ID)),
	}
	if h.traceDir != "" {
		if err := os.MkdirAll(h.traceDir, 0755); err != nil {
			return nil, fmt.Errorf("create trace directory: %w", err)
		}
		// Filename is tool + wall clock; the run id lives in the events.
		path := filepath.Join(h.traceDir, fmt.Sprintf("%s-%s.jsonl", tool.ID, time.Now().UTC().Format("20060102T150405.000")))
		tw, err := runtime.NewTraceWriter(path)
		if err != nil {
			return nil, err
		}
		defer tw.Close()
		engineOpts = append(engineOpts, runtime.WithTrace(tw))
	}

	engine, err := runtime.NewEngine(tool, engineOpts...)
	if err != nil {
		return nil, err
	}

	return engine.Execute(ctx, values)
}

// formulaCache returns the shared parse cache for a tool, so repeated
// runs of one definition parse each formula once. A cache is dropped
// when the store holds a newer revision of the tool.
func (h *Harness) formulaCache(toolID string) *formula.Cache {
	rev := h.store.Revision(toolID)
	h.cacheMu.Lock()
	defer h.cacheMu.Unlock()
	if c, ok := h.caches[toolID]; ok && c.rev == rev {
		return c.formulas
	}
	c := &toolCache{rev: rev, formulas: formula.NewCache()}
	h.caches[toolID] = c
	return c.formulas
}

// finalValue picks what the renderer sees: the mapped fields read from
// the whole context, so the full value map is the result document. A
// tool with exactly one step and no mappings renders that step's value
// directly. For table output, a final step that produced a list becomes
// the row source, so filter/map pipelines render one row per element.
func finalValue(tool *schema.Tool, run *runtime.RunResult) any {
	if tool.Output == nil || (len(tool.Output.FieldMappings) == 0 && len(tool.Output.Sections) == 0) {
		if len(tool.Logic) == 1 {
			if v, ok := run.Values[tool.Logic[0].ID]; ok {
				return v
			}
		}
		return run.Values
	}
	if tool.Output.Format == "table" {
		for i := len(run.Steps) - 1; i >= 0; i-- {
			s := run.Steps[i]
			if s.Status != runtime.StatusCompleted {
				continue
			}
			if rows, ok := s.Value.([]any); ok {
				return rows
			}
			break
		}
	}
	return run.Values
}
