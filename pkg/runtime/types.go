package runtime

import (
	"fmt"
	"time"
)

// Step statuses. Every step starts pending, moves to running when the
// cursor reaches it, and ends in exactly one terminal state.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusSkipped   = "skipped"
)

// StepResult is the outcome of executing a single step. Uniform
// envelope for all step types, written to the trace.
type StepResult struct {
	RunID     string    `json:"run_id"`
	StepID    string    `json:"step_id"`
	StepIndex int       `json:"step_index"`
	Type      string    `json:"type"`
	Status    string    `json:"status"`
	Value     any       `json:"value,omitempty"`
	Error     string    `json:"error,omitempty"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
}

// RunResult is the outcome of one full execution: final context values,
// the per-step trail, and the failure (if any) that halted the run.
type RunResult struct {
	RunID        string         `json:"run_id"`
	Status       string         `json:"status"` // completed, failed
	Values       map[string]any `json:"values"`
	Steps        []*StepResult  `json:"steps"`
	FailedStepID string         `json:"failed_step_id,omitempty"`
	Error        string         `json:"error,omitempty"`
	StartedAt    time.Time      `json:"started_at"`
	Duration     time.Duration  `json:"duration"`
}

// StepError attributes a failure to the step that produced it.
type StepError struct {
	StepID string
	Err    error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %q: %v", e.StepID, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Context is the append-only variable store threaded through one
// execution. Seeded from validated input keyed by field id; each
// completed step writes exactly one new entry keyed by its own id.
// Overwrites are rejected so earlier results stay immutable.
type Context struct {
	values map[string]any
}

// NewContext seeds a fresh context. The seed map is copied; the caller
// keeps ownership of its map.
func NewContext(seed map[string]any) *Context {
	values := make(map[string]any, len(seed))
	for k, v := range seed {
		values[k] = v
	}
	return &Context{values: values}
}

// Set writes a new entry. Writing an existing key is an error.
func (c *Context) Set(key string, v any) error {
	if _, exists := c.values[key]; exists {
		return fmt.Errorf("context key %q already set", key)
	}
	c.values[key] = v
	return nil
}

// Get reads an entry.
func (c *Context) Get(key string) (any, bool) {
	v, ok := c.values[key]
	return v, ok
}

// Values returns a snapshot copy of the current bindings.
func (c *Context) Values() map[string]any {
	out := make(map[string]any, len(c.values))
	for k, v := range c.values {
		out[k] = v
	}
	return out
}

// Len reports how many entries the context holds.
func (c *Context) Len() int {
	return len(c.values)
}
