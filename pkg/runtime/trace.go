package runtime

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// TraceEvent is one line of the JSONL execution trace. Step events
// carry the step result; the closing run event carries the summary.
type TraceEvent struct {
	Type      string      `json:"type"` // "step" or "run"
	Timestamp time.Time   `json:"timestamp"`
	RunID     string      `json:"run_id"`
	Step      *StepResult `json:"step,omitempty"`
	Status    string      `json:"status,omitempty"`
	Error     string      `json:"error,omitempty"`
	Duration  int64       `json:"duration_ms,omitempty"`
}

// TraceWriter appends execution events to a JSONL trace file. Each
// write flushes and syncs so a crashed run leaves a readable trail.
type TraceWriter struct {
	file   *os.File
	writer *bufio.Writer
	enc    *json.Encoder
}

// NewTraceWriter creates a trace writer that appends to the given file.
func NewTraceWriter(path string) (*TraceWriter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open trace file: %w", err)
	}
	w := bufio.NewWriter(f)
	return &TraceWriter{
		file:   f,
		writer: w,
		enc:    json.NewEncoder(w),
	}, nil
}

// WriteStep appends a step result event.
func (tw *TraceWriter) WriteStep(result *StepResult) error {
	return tw.write(TraceEvent{
		Type:      "step",
		Timestamp: time.Now(),
		RunID:     result.RunID,
		Step:      result,
	})
}

// WriteRun appends the closing run summary event.
func (tw *TraceWriter) WriteRun(run *RunResult) error {
	return tw.write(TraceEvent{
		Type:      "run",
		Timestamp: time.Now(),
		RunID:     run.RunID,
		Status:    run.Status,
		Error:     run.Error,
		Duration:  run.Duration.Milliseconds(),
	})
}

func (tw *TraceWriter) write(event TraceEvent) error {
	if err := tw.enc.Encode(event); err != nil {
		return fmt.Errorf("encode trace event: %w", err)
	}
	// Flush and sync at event boundaries
	if err := tw.writer.Flush(); err != nil {
		return fmt.Errorf("flush trace: %w", err)
	}
	if err := tw.file.Sync(); err != nil {
		return fmt.Errorf("sync trace: %w", err)
	}
	return nil
}

// Close flushes and closes the trace file.
func (tw *TraceWriter) Close() error {
	if err := tw.writer.Flush(); err != nil {
		return err
	}
	return tw.file.Close()
}
