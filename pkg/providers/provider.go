// Package providers defines the outbound collaborator interfaces the
// execution engine depends on (HTTP and AI inference) and their default
// implementations. The engine never reaches the network directly; it
// goes through these interfaces so tests can substitute stubs.
package providers

import (
	"context"
	"time"
)

// HTTPRequest is a fully-templated outbound request built by an
// api_call step.
type HTTPRequest struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    string            `json:"body,omitempty"`
}

// HTTPResponse holds the outcome of a single HTTP call.
type HTTPResponse struct {
	StatusCode int           `json:"status_code"`
	Body       []byte        `json:"body"`
	Duration   time.Duration `json:"duration"`
}

// HTTPDoer abstracts outbound HTTP for api_call steps.
// Implementations: Client, StubDoer.
type HTTPDoer interface {
	Do(ctx context.Context, req *HTTPRequest) (*HTTPResponse, error)
}

// InferenceRequest is a templated prompt built by an ai_analysis step.
type InferenceRequest struct {
	Prompt string `json:"prompt"`
	Model  string `json:"model,omitempty"`
}

// Inferencer abstracts AI inference for ai_analysis steps.
// Implementations: ChatClient, StubInferencer.
type Inferencer interface {
	Infer(ctx context.Context, req *InferenceRequest) (string, error)
}
