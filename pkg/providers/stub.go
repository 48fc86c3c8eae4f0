package providers

import (
	"context"
	"sync"
)

// StubDoer is an HTTPDoer for tests and dry runs. It records every
// request and answers from a canned script.
type StubDoer struct {
	mu        sync.Mutex
	Responses map[string]*HTTPResponse // keyed by URL; nil value means use Default
	Default   *HTTPResponse
	Err       error
	Requests  []*HTTPRequest
}

var _ HTTPDoer = (*StubDoer)(nil)

func (s *StubDoer) Do(ctx context.Context, req *HTTPRequest) (*HTTPResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.Requests = append(s.Requests, req)
	s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	if resp, ok := s.Responses[req.URL]; ok && resp != nil {
		return resp, nil
	}
	if s.Default != nil {
		return s.Default, nil
	}
	return &HTTPResponse{StatusCode: 200, Body: []byte("{}")}, nil
}

// Calls returns a snapshot of the recorded requests.
func (s *StubDoer) Calls() []*HTTPRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*HTTPRequest, len(s.Requests))
	copy(out, s.Requests)
	return out
}

// StubInferencer is an Inferencer for tests and dry runs.
type StubInferencer struct {
	mu       sync.Mutex
	Reply    string
	Err      error
	Fn       func(ctx context.Context, req *InferenceRequest) (string, error)
	Requests []*InferenceRequest
}

var _ Inferencer = (*StubInferencer)(nil)

func (s *StubInferencer) Infer(ctx context.Context, req *InferenceRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	s.Requests = append(s.Requests, req)
	s.mu.Unlock()
	if s.Fn != nil {
		return s.Fn(ctx, req)
	}
	if s.Err != nil {
		return "", s.Err
	}
	return s.Reply, nil
}
