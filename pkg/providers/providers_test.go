package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestClientDo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if got := r.Header.Get("X-Custom"); got != "yes" {
			t.Errorf("X-Custom = %q, want yes", got)
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != `{"q":1}` {
			t.Errorf("body = %s", body)
		}
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"ok":true}`)
	}))
	defer srv.Close()

	c := NewClient(WithTimeout(5 * time.Second))
	resp, err := c.Do(context.Background(), &HTTPRequest{
		Method:  http.MethodPost,
		URL:     srv.URL,
		Headers: map[string]string{"X-Custom": "yes"},
		Body:    `{"q":1}`,
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Errorf("status = %d, want 201", resp.StatusCode)
	}
	if string(resp.Body) != `{"ok":true}` {
		t.Errorf("body = %s", resp.Body)
	}
	if resp.Duration <= 0 {
		t.Error("duration not measured")
	}
}

func TestClientDefaultsToGET(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %s, want GET", r.Method)
		}
	}))
	defer srv.Close()

	if _, err := NewClient().Do(context.Background(), &HTTPRequest{URL: srv.URL}); err != nil {
		t.Fatalf("Do: %v", err)
	}
}

func TestClientBodyCap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, strings.Repeat("x", 1024))
	}))
	defer srv.Close()

	c := NewClient(WithMaxBodySize(16))
	resp, err := c.Do(context.Background(), &HTTPRequest{URL: srv.URL})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if len(resp.Body) != 16 {
		t.Errorf("body length = %d, want 16", len(resp.Body))
	}
}

func TestClientHonorsContextDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := NewClient().Do(ctx, &HTTPRequest{URL: srv.URL}); err == nil {
		t.Error("expected deadline error")
	}
}

func TestChatClientInfer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("auth = %q", got)
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Model != "test-model" {
			t.Errorf("model = %q, want test-model", req.Model)
		}
		if len(req.Messages) != 1 || req.Messages[0].Content != "Summarize: 42" {
			t.Errorf("messages = %+v", req.Messages)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": "The answer is 42."}},
			},
		})
	}))
	defer srv.Close()

	c, err := NewChatClient("test-token", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("NewChatClient: %v", err)
	}
	got, err := c.Infer(context.Background(), &InferenceRequest{
		Prompt: "Summarize: 42",
		Model:  "test-model",
	})
	if err != nil {
		t.Fatalf("Infer: %v", err)
	}
	if got != "The answer is 42." {
		t.Errorf("reply = %q", got)
	}
}

func TestChatClientRequiresToken(t *testing.T) {
	if _, err := NewChatClient(""); err == nil {
		t.Error("expected error for missing token")
	}
}

func TestChatClientErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"rate limited"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c, err := NewChatClient("tok", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("NewChatClient: %v", err)
	}
	if _, err := c.Infer(context.Background(), &InferenceRequest{Prompt: "hi"}); err == nil {
		t.Error("expected error for non-200 status")
	}
}

func TestStubDoerScript(t *testing.T) {
	stub := &StubDoer{
		Responses: map[string]*HTTPResponse{
			"https://api.example.com/rates": {StatusCode: 200, Body: []byte(`{"rate":1.1}`)},
		},
		Default: &HTTPResponse{StatusCode: 404, Body: []byte("not found")},
	}

	resp, err := stub.Do(context.Background(), &HTTPRequest{URL: "https://api.example.com/rates"})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Errorf("scripted status = %d", resp.StatusCode)
	}

	resp, err = stub.Do(context.Background(), &HTTPRequest{URL: "https://other.example.com"})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if resp.StatusCode != 404 {
		t.Errorf("default status = %d", resp.StatusCode)
	}
	if len(stub.Calls()) != 2 {
		t.Errorf("recorded %d calls, want 2", len(stub.Calls()))
	}
}
