package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ChatClient is the default Inferencer. It speaks the OpenAI-compatible
// chat completions protocol, which the common inference gateways accept.
type ChatClient struct {
	baseURL      string
	authToken    string
	defaultModel string
	doer         HTTPDoer
}

// ChatOption configures a ChatClient.
type ChatOption func(*ChatClient)

// WithBaseURL points the client at a different inference endpoint.
func WithBaseURL(u string) ChatOption {
	return func(c *ChatClient) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithDefaultModel sets the model used when a step does not name one.
func WithDefaultModel(m string) ChatOption {
	return func(c *ChatClient) {
		if m != "" {
			c.defaultModel = m
		}
	}
}

// WithDoer substitutes the HTTP transport, mainly for tests.
func WithDoer(d HTTPDoer) ChatOption {
	return func(c *ChatClient) {
		if d != nil {
			c.doer = d
		}
	}
}

// NewChatClient creates a ChatClient. The auth token is required; the
// endpoint and model have working defaults.
func NewChatClient(authToken string, opts ...ChatOption) (*ChatClient, error) {
	if authToken == "" {
		return nil, errors.New("inference auth token is required")
	}
	c := &ChatClient{
		baseURL:      "https://api.openai.com/v1",
		authToken:    authToken,
		defaultModel: "gpt-4o-mini",
		doer:         NewClient(WithTimeout(2 * time.Minute)),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

var _ Inferencer = (*ChatClient)(nil)

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Infer sends the prompt as a single user message and returns the first
// choice's content.
func (c *ChatClient) Infer(ctx context.Context, req *InferenceRequest) (string, error) {
	model := req.Model
	if model == "" {
		model = c.defaultModel
	}

	payload, err := json.Marshal(chatRequest{
		Model:    model,
		Messages: []chatMessage{{Role: "user", Content: req.Prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("marshal inference request: %w", err)
	}

	resp, err := c.doer.Do(ctx, &HTTPRequest{
		Method: http.MethodPost,
		URL:    c.baseURL + "/chat/completions",
		Headers: map[string]string{
			"Content-Type":  "application/json",
			"Authorization": "Bearer " + c.authToken,
		},
		Body: string(payload),
	})
	if err != nil {
		return "", fmt.Errorf("send inference request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("inference request failed with status %d: %s", resp.StatusCode, string(resp.Body))
	}

	var parsed chatResponse
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		return "", fmt.Errorf("decode inference response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", errors.New("inference response contained no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}
