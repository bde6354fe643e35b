package agentpool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// LLMMessage is one chat turn in the request body.
type LLMMessage struct {
	Role    string `json:"role"` // "system" | "user" | "assistant"
	Content string `json:"content"`
}

// LLMRequest is the body posted to the configured LLM backend endpoint.
type LLMRequest struct {
	Model       string       `json:"model"`
	Messages    []LLMMessage `json:"messages"`
	Temperature float64      `json:"temperature"`
	MaxTokens   int          `json:"maxTokens,omitempty"`
}

// LLMResponse is the backend's JSON reply.
type LLMResponse struct {
	Content    string `json:"content"`
	Reasoning  string `json:"reasoning,omitempty"`
	TokensUsed int    `json:"tokensUsed,omitempty"`
}

// LLMClient is a plain HTTP+JSON client for the external LLM backend. The
// backend lives outside this module; any service that accepts {model,
// messages, temperature, maxTokens} and returns {content, tokensUsed} can sit
// behind this client.
type LLMClient struct {
	httpClient *http.Client
	endpoint   string
}

// NewLLMClient constructs a client pointed at endpoint, typically a local
// sidecar.
func NewLLMClient(endpoint string, timeout time.Duration) *LLMClient {
	return &LLMClient{
		httpClient: &http.Client{Timeout: timeout},
		endpoint:   endpoint,
	}
}

// Generate performs a single non-streaming completion call.
func (c *LLMClient) Generate(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return LLMResponse{}, &ModelError{Model: req.Model, Reason: err.Error()}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return LLMResponse{}, &ModelError{Model: req.Model, Reason: err.Error()}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return LLMResponse{}, &ModelError{Model: req.Model, Reason: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return LLMResponse{}, &ModelError{Model: req.Model, Reason: fmt.Sprintf("backend returned %d", resp.StatusCode)}
	}
	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(resp.Body)
		return LLMResponse{}, &AgentExecutionError{AgentID: req.Model, Reason: fmt.Sprintf("backend returned %d: %s", resp.StatusCode, string(data))}
	}

	var out LLMResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return LLMResponse{}, &ModelError{Model: req.Model, Reason: "malformed response: " + err.Error()}
	}
	return out, nil
}
