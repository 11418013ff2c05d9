// Package ai abstracts the model providers behind a single streaming
// interface. The provider in use is chosen by configuration; the agent
// runner never knows which backend it is talking to.
package ai

import (
	"context"
	"encoding/json"
	"strings"
)

// StreamEventType defines the type of streaming event
type StreamEventType string

const (
	EventTypeText       StreamEventType = "text"
	EventTypeToolCall   StreamEventType = "tool_call"
	EventTypeToolResult StreamEventType = "tool_result"
	EventTypeError      StreamEventType = "error"
	EventTypeDone       StreamEventType = "done"
)

// StreamEvent represents a streaming response event
type StreamEvent struct {
	Type     StreamEventType `json:"type"`
	Text     string          `json:"text,omitempty"`
	ToolCall *ToolCall       `json:"tool_call,omitempty"`
	Error    error           `json:"error,omitempty"`
}

// ToolCall represents a tool invocation requested by the model
type ToolCall struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// ToolResult is the outcome of an executed tool call, fed back to the
// model on the next planning pass.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Name       string `json:"name"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error,omitempty"`
}

// ToolDefinition describes a tool available to the model
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// Message is one conversation entry in provider-neutral form. Role is
// "user", "assistant", "tool", or "system". ToolCalls and ToolResults
// hold the JSON-encoded []ToolCall / []ToolResult payloads.
type Message struct {
	Role        string          `json:"role"`
	Content     string          `json:"content"`
	ToolCalls   json.RawMessage `json:"tool_calls,omitempty"`
	ToolResults json.RawMessage `json:"tool_results,omitempty"`
}

// ChatRequest represents a request to the AI provider
type ChatRequest struct {
	Messages    []Message        `json:"messages"`
	Tools       []ToolDefinition `json:"tools,omitempty"`
	MaxTokens   int              `json:"max_tokens,omitempty"`
	Temperature float64          `json:"temperature,omitempty"`
	System      string           `json:"system,omitempty"`
	Model       string           `json:"model,omitempty"`
}

// Provider interface for AI providers
type Provider interface {
	// ID returns the provider identifier (e.g., "anthropic", "openai")
	ID() string

	// Stream sends a request and returns a channel of streaming events.
	// The channel is closed after a done or error event.
	Stream(ctx context.Context, req *ChatRequest) (<-chan StreamEvent, error)
}

// ProviderError represents an error from a provider
type ProviderError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
	Type    string `json:"type,omitempty"`
}

func (e *ProviderError) Error() string {
	return e.Message
}

// IsRetryable reports whether the error is worth one retry. Transient
// failures (rate limits, timeouts, 5xx) qualify; authentication and
// invalid-request errors never do.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if pe, ok := err.(*ProviderError); ok {
		switch pe.Code {
		case "authentication_error", "invalid_api_key", "unauthorized", "invalid_request_error":
			return false
		case "rate_limit_exceeded", "overloaded_error", "server_error":
			return true
		}
		switch pe.Type {
		case "authentication_error", "invalid_request_error":
			return false
		case "rate_limit_error", "overloaded_error", "api_error":
			return true
		}
	}

	msg := strings.ToLower(err.Error())
	for _, p := range []string{"authentication", "unauthorized", "invalid api key", "401", "403"} {
		if strings.Contains(msg, p) {
			return false
		}
	}
	for _, p := range []string{
		"rate limit", "too many requests", "429",
		"overloaded", "timeout", "timed out", "deadline exceeded",
		"connection refused", "connection reset", "temporarily unavailable",
		"500", "502", "503", "529",
	} {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
