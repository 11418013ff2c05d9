package db

import (
	"encoding/json"
	"time"
)

// Priority is the urgency level attached to a task.
type Priority string

const (
	PriorityHigh   Priority = "High"
	PriorityMedium Priority = "Medium"
	PriorityLow    Priority = "Low"
)

// Valid reports whether p is one of the three known levels.
func (p Priority) Valid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// Task is a single todo item owned by one user.
type Task struct {
	ID          string     `json:"id"`
	OwnerID     string     `json:"owner_id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Completed   bool       `json:"completed"`
	Priority    Priority   `json:"priority"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	Tags        []string   `json:"tags"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Conversation groups the messages of one chat thread for one owner.
type Conversation struct {
	ID             string    `json:"id"`
	OwnerID        string    `json:"owner_id"`
	ThreadID       string    `json:"thread_id"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

// Message is one entry in a conversation. Role is "user", "assistant",
// or "tool". ToolCalls and ToolResults carry the raw JSON payloads for
// assistant tool requests and their outcomes.
type Message struct {
	Seq            int64           `json:"seq"`
	ID             string          `json:"id"`
	ConversationID string          `json:"conversation_id"`
	Role           string          `json:"role"`
	Content        string          `json:"content"`
	ToolCalls      json.RawMessage `json:"tool_calls,omitempty"`
	ToolResults    json.RawMessage `json:"tool_results,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// ToolInvocation is the audit record for one tool execution. StartedAt is
// written before the tool runs and FinishedAt after, whether or not the
// run succeeded, so the record survives an aborted agent turn.
type ToolInvocation struct {
	ID             string          `json:"id"`
	ConversationID string          `json:"conversation_id"`
	OwnerID        string          `json:"owner_id"`
	ToolName       string          `json:"tool_name"`
	Input          json.RawMessage `json:"input"`
	Output         string          `json:"output,omitempty"`
	Error          string          `json:"error,omitempty"`
	StartedAt      time.Time       `json:"started_at"`
	FinishedAt     *time.Time      `json:"finished_at,omitempty"`
}
