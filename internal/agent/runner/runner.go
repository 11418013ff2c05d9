// Package runner drives the agent loop for one chat turn: plan against
// the model, dispatch requested tools, feed results back, and persist
// every step of the exchange.
package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uneezaismail/hackathon-todo-sub007/internal/agent/ai"
	"github.com/uneezaismail/hackathon-todo-sub007/internal/agent/tools"
	"github.com/uneezaismail/hackathon-todo-sub007/internal/config"
	"github.com/uneezaismail/hackathon-todo-sub007/internal/db"
	"github.com/uneezaismail/hackathon-todo-sub007/internal/logging"
)

// DefaultSystemPrompt frames the assistant as a task manager. Tool
// descriptions carry the details; this stays short.
const DefaultSystemPrompt = `You are a todo assistant. You manage the user's tasks through the provided tools.

Rules:
- Use the tools for every read or change of task state; never invent task data.
- When the user describes new work, create a task for it. Infer a due date only when one is stated.
- When a tool returns an error, explain the problem briefly and, if the input was at fault, correct it and retry.
- Keep replies short and concrete.`

const retryBackoff = 2 * time.Second

// Runner executes agent turns against a single provider and tool
// catalog.
type Runner struct {
	cfg      *config.Config
	store    *db.Store
	provider ai.Provider
	tools    *tools.Registry
}

func New(cfg *config.Config, store *db.Store, provider ai.Provider, registry *tools.Registry) *Runner {
	return &Runner{
		cfg:      cfg,
		store:    store,
		provider: provider,
		tools:    registry,
	}
}

// RunRequest is one user turn addressed to a thread.
type RunRequest struct {
	OwnerID  string
	ThreadID string
	Prompt   string
	System   string
}

// Run persists the user message and starts the agent loop. Events
// arrive on the returned channel in the order they were produced; the
// channel closes after the final done or error event. Cancelling ctx
// stops the loop at the next stage boundary.
func (r *Runner) Run(ctx context.Context, req *RunRequest) (<-chan ai.StreamEvent, error) {
	if r.provider == nil {
		return nil, fmt.Errorf("no provider configured")
	}
	if req.ThreadID == "" {
		req.ThreadID = "default"
	}

	conv, err := r.store.GetOrCreateConversation(ctx, req.OwnerID, req.ThreadID)
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}

	if req.Prompt != "" {
		err = r.store.AppendMessage(ctx, &db.Message{
			ConversationID: conv.ID,
			Role:           "user",
			Content:        req.Prompt,
		})
		if err != nil {
			return nil, fmt.Errorf("save message: %w", err)
		}
	}

	resultCh := make(chan ai.StreamEvent, 100)
	go r.runLoop(ctx, conv, req.OwnerID, req.System, resultCh)

	return resultCh, nil
}

// runLoop is the main agentic execution loop
func (r *Runner) runLoop(ctx context.Context, conv *db.Conversation, ownerID, systemPrompt string, resultCh chan<- ai.StreamEvent) {
	defer close(resultCh)

	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}

	maxIterations := r.cfg.Agent.MaxIterations
	if maxIterations <= 0 {
		maxIterations = 10
	}

	retried := false

	for iteration := 1; iteration <= maxIterations; iteration++ {
		if ctx.Err() != nil {
			logging.Debugf("runner: conversation %s cancelled", conv.ID)
			return
		}

		history, err := r.store.MessagesByConversation(ctx, conv.ID, r.cfg.Agent.MaxContext)
		if err != nil {
			r.fail(resultCh, err)
			return
		}

		chatReq := &ai.ChatRequest{
			Messages: toProviderMessages(history),
			Tools:    r.tools.Definitions(),
			System:   systemPrompt,
		}

		logging.Debugf("runner: conversation %s iteration %d, %d messages", conv.ID, iteration, len(history))

		streamCtx, cancel := context.WithTimeout(ctx, r.cfg.ProviderTimeout())
		events, err := r.provider.Stream(streamCtx, chatReq)
		if err != nil {
			cancel()
			// One retry for transient provider failures. Auth and
			// invalid-request errors fail the turn immediately.
			if !retried && ai.IsRetryable(err) && ctx.Err() == nil {
				retried = true
				logging.Warnf("runner: provider error, retrying once: %v", err)
				select {
				case <-time.After(retryBackoff):
				case <-ctx.Done():
					return
				}
				iteration--
				continue
			}
			perr := wrapProviderError(err)
			r.persistTurnError(context.WithoutCancel(ctx), conv.ID, perr)
			r.fail(resultCh, perr)
			return
		}

		var assistantContent strings.Builder
		var toolCalls []ai.ToolCall
		var streamErr error
		forwarded := false

		for event := range events {
			switch event.Type {
			case ai.EventTypeText:
				assistantContent.WriteString(event.Text)
				resultCh <- event
				forwarded = true

			case ai.EventTypeToolCall:
				toolCalls = append(toolCalls, *event.ToolCall)
				resultCh <- event
				forwarded = true

			case ai.EventTypeError:
				streamErr = event.Error

			case ai.EventTypeDone:
				// Channel closes after this; nothing to forward yet.
			}
		}
		cancel()

		// Persistence is detached from the request context: on a client
		// disconnect the transcript written so far must still land.
		persistCtx := context.WithoutCancel(ctx)

		if assistantContent.Len() > 0 || len(toolCalls) > 0 {
			var toolCallsJSON json.RawMessage
			if len(toolCalls) > 0 {
				toolCallsJSON, _ = json.Marshal(toolCalls)
			}
			err := r.store.AppendMessage(persistCtx, &db.Message{
				ConversationID: conv.ID,
				Role:           "assistant",
				Content:        assistantContent.String(),
				ToolCalls:      toolCallsJSON,
			})
			if err != nil {
				r.fail(resultCh, err)
				return
			}
		}

		if streamErr != nil {
			if !retried && !forwarded && ai.IsRetryable(streamErr) && ctx.Err() == nil {
				retried = true
				logging.Warnf("runner: stream error, retrying once: %v", streamErr)
				select {
				case <-time.After(retryBackoff):
				case <-ctx.Done():
					return
				}
				iteration--
				continue
			}
			perr := wrapProviderError(streamErr)
			r.persistTurnError(persistCtx, conv.ID, perr)
			r.fail(resultCh, perr)
			return
		}

		if ctx.Err() != nil {
			logging.Debugf("runner: conversation %s cancelled mid-stream", conv.ID)
			return
		}

		if len(toolCalls) == 0 {
			// Text-only response: the turn is complete.
			resultCh <- ai.StreamEvent{Type: ai.EventTypeDone}
			return
		}

		toolResults := make([]ai.ToolResult, 0, len(toolCalls))
		for i := range toolCalls {
			tc := &toolCalls[i]
			if ctx.Err() != nil {
				r.persistToolResults(persistCtx, conv.ID, toolResults)
				return
			}

			logging.Debugf("runner: executing tool %s", tc.Name)
			output, execErr := r.tools.Execute(ctx, ownerID, conv.ID, tc)

			result := ai.ToolResult{
				ToolCallID: tc.ID,
				Name:       tc.Name,
				Content:    output,
			}
			if execErr != nil {
				// The error text goes back to the model so it can
				// correct the call or tell the user what failed.
				result.Content = fmt.Sprintf("%s: %s", tools.ErrorCode(execErr), execErr.Error())
				result.IsError = true
			}

			resultCh <- ai.StreamEvent{
				Type:     ai.EventTypeToolResult,
				Text:     result.Content,
				ToolCall: tc,
			}
			toolResults = append(toolResults, result)
		}

		toolResultsJSON, _ := json.Marshal(toolResults)
		err = r.store.AppendMessage(persistCtx, &db.Message{
			ConversationID: conv.ID,
			Role:           "tool",
			ToolResults:    toolResultsJSON,
		})
		if err != nil {
			r.fail(resultCh, err)
			return
		}
		// Next iteration lets the model respond to the tool results.
	}

	limitErr := fmt.Errorf("reached maximum iterations (%d)", maxIterations)
	r.persistTurnError(context.WithoutCancel(ctx), conv.ID, limitErr)
	r.fail(resultCh, limitErr)
}

// fail emits the terminal error followed by the closing done event.
func (r *Runner) fail(resultCh chan<- ai.StreamEvent, err error) {
	resultCh <- ai.StreamEvent{Type: ai.EventTypeError, Error: err}
	resultCh <- ai.StreamEvent{Type: ai.EventTypeDone}
}

// persistTurnError records the failed turn in the transcript so a
// resumed thread shows how it ended. Best effort: a store failure here
// is logged, not layered onto an already-failing turn.
func (r *Runner) persistTurnError(ctx context.Context, convID string, turnErr error) {
	content := turnErr.Error()
	var pe *ai.ProviderError
	if errors.As(turnErr, &pe) {
		content = fmt.Sprintf("provider_error: %s", pe.Error())
	}
	err := r.store.AppendMessage(ctx, &db.Message{
		ConversationID: convID,
		Role:           "error",
		Content:        content,
	})
	if err != nil {
		logging.Errorf("runner: persist turn error: %v", err)
	}
}

// persistToolResults saves the results gathered before a cancellation
// cut the dispatch loop short.
func (r *Runner) persistToolResults(ctx context.Context, convID string, results []ai.ToolResult) {
	if len(results) == 0 {
		return
	}
	resultsJSON, _ := json.Marshal(results)
	err := r.store.AppendMessage(ctx, &db.Message{
		ConversationID: convID,
		Role:           "tool",
		ToolResults:    resultsJSON,
	})
	if err != nil {
		logging.Errorf("runner: persist tool results: %v", err)
	}
}

func toProviderMessages(msgs []*db.Message) []ai.Message {
	out := make([]ai.Message, 0, len(msgs))
	for _, m := range msgs {
		// Error records belong to the transcript, not the model context.
		if m.Role == "error" {
			continue
		}
		out = append(out, ai.Message{
			Role:        m.Role,
			Content:     m.Content,
			ToolCalls:   m.ToolCalls,
			ToolResults: m.ToolResults,
		})
	}
	return out
}

func wrapProviderError(err error) error {
	var pe *ai.ProviderError
	if errors.As(err, &pe) {
		return pe
	}
	return &ai.ProviderError{Message: err.Error()}
}
