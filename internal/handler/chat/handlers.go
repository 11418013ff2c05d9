// Package chat implements the conversational endpoints: the SSE chat
// stream and thread history.
package chat

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/uneezaismail/hackathon-todo-sub007/internal/agent/ai"
	"github.com/uneezaismail/hackathon-todo-sub007/internal/agent/runner"
	"github.com/uneezaismail/hackathon-todo-sub007/internal/db"
	"github.com/uneezaismail/hackathon-todo-sub007/internal/httputil"
	"github.com/uneezaismail/hackathon-todo-sub007/internal/svc"
)

type chatRequest struct {
	ThreadID string `json:"thread_id"`
	Message  string `json:"message"`
}

// Wire form of a stream event. Runner errors are flattened to a stable
// code plus message; internals never reach the client.
type wireEvent struct {
	Type     string       `json:"type"`
	Text     string       `json:"text,omitempty"`
	ToolCall *ai.ToolCall `json:"tool_call,omitempty"`
	Error    *wireError   `json:"error,omitempty"`
}

type wireError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ChatHandler handles POST /api/{user_id}/chat. The response is a
// Server-Sent Events stream of the agent turn; closing the connection
// cancels the turn at its next stage boundary.
func ChatHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID := httputil.PathVar(r, "user_id")

		var req chatRequest
		if err := httputil.Parse(r, &req); err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		req.Message = strings.TrimSpace(req.Message)
		if req.Message == "" {
			httputil.BadRequest(w, "message is required")
			return
		}

		if svcCtx.Provider == nil {
			httputil.ErrorWithCode(w, http.StatusServiceUnavailable, httputil.CodeProviderError, "model provider not configured")
			return
		}

		events, err := svcCtx.Runner.Run(r.Context(), &runner.RunRequest{
			OwnerID:  ownerID,
			ThreadID: req.ThreadID,
			Prompt:   req.Message,
		})
		if err != nil {
			httputil.InternalError(w, "could not start chat turn")
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")

		flusher, ok := w.(http.Flusher)
		if !ok {
			httputil.ErrorWithCode(w, http.StatusInternalServerError, httputil.CodeStoreError, "streaming not supported")
			return
		}

		for event := range events {
			writeEvent(w, toWire(event))
			flusher.Flush()

			if r.Context().Err() != nil {
				// Client went away; the runner sees the same context
				// and stops on its own. Drain so the channel closes.
				for range events {
				}
				return
			}
		}
	}
}

func toWire(event ai.StreamEvent) wireEvent {
	we := wireEvent{
		Type:     string(event.Type),
		Text:     event.Text,
		ToolCall: event.ToolCall,
	}
	if event.Type == ai.EventTypeError && event.Error != nil {
		we.Error = &wireError{
			Code:    errorCode(event.Error),
			Message: event.Error.Error(),
		}
	}
	return we
}

func errorCode(err error) string {
	var pe *ai.ProviderError
	if errors.As(err, &pe) {
		return httputil.CodeProviderError
	}
	return httputil.CodeStoreError
}

func writeEvent(w http.ResponseWriter, event wireEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", payload)
}

// ListThreadsHandler handles GET /api/{user_id}/threads
func ListThreadsHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID := httputil.PathVar(r, "user_id")

		threads, err := svcCtx.Store.ListConversations(r.Context(), ownerID)
		if err != nil {
			httputil.InternalError(w, "could not list threads")
			return
		}
		if threads == nil {
			threads = []*db.Conversation{}
		}
		httputil.OkJSON(w, map[string]any{"threads": threads})
	}
}

// ThreadMessagesHandler handles GET /api/{user_id}/threads/{thread_id}/messages
func ThreadMessagesHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID := httputil.PathVar(r, "user_id")
		threadID := httputil.PathVar(r, "thread_id")

		messages, err := svcCtx.Store.ListMessages(r.Context(), ownerID, threadID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				httputil.NotFound(w, "thread not found")
				return
			}
			httputil.InternalError(w, "could not load messages")
			return
		}
		if messages == nil {
			messages = []*db.Message{}
		}
		httputil.OkJSON(w, map[string]any{"messages": messages})
	}
}
