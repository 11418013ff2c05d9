package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uneezaismail/hackathon-todo-sub007/internal/agent/ai"
	"github.com/uneezaismail/hackathon-todo-sub007/internal/agent/runner"
	"github.com/uneezaismail/hackathon-todo-sub007/internal/agent/tools"
	"github.com/uneezaismail/hackathon-todo-sub007/internal/config"
	"github.com/uneezaismail/hackathon-todo-sub007/internal/db"
	"github.com/uneezaismail/hackathon-todo-sub007/internal/svc"
)

// stubProvider answers every call with the same fixed event sequence.
type stubProvider struct {
	events []ai.StreamEvent
}

func (p *stubProvider) ID() string { return "stub" }

func (p *stubProvider) Stream(ctx context.Context, req *ai.ChatRequest) (<-chan ai.StreamEvent, error) {
	ch := make(chan ai.StreamEvent, len(p.events))
	for _, e := range p.events {
		ch <- e
	}
	close(ch)
	return ch, nil
}

func newStreamingServer(t *testing.T, provider ai.Provider) *httptest.Server {
	t.Helper()

	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Auth.AccessSecret = "stream-test-secret"
	cfg.Auth.IssuerEnabled = true
	cfg.Database.SQLitePath = filepath.Join(t.TempDir(), "test.db")

	sqlDB, err := db.Open(cfg.Database.SQLitePath)
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	store := db.NewStore(sqlDB)
	registry, err := tools.NewRegistry(store, 10*time.Second)
	require.NoError(t, err)

	svcCtx := &svc.ServiceContext{
		Config:   &cfg,
		Store:    store,
		Provider: provider,
		Tools:    registry,
		Runner:   runner.New(&cfg, store, provider, registry),
	}

	ts := httptest.NewServer(Router(svcCtx))
	t.Cleanup(ts.Close)
	return ts
}

func readSSE(t *testing.T, body *bufio.Scanner) []map[string]any {
	t.Helper()
	var out []map[string]any
	for body.Scan() {
		line := body.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var event map[string]any
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event))
		out = append(out, event)
	}
	return out
}

func TestChatStreamsEvents(t *testing.T) {
	ts := newStreamingServer(t, &stubProvider{events: []ai.StreamEvent{
		{Type: ai.EventTypeText, Text: "All "},
		{Type: ai.EventTypeText, Text: "done."},
		{Type: ai.EventTypeDone},
	}})
	token := issueToken(t, ts, "alice")

	payload, _ := json.Marshal(map[string]string{"thread_id": "t1", "message": "status?"})
	req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/alice/chat", bytes.NewReader(payload))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	events := readSSE(t, bufio.NewScanner(resp.Body))
	require.Len(t, events, 3)
	assert.Equal(t, "text", events[0]["type"])
	assert.Equal(t, "All ", events[0]["text"])
	assert.Equal(t, "text", events[1]["type"])
	assert.Equal(t, "done", events[2]["type"])
}

func TestChatRejectsEmptyMessage(t *testing.T) {
	ts := newStreamingServer(t, &stubProvider{events: []ai.StreamEvent{{Type: ai.EventTypeDone}}})
	token := issueToken(t, ts, "alice")

	resp, body := doJSON(t, http.MethodPost, ts.URL+"/api/alice/chat", token, map[string]string{
		"thread_id": "t1",
		"message":   "   ",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(body), "message is required")
}

func TestChatPersistsThread(t *testing.T) {
	ts := newStreamingServer(t, &stubProvider{events: []ai.StreamEvent{
		{Type: ai.EventTypeText, Text: "noted"},
		{Type: ai.EventTypeDone},
	}})
	token := issueToken(t, ts, "alice")

	resp, _ := doJSON(t, http.MethodPost, ts.URL+"/api/alice/chat", token, map[string]string{
		"thread_id": "plans",
		"message":   "remember the milk",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := doJSON(t, http.MethodGet, ts.URL+"/api/alice/threads", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var threads struct {
		Threads []struct {
			ThreadID string `json:"thread_id"`
		} `json:"threads"`
	}
	require.NoError(t, json.Unmarshal(body, &threads))
	require.Len(t, threads.Threads, 1)
	assert.Equal(t, "plans", threads.Threads[0].ThreadID)

	resp, body = doJSON(t, http.MethodGet, ts.URL+"/api/alice/threads/plans/messages", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var msgs struct {
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(body, &msgs))
	require.Len(t, msgs.Messages, 2)
	assert.Equal(t, "user", msgs.Messages[0].Role)
	assert.Equal(t, "remember the milk", msgs.Messages[0].Content)
	assert.Equal(t, "assistant", msgs.Messages[1].Role)
}
