package db

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	sqlDB, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	return NewStore(sqlDB)
}

func TestCreateAndGetTask(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	created, err := store.CreateTask(ctx, "alice", CreateTaskParams{
		Title:       "buy milk",
		Description: "2 liters",
		Tags:        []string{"errands"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, PriorityMedium, created.Priority)
	assert.False(t, created.Completed)

	got, err := store.GetTask(ctx, "alice", created.ID)
	require.NoError(t, err)
	assert.Equal(t, "buy milk", got.Title)
	assert.Equal(t, []string{"errands"}, got.Tags)
	assert.Equal(t, created.CreatedAt, got.CreatedAt)
}

func TestTaskOwnerScoping(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	task, err := store.CreateTask(ctx, "alice", CreateTaskParams{Title: "secret"})
	require.NoError(t, err)

	// Another owner sees no trace of the task, on any operation.
	_, err = store.GetTask(ctx, "bob", task.ID)
	assert.ErrorIs(t, err, sql.ErrNoRows)

	_, err = store.UpdateTask(ctx, "bob", task.ID, UpdateTaskParams{})
	assert.ErrorIs(t, err, sql.ErrNoRows)

	err = store.DeleteTask(ctx, "bob", task.ID)
	assert.ErrorIs(t, err, sql.ErrNoRows)

	list, total, err := store.ListTasks(ctx, "bob", ListTasksParams{})
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Zero(t, total)

	// The owner still has it.
	_, err = store.GetTask(ctx, "alice", task.ID)
	assert.NoError(t, err)
}

func TestListTasksFilters(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	mk := func(title string, p Priority, tags []string, completed bool) {
		task, err := store.CreateTask(ctx, "alice", CreateTaskParams{Title: title, Priority: p, Tags: tags})
		require.NoError(t, err)
		if completed {
			done := true
			_, err = store.UpdateTask(ctx, "alice", task.ID, UpdateTaskParams{Completed: &done})
			require.NoError(t, err)
		}
	}
	mk("write report", PriorityHigh, []string{"work"}, false)
	mk("buy milk", PriorityLow, []string{"errands"}, true)
	mk("call plumber", PriorityMedium, []string{"home", "errands"}, false)

	list, total, err := store.ListTasks(ctx, "alice", ListTasksParams{Status: "pending"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, list, 2)

	list, _, err = store.ListTasks(ctx, "alice", ListTasksParams{Priority: PriorityHigh})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "write report", list[0].Title)

	list, _, err = store.ListTasks(ctx, "alice", ListTasksParams{Tags: []string{"errands"}})
	require.NoError(t, err)
	assert.Len(t, list, 2)

	list, _, err = store.ListTasks(ctx, "alice", ListTasksParams{Search: "milk"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "buy milk", list[0].Title)
}

func TestListTasksSortAndPage(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, spec := range []struct {
		title string
		p     Priority
	}{
		{"a-task", PriorityLow},
		{"b-task", PriorityHigh},
		{"c-task", PriorityMedium},
	} {
		_, err := store.CreateTask(ctx, "alice", CreateTaskParams{Title: spec.title, Priority: spec.p})
		require.NoError(t, err)
	}

	list, _, err := store.ListTasks(ctx, "alice", ListTasksParams{SortBy: "priority", SortDirection: "asc"})
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, PriorityHigh, list[0].Priority)
	assert.Equal(t, PriorityMedium, list[1].Priority)
	assert.Equal(t, PriorityLow, list[2].Priority)

	list, total, err := store.ListTasks(ctx, "alice", ListTasksParams{SortBy: "title", SortDirection: "asc", Limit: 2, Offset: 2})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	require.Len(t, list, 1)
	assert.Equal(t, "c-task", list[0].Title)
}

func TestUpdateTaskPartial(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	task, err := store.CreateTask(ctx, "alice", CreateTaskParams{Title: "draft", Description: "v1"})
	require.NoError(t, err)

	due := time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC)
	p := PriorityHigh
	updated, err := store.UpdateTask(ctx, "alice", task.ID, UpdateTaskParams{
		Priority: &p,
		DueDate:  &due,
	})
	require.NoError(t, err)
	assert.Equal(t, "draft", updated.Title)
	assert.Equal(t, "v1", updated.Description)
	assert.Equal(t, PriorityHigh, updated.Priority)
	require.NotNil(t, updated.DueDate)
	assert.True(t, updated.DueDate.Equal(due))

	cleared, err := store.UpdateTask(ctx, "alice", task.ID, UpdateTaskParams{ClearDueDate: true})
	require.NoError(t, err)
	assert.Nil(t, cleared.DueDate)
}

func TestConversationGetOrCreate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first, err := store.GetOrCreateConversation(ctx, "alice", "planning")
	require.NoError(t, err)

	second, err := store.GetOrCreateConversation(ctx, "alice", "planning")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	// Same thread id under a different owner is a different conversation.
	other, err := store.GetOrCreateConversation(ctx, "bob", "planning")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, other.ID)
}

func TestAppendAndListMessages(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	conv, err := store.GetOrCreateConversation(ctx, "alice", "t1")
	require.NoError(t, err)

	for _, content := range []string{"one", "two", "three"} {
		require.NoError(t, store.AppendMessage(ctx, &Message{
			ConversationID: conv.ID,
			Role:           "user",
			Content:        content,
		}))
	}

	msgs, err := store.ListMessages(ctx, "alice", "t1")
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "one", msgs[0].Content)
	assert.Equal(t, "three", msgs[2].Content)
	assert.Less(t, msgs[0].Seq, msgs[1].Seq)

	// Bob cannot read Alice's thread.
	_, err = store.ListMessages(ctx, "bob", "t1")
	assert.ErrorIs(t, err, sql.ErrNoRows)

	// Limit keeps the most recent, still oldest first.
	tail, err := store.MessagesByConversation(ctx, conv.ID, 2)
	require.NoError(t, err)
	require.Len(t, tail, 2)
	assert.Equal(t, "two", tail[0].Content)
	assert.Equal(t, "three", tail[1].Content)
}

func TestToolInvocationAudit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	conv, err := store.GetOrCreateConversation(ctx, "alice", "t1")
	require.NoError(t, err)

	inv := &ToolInvocation{
		ConversationID: conv.ID,
		OwnerID:        "alice",
		ToolName:       "add_task",
		Input:          []byte(`{"title":"x"}`),
	}
	require.NoError(t, store.BeginToolInvocation(ctx, inv))

	// Started but unfinished records are visible, with no finish time.
	recs, err := store.ToolInvocationsByConversation(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Nil(t, recs[0].FinishedAt)
	assert.False(t, recs[0].StartedAt.IsZero())

	require.NoError(t, store.FinishToolInvocation(ctx, inv.ID, `{"id":"1"}`, ""))

	recs, err = store.ToolInvocationsByConversation(ctx, conv.ID)
	require.NoError(t, err)
	require.NotNil(t, recs[0].FinishedAt)
	assert.Equal(t, `{"id":"1"}`, recs[0].Output)
}

func TestSweepConversations(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	old, err := store.GetOrCreateConversation(ctx, "alice", "old")
	require.NoError(t, err)
	fresh, err := store.GetOrCreateConversation(ctx, "alice", "fresh")
	require.NoError(t, err)

	require.NoError(t, store.AppendMessage(ctx, &Message{ConversationID: old.ID, Role: "user", Content: "stale"}))
	require.NoError(t, store.AppendMessage(ctx, &Message{ConversationID: fresh.ID, Role: "user", Content: "recent"}))
	require.NoError(t, store.BeginToolInvocation(ctx, &ToolInvocation{
		ConversationID: old.ID, OwnerID: "alice", ToolName: "list_tasks", Input: []byte(`{}`),
	}))

	cutoff := time.Now().UTC().Add(time.Minute)

	// Age the fresh conversation past the cutoff.
	_, err = store.db.ExecContext(ctx, `UPDATE conversations SET last_activity_at = ? WHERE id = ?`,
		cutoff.Add(time.Second).Unix(), fresh.ID)
	require.NoError(t, err)

	n, err := store.SweepConversations(ctx, cutoff)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	_, err = store.ListMessages(ctx, "alice", "old")
	assert.ErrorIs(t, err, sql.ErrNoRows)

	msgs, err := store.ListMessages(ctx, "alice", "fresh")
	require.NoError(t, err)
	assert.Len(t, msgs, 1)

	recs, err := store.ToolInvocationsByConversation(ctx, old.ID)
	require.NoError(t, err)
	assert.Empty(t, recs)

	// A second pass with the same cutoff removes nothing.
	n, err = store.SweepConversations(ctx, cutoff)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSweepBoundary(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	conv, err := store.GetOrCreateConversation(ctx, "alice", "edge")
	require.NoError(t, err)

	cutoff := time.Now().UTC().Truncate(time.Second)

	// Activity exactly at the cutoff survives; the sweep only collects
	// strictly older rows.
	_, err = store.db.ExecContext(ctx, `UPDATE conversations SET last_activity_at = ? WHERE id = ?`,
		cutoff.Unix(), conv.ID)
	require.NoError(t, err)

	n, err := store.SweepConversations(ctx, cutoff)
	require.NoError(t, err)
	assert.Zero(t, n)

	// One second older and it goes.
	_, err = store.db.ExecContext(ctx, `UPDATE conversations SET last_activity_at = ? WHERE id = ?`,
		cutoff.Add(-time.Second).Unix(), conv.ID)
	require.NoError(t, err)

	n, err = store.SweepConversations(ctx, cutoff)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}
