package retention

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uneezaismail/hackathon-todo-sub007/internal/db"
)

func newTestSweeper(t *testing.T, window time.Duration) (*Sweeper, *db.Store) {
	t.Helper()
	sqlDB, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	store := db.NewStore(sqlDB)
	return NewSweeper(store, window, time.Hour), store
}

func age(t *testing.T, store *db.Store, convID string, to time.Time) {
	t.Helper()
	_, err := store.DB().Exec(`UPDATE conversations SET last_activity_at = ? WHERE id = ?`, to.Unix(), convID)
	require.NoError(t, err)
}

func TestSweepOnceRemovesExpired(t *testing.T) {
	sweeper, store := newTestSweeper(t, 48*time.Hour)
	ctx := context.Background()

	stale, err := store.GetOrCreateConversation(ctx, "alice", "stale")
	require.NoError(t, err)
	require.NoError(t, store.AppendMessage(ctx, &db.Message{ConversationID: stale.ID, Role: "user", Content: "old"}))
	age(t, store, stale.ID, time.Now().UTC().Add(-49*time.Hour))

	live, err := store.GetOrCreateConversation(ctx, "alice", "live")
	require.NoError(t, err)
	require.NoError(t, store.AppendMessage(ctx, &db.Message{ConversationID: live.ID, Role: "user", Content: "new"}))

	n, err := sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	_, err = store.ListMessages(ctx, "alice", "stale")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	_, err = store.ListMessages(ctx, "alice", "live")
	assert.NoError(t, err)

	// Second run finds nothing.
	n, err = sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSweepOnceKeepsJustInsideWindow(t *testing.T) {
	sweeper, store := newTestSweeper(t, 48*time.Hour)
	ctx := context.Background()

	conv, err := store.GetOrCreateConversation(ctx, "alice", "edge")
	require.NoError(t, err)
	// One second younger than the window survives.
	age(t, store, conv.ID, time.Now().UTC().Add(-48*time.Hour+time.Second))

	n, err := sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSweepOnceEmpty(t *testing.T) {
	sweeper, _ := newTestSweeper(t, 48*time.Hour)

	n, err := sweeper.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}
