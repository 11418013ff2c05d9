package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GetOrCreateConversation returns the conversation for (owner, thread),
// creating it on first use. Thread ids are namespaced per owner, so two
// owners may use the same thread id without colliding.
func (s *Store) GetOrCreateConversation(ctx context.Context, ownerID, threadID string) (*Conversation, error) {
	c, err := s.getConversation(ctx, ownerID, threadID)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	now := time.Now().UTC().Truncate(time.Second)
	c = &Conversation{
		ID:             uuid.NewString(),
		OwnerID:        ownerID,
		ThreadID:       threadID,
		CreatedAt:      now,
		LastActivityAt: now,
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conversations (id, owner_id, thread_id, created_at, last_activity_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(owner_id, thread_id) DO NOTHING`,
		c.ID, c.OwnerID, c.ThreadID, c.CreatedAt.Unix(), c.LastActivityAt.Unix())
	if err != nil {
		return nil, fmt.Errorf("insert conversation: %w", err)
	}
	// Re-read in case a concurrent request won the insert.
	return s.getConversation(ctx, ownerID, threadID)
}

func (s *Store) getConversation(ctx context.Context, ownerID, threadID string) (*Conversation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, thread_id, created_at, last_activity_at
		FROM conversations WHERE owner_id = ? AND thread_id = ?`, ownerID, threadID)
	return scanConversation(row)
}

// ListConversations returns owner's conversations, most recent activity
// first.
func (s *Store) ListConversations(ctx context.Context, ownerID string) ([]*Conversation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, thread_id, created_at, last_activity_at
		FROM conversations WHERE owner_id = ? ORDER BY last_activity_at DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var out []*Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// AppendMessage inserts m and bumps the conversation's last activity in
// one transaction. The message log is append-only; there is no update or
// delete path outside the retention sweep.
func (s *Store) AppendMessage(ctx context.Context, m *Message) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC().Truncate(time.Second)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, role, content, tool_calls, tool_results, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.ConversationID, m.Role, m.Content,
		rawToNull(m.ToolCalls), rawToNull(m.ToolResults), m.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	if m.Seq, err = res.LastInsertId(); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `UPDATE conversations SET last_activity_at = ? WHERE id = ?`,
		m.CreatedAt.Unix(), m.ConversationID)
	if err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}
	return tx.Commit()
}

// ListMessages returns the messages of owner's thread in insertion order.
// Returns sql.ErrNoRows when the thread does not exist for this owner.
func (s *Store) ListMessages(ctx context.Context, ownerID, threadID string) ([]*Message, error) {
	c, err := s.getConversation(ctx, ownerID, threadID)
	if err != nil {
		return nil, err
	}
	return s.MessagesByConversation(ctx, c.ID, 0)
}

// MessagesByConversation returns the messages of a conversation in
// insertion order. When limit > 0, only the most recent limit messages
// are returned, still oldest first.
func (s *Store) MessagesByConversation(ctx context.Context, conversationID string, limit int) ([]*Message, error) {
	query := `
		SELECT seq, id, conversation_id, role, content, tool_calls, tool_results, created_at
		FROM messages WHERE conversation_id = ? ORDER BY seq ASC`
	args := []any{conversationID}
	if limit > 0 {
		query = `
			SELECT seq, id, conversation_id, role, content, tool_calls, tool_results, created_at
			FROM (SELECT seq, id, conversation_id, role, content, tool_calls, tool_results, created_at
			      FROM messages WHERE conversation_id = ? ORDER BY seq DESC LIMIT ?)
			ORDER BY seq ASC`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []*Message
	for rows.Next() {
		var (
			m           Message
			toolCalls   sql.NullString
			toolResults sql.NullString
			created     int64
		)
		if err := rows.Scan(&m.Seq, &m.ID, &m.ConversationID, &m.Role, &m.Content, &toolCalls, &toolResults, &created); err != nil {
			return nil, err
		}
		if toolCalls.Valid {
			m.ToolCalls = []byte(toolCalls.String)
		}
		if toolResults.Valid {
			m.ToolResults = []byte(toolResults.String)
		}
		m.CreatedAt = time.Unix(created, 0).UTC()
		out = append(out, &m)
	}
	return out, rows.Err()
}

// BeginToolInvocation writes the audit record for a tool execution that
// is about to start. The record is committed immediately so it survives
// even when the surrounding agent turn is aborted.
func (s *Store) BeginToolInvocation(ctx context.Context, inv *ToolInvocation) error {
	if inv.ID == "" {
		inv.ID = uuid.NewString()
	}
	if inv.StartedAt.IsZero() {
		inv.StartedAt = time.Now().UTC()
	}
	input := string(inv.Input)
	if input == "" {
		input = "{}"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tool_invocations (id, conversation_id, owner_id, tool_name, input, started_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		inv.ID, inv.ConversationID, inv.OwnerID, inv.ToolName, input, inv.StartedAt.Unix())
	if err != nil {
		return fmt.Errorf("insert tool invocation: %w", err)
	}
	return nil
}

// FinishToolInvocation records the outcome of a started invocation.
// Exactly one of output and errMsg carries the result.
func (s *Store) FinishToolInvocation(ctx context.Context, id, output, errMsg string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE tool_invocations SET output = ?, error = ?, finished_at = ? WHERE id = ?`,
		output, errMsg, time.Now().UTC().Unix(), id)
	if err != nil {
		return fmt.Errorf("finish tool invocation: %w", err)
	}
	return nil
}

// ToolInvocationsByConversation returns the audit records for a
// conversation, oldest first.
func (s *Store) ToolInvocationsByConversation(ctx context.Context, conversationID string) ([]*ToolInvocation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, owner_id, tool_name, input, output, error, started_at, finished_at
		FROM tool_invocations WHERE conversation_id = ? ORDER BY started_at ASC, id ASC`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list tool invocations: %w", err)
	}
	defer rows.Close()

	var out []*ToolInvocation
	for rows.Next() {
		var (
			inv      ToolInvocation
			input    string
			output   sql.NullString
			errMsg   sql.NullString
			started  int64
			finished sql.NullInt64
		)
		if err := rows.Scan(&inv.ID, &inv.ConversationID, &inv.OwnerID, &inv.ToolName, &input, &output, &errMsg, &started, &finished); err != nil {
			return nil, err
		}
		inv.Input = []byte(input)
		inv.Output = output.String
		inv.Error = errMsg.String
		inv.StartedAt = time.Unix(started, 0).UTC()
		if finished.Valid {
			f := time.Unix(finished.Int64, 0).UTC()
			inv.FinishedAt = &f
		}
		out = append(out, &inv)
	}
	return out, rows.Err()
}

// SweepConversations deletes every conversation whose last activity is
// strictly before cutoff, together with its messages and tool invocation
// records. The cutoff is fixed by the caller before the sweep begins, so
// rows written mid-sweep are never collected. Returns the number of
// conversations removed. Running the sweep twice with the same cutoff is
// a no-op the second time.
func (s *Store) SweepConversations(ctx context.Context, cutoff time.Time) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	cut := cutoff.Unix()
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM tool_invocations WHERE conversation_id IN
			(SELECT id FROM conversations WHERE last_activity_at < ?)`, cut); err != nil {
		return 0, fmt.Errorf("sweep tool invocations: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM messages WHERE conversation_id IN
			(SELECT id FROM conversations WHERE last_activity_at < ?)`, cut); err != nil {
		return 0, fmt.Errorf("sweep messages: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM conversations WHERE last_activity_at < ?`, cut)
	if err != nil {
		return 0, fmt.Errorf("sweep conversations: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, tx.Commit()
}

func scanConversation(row rowScanner) (*Conversation, error) {
	var (
		c        Conversation
		created  int64
		activity int64
	)
	if err := row.Scan(&c.ID, &c.OwnerID, &c.ThreadID, &created, &activity); err != nil {
		return nil, err
	}
	c.CreatedAt = time.Unix(created, 0).UTC()
	c.LastActivityAt = time.Unix(activity, 0).UTC()
	return &c, nil
}

func rawToNull(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
