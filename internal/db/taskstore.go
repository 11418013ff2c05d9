package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Store wraps the database handle with owner-scoped queries. Every task
// and conversation query takes the owner id; rows belonging to other
// owners are invisible, not forbidden.
type Store struct {
	db *sql.DB
}

func NewStore(sqlDB *sql.DB) *Store {
	return &Store{db: sqlDB}
}

// DB exposes the raw handle for health checks.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Close() error { return s.db.Close() }

// CreateTaskParams are the caller-supplied fields of a new task. Zero
// values fall back to defaults: Medium priority, empty tag list.
type CreateTaskParams struct {
	Title       string
	Description string
	Priority    Priority
	DueDate     *time.Time
	Tags        []string
}

// CreateTask inserts a new task for owner and returns it with generated
// id and timestamps.
func (s *Store) CreateTask(ctx context.Context, ownerID string, p CreateTaskParams) (*Task, error) {
	now := time.Now().UTC().Truncate(time.Second)
	t := &Task{
		ID:          uuid.NewString(),
		OwnerID:     ownerID,
		Title:       p.Title,
		Description: p.Description,
		Completed:   false,
		Priority:    p.Priority,
		DueDate:     p.DueDate,
		Tags:        p.Tags,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if t.Priority == "" {
		t.Priority = PriorityMedium
	}
	if t.Tags == nil {
		t.Tags = []string{}
	}

	tags, err := json.Marshal(t.Tags)
	if err != nil {
		return nil, fmt.Errorf("marshal tags: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, owner_id, title, description, completed, priority, due_date, tags, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.OwnerID, t.Title, t.Description, boolToInt(t.Completed), string(t.Priority),
		timePtrToUnix(t.DueDate), string(tags), t.CreatedAt.Unix(), t.UpdatedAt.Unix())
	if err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}
	return t, nil
}

// GetTask returns the task with the given id if it belongs to owner.
// Returns sql.ErrNoRows when no such row exists for this owner.
func (s *Store) GetTask(ctx context.Context, ownerID, id string) (*Task, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, title, description, completed, priority, due_date, tags, created_at, updated_at
		FROM tasks WHERE id = ? AND owner_id = ?`, id, ownerID)
	return scanTask(row)
}

// ListTasksParams describe the filter, sort, and page of a task listing.
type ListTasksParams struct {
	Search        string   // substring match on title and description
	Status        string   // "", "completed", or "pending"
	Priority      Priority // "" for all
	Tags          []string // tasks must carry every listed tag
	SortBy        string   // created_at, updated_at, due_date, priority, title
	SortDirection string   // asc or desc
	Limit         int
	Offset        int
}

var taskSortColumns = map[string]string{
	"created_at": "created_at",
	"updated_at": "updated_at",
	"due_date":   "due_date",
	"title":      "title",
	"priority":   "CASE priority WHEN 'High' THEN 0 WHEN 'Medium' THEN 1 ELSE 2 END",
}

// ListTasks returns owner's tasks matching p plus the total count before
// pagination.
func (s *Store) ListTasks(ctx context.Context, ownerID string, p ListTasksParams) ([]*Task, int64, error) {
	where := []string{"owner_id = ?"}
	args := []any{ownerID}

	if p.Search != "" {
		where = append(where, "(title LIKE ? ESCAPE '\\' OR description LIKE ? ESCAPE '\\')")
		pattern := "%" + escapeLike(p.Search) + "%"
		args = append(args, pattern, pattern)
	}
	switch p.Status {
	case "completed":
		where = append(where, "completed = 1")
	case "pending":
		where = append(where, "completed = 0")
	}
	if p.Priority != "" {
		where = append(where, "priority = ?")
		args = append(args, string(p.Priority))
	}
	for _, tag := range p.Tags {
		where = append(where, "tags LIKE ? ESCAPE '\\'")
		args = append(args, `%"`+escapeLike(tag)+`"%`)
	}
	cond := strings.Join(where, " AND ")

	var total int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM tasks WHERE "+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count tasks: %w", err)
	}

	sortCol, ok := taskSortColumns[p.SortBy]
	if !ok {
		sortCol = "created_at"
	}
	dir := "DESC"
	if strings.EqualFold(p.SortDirection, "asc") {
		dir = "ASC"
	}
	limit := p.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := p.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`
		SELECT id, owner_id, title, description, completed, priority, due_date, tags, created_at, updated_at
		FROM tasks WHERE %s ORDER BY %s %s, id ASC LIMIT ? OFFSET ?`, cond, sortCol, dir)
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, 0, err
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return tasks, total, nil
}

// UpdateTaskParams carries the fields of a partial update. Nil pointers
// leave the stored value untouched. ClearDueDate removes the due date.
type UpdateTaskParams struct {
	Title        *string
	Description  *string
	Completed    *bool
	Priority     *Priority
	DueDate      *time.Time
	ClearDueDate bool
	Tags         *[]string
}

// UpdateTask applies p to owner's task and returns the updated row.
// Returns sql.ErrNoRows when the task does not exist for this owner.
func (s *Store) UpdateTask(ctx context.Context, ownerID, id string, p UpdateTaskParams) (*Task, error) {
	sets := []string{"updated_at = ?"}
	args := []any{time.Now().UTC().Unix()}

	if p.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *p.Title)
	}
	if p.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *p.Description)
	}
	if p.Completed != nil {
		sets = append(sets, "completed = ?")
		args = append(args, boolToInt(*p.Completed))
	}
	if p.Priority != nil {
		sets = append(sets, "priority = ?")
		args = append(args, string(*p.Priority))
	}
	if p.ClearDueDate {
		sets = append(sets, "due_date = NULL")
	} else if p.DueDate != nil {
		sets = append(sets, "due_date = ?")
		args = append(args, p.DueDate.Unix())
	}
	if p.Tags != nil {
		tags, err := json.Marshal(*p.Tags)
		if err != nil {
			return nil, fmt.Errorf("marshal tags: %w", err)
		}
		sets = append(sets, "tags = ?")
		args = append(args, string(tags))
	}

	query := fmt.Sprintf("UPDATE tasks SET %s WHERE id = ? AND owner_id = ?", strings.Join(sets, ", "))
	args = append(args, id, ownerID)

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("update task: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, sql.ErrNoRows
	}
	return s.GetTask(ctx, ownerID, id)
}

// DeleteTask removes owner's task. Returns sql.ErrNoRows when the task
// does not exist for this owner.
func (s *Store) DeleteTask(ctx context.Context, ownerID, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ? AND owner_id = ?`, id, ownerID)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*Task, error) {
	var (
		t         Task
		completed int
		priority  string
		dueDate   sql.NullInt64
		tags      string
		created   int64
		updated   int64
	)
	err := row.Scan(&t.ID, &t.OwnerID, &t.Title, &t.Description, &completed, &priority, &dueDate, &tags, &created, &updated)
	if err != nil {
		return nil, err
	}
	t.Completed = completed != 0
	t.Priority = Priority(priority)
	if dueDate.Valid {
		d := time.Unix(dueDate.Int64, 0).UTC()
		t.DueDate = &d
	}
	if err := json.Unmarshal([]byte(tags), &t.Tags); err != nil {
		t.Tags = []string{}
	}
	if t.Tags == nil {
		t.Tags = []string{}
	}
	t.CreatedAt = time.Unix(created, 0).UTC()
	t.UpdatedAt = time.Unix(updated, 0).UTC()
	return &t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func timePtrToUnix(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Unix()
}

func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}
