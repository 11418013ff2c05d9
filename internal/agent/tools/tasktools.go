package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/uneezaismail/hackathon-todo-sub007/internal/db"
)

// taskTools builds the seven-tool catalog bound to store.
func taskTools(store *db.Store) []*Tool {
	return []*Tool{
		{
			Name:        "add_task",
			Description: "Create a new task. When priority is omitted it is inferred from the wording of the title and description.",
			Mutates:     true,
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"title": {"type": "string", "minLength": 1, "description": "Short task title"},
					"description": {"type": "string", "description": "Optional longer description"},
					"priority": {"type": "string", "enum": ["High", "Medium", "Low"]},
					"due_date": {"type": "string", "description": "Due date, RFC 3339 or YYYY-MM-DD"},
					"tags": {"type": "array", "items": {"type": "string"}}
				},
				"required": ["title"]
			}`),
			Run: func(ctx context.Context, ownerID string, input json.RawMessage) (string, error) {
				var in struct {
					Title       string   `json:"title"`
					Description string   `json:"description"`
					Priority    string   `json:"priority"`
					DueDate     string   `json:"due_date"`
					Tags        []string `json:"tags"`
				}
				if err := json.Unmarshal(input, &in); err != nil {
					return "", &InvalidInputError{Msg: err.Error()}
				}

				priority := db.Priority(in.Priority)
				if priority == "" {
					priority = InferPriority(in.Title + " " + in.Description)
				}

				due, err := parseDueDate(in.DueDate)
				if err != nil {
					return "", err
				}

				task, err := store.CreateTask(ctx, ownerID, db.CreateTaskParams{
					Title:       in.Title,
					Description: in.Description,
					Priority:    priority,
					DueDate:     due,
					Tags:        in.Tags,
				})
				if err != nil {
					return "", err
				}
				return marshalResult(task)
			},
		},
		{
			Name:        "list_tasks",
			Description: "List the user's tasks with optional search, status, priority and tag filters, sorting and pagination.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"search": {"type": "string", "description": "Substring match on title and description"},
					"status": {"type": "string", "enum": ["all", "pending", "completed"]},
					"priority": {"type": "string", "enum": ["High", "Medium", "Low"]},
					"tags": {"type": "array", "items": {"type": "string"}},
					"sort_by": {"type": "string", "enum": ["created_at", "updated_at", "due_date", "priority", "title"]},
					"sort_direction": {"type": "string", "enum": ["asc", "desc"]},
					"limit": {"type": "integer", "minimum": 1, "maximum": 200},
					"offset": {"type": "integer", "minimum": 0}
				}
			}`),
			Run: func(ctx context.Context, ownerID string, input json.RawMessage) (string, error) {
				var in struct {
					Search        string   `json:"search"`
					Status        string   `json:"status"`
					Priority      string   `json:"priority"`
					Tags          []string `json:"tags"`
					SortBy        string   `json:"sort_by"`
					SortDirection string   `json:"sort_direction"`
					Limit         int      `json:"limit"`
					Offset        int      `json:"offset"`
				}
				if err := json.Unmarshal(input, &in); err != nil {
					return "", &InvalidInputError{Msg: err.Error()}
				}
				if in.Status == "all" {
					in.Status = ""
				}

				tasks, total, err := store.ListTasks(ctx, ownerID, db.ListTasksParams{
					Search:        in.Search,
					Status:        in.Status,
					Priority:      db.Priority(in.Priority),
					Tags:          in.Tags,
					SortBy:        in.SortBy,
					SortDirection: in.SortDirection,
					Limit:         in.Limit,
					Offset:        in.Offset,
				})
				if err != nil {
					return "", err
				}
				if tasks == nil {
					tasks = []*db.Task{}
				}
				return marshalResult(map[string]any{"tasks": tasks, "total": total})
			},
		},
		{
			Name:        "complete_task",
			Description: "Mark one of the user's tasks as completed.",
			Mutates:     true,
			InputSchema: taskIDSchema,
			Run: func(ctx context.Context, ownerID string, input json.RawMessage) (string, error) {
				id, err := taskIDFrom(input)
				if err != nil {
					return "", err
				}
				completed := true
				task, err := store.UpdateTask(ctx, ownerID, id, db.UpdateTaskParams{Completed: &completed})
				if err != nil {
					return "", err
				}
				return marshalResult(task)
			},
		},
		{
			Name:        "delete_task",
			Description: "Delete one of the user's tasks permanently.",
			Mutates:     true,
			InputSchema: taskIDSchema,
			Run: func(ctx context.Context, ownerID string, input json.RawMessage) (string, error) {
				id, err := taskIDFrom(input)
				if err != nil {
					return "", err
				}
				if err := store.DeleteTask(ctx, ownerID, id); err != nil {
					return "", err
				}
				return marshalResult(map[string]any{"deleted": true, "task_id": id})
			},
		},
		{
			Name:        "update_task",
			Description: "Update fields of one of the user's tasks. Only the supplied fields change.",
			Mutates:     true,
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"task_id": {"type": "string", "minLength": 1},
					"title": {"type": "string", "minLength": 1},
					"description": {"type": "string"},
					"completed": {"type": "boolean"},
					"priority": {"type": "string", "enum": ["High", "Medium", "Low"]},
					"due_date": {"type": "string", "description": "New due date, or empty string to clear it"},
					"tags": {"type": "array", "items": {"type": "string"}}
				},
				"required": ["task_id"]
			}`),
			Run: func(ctx context.Context, ownerID string, input json.RawMessage) (string, error) {
				var in struct {
					TaskID      string    `json:"task_id"`
					Title       *string   `json:"title"`
					Description *string   `json:"description"`
					Completed   *bool     `json:"completed"`
					Priority    *string   `json:"priority"`
					DueDate     *string   `json:"due_date"`
					Tags        *[]string `json:"tags"`
				}
				if err := json.Unmarshal(input, &in); err != nil {
					return "", &InvalidInputError{Msg: err.Error()}
				}

				params := db.UpdateTaskParams{
					Title:       in.Title,
					Description: in.Description,
					Completed:   in.Completed,
					Tags:        in.Tags,
				}
				if in.Priority != nil {
					p := db.Priority(*in.Priority)
					params.Priority = &p
				}
				if in.DueDate != nil {
					if *in.DueDate == "" {
						params.ClearDueDate = true
					} else {
						due, err := parseDueDate(*in.DueDate)
						if err != nil {
							return "", err
						}
						params.DueDate = due
					}
				}

				task, err := store.UpdateTask(ctx, ownerID, in.TaskID, params)
				if err != nil {
					return "", err
				}
				return marshalResult(task)
			},
		},
		{
			Name:        "set_priority",
			Description: "Set the priority of one of the user's tasks.",
			Mutates:     true,
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"task_id": {"type": "string", "minLength": 1},
					"priority": {"type": "string", "enum": ["High", "Medium", "Low"]}
				},
				"required": ["task_id", "priority"]
			}`),
			Run: func(ctx context.Context, ownerID string, input json.RawMessage) (string, error) {
				var in struct {
					TaskID   string `json:"task_id"`
					Priority string `json:"priority"`
				}
				if err := json.Unmarshal(input, &in); err != nil {
					return "", &InvalidInputError{Msg: err.Error()}
				}
				p := db.Priority(in.Priority)
				task, err := store.UpdateTask(ctx, ownerID, in.TaskID, db.UpdateTaskParams{Priority: &p})
				if err != nil {
					return "", err
				}
				return marshalResult(task)
			},
		},
		{
			Name:        "get_task",
			Description: "Fetch one of the user's tasks by id.",
			InputSchema: taskIDSchema,
			Run: func(ctx context.Context, ownerID string, input json.RawMessage) (string, error) {
				id, err := taskIDFrom(input)
				if err != nil {
					return "", err
				}
				task, err := store.GetTask(ctx, ownerID, id)
				if err != nil {
					return "", err
				}
				return marshalResult(task)
			},
		},
	}
}

var taskIDSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"task_id": {"type": "string", "minLength": 1}
	},
	"required": ["task_id"]
}`)

func taskIDFrom(input json.RawMessage) (string, error) {
	var in struct {
		TaskID string `json:"task_id"`
	}
	if err := json.Unmarshal(input, &in); err != nil {
		return "", &InvalidInputError{Msg: err.Error()}
	}
	return in.TaskID, nil
}

// parseDueDate accepts RFC 3339 or a bare calendar date.
func parseDueDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		t = t.UTC()
		return &t, nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		t = t.UTC()
		return &t, nil
	}
	return nil, &InvalidInputError{Msg: fmt.Sprintf("due_date %q is not RFC 3339 or YYYY-MM-DD", s)}
}

func marshalResult(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
