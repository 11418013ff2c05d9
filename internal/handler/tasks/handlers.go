// Package tasks implements the REST surface under /api/{user_id}/tasks.
// Ownership is established by the router middleware; everything here
// trusts the user_id path variable to equal the token subject.
package tasks

import (
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/uneezaismail/hackathon-todo-sub007/internal/db"
	"github.com/uneezaismail/hackathon-todo-sub007/internal/httputil"
	"github.com/uneezaismail/hackathon-todo-sub007/internal/svc"
)

type createTaskRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Priority    string   `json:"priority"`
	DueDate     string   `json:"due_date"`
	Tags        []string `json:"tags"`
}

// CreateTaskHandler handles POST /api/{user_id}/tasks
func CreateTaskHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID := httputil.PathVar(r, "user_id")

		var req createTaskRequest
		if err := httputil.Parse(r, &req); err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		req.Title = strings.TrimSpace(req.Title)
		if req.Title == "" {
			httputil.BadRequest(w, "title is required")
			return
		}

		priority := db.PriorityMedium
		if req.Priority != "" {
			priority = db.Priority(req.Priority)
			if !priority.Valid() {
				httputil.BadRequest(w, "priority must be High, Medium or Low")
				return
			}
		}

		due, err := parseDueDate(req.DueDate)
		if err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}

		task, err := svcCtx.Store.CreateTask(r.Context(), ownerID, db.CreateTaskParams{
			Title:       req.Title,
			Description: req.Description,
			Priority:    priority,
			DueDate:     due,
			Tags:        req.Tags,
		})
		if err != nil {
			httputil.InternalError(w, "could not create task")
			return
		}
		httputil.WriteJSON(w, http.StatusCreated, task)
	}
}

// ListTasksHandler handles GET /api/{user_id}/tasks
func ListTasksHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID := httputil.PathVar(r, "user_id")

		status := httputil.QueryString(r, "status", "")
		switch status {
		case "", "all", "pending", "completed":
			if status == "all" {
				status = ""
			}
		default:
			httputil.BadRequest(w, "status must be all, pending or completed")
			return
		}

		priority := db.Priority(httputil.QueryString(r, "priority", ""))
		if priority != "" && !priority.Valid() {
			httputil.BadRequest(w, "priority must be High, Medium or Low")
			return
		}

		var tags []string
		if raw := httputil.QueryString(r, "tags", ""); raw != "" {
			for _, t := range strings.Split(raw, ",") {
				if t = strings.TrimSpace(t); t != "" {
					tags = append(tags, t)
				}
			}
		}

		params := db.ListTasksParams{
			Search:        httputil.QueryString(r, "search", ""),
			Status:        status,
			Priority:      priority,
			Tags:          tags,
			SortBy:        httputil.QueryString(r, "sort_by", "created_at"),
			SortDirection: httputil.QueryString(r, "sort_direction", "desc"),
			Limit:         httputil.QueryInt(r, "limit", 50),
			Offset:        httputil.QueryInt(r, "offset", 0),
		}

		taskList, total, err := svcCtx.Store.ListTasks(r.Context(), ownerID, params)
		if err != nil {
			httputil.InternalError(w, "could not list tasks")
			return
		}
		if taskList == nil {
			taskList = []*db.Task{}
		}
		httputil.OkJSON(w, map[string]any{
			"tasks":  taskList,
			"total":  total,
			"limit":  params.Limit,
			"offset": params.Offset,
		})
	}
}

// GetTaskHandler handles GET /api/{user_id}/tasks/{task_id}
func GetTaskHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID := httputil.PathVar(r, "user_id")
		taskID := httputil.PathVar(r, "task_id")

		task, err := svcCtx.Store.GetTask(r.Context(), ownerID, taskID)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		httputil.OkJSON(w, task)
	}
}

type updateTaskRequest struct {
	Title       *string   `json:"title"`
	Description *string   `json:"description"`
	Completed   *bool     `json:"completed"`
	Priority    *string   `json:"priority"`
	DueDate     *string   `json:"due_date"`
	Tags        *[]string `json:"tags"`
}

// UpdateTaskHandler handles PATCH /api/{user_id}/tasks/{task_id}.
// Only the fields present in the body change; due_date set to the empty
// string clears the stored date.
func UpdateTaskHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID := httputil.PathVar(r, "user_id")
		taskID := httputil.PathVar(r, "task_id")

		var req updateTaskRequest
		if err := httputil.Parse(r, &req); err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}

		params := db.UpdateTaskParams{
			Description: req.Description,
			Completed:   req.Completed,
			Tags:        req.Tags,
		}
		if req.Title != nil {
			title := strings.TrimSpace(*req.Title)
			if title == "" {
				httputil.BadRequest(w, "title cannot be empty")
				return
			}
			params.Title = &title
		}
		if req.Priority != nil {
			p := db.Priority(*req.Priority)
			if !p.Valid() {
				httputil.BadRequest(w, "priority must be High, Medium or Low")
				return
			}
			params.Priority = &p
		}
		if req.DueDate != nil {
			if *req.DueDate == "" {
				params.ClearDueDate = true
			} else {
				due, err := parseDueDate(*req.DueDate)
				if err != nil {
					httputil.BadRequest(w, err.Error())
					return
				}
				params.DueDate = due
			}
		}

		task, err := svcCtx.Store.UpdateTask(r.Context(), ownerID, taskID, params)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		httputil.OkJSON(w, task)
	}
}

// DeleteTaskHandler handles DELETE /api/{user_id}/tasks/{task_id}
func DeleteTaskHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID := httputil.PathVar(r, "user_id")
		taskID := httputil.PathVar(r, "task_id")

		if err := svcCtx.Store.DeleteTask(r.Context(), ownerID, taskID); err != nil {
			writeStoreError(w, err)
			return
		}
		httputil.OkJSON(w, map[string]any{"deleted": true, "task_id": taskID})
	}
}

func writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, sql.ErrNoRows) {
		httputil.NotFound(w, "task not found")
		return
	}
	httputil.InternalError(w, "storage failure")
}

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
	return nil, errors.New("due_date must be RFC 3339 or YYYY-MM-DD")
}
