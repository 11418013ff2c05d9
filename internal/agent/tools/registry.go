// Package tools holds the fixed catalog of task tools the agent may
// call. Every dispatch validates its input against the tool's JSON
// schema, re-checks ownership, and leaves an audit record regardless of
// outcome.
package tools

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/uneezaismail/hackathon-todo-sub007/internal/agent/ai"
	"github.com/uneezaismail/hackathon-todo-sub007/internal/db"
)

// ErrForbidden is returned when a tool input names an owner other than
// the authenticated one. The message deliberately says nothing about
// whether the other owner or their data exists.
var ErrForbidden = errors.New("access denied")

// InvalidInputError marks tool input that failed schema validation or
// named an unknown tool.
type InvalidInputError struct {
	Msg string
}

func (e *InvalidInputError) Error() string { return e.Msg }

// IsInvalidInput reports whether err is an InvalidInputError.
func IsInvalidInput(err error) bool {
	var ie *InvalidInputError
	return errors.As(err, &ie)
}

// ErrorCode maps a tool execution error to its stable code.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case IsInvalidInput(err):
		return "invalid_tool_input"
	case errors.Is(err, sql.ErrNoRows):
		return "not_found"
	default:
		return "store_error"
	}
}

// Tool is one entry in the catalog. Mutates distinguishes read-only
// tools from ones that change task state; the distinction is recorded,
// not enforced.
type Tool struct {
	Name        string
	Description string
	InputSchema json.RawMessage
	Mutates     bool
	Run         func(ctx context.Context, ownerID string, input json.RawMessage) (string, error)

	schema *jsonschema.Schema
}

// Registry holds the compiled tool catalog. The catalog is fixed at
// construction; there is no runtime registration.
type Registry struct {
	store   *db.Store
	timeout time.Duration
	tools   map[string]*Tool
	order   []string
}

// NewRegistry builds the catalog of task tools bound to store. Schemas
// are compiled once here; a malformed schema is a programming error and
// fails construction.
func NewRegistry(store *db.Store, toolTimeout time.Duration) (*Registry, error) {
	if toolTimeout <= 0 {
		toolTimeout = 30 * time.Second
	}
	r := &Registry{
		store:   store,
		timeout: toolTimeout,
		tools:   make(map[string]*Tool),
	}
	for _, t := range taskTools(store) {
		if err := r.register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) register(t *Tool) error {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(t.InputSchema))
	if err != nil {
		return fmt.Errorf("tool %s: parse schema: %w", t.Name, err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(t.Name+".json", doc); err != nil {
		return fmt.Errorf("tool %s: add schema: %w", t.Name, err)
	}
	schema, err := compiler.Compile(t.Name + ".json")
	if err != nil {
		return fmt.Errorf("tool %s: compile schema: %w", t.Name, err)
	}
	t.schema = schema
	r.tools[t.Name] = t
	r.order = append(r.order, t.Name)
	return nil
}

// Definitions returns the catalog in registration order, in the form
// providers advertise to the model.
func (r *Registry) Definitions() []ai.ToolDefinition {
	defs := make([]ai.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		defs = append(defs, ai.ToolDefinition{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.InputSchema,
		})
	}
	return defs
}

// Execute runs one tool call for ownerID. The audit record is written
// before the tool runs and completed after, whether or not the run
// succeeded. Validation order: ownership first, then schema, so a
// cross-owner probe is reported as forbidden even when its input is
// otherwise malformed.
func (r *Registry) Execute(ctx context.Context, ownerID, conversationID string, call *ai.ToolCall) (string, error) {
	input := call.Input
	if len(input) == 0 {
		input = json.RawMessage("{}")
	}

	inv := &db.ToolInvocation{
		ConversationID: conversationID,
		OwnerID:        ownerID,
		ToolName:       call.Name,
		Input:          input,
	}
	if err := r.store.BeginToolInvocation(ctx, inv); err != nil {
		return "", err
	}

	output, err := r.execute(ctx, ownerID, call.Name, input)

	errMsg := ""
	if err != nil {
		errMsg = fmt.Sprintf("%s: %s", ErrorCode(err), err.Error())
	}
	if ferr := r.store.FinishToolInvocation(ctx, inv.ID, output, errMsg); ferr != nil {
		return output, ferr
	}
	return output, err
}

func (r *Registry) execute(ctx context.Context, ownerID, name string, input json.RawMessage) (string, error) {
	t, ok := r.tools[name]
	if !ok {
		return "", &InvalidInputError{Msg: fmt.Sprintf("unknown tool %q", name)}
	}

	var fields map[string]any
	if err := json.Unmarshal(input, &fields); err != nil {
		return "", &InvalidInputError{Msg: fmt.Sprintf("input is not a JSON object: %v", err)}
	}

	// A tool input may not act on behalf of another owner, no matter
	// what the upstream layers let through.
	if uid, ok := fields["user_id"].(string); ok && uid != ownerID {
		return "", ErrForbidden
	}

	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(input))
	if err != nil {
		return "", &InvalidInputError{Msg: err.Error()}
	}
	if err := t.schema.Validate(inst); err != nil {
		return "", &InvalidInputError{Msg: err.Error()}
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return t.Run(ctx, ownerID, input)
}
