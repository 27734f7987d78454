package routers

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stewardhq/steward/pkg/schema"
)

// TodoItem is one checklist entry.
type TodoItem struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	DueDate   string    `json:"due_date,omitempty"`
	Priority  string    `json:"priority,omitempty"`
	Status    string    `json:"status"`
	Tags      []string  `json:"tags,omitempty"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TodoRouter executes supervised todo operations against an in-process list.
// Thread-safe; the backing map is guarded by a single mutex since todo
// volumes are per-user and small.
type TodoRouter struct {
	mu    sync.Mutex
	items map[string]*TodoItem
	newID func() string
	clock func() time.Time
}

// NewTodoRouter creates an empty todo router.
func NewTodoRouter() *TodoRouter {
	return &TodoRouter{
		items: make(map[string]*TodoItem),
		newID: uuid.NewString,
		clock: time.Now,
	}
}

func (r *TodoRouter) WorkflowType() schema.Intent {
	return schema.IntentTodo
}

func (r *TodoRouter) Execute(ctx context.Context, payload *schema.ExecutionPayload) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	switch payload.OperationType {
	case "create":
		return r.create(payload)
	case "update":
		return r.update(payload)
	case "delete":
		return r.delete(payload)
	case "get":
		return r.get(payload)
	case "list":
		return r.list(payload)
	case "bulk_toggle":
		return r.bulkToggle(payload)
	case "convert_to_task":
		return r.convertToTask(payload)
	default:
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"unsupported todo operation %q", payload.OperationType)
	}
}

func (r *TodoRouter) create(payload *schema.ExecutionPayload) (map[string]any, error) {
	title, _ := payload.Parameters["title"].(string)
	now := r.clock().UTC()
	item := &TodoItem{
		ID:        r.newID(),
		UserID:    payload.UserID,
		Title:     title,
		Status:    "pending",
		CreatedAt: now,
		UpdatedAt: now,
	}
	if due, ok := payload.Parameters["due_date"].(string); ok {
		item.DueDate = due
	}
	if pri, ok := payload.Parameters["priority"].(string); ok {
		item.Priority = pri
	}
	if notes, ok := payload.Parameters["notes"].(string); ok {
		item.Notes = notes
	}
	item.Tags = stringSlice(payload.Parameters["tags"])

	r.items[item.ID] = item
	return map[string]any{"type": "todo_created", "todo": item}, nil
}

func (r *TodoRouter) update(payload *schema.ExecutionPayload) (map[string]any, error) {
	item, err := r.lookup(payload)
	if err != nil {
		return nil, err
	}
	if title, ok := payload.Parameters["title"].(string); ok && title != "" {
		item.Title = title
	}
	if due, ok := payload.Parameters["due_date"].(string); ok {
		item.DueDate = due
	}
	if pri, ok := payload.Parameters["priority"].(string); ok {
		item.Priority = pri
	}
	if status, ok := payload.Parameters["status"].(string); ok {
		item.Status = status
	}
	if tags := stringSlice(payload.Parameters["tags"]); tags != nil {
		item.Tags = tags
	}
	item.UpdatedAt = r.clock().UTC()
	return map[string]any{"type": "todo_updated", "todo": item}, nil
}

func (r *TodoRouter) delete(payload *schema.ExecutionPayload) (map[string]any, error) {
	item, err := r.lookup(payload)
	if err != nil {
		return nil, err
	}
	delete(r.items, item.ID)
	return map[string]any{"type": "todo_deleted", "todo_id": item.ID}, nil
}

func (r *TodoRouter) get(payload *schema.ExecutionPayload) (map[string]any, error) {
	item, err := r.lookup(payload)
	if err != nil {
		return nil, err
	}
	return map[string]any{"type": "todo", "todo": item}, nil
}

func (r *TodoRouter) list(payload *schema.ExecutionPayload) (map[string]any, error) {
	status, _ := payload.Parameters["status"].(string)
	priority, _ := payload.Parameters["priority"].(string)

	var out []*TodoItem
	for _, item := range r.items {
		if item.UserID != payload.UserID {
			continue
		}
		if status != "" && item.Status != status {
			continue
		}
		if priority != "" && item.Priority != priority {
			continue
		}
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return map[string]any{"type": "todo_list", "todos": out, "count": len(out)}, nil
}

func (r *TodoRouter) bulkToggle(payload *schema.ExecutionPayload) (map[string]any, error) {
	ids := stringSlice(payload.Parameters["todo_ids"])
	toggled := 0
	for _, id := range ids {
		item, ok := r.items[id]
		if !ok || item.UserID != payload.UserID {
			continue
		}
		if item.Status == "completed" {
			item.Status = "pending"
		} else {
			item.Status = "completed"
		}
		item.UpdatedAt = r.clock().UTC()
		toggled++
	}
	return map[string]any{"type": "todos_toggled", "count": toggled}, nil
}

func (r *TodoRouter) convertToTask(payload *schema.ExecutionPayload) (map[string]any, error) {
	item, err := r.lookup(payload)
	if err != nil {
		return nil, err
	}
	delete(r.items, item.ID)
	// The task workflow owns the converted item from here; we hand back the
	// source fields it needs.
	return map[string]any{
		"type": "todo_converted",
		"task": map[string]any{
			"title":    item.Title,
			"due_date": item.DueDate,
			"priority": item.Priority,
			"notes":    item.Notes,
			"source":   "todo:" + item.ID,
		},
	}, nil
}

func (r *TodoRouter) lookup(payload *schema.ExecutionPayload) (*TodoItem, error) {
	id, _ := payload.Parameters["todo_id"].(string)
	item, ok := r.items[id]
	if !ok || item.UserID != payload.UserID {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "todo %q not found", id)
	}
	return item, nil
}

func stringSlice(v any) []string {
	switch vals := v.(type) {
	case []string:
		return vals
	case []any:
		out := make([]string, 0, len(vals))
		for _, item := range vals {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
