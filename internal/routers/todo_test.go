package routers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stewardhq/steward/pkg/schema"
)

func todoPayload(op string, params map[string]any) *schema.ExecutionPayload {
	return &schema.ExecutionPayload{
		WorkflowType:  schema.IntentTodo,
		OperationType: op,
		UserID:        "u1",
		Parameters:    params,
	}
}

func createTodo(t *testing.T, r *TodoRouter, title string) *TodoItem {
	t.Helper()
	out, err := r.Execute(context.Background(), todoPayload("create", map[string]any{
		"title": title, "priority": "medium",
	}))
	require.NoError(t, err)
	item, ok := out["todo"].(*TodoItem)
	require.True(t, ok)
	return item
}

func TestTodoCreateAndGet(t *testing.T) {
	r := NewTodoRouter()
	item := createTodo(t, r, "buy milk")

	assert.Equal(t, "pending", item.Status)
	assert.Equal(t, "u1", item.UserID)

	out, err := r.Execute(context.Background(), todoPayload("get", map[string]any{"todo_id": item.ID}))
	require.NoError(t, err)
	got := out["todo"].(*TodoItem)
	assert.Equal(t, "buy milk", got.Title)
}

func TestTodoListFiltersByUser(t *testing.T) {
	r := NewTodoRouter()
	createTodo(t, r, "mine")

	other := todoPayload("create", map[string]any{"title": "not mine"})
	other.UserID = "u2"
	_, err := r.Execute(context.Background(), other)
	require.NoError(t, err)

	out, err := r.Execute(context.Background(), todoPayload("list", map[string]any{}))
	require.NoError(t, err)
	assert.Equal(t, 1, out["count"])
}

func TestTodoUpdate(t *testing.T) {
	r := NewTodoRouter()
	item := createTodo(t, r, "draft essay")

	out, err := r.Execute(context.Background(), todoPayload("update", map[string]any{
		"todo_id": item.ID, "status": "in_progress", "priority": "high",
	}))
	require.NoError(t, err)
	updated := out["todo"].(*TodoItem)
	assert.Equal(t, "in_progress", updated.Status)
	assert.Equal(t, "high", updated.Priority)
}

func TestTodoDeleteThenGetFails(t *testing.T) {
	r := NewTodoRouter()
	item := createTodo(t, r, "old item")

	_, err := r.Execute(context.Background(), todoPayload("delete", map[string]any{"todo_id": item.ID}))
	require.NoError(t, err)

	_, err = r.Execute(context.Background(), todoPayload("get", map[string]any{"todo_id": item.ID}))
	require.Error(t, err)
}

func TestTodoBulkToggle(t *testing.T) {
	r := NewTodoRouter()
	a := createTodo(t, r, "a")
	b := createTodo(t, r, "b")

	out, err := r.Execute(context.Background(), todoPayload("bulk_toggle", map[string]any{
		"todo_ids": []any{a.ID, b.ID, "missing"},
	}))
	require.NoError(t, err)
	assert.Equal(t, 2, out["count"])

	got, err := r.Execute(context.Background(), todoPayload("get", map[string]any{"todo_id": a.ID}))
	require.NoError(t, err)
	assert.Equal(t, "completed", got["todo"].(*TodoItem).Status)
}

func TestTodoConvertToTask(t *testing.T) {
	r := NewTodoRouter()
	item := createTodo(t, r, "promote me")

	out, err := r.Execute(context.Background(), todoPayload("convert_to_task", map[string]any{
		"todo_id": item.ID,
	}))
	require.NoError(t, err)

	task := out["task"].(map[string]any)
	assert.Equal(t, "promote me", task["title"])

	_, err = r.Execute(context.Background(), todoPayload("get", map[string]any{"todo_id": item.ID}))
	require.Error(t, err)
}

func TestTodoUnsupportedOperation(t *testing.T) {
	r := NewTodoRouter()
	_, err := r.Execute(context.Background(), todoPayload("teleport", nil))
	require.Error(t, err)
}
