package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stewardhq/steward/pkg/schema"
)

type fakeValidator struct {
	wt schema.Intent
}

func (f *fakeValidator) WorkflowType() schema.Intent    { return f.wt }
func (f *fakeValidator) RequiredFields(string) []string { return nil }
func (f *fakeValidator) AllowedValues(string) []string  { return nil }
func (f *fakeValidator) Constraints() map[string]string { return nil }
func (f *fakeValidator) ValidatePermissions(string, map[string]any) []string {
	return nil
}

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.Register(NewTodoValidator()))
	assert.True(t, r.Has(schema.IntentTodo))

	v, err := r.Get(schema.IntentTodo)
	require.NoError(t, err)
	assert.Equal(t, schema.IntentTodo, v.WorkflowType())
}

func TestDefaultRegistryHasBuiltInValidators(t *testing.T) {
	r, err := DefaultRegistry()
	require.NoError(t, err)

	assert.True(t, r.Has(schema.IntentTodo))
	assert.True(t, r.Has(schema.IntentChat))
	assert.Equal(t, []schema.Intent{schema.IntentChat, schema.IntentTodo}, r.Types())
}

func TestRegistryRejectsDuplicate(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.Register(NewTodoValidator()))
	err := r.Register(NewTodoValidator())
	require.Error(t, err)

	var serr *schema.StewardError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, schema.ErrCodeConflict, serr.Code)
}

func TestRegistryRejectsNilAndUnroutable(t *testing.T) {
	r := NewRegistry()

	assert.Error(t, r.Register(nil))
	assert.Error(t, r.Register(&fakeValidator{wt: schema.IntentUnknown}))
}

func TestRegistryGetUnknown(t *testing.T) {
	r := NewRegistry()

	_, err := r.Get(schema.IntentCalendar)
	require.Error(t, err)

	var serr *schema.StewardError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, schema.ErrCodeNotFound, serr.Code)
}

func TestRegistryTypesSorted(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.Register(&fakeValidator{wt: schema.IntentTask}))
	require.NoError(t, r.Register(&fakeValidator{wt: schema.IntentCalendar}))
	require.NoError(t, r.Register(NewTodoValidator()))

	assert.Equal(t, []schema.Intent{schema.IntentCalendar, schema.IntentTask, schema.IntentTodo}, r.Types())
}
