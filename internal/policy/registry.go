package policy

import (
	"sort"
	"sync"

	"github.com/stewardhq/steward/pkg/schema"
)

// Registry is a thread-safe map of workflow type to Validator.
// New workflow families are added by registering a Validator instance;
// neither enforcement nor the base supervisor changes.
type Registry struct {
	mu         sync.RWMutex
	validators map[schema.Intent]Validator
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		validators: make(map[schema.Intent]Validator),
	}
}

// DefaultRegistry returns a registry preloaded with the built-in validators.
func DefaultRegistry() (*Registry, error) {
	r := NewRegistry()
	for _, v := range []Validator{NewTodoValidator(), NewChatValidator()} {
		if err := r.Register(v); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a validator. Returns an error on duplicate workflow type.
func (r *Registry) Register(v Validator) error {
	if v == nil {
		return schema.NewError(schema.ErrCodeValidation, "validator is nil")
	}
	wt := v.WorkflowType()
	if !wt.Routable() {
		return schema.NewErrorf(schema.ErrCodeValidation, "validator workflow type %q is not a known intent", wt)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.validators[wt]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "validator for %q already registered", wt)
	}
	r.validators[wt] = v
	return nil
}

// Get retrieves the validator for a workflow type.
func (r *Registry) Get(wt schema.Intent) (Validator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	v, ok := r.validators[wt]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "no validator registered for %q", wt)
	}
	return v, nil
}

// Has checks whether a validator is registered for the workflow type.
func (r *Registry) Has(wt schema.Intent) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.validators[wt]
	return ok
}

// Types returns the registered workflow types, sorted.
func (r *Registry) Types() []schema.Intent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]schema.Intent, 0, len(r.validators))
	for wt := range r.validators {
		out = append(out, wt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
