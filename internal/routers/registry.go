package routers

import (
	"context"
	"sort"
	"sync"

	"github.com/stewardhq/steward/pkg/schema"
)

// Registry is the concrete thread-safe router registry.
type Registry struct {
	mu      sync.RWMutex
	routers map[schema.Intent]Router
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		routers: make(map[schema.Intent]Router),
	}
}

// Register adds a router. Returns an error on duplicate workflow type.
func (r *Registry) Register(router Router) error {
	if router == nil {
		return schema.NewError(schema.ErrCodeValidation, "router is nil")
	}
	wt := router.WorkflowType()
	if !wt.Routable() {
		return schema.NewErrorf(schema.ErrCodeValidation, "router workflow type %q is not a known intent", wt)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.routers[wt]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "router for %q already registered", wt)
	}
	r.routers[wt] = router
	return nil
}

// Get retrieves the router for a workflow type.
func (r *Registry) Get(wt schema.Intent) (Router, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	router, ok := r.routers[wt]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "no router registered for %q", wt)
	}
	return router, nil
}

// Has checks whether a router is registered for the workflow type.
func (r *Registry) Has(wt schema.Intent) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.routers[wt]
	return ok
}

// Types returns the registered workflow types, sorted.
func (r *Registry) Types() []schema.Intent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]schema.Intent, 0, len(r.routers))
	for wt := range r.routers {
		out = append(out, wt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Execute dispatches the payload to its workflow's router.
func (r *Registry) Execute(ctx context.Context, payload *schema.ExecutionPayload) (map[string]any, error) {
	router, err := r.Get(payload.WorkflowType)
	if err != nil {
		return nil, err
	}
	out, err := router.Execute(ctx, payload)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExecution,
			"%s router failed: %s", payload.WorkflowType, err.Error()).
			WithNode(string(payload.WorkflowType) + "_router").
			WithCause(err)
	}
	return out, nil
}
