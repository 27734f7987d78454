// Package routers holds the downstream workflow executors: once a supervised
// request is ready, the router registered for its intent performs the actual
// operation and returns the result surfaced to the user.
package routers

import (
	"context"

	"github.com/stewardhq/steward/pkg/schema"
)

// Router executes ready payloads for one workflow family.
type Router interface {
	WorkflowType() schema.Intent
	Execute(ctx context.Context, payload *schema.ExecutionPayload) (map[string]any, error)
}

// routerFunc adapts a function to the Router interface.
type routerFunc struct {
	wt schema.Intent
	fn func(ctx context.Context, payload *schema.ExecutionPayload) (map[string]any, error)
}

func (r *routerFunc) WorkflowType() schema.Intent { return r.wt }

func (r *routerFunc) Execute(ctx context.Context, payload *schema.ExecutionPayload) (map[string]any, error) {
	return r.fn(ctx, payload)
}

// Func wraps a function as a Router for the given workflow type.
func Func(wt schema.Intent, fn func(ctx context.Context, payload *schema.ExecutionPayload) (map[string]any, error)) Router {
	return &routerFunc{wt: wt, fn: fn}
}
