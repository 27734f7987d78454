package policy

import (
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/stewardhq/steward/pkg/schema"
)

// ConstraintEngine evaluates per-field expression constraints declared by
// validators. Expressions see `value` (the field value) and `params` (all
// proposal parameters) and must yield a boolean.
// Thread-safe: compiled programs are cached and reused across goroutines.
type ConstraintEngine struct {
	mu    sync.RWMutex
	cache map[string]*vm.Program
}

// NewConstraintEngine creates a new ConstraintEngine.
func NewConstraintEngine() *ConstraintEngine {
	return &ConstraintEngine{
		cache: make(map[string]*vm.Program),
	}
}

// Check evaluates a constraint expression against a field value.
// A non-boolean result is a validation error on the constraint itself.
func (e *ConstraintEngine) Check(expression string, value any, params map[string]any) (bool, error) {
	if expression == "" {
		return true, nil
	}

	prg, err := e.getOrCompile(expression)
	if err != nil {
		return false, err
	}

	env := map[string]any{
		"value":  value,
		"params": params,
	}
	out, err := vm.Run(prg, env)
	if err != nil {
		return false, schema.NewErrorf(schema.ErrCodePolicy,
			"constraint evaluation failed for %q: %s", expression, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": expression})
	}

	ok, isBool := out.(bool)
	if !isBool {
		return false, schema.NewErrorf(schema.ErrCodeValidation,
			"constraint %q did not evaluate to a boolean", expression)
	}
	return ok, nil
}

// getOrCompile returns a cached compiled program or compiles and caches a new one.
func (e *ConstraintEngine) getOrCompile(expression string) (*vm.Program, error) {
	e.mu.RLock()
	if prg, ok := e.cache[expression]; ok {
		e.mu.RUnlock()
		return prg, nil
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	// Double-check after acquiring write lock.
	if prg, ok := e.cache[expression]; ok {
		return prg, nil
	}

	prg, err := expr.Compile(expression,
		expr.Env(map[string]any{}),
		expr.AllowUndefinedVariables(),
	)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"constraint compile error in %q: %s", expression, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": expression})
	}

	e.cache[expression] = prg
	return prg, nil
}
