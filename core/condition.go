package core

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/builtin"
	"github.com/expr-lang/expr/vm"
	goerrors "github.com/goliatone/go-errors"
)

// ExprConditionEvaluator evaluates webhook conditions with expr-lang.
// Compiled programs are cached by expression and by the set of builtins the
// payload shadows: a top-level payload key named like a builtin (duration,
// now, len) is always read as the payload field.
type ExprConditionEvaluator struct {
	mu    sync.RWMutex
	cache map[string]*vm.Program
}

func NewExprConditionEvaluator() *ExprConditionEvaluator {
	return &ExprConditionEvaluator{cache: map[string]*vm.Program{}}
}

// Compile checks condition without a payload. An expression that only
// type-checks once builtins are shadowed by payload keys is accepted.
func (e *ExprConditionEvaluator) Compile(condition string) error {
	if _, err := e.program(condition, nil); err == nil {
		return nil
	}
	_, err := e.program(condition, builtin.Names)
	return err
}

func (e *ExprConditionEvaluator) Evaluate(ctx context.Context, condition string, env map[string]any) (bool, error) {
	condition = strings.TrimSpace(condition)
	if condition == "" {
		return true, nil
	}
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return false, err
		}
	}
	if env == nil {
		env = map[string]any{}
	}
	program, err := e.program(condition, shadowedBuiltins(env))
	if err != nil {
		return false, err
	}
	result, err := expr.Run(program, env)
	if err != nil {
		return false, conditionError("core: evaluate condition", condition, err)
	}
	matched, ok := result.(bool)
	if !ok {
		return false, conditionError("core: condition did not return bool", condition, nil)
	}
	return matched, nil
}

func (e *ExprConditionEvaluator) program(condition string, disabled []string) (*vm.Program, error) {
	condition = strings.TrimSpace(condition)
	key := condition
	if len(disabled) > 0 {
		key = condition + "\x00" + strings.Join(disabled, ",")
	}
	e.mu.RLock()
	program, ok := e.cache[key]
	e.mu.RUnlock()
	if ok {
		return program, nil
	}

	opts := make([]expr.Option, 0, len(disabled)+1)
	opts = append(opts, expr.AsBool())
	for _, name := range disabled {
		opts = append(opts, expr.DisableBuiltin(name))
	}
	program, err := expr.Compile(condition, opts...)
	if err != nil {
		return nil, conditionError("core: compile condition", condition, err)
	}
	e.mu.Lock()
	if e.cache == nil {
		e.cache = map[string]*vm.Program{}
	}
	e.cache[key] = program
	e.mu.Unlock()
	return program, nil
}

// shadowedBuiltins lists, sorted, the env keys that collide with expr
// builtins.
func shadowedBuiltins(env map[string]any) []string {
	var names []string
	for key := range env {
		if _, ok := builtin.Index[key]; ok {
			names = append(names, key)
		}
	}
	slices.Sort(names)
	return names
}

func conditionError(message string, condition string, source error) error {
	if source != nil {
		message = fmt.Sprintf("%s: %v", message, source)
	}
	return validationError(message, goerrors.FieldError{
		Field:   "condition",
		Message: message,
	}).WithMetadata(map[string]any{"condition": condition})
}

var _ ConditionEvaluator = (*ExprConditionEvaluator)(nil)
var _ ConditionCompiler = (*ExprConditionEvaluator)(nil)
