// Package cel provides a CEL-based admission filter for activity events.
package cel

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/ext"

	"github.com/Session-Vigil/Sessionvigil/internal/domain/activity"
)

// maxExpressionLength is the maximum allowed length for filter expressions.
const maxExpressionLength = 1024

// maxCostBudget is the CEL runtime cost limit per evaluation.
const maxCostBudget = 100_000

// maxNestingDepth is the maximum allowed parenthesis/bracket nesting depth.
const maxNestingDepth = 50

// evalTimeout is the maximum time allowed for a single evaluation.
const evalTimeout = 5 * time.Second

// interruptCheckFreq is how often (in comprehension iterations) context
// cancellation is checked.
const interruptCheckFreq = 100

// Filter admits activity events that satisfy a compiled CEL expression.
// Expressions see the event as four variables:
//
//   - kind        (string)    event kind name, e.g. "click"
//   - source      (string)    reporting surface, e.g. "browser"
//   - meta        (map)       event metadata
//   - observed_at (timestamp) event time
//
// plus a glob(pattern, name) helper for wildcard source matching. An
// expression that evaluates to true admits the event.
type Filter struct {
	expression string
	prg        cel.Program
}

// newFilterEnvironment creates the CEL environment for event admission.
func newFilterEnvironment() (*cel.Env, error) {
	return cel.NewEnv(
		ext.Strings(),
		ext.Sets(),

		cel.Variable("kind", cel.StringType),
		cel.Variable("source", cel.StringType),
		cel.Variable("meta", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("observed_at", cel.TimestampType),

		// glob: wildcard matching for sources and meta values.
		// Usage: glob("ui-*", source)
		cel.Function("glob",
			cel.Overload("glob_string_string",
				[]*cel.Type{cel.StringType, cel.StringType},
				cel.BoolType,
				cel.BinaryBinding(func(pattern, name ref.Val) ref.Val {
					p := pattern.Value().(string)
					n := name.Value().(string)
					matched, _ := filepath.Match(p, n)
					return types.Bool(matched)
				}),
			),
		),
	)
}

// NewFilter compiles the expression and returns a filter ready for use.
// The expression must type-check to a boolean and stay within the length
// and nesting limits.
func NewFilter(expression string) (*Filter, error) {
	if expression == "" {
		return nil, errors.New("filter expression is empty")
	}
	if len(expression) > maxExpressionLength {
		return nil, fmt.Errorf("filter expression too long: %d characters (max %d)",
			len(expression), maxExpressionLength)
	}
	if err := validateNesting(expression); err != nil {
		return nil, err
	}

	env, err := newFilterEnvironment()
	if err != nil {
		return nil, fmt.Errorf("create filter environment: %w", err)
	}

	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compilation failed: %w", issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("filter expression must return bool, got %v", ast.OutputType())
	}

	prg, err := env.Program(ast,
		cel.EvalOptions(cel.OptOptimize),
		cel.CostLimit(maxCostBudget),
		cel.InterruptCheckFrequency(interruptCheckFreq),
	)
	if err != nil {
		return nil, fmt.Errorf("program creation failed: %w", err)
	}

	return &Filter{expression: expression, prg: prg}, nil
}

// validateNesting checks that the expression does not exceed the maximum
// allowed nesting depth for parentheses, brackets, and braces.
func validateNesting(expr string) error {
	var depth, maxDepth int
	for _, ch := range expr {
		switch ch {
		case '(', '[', '{':
			depth++
			if depth > maxDepth {
				maxDepth = depth
			}
		case ')', ']', '}':
			depth--
		}
	}
	if maxDepth > maxNestingDepth {
		return fmt.Errorf("expression nesting too deep: %d levels (max %d)", maxDepth, maxNestingDepth)
	}
	return nil
}

// Expression returns the source expression this filter was compiled from.
func (f *Filter) Expression() string {
	return f.expression
}

// Admit evaluates the expression against the event. Evaluation runs
// under a timeout so a pathological expression cannot stall event
// dispatch indefinitely.
func (f *Filter) Admit(ev activity.Event) (bool, error) {
	meta := ev.Meta
	if meta == nil {
		meta = map[string]any{}
	}

	activation := map[string]any{
		"kind":        ev.Kind.String(),
		"source":      ev.Source,
		"meta":        meta,
		"observed_at": ev.At,
	}

	ctx, cancel := context.WithTimeout(context.Background(), evalTimeout)
	defer cancel()

	result, _, err := f.prg.ContextEval(ctx, activation)
	if err != nil {
		return false, fmt.Errorf("evaluation failed: %w", err)
	}

	admitted, ok := result.Value().(bool)
	if !ok {
		return false, fmt.Errorf("expression did not return a boolean, got %T", result.Value())
	}

	return admitted, nil
}

// Compile-time interface verification.
var _ activity.EventFilter = (*Filter)(nil)
