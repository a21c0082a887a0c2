// Package cel wraps github.com/google/cel-go with a small predicate
// evaluator used by the record store's expression queries.
package cel

import (
	"fmt"
	"reflect"

	"github.com/google/cel-go/cel"
)

// Evaluator holds a compiled CEL predicate evaluated against one record at
// a time. The record is bound to the variable "rec", a map of string to any,
// e.g. `rec["status"] == "active" && rec["base_salary"] > 100.0`.
type Evaluator struct {
	Expression string
	program    cel.Program
}

// NewEvaluator compiles expression into a reusable predicate program.
func NewEvaluator(expression string) (*Evaluator, error) {
	if expression == "" {
		return nil, fmt.Errorf("expression can't be empty string")
	}

	env, err := cel.NewEnv(
		cel.Variable("rec", cel.MapType(cel.StringType, cel.AnyType)),
	)
	if err != nil {
		return nil, fmt.Errorf("error creating CEL environment: %v", err)
	}

	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("error compiling CEL expression: %v", issues.Err())
	}
	p, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("error creating Program: %v", err)
	}
	return &Evaluator{
		Expression: expression,
		program:    p,
	}, nil
}

// Evaluate runs the predicate against the given record map and returns the
// boolean result.
func (e *Evaluator) Evaluate(rec map[string]any) (bool, error) {
	out, _, err := e.program.Eval(map[string]any{
		"rec": rec,
	})
	if err != nil {
		return false, fmt.Errorf("error evaluating CEL expression: %v", err)
	}
	nv, err := out.ConvertToNative(reflect.TypeOf(false))
	if err != nil {
		return false, fmt.Errorf("error ConvertToNative, got err: %v", err)
	}
	b, ok := nv.(bool)
	if !ok {
		return false, fmt.Errorf("expression %q did not evaluate to a boolean", e.Expression)
	}
	return b, nil
}
