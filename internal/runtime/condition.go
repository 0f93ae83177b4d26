package runtime

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
)

// EvalCondition evaluates a transition condition as an expr-lang expression
// over the resolved field values. Empty conditions are always true.
//
// Conditions reach this point only after every field they declare has been
// resolved, so a missing identifier is a graph-authoring bug, not a runtime
// data gap.
func EvalCondition(condition string, fields map[string]any) (bool, error) {
	condition = strings.TrimSpace(condition)
	if condition == "" {
		return true, nil
	}

	program, err := expr.Compile(condition, expr.Env(fields), expr.AsBool())
	if err != nil {
		return false, fmt.Errorf("compile condition %q: %w", condition, err)
	}
	output, err := expr.Run(program, fields)
	if err != nil {
		return false, fmt.Errorf("eval condition %q: %w", condition, err)
	}
	result, ok := output.(bool)
	if !ok {
		return false, fmt.Errorf("condition %q did not return bool (got %T)", condition, output)
	}
	return result, nil
}
