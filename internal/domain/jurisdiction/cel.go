package jurisdiction

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"

	"paystub/internal/domain/tax"
)

var newConditionEnv = func() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("filingStatus", cel.StringType),
		cel.Variable("payFrequency", cel.StringType),
		cel.Variable("localities", cel.ListType(cel.StringType)),
		cel.Variable("residence", cel.StringType),
		cel.Variable("state", cel.StringType),
	)
}

var conditionEnv = sync.OnceValues(newConditionEnv)

var conditionProgramCache sync.Map

// celCondition is a local rule predicate written as a CEL expression over
// the filer's facts.
type celCondition struct {
	expr    string
	program cel.Program
}

func compileCondition(expr string) (*celCondition, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, errors.New("expression required")
	}
	if cached, ok := conditionProgramCache.Load(expr); ok {
		return &celCondition{expr: expr, program: cached.(cel.Program)}, nil
	}
	env, err := conditionEnv()
	if err != nil {
		return nil, err
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("condition %q: %w", expr, issues.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("condition %q must evaluate to bool", expr)
	}
	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("condition %q: %w", expr, err)
	}
	conditionProgramCache.Store(expr, program)
	return &celCondition{expr: expr, program: program}, nil
}

func (c *celCondition) Applies(f tax.Facts) (bool, error) {
	localities := f.Localities
	if localities == nil {
		localities = []string{}
	}
	out, _, err := c.program.Eval(map[string]any{
		"filingStatus": string(f.FilingStatus),
		"payFrequency": string(f.PayFrequency),
		"localities":   localities,
		"residence":    f.Residence,
		"state":        f.State,
	})
	if err != nil {
		return false, fmt.Errorf("condition %q: %w", c.expr, err)
	}
	v, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("condition %q did not return bool", c.expr)
	}
	return v, nil
}

func (c *celCondition) String() string {
	return c.expr
}
