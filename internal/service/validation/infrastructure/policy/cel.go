package policy

import (
	"context"
	"fmt"
	"reflect"

	"github.com/google/cel-go/cel"
)

// CELAdmissionPolicy 是 port.AdmissionPolicy 接口基于 CEL 表达式的实现。
// 表达式中可以使用 request.location、request.requiredIcuBeds 和 request.requiredAmbulanceCapacity。
type CELAdmissionPolicy struct {
	expr    string
	program cel.Program
}

// NewCELAdmissionPolicy 在启动时编译规则，规则有语法错误或返回值不是 bool 时直接失败
func NewCELAdmissionPolicy(expr string) (*CELAdmissionPolicy, error) {
	env, err := cel.NewEnv(cel.Variable("request", cel.MapType(cel.StringType, cel.DynType)))
	if err != nil {
		return nil, err
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("invalid admission rule %q: %w", expr, issues.Err())
	}
	if !reflect.DeepEqual(ast.OutputType(), cel.BoolType) {
		return nil, fmt.Errorf("admission rule %q must return bool, got %v", expr, ast.OutputType())
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, err
	}
	return &CELAdmissionPolicy{expr: expr, program: program}, nil
}

// Admit 实现了 port.AdmissionPolicy 接口
func (p *CELAdmissionPolicy) Admit(ctx context.Context, location string, icuBeds, ambulanceCapacity int) (bool, error) {
	out, _, err := p.program.ContextEval(ctx, map[string]interface{}{
		"request": map[string]interface{}{
			"location":                  location,
			"requiredIcuBeds":           int64(icuBeds),
			"requiredAmbulanceCapacity": int64(ambulanceCapacity),
		},
	})
	if err != nil {
		return false, err
	}
	admitted, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("admission rule %q returned %T", p.expr, out.Value())
	}
	return admitted, nil
}
