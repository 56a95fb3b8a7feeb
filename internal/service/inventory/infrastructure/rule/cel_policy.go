// internal/service/inventory/infrastructure/rule/cel_policy.go
package rule

import (
	"github.com/google/cel-go/cel"
	"github.com/pkg/errors"

	"stockhold/internal/service/inventory/domain"
)

// CELAdmissionPolicy 是 port.AdmissionPolicy 的实现，用一条 CEL 表达式决定是否受理订单。
// 表达式可以使用的变量:
//
//	order_id        string
//	items           list(map(string, dyn))，每项包含 product_id 与 quantity
//	line_count      int
//	total_quantity  int
//
// 例如 `total_quantity <= 10 && items.all(i, i.quantity <= 5)`
type CELAdmissionPolicy struct {
	expr    string
	program cel.Program
}

// NewCELAdmissionPolicy 编译表达式。空表达式表示受理所有订单。
func NewCELAdmissionPolicy(expr string) (*CELAdmissionPolicy, error) {
	p := &CELAdmissionPolicy{expr: expr}
	if expr == "" {
		return p, nil
	}

	env, err := cel.NewEnv(
		cel.Variable("order_id", cel.StringType),
		cel.Variable("items", cel.ListType(cel.MapType(cel.StringType, cel.DynType))),
		cel.Variable("line_count", cel.IntType),
		cel.Variable("total_quantity", cel.IntType),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create cel environment")
	}

	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, errors.Wrapf(iss.Err(), "compile admission policy %q", expr)
	}
	program, err := env.Program(ast)
	if err != nil {
		return nil, errors.Wrapf(err, "build admission policy %q", expr)
	}
	p.program = program
	return p, nil
}

// Expression 返回原始表达式
func (p *CELAdmissionPolicy) Expression() string { return p.expr }

// Admit 对订单求值，表达式结果必须是 bool
func (p *CELAdmissionPolicy) Admit(orderID string, items []domain.LineItem) (bool, error) {
	if p.program == nil {
		return true, nil
	}

	// CEL 的整数是 int64，列表元素用 interface{} 才能被默认适配器识别
	facts := make([]interface{}, 0, len(items))
	var total int64
	for _, item := range items {
		facts = append(facts, map[string]interface{}{
			"product_id": item.ProductID,
			"quantity":   int64(item.Quantity),
		})
		total += int64(item.Quantity)
	}

	out, _, err := p.program.Eval(map[string]interface{}{
		"order_id":       orderID,
		"items":          facts,
		"line_count":     int64(len(items)),
		"total_quantity": total,
	})
	if err != nil {
		return false, errors.Wrapf(err, "evaluate admission policy for order %s", orderID)
	}

	admitted, ok := out.Value().(bool)
	if !ok {
		return false, errors.Errorf("admission policy %q returned %T, want bool", p.expr, out.Value())
	}
	return admitted, nil
}
