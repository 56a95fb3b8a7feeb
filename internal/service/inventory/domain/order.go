// internal/service/inventory/domain/order.go
package domain

import (
	"math"
	"time"

	"github.com/pkg/errors"
)

// LineItem 是订单中的一行: 商品 ID 与数量
type LineItem struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// Order 是订单聚合的根实体。
// 记录由 OrderRegistry 独占持有，外部拿到的永远是副本。
type Order struct {
	ID         string
	Items      []LineItem
	State      State
	CreatedAt  time.Time
	ExpiresAt  time.Time
	ResolvedAt time.Time
}

// NewOrder 工厂函数，校验请求并创建一个处于 PENDING 状态的订单
func NewOrder(id string, items []LineItem, now time.Time, ttl time.Duration) (*Order, error) {
	if id == "" {
		return nil, errors.Wrap(ErrInvalidArgument, "order id is required")
	}
	if err := ValidateItems(items); err != nil {
		return nil, err
	}

	return &Order{
		ID:        id,
		Items:     cloneItems(items),
		State:     StatePending, // 初始状态
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}, nil
}

// ValidateItems 检查行项目非空、商品 ID 非空、数量为正，且数量总和不溢出 int。
// 总和不溢出时，按商品合并后的每一项也不会溢出。
func ValidateItems(items []LineItem) error {
	if len(items) == 0 {
		return errors.Wrap(ErrInvalidArgument, "order must contain at least one item")
	}
	total := 0
	for i, item := range items {
		if item.ProductID == "" {
			return errors.Wrapf(ErrInvalidArgument, "item %d: product id is required", i)
		}
		if item.Quantity <= 0 {
			return errors.Wrapf(ErrInvalidArgument, "item %d: quantity for product %s must be positive, got %d",
				i, item.ProductID, item.Quantity)
		}
		if item.Quantity > math.MaxInt-total {
			return errors.Wrapf(ErrInvalidArgument, "item %d: total quantity overflows", i)
		}
		total += item.Quantity
	}
	return nil
}

// TotalQuantity 返回所有行的数量之和。NewOrder 已保证它不溢出。
func (o Order) TotalQuantity() int {
	total := 0
	for _, item := range o.Items {
		total += item.Quantity
	}
	return total
}

// Clone 返回一个不与原记录共享切片的副本
func (o Order) Clone() Order {
	o.Items = cloneItems(o.Items)
	return o
}

// Demand 把行项目按商品合并，顺序为商品首次出现的顺序。
// 同一商品出现多次时必须按总量判断库存，否则会超卖。
// 调用方需先用 ValidateItems 校验，否则合并结果可能溢出。
func Demand(items []LineItem) ([]string, map[string]int) {
	order := make([]string, 0, len(items))
	totals := make(map[string]int, len(items))
	for _, item := range items {
		if _, seen := totals[item.ProductID]; !seen {
			order = append(order, item.ProductID)
		}
		totals[item.ProductID] += item.Quantity
	}
	return order, totals
}

func cloneItems(items []LineItem) []LineItem {
	if items == nil {
		return nil
	}
	out := make([]LineItem, len(items))
	copy(out, items)
	return out
}
