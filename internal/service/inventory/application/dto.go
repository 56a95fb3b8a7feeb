// internal/service/inventory/application/dto.go
package application

import (
	"time"

	"stockhold/internal/service/inventory/domain"
)

// CreateOrderRequest 是创建订单用例的输入数据
type CreateOrderRequest struct {
	OrderID string            `json:"orderId"`
	Items   []domain.LineItem `json:"items"`
}

// RegisterProductRequest 是注册商品用例的输入数据
type RegisterProductRequest struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// OrderView 是对外暴露的订单视图
type OrderView struct {
	OrderID    string            `json:"orderId"`
	Status     domain.State      `json:"status"`
	Items      []domain.LineItem `json:"items"`
	CreatedAt  time.Time         `json:"createdAt"`
	ExpiresAt  time.Time         `json:"expiresAt"`
	ResolvedAt *time.Time        `json:"resolvedAt,omitempty"`
}

// ToOrderView 从领域实体转换为视图
func ToOrderView(order domain.Order) *OrderView {
	view := &OrderView{
		OrderID:   order.ID,
		Status:    order.State,
		Items:     order.Items,
		CreatedAt: order.CreatedAt,
		ExpiresAt: order.ExpiresAt,
	}
	if !order.ResolvedAt.IsZero() {
		resolved := order.ResolvedAt
		view.ResolvedAt = &resolved
	}
	return view
}
