// internal/service/inventory/domain/event.go
package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventType 订单生命周期事件类型
type EventType string

const (
	EventOrderCreated   EventType = "order.created"
	EventOrderConfirmed EventType = "order.confirmed"
	EventOrderExpired   EventType = "order.expired"
)

// OrderEvent 在订单创建、确认、过期后发布
type OrderEvent struct {
	EventID    string     `json:"eventId"`
	TraceID    string     `json:"traceId,omitempty"`
	Type       EventType  `json:"type"`
	OrderID    string     `json:"orderId"`
	Status     State      `json:"status"`
	Items      []LineItem `json:"items"`
	OccurredAt time.Time  `json:"occurredAt"`
}

// NewOrderEvent 根据订单当前快照构造事件
func NewOrderEvent(eventType EventType, order Order, at time.Time) *OrderEvent {
	return &OrderEvent{
		EventID:    uuid.New().String(),
		Type:       eventType,
		OrderID:    order.ID,
		Status:     order.State,
		Items:      cloneItems(order.Items),
		OccurredAt: at,
	}
}
