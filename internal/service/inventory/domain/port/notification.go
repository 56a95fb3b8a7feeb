package port

import (
	"context"

	"stockhold/internal/service/inventory/domain"
)

// EventPublisher 是订单生命周期事件的出站端口。
type EventPublisher interface {
	Publish(ctx context.Context, event *domain.OrderEvent) error
}
