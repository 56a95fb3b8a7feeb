package adapter

import (
	"context"

	"stockhold/internal/pkg/logger"
	"stockhold/internal/service/inventory/domain"
)

// EventLogAdapter 把订单事件写进结构化日志，没有配置 Kafka 时也能看到完整的生命周期
type EventLogAdapter struct{}

func NewEventLogAdapter() *EventLogAdapter { return &EventLogAdapter{} }

func (EventLogAdapter) Publish(ctx context.Context, event *domain.OrderEvent) error {
	logger.Ctx(ctx).Info().
		Str("event_id", event.EventID).
		Str("event", string(event.Type)).
		Str("order_id", event.OrderID).
		Str("status", string(event.Status)).
		Interface("items", event.Items).
		Msg("order event")
	return nil
}
