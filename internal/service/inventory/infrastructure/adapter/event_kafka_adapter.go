package adapter

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"

	"stockhold/internal/pkg/mq"
	"stockhold/internal/service/inventory/domain"
)

const eventTypeHeader = "event-type"

// EventKafkaAdapter 实现了 port.EventPublisher，把订单事件写入 Kafka。
// 以订单 ID 作为消息 key，同一订单的事件按顺序落在同一分区。
type EventKafkaAdapter struct {
	writer mq.MessageWriter
}

// NewEventKafkaAdapter 创建一个新的事件生产者适配器。
func NewEventKafkaAdapter(writer mq.MessageWriter) *EventKafkaAdapter {
	return &EventKafkaAdapter{writer: writer}
}

func (a *EventKafkaAdapter) Publish(ctx context.Context, event *domain.OrderEvent) error {
	eventBytes, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "failed to marshal order event")
	}

	err = mq.ProduceMessage(ctx, a.writer, []byte(event.OrderID), eventBytes,
		kafka.Header{Key: eventTypeHeader, Value: []byte(event.Type)})
	if err != nil {
		return errors.Wrapf(err, "produce %s for order %s", event.Type, event.OrderID)
	}
	return nil
}
