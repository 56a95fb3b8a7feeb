package adapter

import (
	"context"

	"github.com/pkg/errors"

	"stockhold/internal/service/inventory/domain"
	"stockhold/internal/service/inventory/domain/port"
)

// MultiPublisher 把同一个事件依次投递给多个下游，某个下游失败不影响其余下游
type MultiPublisher struct {
	publishers []port.EventPublisher
}

func NewMultiPublisher(publishers ...port.EventPublisher) *MultiPublisher {
	out := make([]port.EventPublisher, 0, len(publishers))
	for _, p := range publishers {
		if p != nil {
			out = append(out, p)
		}
	}
	return &MultiPublisher{publishers: out}
}

// Publish 返回第一个错误，其余错误只计数
func (m *MultiPublisher) Publish(ctx context.Context, event *domain.OrderEvent) error {
	var first error
	failed := 0
	for _, p := range m.publishers {
		if err := p.Publish(ctx, event); err != nil {
			failed++
			if first == nil {
				first = err
			}
		}
	}
	if first != nil {
		return errors.Wrapf(first, "%d of %d event sinks failed", failed, len(m.publishers))
	}
	return nil
}
