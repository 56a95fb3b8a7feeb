// internal/service/inventory/infrastructure/adapter/timer_scheduler.go
package adapter

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/trace"

	"stockhold/internal/pkg/logger"
	"stockhold/internal/service/inventory/domain/port"
)

// ErrSchedulerClosed 调度器关闭后不再接受新任务
var ErrSchedulerClosed = errors.New("scheduler closed")

// TimerScheduler 用 time.AfterFunc 为每个订单安排一次性的过期回调，实现 port.DelayScheduler。
type TimerScheduler struct {
	mu      sync.Mutex
	timers  map[string]*time.Timer
	handler port.ExpiryHandler
	closed  bool

	inflight sync.WaitGroup
}

// NewTimerScheduler 创建进程内调度器
func NewTimerScheduler() *TimerScheduler {
	return &TimerScheduler{timers: make(map[string]*time.Timer)}
}

func (s *TimerScheduler) Register(handler port.ExpiryHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = handler
}

// ScheduleExpiry deadline 已过时回调会立即在后台执行
func (s *TimerScheduler) ScheduleExpiry(ctx context.Context, orderID string, deadline time.Time) error {
	// 只保留链路信息，不继承请求的超时与取消
	fireCtx := trace.ContextWithRemoteSpanContext(context.Background(), trace.SpanContextFromContext(ctx))

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSchedulerClosed
	}
	if s.handler == nil {
		return errors.New("no expiry handler registered")
	}
	if old, ok := s.timers[orderID]; ok {
		old.Stop()
	}
	s.timers[orderID] = time.AfterFunc(time.Until(deadline), func() {
		s.fire(fireCtx, orderID)
	})
	return nil
}

// CancelExpiry 尽力而为，回调可能已经开始执行
func (s *TimerScheduler) CancelExpiry(ctx context.Context, orderID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.timers[orderID]; ok {
		t.Stop()
		delete(s.timers, orderID)
	}
}

// Pending 返回尚未触发的任务数
func (s *TimerScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Close 停止所有未触发的定时器，并等待正在执行的回调结束
func (s *TimerScheduler) Close() {
	s.mu.Lock()
	s.closed = true
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
	s.mu.Unlock()

	s.inflight.Wait()
}

func (s *TimerScheduler) fire(ctx context.Context, orderID string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	delete(s.timers, orderID)
	handler := s.handler
	s.inflight.Add(1)
	s.mu.Unlock()

	defer s.inflight.Done()
	if err := handler.ExpireOrder(ctx, orderID); err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("order_id", orderID).Msg("expiry handler failed")
	}
}
