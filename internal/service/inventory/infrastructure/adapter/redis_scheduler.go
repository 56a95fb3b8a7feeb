// internal/service/inventory/infrastructure/adapter/redis_scheduler.go
package adapter

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"stockhold/internal/pkg/logger"
	"stockhold/internal/service/inventory/domain/port"
)

// 原子地取出到期的订单并从有序集合中删除，保证同一个任务只被一个轮询者领取
var claimDueScript = redis.NewScript(`
-- KEYS[1]: 过期任务有序集合, score 为到期时间 (毫秒)
-- ARGV[1]: 当前时间 (毫秒)
-- ARGV[2]: 单次最多领取数量
local ids = redis.call('zrangebyscore', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[2]))
for _, id in ipairs(ids) do
    redis.call('zrem', KEYS[1], id)
end
return ids
`)

// RedisDelayScheduler 基于 Redis 有序集合的延迟队列，实现 port.DelayScheduler。
// 到期时间存在 Redis 中，Run 周期性地领取到期任务并回调 ExpiryHandler。
type RedisDelayScheduler struct {
	client   redis.UniversalClient
	key      string
	interval time.Duration
	batch    int

	mu      sync.RWMutex
	handler port.ExpiryHandler
}

// NewRedisDelayScheduler 创建调度器，interval 为轮询周期，batch 为单次领取上限
func NewRedisDelayScheduler(client redis.UniversalClient, key string, interval time.Duration, batch int) *RedisDelayScheduler {
	if batch <= 0 {
		batch = 100
	}
	return &RedisDelayScheduler{
		client:   client,
		key:      key,
		interval: interval,
		batch:    batch,
	}
}

func (s *RedisDelayScheduler) Register(handler port.ExpiryHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = handler
}

func (s *RedisDelayScheduler) ScheduleExpiry(ctx context.Context, orderID string, deadline time.Time) error {
	err := s.client.ZAdd(ctx, s.key, redis.Z{
		Score:  float64(deadline.UnixMilli()),
		Member: orderID,
	}).Err()
	if err != nil {
		return errors.Wrapf(err, "redis zadd %s", orderID)
	}
	return nil
}

func (s *RedisDelayScheduler) CancelExpiry(ctx context.Context, orderID string) {
	if err := s.client.ZRem(ctx, s.key, orderID).Err(); err != nil {
		// 取消失败无妨，迟到的回调会被状态守卫吞掉
		logger.Ctx(ctx).Warn().Err(err).Str("order_id", orderID).Msg("failed to cancel expiry in redis")
	}
}

// Run 开始轮询，直到 ctx 被取消。这是一个长期运行的方法。
func (s *RedisDelayScheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	logger.Ctx(ctx).Info().Str("key", s.key).Dur("interval", s.interval).Msg("✅ Redis expiry poller started")
	for {
		select {
		case <-ctx.Done():
			logger.Ctx(ctx).Info().Msg("🛑 Redis expiry poller shutting down")
			return nil
		case <-ticker.C:
			if _, err := s.Poll(ctx, time.Now()); err != nil && ctx.Err() == nil {
				logger.Ctx(ctx).Error().Err(err).Msg("expiry poll failed, retrying on next tick")
			}
		}
	}
}

// Poll 领取 now 之前到期的任务并逐个回调，返回处理的数量
func (s *RedisDelayScheduler) Poll(ctx context.Context, now time.Time) (int, error) {
	s.mu.RLock()
	handler := s.handler
	s.mu.RUnlock()
	if handler == nil {
		return 0, errors.New("no expiry handler registered")
	}

	ids, err := claimDueScript.Run(ctx, s.client, []string{s.key}, now.UnixMilli(), s.batch).StringSlice()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, errors.Wrap(err, "claim due expiries")
	}

	for _, id := range ids {
		if err := handler.ExpireOrder(ctx, id); err != nil {
			logger.Ctx(ctx).Error().Err(err).Str("order_id", id).Msg("expiry handler failed")
		}
	}
	return len(ids), nil
}
