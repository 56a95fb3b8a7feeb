package port

import (
	"context"
	"time"
)

// ExpiryHandler 由应用服务实现，调度器在订单到期时回调它。
type ExpiryHandler interface {
	ExpireOrder(ctx context.Context, orderID string) error
}

// DelayScheduler 是延迟任务调度器的出站端口。
// 取消是尽力而为的: 迟到的回调必须由状态流转守卫自行变成空操作。
type DelayScheduler interface {
	// Register 安装到期回调，必须在 ScheduleExpiry 之前调用
	Register(handler ExpiryHandler)

	// ScheduleExpiry 安排在 deadline 触发一次订单过期检查
	ScheduleExpiry(ctx context.Context, orderID string, deadline time.Time) error

	// CancelExpiry 取消尚未触发的过期检查
	CancelExpiry(ctx context.Context, orderID string)
}
