// internal/service/inventory/infrastructure/order_registry.go
package infrastructure

import (
	"sync"
	"time"

	"github.com/pkg/errors"

	"stockhold/internal/service/inventory/domain"
)

// MemoryOrderRegistry 是 domain.OrderRepository 的内存实现
type MemoryOrderRegistry struct {
	mu     sync.RWMutex
	orders map[string]*domain.Order
	now    func() time.Time
}

// NewMemoryOrderRegistry 创建订单注册表，now 为空时使用 time.Now
func NewMemoryOrderRegistry(now func() time.Time) *MemoryOrderRegistry {
	if now == nil {
		now = time.Now
	}
	return &MemoryOrderRegistry{
		orders: make(map[string]*domain.Order),
		now:    now,
	}
}

// Insert 检查与插入在同一把锁内完成
func (r *MemoryOrderRegistry) Insert(order *domain.Order) error {
	if order == nil || order.ID == "" {
		return errors.Wrap(domain.ErrInvalidArgument, "order id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.orders[order.ID]; exists {
		return errors.Wrapf(domain.ErrDuplicateOrder, "order %s", order.ID)
	}
	stored := order.Clone()
	r.orders[order.ID] = &stored
	return nil
}

func (r *MemoryOrderRegistry) Get(id string) (domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.orders[id]
	if !ok {
		return domain.Order{}, errors.Wrapf(domain.ErrNotFound, "order %s", id)
	}
	return order.Clone(), nil
}

func (r *MemoryOrderRegistry) Exists(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.orders[id]
	return ok
}

// Transition 只有当前状态等于 from 时才修改。
// 失败时返回 AlreadyResolvedError 和当前快照，不做任何修改。
func (r *MemoryOrderRegistry) Transition(id string, from, to domain.State) (domain.Order, error) {
	if !domain.CanTransition(from, to) {
		return domain.Order{}, errors.Wrapf(domain.ErrInvalidArgument, "illegal transition %s -> %s", from, to)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.orders[id]
	if !ok {
		return domain.Order{}, errors.Wrapf(domain.ErrNotFound, "order %s", id)
	}
	if order.State != from {
		return order.Clone(), &domain.AlreadyResolvedError{OrderID: id, Status: order.State}
	}

	order.State = to
	order.ResolvedAt = r.now()
	return order.Clone(), nil
}

// Count 按状态统计订单数量
func (r *MemoryOrderRegistry) Count(state domain.State) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, order := range r.orders {
		if order.State == state {
			n++
		}
	}
	return n
}
