// internal/service/inventory/infrastructure/ledger.go
package infrastructure

import (
	"sync"

	"github.com/pkg/errors"

	"stockhold/internal/service/inventory/domain"
)

type stockEntry struct {
	product   domain.Product
	available int
	blocked   int
	consumed  int
}

func (e *stockEntry) level() domain.StockLevel {
	return domain.StockLevel{
		ProductID: e.product.ID,
		Name:      e.product.Name,
		Available: e.available,
		Blocked:   e.blocked,
		Consumed:  e.consumed,
	}
}

// MemoryStockLedger 是 domain.StockLedger 的内存实现。
// 整个账本只有一把锁，多行预占、确认、释放都在同一个临界区内完成，
// 任何观察者都看不到只调整了一部分行的中间状态。
type MemoryStockLedger struct {
	mu    sync.Mutex
	stock map[string]*stockEntry
}

// NewMemoryStockLedger 创建一个空账本
func NewMemoryStockLedger() *MemoryStockLedger {
	return &MemoryStockLedger{stock: make(map[string]*stockEntry)}
}

// RegisterProduct 注册商品。重复注册返回 ErrDuplicateProduct，不覆盖原有库存。
func (l *MemoryStockLedger) RegisterProduct(id, name string, count int) error {
	if id == "" {
		return errors.Wrap(domain.ErrInvalidArgument, "product id is required")
	}
	if count < 0 {
		return errors.Wrapf(domain.ErrInvalidArgument, "product %s: count must be non-negative, got %d", id, count)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.stock[id]; exists {
		return errors.Wrapf(domain.ErrDuplicateProduct, "product %s", id)
	}
	l.stock[id] = &stockEntry{
		product:   domain.Product{ID: id, Name: name},
		available: count,
	}
	return nil
}

// Available 返回可用数量
func (l *MemoryStockLedger) Available(id string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.stock[id]
	if !ok {
		return 0, errors.Wrapf(domain.ErrNotFound, "product %s", id)
	}
	return entry.available, nil
}

// Level 返回商品的库存快照
func (l *MemoryStockLedger) Level(id string) (domain.StockLevel, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.stock[id]
	if !ok {
		return domain.StockLevel{}, errors.Wrapf(domain.ErrNotFound, "product %s", id)
	}
	return entry.level(), nil
}

// Levels 返回全部商品的快照，顺序不保证
func (l *MemoryStockLedger) Levels() []domain.StockLevel {
	l.mu.Lock()
	defer l.mu.Unlock()

	levels := make([]domain.StockLevel, 0, len(l.stock))
	for _, entry := range l.stock {
		levels = append(levels, entry.level())
	}
	return levels
}

// TryReserve 先对预占前的快照检查所有行，全部满足后才一次性修改。
// 未知商品优先于库存不足: 先确认所有商品都存在，再逐个比较可用量。
func (l *MemoryStockLedger) TryReserve(items []domain.LineItem) error {
	if err := domain.ValidateItems(items); err != nil {
		return err
	}
	ids, totals := domain.Demand(items)

	l.mu.Lock()
	defer l.mu.Unlock()

	for _, id := range ids {
		if _, ok := l.stock[id]; !ok {
			return errors.Wrapf(domain.ErrNotFound, "product %s", id)
		}
	}
	for _, id := range ids {
		entry := l.stock[id]
		if totals[id] > entry.available {
			return &domain.InsufficientStockError{
				ProductID: id,
				Requested: totals[id],
				Available: entry.available,
			}
		}
	}

	for _, id := range ids {
		entry := l.stock[id]
		entry.available -= totals[id]
		entry.blocked += totals[id]
	}
	return nil
}

// Confirm 把预占量永久消耗掉。available 在预占时已经扣减过，这里不再改动。
func (l *MemoryStockLedger) Confirm(items []domain.LineItem) error {
	ids, totals := domain.Demand(items)

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.checkBlocked(ids, totals); err != nil {
		return err
	}
	for _, id := range ids {
		entry := l.stock[id]
		entry.blocked -= totals[id]
		entry.consumed += totals[id]
	}
	return nil
}

// Release 撤销预占，把数量归还到 available
func (l *MemoryStockLedger) Release(items []domain.LineItem) error {
	ids, totals := domain.Demand(items)

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.checkBlocked(ids, totals); err != nil {
		return err
	}
	for _, id := range ids {
		entry := l.stock[id]
		entry.blocked -= totals[id]
		entry.available += totals[id]
	}
	return nil
}

// checkBlocked 调用方必须持有 l.mu
func (l *MemoryStockLedger) checkBlocked(ids []string, totals map[string]int) error {
	for _, id := range ids {
		entry, ok := l.stock[id]
		if !ok {
			return errors.Wrapf(domain.ErrInvariantViolation, "product %s is not registered", id)
		}
		if entry.blocked < totals[id] {
			return errors.Wrapf(domain.ErrInvariantViolation, "product %s: blocked %d < requested %d",
				id, entry.blocked, totals[id])
		}
	}
	return nil
}
