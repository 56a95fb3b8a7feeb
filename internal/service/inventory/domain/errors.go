// internal/service/inventory/domain/errors.go
package domain

import (
	"fmt"

	"github.com/pkg/errors"
)

// 错误分类。调用方统一使用 errors.Is 判断类别，具体上下文由 Wrap 携带。
var (
	ErrNotFound           = errors.New("not found")
	ErrDuplicateProduct   = errors.New("duplicate product")
	ErrDuplicateOrder     = errors.New("duplicate order")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrAlreadyResolved    = errors.New("order already resolved")
	ErrInvariantViolation = errors.New("ledger invariant violation")
)

// InsufficientStockError 指出预占失败时第一个库存不足的商品。
type InsufficientStockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// AlreadyResolvedError 在状态比较失败时返回，带上订单当前状态便于排查。
type AlreadyResolvedError struct {
	OrderID string
	Status  State
}

func (e *AlreadyResolvedError) Error() string {
	return fmt.Sprintf("order %s already resolved: status is %s", e.OrderID, e.Status)
}

func (e *AlreadyResolvedError) Is(target error) bool {
	return target == ErrAlreadyResolved
}
