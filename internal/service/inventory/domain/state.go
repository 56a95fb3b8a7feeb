// internal/service/inventory/domain/state.go
package domain

// State 定义了订单的生命周期状态
type State string

const (
	StatePending   State = "PENDING"   // 库存已预占，等待确认
	StateConfirmed State = "CONFIRMED" // 已确认，预占库存被永久消耗
	StateExpired   State = "EXPIRED"   // 超时未确认，预占库存已归还
)

// IsTerminal 终态不允许再发生任何流转
func (s State) IsTerminal() bool {
	return s == StateConfirmed || s == StateExpired
}

// CanTransition 只存在两条边: PENDING -> CONFIRMED 与 PENDING -> EXPIRED
func CanTransition(from, to State) bool {
	return from == StatePending && to.IsTerminal()
}
