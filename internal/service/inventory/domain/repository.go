// internal/service/inventory/domain/repository.go
package domain

// StockLedger 定义了库存账本的能力。
// 所有多行操作都必须整体生效或整体不生效。
type StockLedger interface {
	// RegisterProduct 注册商品，available = count, blocked = 0
	RegisterProduct(id, name string, count int) error

	// Available 返回可用数量，只读
	Available(id string) (int, error)

	// Level 返回三个库存池的快照，只读
	Level(id string) (StockLevel, error)

	// Levels 返回全部商品的快照
	Levels() []StockLevel

	// TryReserve 对全部行项目预占，任何一行不满足则不做任何修改
	TryReserve(items []LineItem) error

	// Confirm 把预占量转为永久消耗
	Confirm(items []LineItem) error

	// Release 把预占量归还到可用
	Release(items []LineItem) error
}

// OrderRepository 定义了订单记录的存取与状态流转。
type OrderRepository interface {
	// Insert 原子地检查并插入，ID 重复返回 ErrDuplicateOrder
	Insert(order *Order) error

	// Get 返回订单副本
	Get(id string) (Order, error)

	// Exists 判断订单是否存在
	Exists(id string) bool

	// Transition 比较并设置: 仅当当前状态等于 from 时改为 to。
	// 这是确认与过期互斥的唯一仲裁点。
	Transition(id string, from, to State) (Order, error)
}
