// internal/service/inventory/domain/product.go
package domain

// Product 是库存账本中的商品条目，只通过 ID 被外部引用。
type Product struct {
	ID   string
	Name string
}

// StockLevel 是某个商品在三个库存池中的快照。
// Available + Blocked + Consumed 在商品注册后保持不变。
type StockLevel struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	Available int    `json:"available"`
	Blocked   int    `json:"blocked"`
	Consumed  int    `json:"consumed"`
}

// Total 返回三个池之和，即注册时的初始数量
func (l StockLevel) Total() int {
	return l.Available + l.Blocked + l.Consumed
}
