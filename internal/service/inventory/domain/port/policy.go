package port

import "stockhold/internal/service/inventory/domain"

// AdmissionPolicy 在预占库存之前决定是否受理一个订单。
type AdmissionPolicy interface {
	Admit(orderID string, items []domain.LineItem) (bool, error)
}
