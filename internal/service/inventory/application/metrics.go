// internal/service/inventory/application/metrics.go
package application

import (
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"stockhold/internal/service/inventory/domain"
)

const metricsNamespace = "inventory"

// Metrics 汇总预占服务的 prometheus 指标
type Metrics struct {
	OrdersCreated       prometheus.Counter
	OrdersRejected      *prometheus.CounterVec
	OrdersResolved      *prometheus.CounterVec
	InvariantViolations prometheus.Counter
	StockAvailable      *prometheus.GaugeVec
	StockBlocked        *prometheus.GaugeVec
}

// NewMetrics 在 reg 上注册指标; reg 为 nil 时只创建不注册
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		OrdersCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "orders_created_total",
			Help:      "Orders whose stock was successfully reserved.",
		}),
		OrdersRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "orders_rejected_total",
			Help:      "CreateOrder calls that failed, by reason.",
		}, []string{"reason"}),
		OrdersResolved: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "orders_resolved_total",
			Help:      "Orders that reached a terminal state, by outcome.",
		}, []string{"outcome"}),
		InvariantViolations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "ledger_invariant_violations_total",
			Help:      "Ledger accounting mismatches detected on confirm or release.",
		}),
		StockAvailable: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "stock_available_units",
			Help:      "Units available for reservation.",
		}, []string{"product"}),
		StockBlocked: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "stock_blocked_units",
			Help:      "Units reserved by pending orders.",
		}, []string{"product"}),
	}
}

func (m *Metrics) observeLevel(level domain.StockLevel) {
	m.StockAvailable.WithLabelValues(level.ProductID).Set(float64(level.Available))
	m.StockBlocked.WithLabelValues(level.ProductID).Set(float64(level.Blocked))
}

// rejectReason 把错误映射为有限的标签值
func rejectReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, domain.ErrDuplicateOrder):
		return "duplicate_order"
	default:
		return "internal"
	}
}
