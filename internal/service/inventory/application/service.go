// internal/service/inventory/application/service.go
package application

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"stockhold/internal/pkg/logger"
	"stockhold/internal/service/inventory/domain"
	"stockhold/internal/service/inventory/domain/port"
)

// DefaultExpiryDelay 是未确认订单保留库存的时长
const DefaultExpiryDelay = 5 * time.Minute

// ReservationService 是预占流程的协调者。
// 它是唯一同时调用账本和订单注册表的组件，创建、确认、过期三条路径在 mu 上互斥。
// 确认与过期之间的最终仲裁仍然是 OrderRepository.Transition: 账本只会在流转成功之后被调用。
type ReservationService struct {
	mu sync.Mutex

	ledger    domain.StockLedger
	orders    domain.OrderRepository
	scheduler port.DelayScheduler

	publisher port.EventPublisher
	policy    port.AdmissionPolicy
	metrics   *Metrics
	tracer    trace.Tracer

	now         func() time.Time
	expiryDelay time.Duration
	strict      bool
}

// Option 配置 ReservationService 的可选依赖
type Option func(*ReservationService)

func WithExpiryDelay(d time.Duration) Option {
	return func(s *ReservationService) { s.expiryDelay = d }
}

func WithClock(now func() time.Time) Option {
	return func(s *ReservationService) { s.now = now }
}

func WithPublisher(p port.EventPublisher) Option {
	return func(s *ReservationService) { s.publisher = p }
}

func WithAdmissionPolicy(p port.AdmissionPolicy) Option {
	return func(s *ReservationService) { s.policy = p }
}

func WithMetrics(m *Metrics) Option {
	return func(s *ReservationService) { s.metrics = m }
}

func WithTracer(t trace.Tracer) Option {
	return func(s *ReservationService) { s.tracer = t }
}

// WithStrictInvariants 账本不变量被破坏时直接 panic，用于调试和测试
func WithStrictInvariants(strict bool) Option {
	return func(s *ReservationService) { s.strict = strict }
}

// NewReservationService 组装协调者，并把自己注册为调度器的到期回调
func NewReservationService(ledger domain.StockLedger, orders domain.OrderRepository, scheduler port.DelayScheduler, opts ...Option) *ReservationService {
	s := &ReservationService{
		ledger:      ledger,
		orders:      orders,
		scheduler:   scheduler,
		tracer:      otel.Tracer("stockhold/inventory"),
		now:         time.Now,
		expiryDelay: DefaultExpiryDelay,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = NewMetrics(nil)
	}
	scheduler.Register(s)
	return s
}

// RegisterProduct 向账本注册商品
func (s *ReservationService) RegisterProduct(ctx context.Context, id, name string, count int) error {
	if err := s.ledger.RegisterProduct(id, name, count); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("product_id", id).Msg("product registration rejected")
		return err
	}
	s.observeProducts(ctx, id)
	logger.Ctx(ctx).Info().Str("product_id", id).Str("name", name).Int("count", count).Msg("Product created")
	return nil
}

// Query 返回商品当前可用数量，不修改任何状态
func (s *ReservationService) Query(productID string) (int, error) {
	return s.ledger.Available(productID)
}

// Stock 返回商品在 available / blocked / consumed 三个池中的数量
func (s *ReservationService) Stock(productID string) (domain.StockLevel, error) {
	return s.ledger.Level(productID)
}

// StockLevels 返回全部商品的库存快照，按商品 ID 排序
func (s *ReservationService) StockLevels() []domain.StockLevel {
	levels := s.ledger.Levels()
	sort.Slice(levels, func(i, j int) bool { return levels[i].ProductID < levels[j].ProductID })
	return levels
}

// GetOrder 返回订单快照
func (s *ReservationService) GetOrder(orderID string) (domain.Order, error) {
	return s.orders.Get(orderID)
}

// CreateOrder 校验请求，一次性预占全部商品，登记订单并安排过期检查。
// 要么完全成功，要么不留下任何状态变化。
func (s *ReservationService) CreateOrder(ctx context.Context, orderID string, items []domain.LineItem) (string, error) {
	ctx, span := s.tracer.Start(ctx, "app.CreateOrder")
	defer span.End()
	span.SetAttributes(
		attribute.String("order.id", orderID),
		attribute.Int("order.lines", len(items)),
	)

	order, err := domain.NewOrder(orderID, items, s.now(), s.expiryDelay)
	if err != nil {
		return "", s.rejectOrder(ctx, span, orderID, err)
	}
	if err := s.admit(order); err != nil {
		return "", s.rejectOrder(ctx, span, orderID, err)
	}

	if err := s.reserveAndRegister(ctx, order); err != nil {
		return "", s.rejectOrder(ctx, span, orderID, err)
	}
	span.AddEvent("Stock blocked and order registered")

	// 调度器可能涉及网络 IO，放在临界区之外
	if err := s.scheduler.ScheduleExpiry(ctx, order.ID, order.ExpiresAt); err != nil {
		return s.rollbackUnscheduled(ctx, span, order, err)
	}
	// 解锁之后、定时器建好之前确认的订单，它的 CancelExpiry 扑了空，这里补上
	if current, err := s.orders.Get(order.ID); err == nil && current.State != domain.StatePending {
		s.scheduler.CancelExpiry(ctx, order.ID)
	}

	s.metrics.OrdersCreated.Inc()
	s.observeItems(ctx, order.Items)
	s.publish(ctx, span, domain.EventOrderCreated, *order)

	logger.Ctx(ctx).Info().
		Str("order_id", order.ID).
		Int("total_quantity", order.TotalQuantity()).
		Time("expires_at", order.ExpiresAt).
		Msg("✅ Order created and inventory blocked")
	return order.ID, nil
}

// reserveAndRegister 在 s.mu 内预占并登记。invariantBroken 可能 panic，必须在解锁后调用。
func (s *ReservationService) reserveAndRegister(ctx context.Context, order *domain.Order) error {
	s.mu.Lock()
	if s.orders.Exists(order.ID) {
		s.mu.Unlock()
		return errors.Wrapf(domain.ErrDuplicateOrder, "order %s", order.ID)
	}
	if err := s.ledger.TryReserve(order.Items); err != nil {
		s.mu.Unlock()
		return err
	}
	insertErr := s.orders.Insert(order)
	var relErr error
	if insertErr != nil {
		relErr = s.ledger.Release(order.Items)
	}
	s.mu.Unlock()

	if relErr != nil {
		s.invariantBroken(ctx, "release after failed insert", order.ID, relErr)
	}
	return insertErr
}

// rollbackUnscheduled 过期检查没能安排上时撤销订单，否则预占的库存将永远无法归还
func (s *ReservationService) rollbackUnscheduled(ctx context.Context, span trace.Span, order *domain.Order, cause error) (string, error) {
	err := errors.Wrapf(cause, "schedule expiry for order %s", order.ID)
	span.RecordError(err)

	s.mu.Lock()
	rolledBack, tErr := s.orders.Transition(order.ID, domain.StatePending, domain.StateExpired)
	var relErr error
	if tErr == nil {
		relErr = s.ledger.Release(rolledBack.Items)
	}
	s.mu.Unlock()

	if tErr != nil {
		// 在调度失败之前订单已经被确认，库存已有归宿
		logger.Ctx(ctx).Warn().Err(err).Str("order_id", order.ID).Msg("expiry scheduling failed after order was resolved")
		return order.ID, nil
	}
	if relErr != nil {
		s.invariantBroken(ctx, "release after failed scheduling", order.ID, relErr)
	}
	s.observeItems(ctx, order.Items)
	s.metrics.OrdersRejected.WithLabelValues(rejectReason(err)).Inc()
	span.SetStatus(codes.Error, "Failed to schedule expiry")
	logger.Ctx(ctx).Error().Err(err).Str("order_id", order.ID).Msg("order rolled back: expiry could not be scheduled")
	return "", err
}

// ConfirmOrder 把 PENDING 订单改为 CONFIRMED，并永久消耗预占库存。
// 订单不存在返回 ErrNotFound，已确认或已过期返回 ErrAlreadyResolved。
func (s *ReservationService) ConfirmOrder(ctx context.Context, orderID string) error {
	ctx, span := s.tracer.Start(ctx, "app.ConfirmOrder")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID))

	s.mu.Lock()
	order, err := s.orders.Transition(orderID, domain.StatePending, domain.StateConfirmed)
	if err != nil {
		s.mu.Unlock()
		span.RecordError(err)
		span.SetStatus(codes.Error, "Order cannot be confirmed")
		logger.Ctx(ctx).Warn().Err(err).Str("order_id", orderID).Msg("Order not found or already resolved")
		return err
	}
	ledgerErr := s.ledger.Confirm(order.Items)
	s.mu.Unlock()

	if ledgerErr != nil {
		s.invariantBroken(ctx, "confirm", orderID, ledgerErr)
		span.RecordError(ledgerErr)
		span.SetStatus(codes.Error, "Ledger invariant violated on confirm")
		return ledgerErr
	}

	s.scheduler.CancelExpiry(ctx, orderID)
	s.metrics.OrdersResolved.WithLabelValues("confirmed").Inc()
	s.observeItems(ctx, order.Items)
	s.publish(ctx, span, domain.EventOrderConfirmed, order)

	logger.Ctx(ctx).Info().Str("order_id", orderID).Msg("✅ Order confirmed and inventory permanently reduced")
	return nil
}

// ExpireOrder 是到期回调: 只有把 PENDING 改为 EXPIRED 成功时才归还库存。
// 订单已被确认或已过期是正常的竞争结果，静默返回。
func (s *ReservationService) ExpireOrder(ctx context.Context, orderID string) error {
	ctx, span := s.tracer.Start(ctx, "app.ExpireOrder", trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID))

	s.mu.Lock()
	order, err := s.orders.Transition(orderID, domain.StatePending, domain.StateExpired)
	if err != nil {
		s.mu.Unlock()
		if errors.Is(err, domain.ErrAlreadyResolved) || errors.Is(err, domain.ErrNotFound) {
			span.AddEvent("ExpiryNoop")
			logger.Ctx(ctx).Debug().Err(err).Str("order_id", orderID).Msg("expiry fired for resolved order, nothing to do")
			return nil
		}
		span.RecordError(err)
		return err
	}
	ledgerErr := s.ledger.Release(order.Items)
	s.mu.Unlock()

	if ledgerErr != nil {
		s.invariantBroken(ctx, "release", orderID, ledgerErr)
		span.RecordError(ledgerErr)
		span.SetStatus(codes.Error, "Ledger invariant violated on release")
		return ledgerErr
	}

	s.metrics.OrdersResolved.WithLabelValues("expired").Inc()
	s.observeItems(ctx, order.Items)
	s.publish(ctx, span, domain.EventOrderExpired, order)

	logger.Ctx(ctx).Warn().Str("order_id", orderID).Msg("Order was not confirmed in time. Inventory released back.")
	return nil
}

func (s *ReservationService) admit(order *domain.Order) error {
	if s.policy == nil {
		return nil
	}
	ok, err := s.policy.Admit(order.ID, order.Items)
	if err != nil {
		return errors.Wrapf(err, "evaluate admission policy for order %s", order.ID)
	}
	if !ok {
		return errors.Wrapf(domain.ErrInvalidArgument, "order %s rejected by admission policy", order.ID)
	}
	return nil
}

func (s *ReservationService) rejectOrder(ctx context.Context, span trace.Span, orderID string, err error) error {
	reason := rejectReason(err)
	s.metrics.OrdersRejected.WithLabelValues(reason).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, "Order creation rejected")
	logger.Ctx(ctx).Warn().Err(err).Str("order_id", orderID).Str("reason", reason).Msg("Order creation rejected")
	return err
}

// invariantBroken 账本记账不一致意味着状态已经丢失，不能静默修正
func (s *ReservationService) invariantBroken(ctx context.Context, op, orderID string, err error) {
	s.metrics.InvariantViolations.Inc()
	logger.Ctx(ctx).Error().Err(err).Str("op", op).Str("order_id", orderID).Msg("🚨 CRITICAL: ledger invariant violated")
	if s.strict {
		panic(errors.Wrapf(err, "%s for order %s", op, orderID))
	}
}

func (s *ReservationService) publish(ctx context.Context, span trace.Span, eventType domain.EventType, order domain.Order) {
	if s.publisher == nil {
		return
	}
	event := domain.NewOrderEvent(eventType, order, s.now())
	if span.SpanContext().HasTraceID() {
		event.TraceID = span.SpanContext().TraceID().String()
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		span.RecordError(err)
		logger.Ctx(ctx).Warn().Err(err).Str("order_id", order.ID).Str("event", string(eventType)).Msg("failed to publish order event")
	}
}

func (s *ReservationService) observeItems(ctx context.Context, items []domain.LineItem) {
	ids, _ := domain.Demand(items)
	s.observeProducts(ctx, ids...)
}

func (s *ReservationService) observeProducts(ctx context.Context, ids ...string) {
	for _, id := range ids {
		level, err := s.ledger.Level(id)
		if err != nil {
			logger.Ctx(ctx).Debug().Err(err).Str("product_id", id).Msg("skip stock gauge update")
			continue
		}
		s.metrics.observeLevel(level)
	}
}
