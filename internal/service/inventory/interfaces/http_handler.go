package interfaces

import (
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"

	"stockhold/internal/pkg/logger"
	"stockhold/internal/service/inventory/application"
	"stockhold/internal/service/inventory/domain"
)

const serviceName = "inventory-service"

// InventoryHandler 封装了 inventory 服务的 HTTP 处理器
type InventoryHandler struct {
	service  *application.ReservationService
	hub      *EventHub
	gatherer prometheus.Gatherer
}

// NewInventoryHandler 创建一个新的 HTTP 处理器实例。hub 为 nil 时不提供 /ws/events。
func NewInventoryHandler(service *application.ReservationService, hub *EventHub, gatherer prometheus.Gatherer) *InventoryHandler {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &InventoryHandler{service: service, hub: hub, gatherer: gatherer}
}

// RegisterRoutes 在 ServeMux 上注册所有路由
func (h *InventoryHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))

	mux.HandleFunc("GET /products", h.listProductsHandler)
	mux.HandleFunc("POST /products", h.registerProductHandler)
	mux.HandleFunc("GET /products/{id}", h.stockHandler)
	mux.HandleFunc("GET /products/{id}/available", h.queryHandler)
	mux.HandleFunc("POST /orders", h.createOrderHandler)
	mux.HandleFunc("GET /orders/{id}", h.getOrderHandler)
	mux.HandleFunc("POST /orders/{id}/confirm", h.confirmOrderHandler)

	if h.hub != nil {
		mux.HandleFunc("/ws/events", h.hub.ServeWs)
	}
}

func (h *InventoryHandler) registerProductHandler(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	var req application.RegisterProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.Wrap(domain.ErrInvalidArgument, "malformed request body"))
		return
	}
	if err := h.service.RegisterProduct(ctx, req.ID, req.Name, req.Count); err != nil {
		writeError(w, err)
		return
	}

	level, err := h.service.Stock(req.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, level)
}

func (h *InventoryHandler) listProductsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.StockLevels())
}

func (h *InventoryHandler) stockHandler(w http.ResponseWriter, r *http.Request) {
	level, err := h.service.Stock(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, level)
}

func (h *InventoryHandler) queryHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	available, err := h.service.Query(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"productId": id, "available": available})
}

func (h *InventoryHandler) createOrderHandler(w http.ResponseWriter, r *http.Request) {
	propagator := otel.GetTextMapPropagator()
	ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	tracer := otel.Tracer(serviceName)
	ctx, span := tracer.Start(ctx, "http.CreateOrder")
	defer span.End()

	var req application.CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		span.SetStatus(codes.Error, "malformed request body")
		writeError(w, errors.Wrap(domain.ErrInvalidArgument, "malformed request body"))
		return
	}
	span.SetAttributes(attribute.String("order.id", req.OrderID))

	orderID, err := h.service.CreateOrder(ctx, req.OrderID, req.Items)
	if err != nil {
		writeError(w, err)
		return
	}

	order, err := h.service.GetOrder(orderID)
	if err != nil {
		writeError(w, err)
		return
	}
	logger.Ctx(ctx).Debug().Str("order_id", orderID).Msg("order accepted over http")
	writeJSON(w, http.StatusCreated, application.ToOrderView(order))
}

func (h *InventoryHandler) confirmOrderHandler(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	tracer := otel.Tracer(serviceName)
	ctx, span := tracer.Start(ctx, "http.ConfirmOrder")
	defer span.End()

	id := r.PathValue("id")
	if err := h.service.ConfirmOrder(ctx, id); err != nil {
		writeError(w, err)
		return
	}

	order, err := h.service.GetOrder(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, application.ToOrderView(order))
}

func (h *InventoryHandler) getOrderHandler(w http.ResponseWriter, r *http.Request) {
	order, err := h.service.GetOrder(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, application.ToOrderView(order))
}

// statusFor 把领域错误映射为 HTTP 状态码
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrDuplicateProduct),
		errors.Is(err, domain.ErrDuplicateOrder),
		errors.Is(err, domain.ErrAlreadyResolved):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrInsufficientStock):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

type errorResponse struct {
	Error     string `json:"error"`
	ProductID string `json:"productId,omitempty"`
	Requested int    `json:"requested,omitempty"`
	Available *int   `json:"available,omitempty"`
	Status    string `json:"status,omitempty"`
}

func writeError(w http.ResponseWriter, err error) {
	resp := errorResponse{Error: err.Error()}

	var insufficient *domain.InsufficientStockError
	if errors.As(err, &insufficient) {
		resp.ProductID = insufficient.ProductID
		resp.Requested = insufficient.Requested
		available := insufficient.Available
		resp.Available = &available
	}
	var resolved *domain.AlreadyResolvedError
	if errors.As(err, &resolved) {
		resp.Status = string(resolved.Status)
	}
	writeJSON(w, statusFor(err), resp)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
