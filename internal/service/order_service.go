package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"pos-service/internal/models"
	"pos-service/internal/store"
	"pos-service/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var customerPhonePattern = regexp.MustCompile(`^[0-9]{10}$`)

var allowedTransitions = map[string][]string{
	models.OrderStatusPending:   {models.OrderStatusCompleted, models.OrderStatusCancelled},
	models.OrderStatusCompleted: {models.OrderStatusRefunded},
}

// CanTransition reports whether an order may move from one status to another
func CanTransition(from, to string) bool {
	for _, allowed := range allowedTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// ValidPaymentMethod reports whether method is one the POS accepts
func ValidPaymentMethod(method string) bool {
	switch method {
	case models.PaymentMethodCash, models.PaymentMethodCard, models.PaymentMethodWallet:
		return true
	}
	return false
}

// ValidCustomerPhone reports whether phone is exactly ten digits
func ValidCustomerPhone(phone string) bool {
	return customerPhonePattern.MatchString(phone)
}

// OrderService handles order business logic
type OrderService struct {
	store          OrderStore
	idempotency    IdempotencyStore
	eventPublisher OrderEventPublisher
	idemTTL        time.Duration
	now            func() time.Time
	logger         *zap.Logger
}

// NewOrderService creates a new order service. idempotency may be nil, in
// which case duplicate keys are only caught by the order store.
func NewOrderService(
	store OrderStore,
	idempotency IdempotencyStore,
	eventPublisher OrderEventPublisher,
	idemTTL time.Duration,
) *OrderService {
	if idemTTL <= 0 {
		idemTTL = 24 * time.Hour
	}
	return &OrderService{
		store:          store,
		idempotency:    idempotency,
		eventPublisher: eventPublisher,
		idemTTL:        idemTTL,
		now:            time.Now,
		logger:         util.GetLogger(),
	}
}

// OrderItemRequest represents an item in an order
type OrderItemRequest struct {
	ProductID string          `json:"product_id" binding:"required"`
	VariantID string          `json:"variant_id,omitempty"`
	Name      string          `json:"name" binding:"required"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity" binding:"required,min=1"`
	Image     string          `json:"image,omitempty"`
}

// PlaceOrderRequest represents a request to create an order
type PlaceOrderRequest struct {
	Items         []OrderItemRequest `json:"items" binding:"required,min=1,dive"`
	PaymentMethod string             `json:"payment_method" binding:"required,payment_method"`
	CustomerName  string             `json:"customer_name,omitempty"`
	CustomerPhone string             `json:"customer_phone,omitempty" binding:"omitempty,phone"`
	// RequireCustomer is set by the new-order form, which insists on a
	// customer name and a ten digit phone.
	RequireCustomer bool `json:"require_customer,omitempty"`
	// Pending creates the order awaiting fulfilment instead of completed.
	Pending        bool   `json:"pending,omitempty"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// Validate checks the request without touching any store
func (r *PlaceOrderRequest) Validate() error {
	if len(r.Items) == 0 {
		return invalid("an order needs at least one item")
	}
	for i, item := range r.Items {
		if item.ProductID == "" {
			return invalid("item %d has no product", i+1)
		}
		if strings.TrimSpace(item.Name) == "" {
			return invalid("item %d has no name", i+1)
		}
		if item.Quantity < 1 {
			return invalid("item %d quantity must be at least 1", i+1)
		}
		if item.UnitPrice.IsNegative() {
			return invalid("item %d unit price must not be negative", i+1)
		}
	}
	if !ValidPaymentMethod(r.PaymentMethod) {
		return invalid("payment method must be one of cash, card, wallet")
	}
	if r.RequireCustomer {
		if strings.TrimSpace(r.CustomerName) == "" {
			return invalid("customer name is required")
		}
		if !ValidCustomerPhone(r.CustomerPhone) {
			return invalid("customer phone must be exactly 10 digits")
		}
	}
	return nil
}

// StockReserver takes stock for the lines of an order
type StockReserver interface {
	ReserveForOrder(ctx context.Context, items []ReserveItem) error
}

// PlaceOrder writes a new order with all of its items. It does not touch stock.
// A repeated idempotency key returns the order created by the first request.
func (s *OrderService) PlaceOrder(ctx context.Context, tenantID string, req *PlaceOrderRequest) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.PlaceOrder", tenantID)
	order, err := s.place(ctx, tenantID, req, nil)
	util.EndSpan(span, err)
	return order, err
}

// Checkout reserves stock for every line and then places the order. A
// repeated idempotency key returns the original order without reserving
// again. A failed write after the reservation does not give the stock back.
func (s *OrderService) Checkout(ctx context.Context, tenantID string, req *PlaceOrderRequest, stock StockReserver) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.Checkout", tenantID)
	order, err := s.place(ctx, tenantID, req, stock)
	util.EndSpan(span, err)
	return order, err
}

func reserveItems(req *PlaceOrderRequest) []ReserveItem {
	items := make([]ReserveItem, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, ReserveItem{ProductID: it.ProductID, VariantID: it.VariantID, Quantity: it.Quantity})
	}
	return items
}

func (s *OrderService) place(ctx context.Context, tenantID string, req *PlaceOrderRequest, stock StockReserver) (order *models.Order, err error) {
	if err = req.Validate(); err != nil {
		util.OrdersRejectedTotal.WithLabelValues("invalid").Inc()
		return nil, err
	}

	var claimed string
	if req.IdempotencyKey != "" {
		existing, lookupErr := s.store.GetOrderByIdempotencyKey(ctx, tenantID, req.IdempotencyKey)
		if lookupErr != nil {
			err = fmt.Errorf("failed to check idempotency: %w", lookupErr)
			return nil, err
		}
		if existing != nil {
			s.logger.Info("duplicate order request",
				zap.String("tenant_id", tenantID),
				zap.String("idempotency_key", req.IdempotencyKey),
				zap.String("order_id", existing.ID))
			return existing, nil
		}

		if s.idempotency != nil {
			key := fmt.Sprintf("order:%s:%s", tenantID, req.IdempotencyKey)
			ok, claimErr := s.idempotency.ClaimIdempotencyKey(ctx, key, "pending", s.idemTTL)
			if claimErr != nil {
				s.logger.Warn("idempotency claim failed, relying on the order store", zap.Error(claimErr))
			} else if !ok {
				err = fmt.Errorf("%w: an order with this idempotency key is being placed", ErrConflict)
				return nil, err
			} else {
				claimed = key
			}
		}
	}

	release := func() {
		if claimed == "" {
			return
		}
		if relErr := s.idempotency.ReleaseIdempotencyKey(ctx, claimed); relErr != nil {
			s.logger.Warn("failed to release idempotency key", zap.Error(relErr))
		}
	}

	if stock != nil {
		if err = stock.ReserveForOrder(ctx, reserveItems(req)); err != nil {
			release()
			return nil, err
		}
	}

	order = s.buildOrder(tenantID, req)
	if err = s.store.CreateOrder(ctx, order); err != nil {
		if stock != nil {
			s.logger.Error("order failed after stock was reserved",
				zap.String("tenant_id", tenantID),
				zap.String("order_id", order.ID),
				zap.Error(err))
		}
		release()
		if errors.Is(err, store.ErrConflict) && order.IdempotencyKey != nil {
			// lost a race with a request carrying the same key
			existing, lookupErr := s.store.GetOrderByIdempotencyKey(ctx, tenantID, *order.IdempotencyKey)
			if lookupErr == nil && existing != nil {
				err = nil
				return existing, nil
			}
		}
		util.OrdersRejectedTotal.WithLabelValues("db_error").Inc()
		err = fmt.Errorf("failed to create order: %w", err)
		return nil, err
	}

	util.OrdersPlacedTotal.WithLabelValues(order.PaymentMethod, order.Status).Inc()
	s.logger.Info("order placed",
		zap.String("tenant_id", tenantID),
		zap.String("order_id", order.ID),
		zap.String("total", order.Total.StringFixed(2)))

	s.publish(ctx, order, models.EventTypeOrderCreated, "")
	return order, nil
}

func (s *OrderService) buildOrder(tenantID string, req *PlaceOrderRequest) *models.Order {
	order := &models.Order{
		ID:            uuid.New().String(),
		TenantID:      tenantID,
		PaymentMethod: req.PaymentMethod,
		Status:        models.OrderStatusCompleted,
		CustomerName:  strings.TrimSpace(req.CustomerName),
		CustomerPhone: req.CustomerPhone,
	}
	if req.Pending {
		order.Status = models.OrderStatusPending
	}
	if req.IdempotencyKey != "" {
		key := req.IdempotencyKey
		order.IdempotencyKey = &key
	}

	order.Items = make([]models.OrderItem, len(req.Items))
	for i, item := range req.Items {
		var variantID *string
		if item.VariantID != "" {
			v := item.VariantID
			variantID = &v
		}
		order.Items[i] = models.OrderItem{
			ID:        uuid.New().String(),
			OrderID:   order.ID,
			Position:  i,
			ProductID: item.ProductID,
			VariantID: variantID,
			Name:      item.Name,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
			Image:     item.Image,
		}
	}
	order.Subtotal, order.Tax, order.Total = models.OrderTotals(order.Items)
	return order
}

// TransitionStatus moves an order to target if the lifecycle allows it. The
// write only applies if nobody changed the status in between.
func (s *OrderService) TransitionStatus(ctx context.Context, tenantID, orderID, target string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.TransitionStatus", tenantID)
	var err error
	defer func() { util.EndSpan(span, err) }()

	order, err := s.store.GetOrderByID(ctx, tenantID, orderID)
	if err != nil {
		err = translate(err)
		return nil, err
	}

	if !CanTransition(order.Status, target) {
		err = fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, order.Status, target)
		return nil, err
	}

	from := order.Status
	if err = s.store.UpdateOrderStatus(ctx, tenantID, orderID, from, target); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			err = fmt.Errorf("%w: order status changed concurrently", ErrConflict)
			return nil, err
		}
		err = fmt.Errorf("failed to update order status: %w", err)
		return nil, err
	}

	order.Status = target
	order.UpdatedAt = s.now()
	util.OrderTransitionsTotal.WithLabelValues(from, target).Inc()
	s.logger.Info("order status changed",
		zap.String("tenant_id", tenantID),
		zap.String("order_id", orderID),
		zap.String("from", from),
		zap.String("to", target))

	s.publish(ctx, order, models.EventTypeOrderStatusChanged, from)
	return order, nil
}

func (s *OrderService) publish(ctx context.Context, order *models.Order, eventType, from string) {
	if s.eventPublisher == nil {
		return
	}
	event := &models.OrderChangedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: eventType,
			TenantID:  order.TenantID,
			Timestamp: s.now(),
		},
		OrderID:    order.ID,
		FromStatus: from,
		Status:     order.Status,
	}
	if err := s.eventPublisher.PublishOrderChanged(ctx, event); err != nil {
		util.OrderEventsPublishFailed.Inc()
		s.logger.Error("failed to publish order event",
			zap.String("order_id", order.ID),
			zap.String("type", eventType),
			zap.Error(err))
	}
}

// GetOrder retrieves one of the tenant's orders
func (s *OrderService) GetOrder(ctx context.Context, tenantID, orderID string) (*models.Order, error) {
	order, err := s.store.GetOrderByID(ctx, tenantID, orderID)
	if err != nil {
		return nil, translate(err)
	}
	return order, nil
}

// ListOrdersRequest filters ListOrders
type ListOrdersRequest struct {
	Status string    `form:"status"`
	From   time.Time `form:"from" time_format:"2006-01-02"`
	To     time.Time `form:"to" time_format:"2006-01-02"`
	Limit  int       `form:"limit"`
}

// ListOrders retrieves the tenant's orders, newest first
func (s *OrderService) ListOrders(ctx context.Context, tenantID string, req ListOrdersRequest) ([]models.Order, error) {
	filter := store.OrderFilter{From: req.From, To: inclusiveEnd(req.To), Limit: req.Limit}
	if req.Status != "" {
		if _, known := statusNames[req.Status]; !known {
			return nil, invalid("unknown order status %q", req.Status)
		}
		filter.Statuses = []string{req.Status}
	}
	if !filter.From.IsZero() && !filter.To.IsZero() && filter.To.Before(filter.From) {
		return nil, invalid("date range ends before it starts")
	}

	orders, err := s.store.ListOrders(ctx, tenantID, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return orders, nil
}

var statusNames = map[string]struct{}{
	models.OrderStatusPending:   {},
	models.OrderStatusCompleted: {},
	models.OrderStatusCancelled: {},
	models.OrderStatusRefunded:  {},
}

// inclusiveEnd widens a bare date to the last instant of that day
func inclusiveEnd(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
		return t.Add(24*time.Hour - time.Nanosecond)
	}
	return t
}
