package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/flicky/storefront-api/internal/model"
	"github.com/flicky/storefront-api/internal/repository"
)

// EventPublisher delivers order lifecycle events to the broker.
type EventPublisher interface {
	Publish(ctx context.Context, event model.OrderEvent) error
}

type CheckoutOptions struct {
	// ValidateStock re-checks every line against current stock before placing the order.
	ValidateStock bool
	// ReserveStock decrements stock in the order transaction.
	ReserveStock bool
	MaxRetries   int
}

// CheckoutInput is the client's side of a checkout. Items and TotalAmount are
// what the client believes the cart holds; when present they must match.
type CheckoutInput struct {
	ShippingAddress model.Address
	PaymentMethod   string
	Items           []model.CartItem
	TotalAmount     *decimal.Decimal
}

type OrderService struct {
	orderRepo   repository.OrderRepository
	cartRepo    repository.CartRepository
	productRepo repository.ProductRepository
	publisher   EventPublisher
	opts        CheckoutOptions
	log         *zap.Logger
}

func NewOrderService(
	orderRepo repository.OrderRepository,
	cartRepo repository.CartRepository,
	productRepo repository.ProductRepository,
	publisher EventPublisher,
	opts CheckoutOptions,
	log *zap.Logger,
) *OrderService {
	if opts.MaxRetries < 1 {
		opts.MaxRetries = 1
	}
	return &OrderService{
		orderRepo:   orderRepo,
		cartRepo:    cartRepo,
		productRepo: productRepo,
		publisher:   publisher,
		opts:        opts,
		log:         log,
	}
}

// Checkout turns the user's cart into a pending order and empties the cart in
// the same transaction.
func (s *OrderService) Checkout(ctx context.Context, userID uuid.UUID, in CheckoutInput) (*model.Order, error) {
	for attempt := 1; ; attempt++ {
		cart, err := s.cartRepo.GetByUserID(ctx, userID)
		if err != nil {
			return nil, storageError("get cart", err)
		}
		if cart == nil || cart.IsEmpty() {
			return nil, ErrEmptyCart
		}
		if !matchesCart(cart, in) {
			return nil, ErrCartChanged
		}
		if s.opts.ValidateStock {
			if err := s.checkStock(ctx, cart); err != nil {
				return nil, err
			}
		}

		order := model.NewOrderFromCart(cart, in.ShippingAddress, in.PaymentMethod)
		cleared := cart.Clone()
		cleared.Clear()

		err = s.orderRepo.Place(ctx, order, cleared, s.opts.ReserveStock)
		switch {
		case err == nil:
			s.publish(ctx, order, "", order.Status)
			return order, nil
		case errors.Is(err, repository.ErrInsufficientStock):
			return nil, newKindError(ErrInsufficientStock, "insufficient stock to place the order")
		case !errors.Is(err, repository.ErrVersionConflict):
			return nil, storageError("place order", err)
		}

		if attempt >= s.opts.MaxRetries {
			return nil, ErrCartBusy
		}
		s.log.Debug("checkout conflict, retrying", zap.Stringer("userID", userID), zap.Int("attempt", attempt))
	}
}

// matchesCart reports whether the client's view of the cart, if it sent one,
// is the cart being checked out.
func matchesCart(cart *model.Cart, in CheckoutInput) bool {
	if in.TotalAmount != nil && !in.TotalAmount.Equal(cart.Total) {
		return false
	}
	if in.Items == nil {
		return true
	}
	if len(in.Items) != len(cart.Items) {
		return false
	}
	seen := make(map[uuid.UUID]bool, len(in.Items))
	for _, want := range in.Items {
		if seen[want.ProductID] {
			return false
		}
		seen[want.ProductID] = true
		got := cart.Item(want.ProductID)
		if got == nil || got.Quantity != want.Quantity {
			return false
		}
		if !want.UnitPrice.IsZero() && !want.UnitPrice.Equal(got.UnitPrice) {
			return false
		}
	}
	return true
}

func (s *OrderService) checkStock(ctx context.Context, cart *model.Cart) error {
	ids := make([]uuid.UUID, 0, len(cart.Items))
	for _, item := range cart.Items {
		ids = append(ids, item.ProductID)
	}
	products, err := s.productRepo.GetByIDs(ctx, ids)
	if err != nil {
		return storageError("get products", err)
	}
	for _, item := range cart.Items {
		product, ok := products[item.ProductID]
		if !ok {
			return ErrProductNotFound
		}
		if product.Stock < item.Quantity {
			return &StockError{ProductID: item.ProductID, Available: product.Stock, Requested: item.Quantity}
		}
	}
	return nil
}

// GetByID returns the order to its owner or to an admin. Anyone else gets
// not found.
func (s *OrderService) GetByID(ctx context.Context, orderID, userID uuid.UUID, isAdmin bool) (*model.Order, error) {
	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, storageError("get order", err)
	}
	if order == nil || (!isAdmin && order.UserID != userID) {
		return nil, ErrOrderNotFound
	}
	return order, nil
}

func (s *OrderService) List(ctx context.Context) ([]model.Order, error) {
	orders, err := s.orderRepo.List(ctx)
	if err != nil {
		return nil, storageError("list orders", err)
	}
	return orders, nil
}

func (s *OrderService) ListByUserID(ctx context.Context, userID uuid.UUID) ([]model.Order, error) {
	orders, err := s.orderRepo.ListByUserID(ctx, userID)
	if err != nil {
		return nil, storageError("list orders", err)
	}
	return orders, nil
}

// UpdateStatus moves an order along its lifecycle. The write only lands if the
// order still has the status the transition was checked against.
func (s *OrderService) UpdateStatus(ctx context.Context, orderID uuid.UUID, status string) (*model.Order, error) {
	target := model.OrderStatus(status)
	if !target.IsValid() {
		return nil, ErrInvalidStatus
	}
	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, storageError("get order", err)
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	return s.transition(ctx, order, target)
}

// Cancel lets a user cancel one of their own orders while it is not terminal.
func (s *OrderService) Cancel(ctx context.Context, orderID, userID uuid.UUID) (*model.Order, error) {
	order, err := s.GetByID(ctx, orderID, userID, false)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, order, model.OrderStatusCancelled)
}

func (s *OrderService) transition(ctx context.Context, order *model.Order, target model.OrderStatus) (*model.Order, error) {
	from := order.Status
	if !from.CanTransitionTo(target) {
		return nil, fmt.Errorf("%w: cannot move order from %s to %s", ErrInvalidTransition, from, target)
	}
	updated, err := s.orderRepo.UpdateStatus(ctx, order.ID, from, target)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return nil, ErrOrderNotFound
	case errors.Is(err, repository.ErrVersionConflict):
		return nil, ErrOrderChanged
	case err != nil:
		return nil, storageError("update order status", err)
	}
	s.publish(ctx, updated, from, target)
	return updated, nil
}

func (s *OrderService) History(ctx context.Context, orderID uuid.UUID) ([]model.OrderStatusChange, error) {
	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, storageError("get order", err)
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	history, err := s.orderRepo.ListStatusHistory(ctx, orderID)
	if err != nil {
		return nil, storageError("list order history", err)
	}
	return history, nil
}

// publish runs after the order change committed; a broker failure is logged
// and does not undo it.
func (s *OrderService) publish(ctx context.Context, order *model.Order, from, to model.OrderStatus) {
	if s.publisher == nil {
		return
	}
	eventType := model.OrderEventStatusChanged
	if from == "" {
		eventType = model.OrderEventPlaced
	}
	event := model.OrderEvent{
		EventID:    uuid.New(),
		Type:       eventType,
		OrderID:    order.ID,
		UserID:     order.UserID,
		From:       from,
		To:         to,
		OccurredAt: time.Now().UTC(),
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.log.Error("publish order event",
			zap.Error(err), zap.String("type", eventType), zap.Stringer("orderID", order.ID))
	}
}
