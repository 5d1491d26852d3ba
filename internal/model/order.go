package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "Pending"
	OrderStatusProcessing OrderStatus = "Processing"
	OrderStatusShipped    OrderStatus = "Shipped"
	OrderStatusDelivered  OrderStatus = "Delivered"
	OrderStatusCancelled  OrderStatus = "Cancelled"
)

const DefaultPaymentMethod = "cod"

func (s OrderStatus) IsValid() bool {
	switch s {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusShipped,
		OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// CanTransitionTo allows one step forward along
// Pending → Processing → Shipped → Delivered, or Cancelled from any
// non-terminal state.
func (s OrderStatus) CanTransitionTo(target OrderStatus) bool {
	switch s {
	case OrderStatusPending:
		return target == OrderStatusProcessing || target == OrderStatusCancelled
	case OrderStatusProcessing:
		return target == OrderStatusShipped || target == OrderStatusCancelled
	case OrderStatusShipped:
		return target == OrderStatusDelivered || target == OrderStatusCancelled
	case OrderStatusDelivered, OrderStatusCancelled:
		return false
	}
	return false
}

func (s OrderStatus) String() string { return string(s) }

type Order struct {
	ID              uuid.UUID
	UserID          uuid.UUID
	Status          OrderStatus
	TotalAmount     decimal.Decimal
	ShippingAddress Address
	PaymentMethod   string
	Items           []OrderItem
	CreatedAt       time.Time
	UpdatedAt       time.Time

	// Populated by admin listings only.
	UserName  string
	UserEmail string
}

type OrderItem struct {
	ID        uuid.UUID
	OrderID   uuid.UUID
	ProductID uuid.UUID
	Quantity  int
	Price     decimal.Decimal
}

// NewOrderFromCart freezes the cart's lines and total into a pending order.
func NewOrderFromCart(cart *Cart, shipping Address, paymentMethod string) *Order {
	if paymentMethod == "" {
		paymentMethod = DefaultPaymentMethod
	}
	order := &Order{
		ID:              uuid.New(),
		UserID:          cart.UserID,
		Status:          OrderStatusPending,
		TotalAmount:     cart.Total,
		ShippingAddress: shipping.WithDefaults(),
		PaymentMethod:   paymentMethod,
		Items:           make([]OrderItem, 0, len(cart.Items)),
	}
	for _, ci := range cart.Items {
		order.Items = append(order.Items, OrderItem{
			ID:        uuid.New(),
			OrderID:   order.ID,
			ProductID: ci.ProductID,
			Quantity:  ci.Quantity,
			Price:     ci.UnitPrice,
		})
	}
	return order
}

type OrderStatusChange struct {
	ID        uuid.UUID
	OrderID   uuid.UUID
	EventID   uuid.UUID
	From      OrderStatus
	To        OrderStatus
	ChangedAt time.Time
}

const (
	OrderEventPlaced        = "order.placed"
	OrderEventStatusChanged = "order.status_changed"
)

// OrderEvent is the message published for every order lifecycle change.
type OrderEvent struct {
	EventID    uuid.UUID   `json:"eventId"`
	Type       string      `json:"type"`
	OrderID    uuid.UUID   `json:"orderId"`
	UserID     uuid.UUID   `json:"userId"`
	From       OrderStatus `json:"from,omitempty"`
	To         OrderStatus `json:"to"`
	OccurredAt time.Time   `json:"occurredAt"`
}
