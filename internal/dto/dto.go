package dto

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/flicky/storefront-api/internal/model"
)

// --- Auth ---

type RegisterRequest struct {
	Name     string         `json:"name" binding:"required"`
	Email    string         `json:"email" binding:"required,email"`
	Phone    string         `json:"phone" binding:"required"`
	Password string         `json:"password" binding:"required,min=6"`
	Address  *model.Address `json:"address"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type AuthResponse struct {
	Message string       `json:"message,omitempty"`
	Token   string       `json:"token"`
	User    UserResponse `json:"user"`
}

// UpdateProfileRequest is a partial update: nil fields are left alone.
type UpdateProfileRequest struct {
	Name       *string        `json:"name"`
	Phone      *string        `json:"phone"`
	ProfilePic *string        `json:"profilePic"`
	DOB        *string        `json:"dob"`
	Gender     *string        `json:"gender"`
	Address    *model.Address `json:"address"`
}

type UserResponse struct {
	ID         uuid.UUID     `json:"id"`
	Name       string        `json:"name"`
	Email      string        `json:"email"`
	Phone      string        `json:"phone"`
	ProfilePic string        `json:"profilePic"`
	DOB        string        `json:"dob,omitempty"`
	Gender     string        `json:"gender,omitempty"`
	Address    model.Address `json:"address"`
	Role       string        `json:"role"`
	CreatedAt  time.Time     `json:"createdAt"`
	UpdatedAt  time.Time     `json:"updatedAt"`
}

// --- Product ---

type CreateProductRequest struct {
	Name        string          `json:"name" binding:"required"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	Category    string          `json:"category"`
	Brand       string          `json:"brand"`
	ImageURL    string          `json:"imageUrl"`
}

type UpdateProductRequest struct {
	Name        *string          `json:"name"`
	Description *string          `json:"description"`
	Price       *decimal.Decimal `json:"price"`
	Stock       *int             `json:"stock"`
	Category    *string          `json:"category"`
	Brand       *string          `json:"brand"`
	ImageURL    *string          `json:"imageUrl"`
}

type ListProductsRequest struct {
	Page     int    `form:"page,default=1" binding:"min=1"`
	Limit    int    `form:"limit,default=20" binding:"min=1,max=100"`
	Search   string `form:"search"`
	Category string `form:"category"`
	Brand    string `form:"brand"`
	MinPrice string `form:"minPrice"`
	MaxPrice string `form:"maxPrice"`
	Sort     string `form:"sort,default=created_at" binding:"oneof=name price created_at"`
	Order    string `form:"order,default=desc" binding:"oneof=asc desc"`
}

type ProductResponse struct {
	ID          uuid.UUID       `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	Category    string          `json:"category"`
	Brand       string          `json:"brand"`
	ImageURL    string          `json:"imageUrl"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

type ProductListResponse struct {
	Products []ProductResponse `json:"products"`
	Total    int               `json:"total"`
	Page     int               `json:"page"`
	Limit    int               `json:"limit"`
}

// --- Cart ---

type AddCartItemRequest struct {
	ProductID uuid.UUID `json:"productId" binding:"required"`
	// Quantity defaults to 1 when omitted.
	Quantity *int `json:"quantity"`
}

type UpdateCartItemRequest struct {
	Quantity *int `json:"quantity" binding:"required"`
}

type CartResponse struct {
	ID        uuid.UUID          `json:"id"`
	UserID    uuid.UUID          `json:"userId"`
	Items     []CartItemResponse `json:"items"`
	Total     decimal.Decimal    `json:"total"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

type CartItemResponse struct {
	ProductID uuid.UUID       `json:"productId"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	Product   *CartProduct    `json:"product,omitempty"`
}

// CartProduct is the live catalog view of a cart line. It is omitted when the
// product no longer exists.
type CartProduct struct {
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	ImageURL string          `json:"imageUrl"`
	Stock    int             `json:"stock"`
}

type ClearCartResponse struct {
	Message string       `json:"message"`
	Cart    CartResponse `json:"cart"`
}

// NewCartResponse renders the cart. products may be nil or partial; lines
// without a match carry no product details.
func NewCartResponse(cart *model.Cart, products map[uuid.UUID]*model.Product) CartResponse {
	items := make([]CartItemResponse, 0, len(cart.Items))
	for _, item := range cart.Items {
		line := CartItemResponse{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Subtotal:  item.Subtotal(),
		}
		if p, ok := products[item.ProductID]; ok && p != nil {
			line.Product = &CartProduct{Name: p.Name, Price: p.Price, ImageURL: p.ImageURL, Stock: p.Stock}
		}
		items = append(items, line)
	}
	return CartResponse{ID: cart.ID, UserID: cart.UserID, Items: items, Total: cart.Total, UpdatedAt: cart.UpdatedAt}
}

// --- Order ---

type CreateOrderRequest struct {
	ShippingAddress model.Address    `json:"shippingAddress"`
	PaymentMethod   string           `json:"paymentMethod"`
	Items           []OrderLine      `json:"items"`
	TotalAmount     *decimal.Decimal `json:"totalAmount"`
}

// OrderLine is a line as the client saw it in the cart. Price is optional.
type OrderLine struct {
	ProductID uuid.UUID       `json:"productId"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

type UpdateOrderStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

type OrderResponse struct {
	ID              uuid.UUID           `json:"id"`
	UserID          uuid.UUID           `json:"userId"`
	User            *OrderUserResponse  `json:"user,omitempty"`
	Status          model.OrderStatus   `json:"status"`
	TotalAmount     decimal.Decimal     `json:"totalAmount"`
	ShippingAddress model.Address       `json:"shippingAddress"`
	PaymentMethod   string              `json:"paymentMethod"`
	Items           []OrderItemResponse `json:"items"`
	CreatedAt       time.Time           `json:"createdAt"`
	UpdatedAt       time.Time           `json:"updatedAt"`
}

type OrderUserResponse struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type OrderItemResponse struct {
	ProductID uuid.UUID       `json:"productId"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

type OrderMessageResponse struct {
	Message string        `json:"message"`
	Order   OrderResponse `json:"order"`
}

type OrderStatusChangeResponse struct {
	EventID   uuid.UUID         `json:"eventId"`
	From      model.OrderStatus `json:"from,omitempty"`
	To        model.OrderStatus `json:"to"`
	ChangedAt time.Time         `json:"changedAt"`
}

func NewOrderResponse(o *model.Order) OrderResponse {
	items := make([]OrderItemResponse, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, OrderItemResponse{ProductID: item.ProductID, Quantity: item.Quantity, Price: item.Price})
	}
	resp := OrderResponse{
		ID:              o.ID,
		UserID:          o.UserID,
		Status:          o.Status,
		TotalAmount:     o.TotalAmount,
		ShippingAddress: o.ShippingAddress,
		PaymentMethod:   o.PaymentMethod,
		Items:           items,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
	if o.UserName != "" || o.UserEmail != "" {
		resp.User = &OrderUserResponse{Name: o.UserName, Email: o.UserEmail}
	}
	return resp
}

func NewOrderListResponse(orders []model.Order) []OrderResponse {
	out := make([]OrderResponse, 0, len(orders))
	for i := range orders {
		out = append(out, NewOrderResponse(&orders[i]))
	}
	return out
}

// --- Admin ---

type AnalyticsResponse struct {
	TotalUsers   int64           `json:"totalUsers"`
	TotalOrders  int64           `json:"totalOrders"`
	TotalRevenue decimal.Decimal `json:"totalRevenue"`
}
