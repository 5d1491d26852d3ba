package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Cart is a user's basket. Version is bumped by every committed write and is
// the compare-and-swap token for the next one.
type Cart struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Items     []CartItem
	Total     decimal.Decimal
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CartItem holds the price the product had when it was put in the cart.
type CartItem struct {
	ProductID uuid.UUID
	Quantity  int
	UnitPrice decimal.Decimal
}

func (i CartItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// CartTotal is Σ unitPrice × quantity over items.
func CartTotal(items []CartItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Subtotal())
	}
	return total
}

func NewCart(userID uuid.UUID) *Cart {
	return &Cart{ID: uuid.New(), UserID: userID, Total: decimal.Zero}
}

func (c *Cart) IsEmpty() bool { return len(c.Items) == 0 }

// Item returns the line for productID, or nil.
func (c *Cart) Item(productID uuid.UUID) *CartItem {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			return &c.Items[i]
		}
	}
	return nil
}

// QuantityOf returns how many units of productID the cart already holds.
func (c *Cart) QuantityOf(productID uuid.UUID) int {
	if item := c.Item(productID); item != nil {
		return item.Quantity
	}
	return 0
}

// Add accumulates quantity onto the product's line, or appends a new one, and
// snapshots price as the line's unit price.
func (c *Cart) Add(productID uuid.UUID, quantity int, price decimal.Decimal) {
	if item := c.Item(productID); item != nil {
		item.Quantity += quantity
		item.UnitPrice = price
	} else {
		c.Items = append(c.Items, CartItem{ProductID: productID, Quantity: quantity, UnitPrice: price})
	}
	c.Recalculate()
}

// SetQuantity replaces the quantity of an existing line. It reports false when
// the product is not in the cart.
func (c *Cart) SetQuantity(productID uuid.UUID, quantity int) bool {
	item := c.Item(productID)
	if item == nil {
		return false
	}
	item.Quantity = quantity
	c.Recalculate()
	return true
}

// Remove drops the product's line. It reports false when there was none.
func (c *Cart) Remove(productID uuid.UUID) bool {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
			c.Recalculate()
			return true
		}
	}
	return false
}

func (c *Cart) Clear() {
	c.Items = nil
	c.Recalculate()
}

func (c *Cart) Recalculate() {
	c.Total = CartTotal(c.Items)
}

// Clone returns a deep copy so a failed mutation never leaks into the caller's cart.
func (c *Cart) Clone() *Cart {
	cp := *c
	if c.Items != nil {
		cp.Items = make([]CartItem, len(c.Items))
		copy(cp.Items, c.Items)
	}
	return &cp
}
