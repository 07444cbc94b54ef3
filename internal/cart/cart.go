// Package cart holds the local shopping-cart state mirrored by the chat widget.
package cart

import (
	"errors"

	"github.com/shopspring/decimal"
)

// Item is a single cart line. ID is the product identity.
type Item struct {
	ID        string          `json:"id" validate:"required"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity" validate:"min=1"`
	UnitPrice decimal.Decimal `json:"price" validate:"gte=0"`
	Currency  string          `json:"currency"`
}

// Subtotal returns UnitPrice * Quantity without rounding.
func (i Item) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Cart is the cart state exchanged with the backend.
type Cart struct {
	ID     string          `json:"cart_id" validate:"required"`
	UserID string          `json:"user_id" validate:"required"`
	Items  []Item          `json:"items" validate:"required,dive"`
	Total  decimal.Decimal `json:"total" validate:"gte=0"`
}

// Clone returns a deep copy of the cart.
func (c Cart) Clone() Cart {
	out := c
	if c.Items != nil {
		out.Items = make([]Item, len(c.Items))
		copy(out.Items, c.Items)
	}
	return out
}

// Find returns the item with the given product id.
func (c Cart) Find(productID string) (Item, bool) {
	for _, item := range c.Items {
		if item.ID == productID {
			return item, true
		}
	}
	return Item{}, false
}

// ItemCount returns the sum of all item quantities.
func (c Cart) ItemCount() int {
	n := 0
	for _, item := range c.Items {
		n += item.Quantity
	}
	return n
}

// ComputeTotal sums the line subtotals at full precision and rounds once to
// two decimal places.
func ComputeTotal(items []Item) decimal.Decimal {
	sum := decimal.Zero
	for _, item := range items {
		sum = sum.Add(item.Subtotal())
	}
	return sum.Round(2)
}

// Errors returned by Store operations. A rejected operation leaves the cart
// untouched.
var (
	ErrInvalidQuantity = errors.New("cart: quantity must be positive")
	ErrInvalidPrice    = errors.New("cart: unit price must not be negative")
	ErrInvalidProduct  = errors.New("cart: product id is required")
)
