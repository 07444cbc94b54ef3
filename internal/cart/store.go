package cart

import (
	"math"

	"github.com/shopspring/decimal"
)

// Store owns the live cart of one widget session. It is not safe for
// concurrent use; the session controller serializes access.
type Store struct {
	cart Cart
}

// NewStore creates an empty cart for the given placeholder user.
func NewStore(userID string) *Store {
	return &Store{
		cart: Cart{
			UserID: userID,
			Items:  []Item{},
			Total:  decimal.Zero,
		},
	}
}

// Cart returns a copy of the current cart.
func (s *Store) Cart() Cart {
	return s.cart.Clone()
}

// AddItem adds quantity units of a product. An existing line accumulates the
// quantity; otherwise a new line is appended.
func (s *Store) AddItem(productID string, quantity int, name string, unitPrice decimal.Decimal, currency string) (Cart, error) {
	if productID == "" {
		return s.Cart(), ErrInvalidProduct
	}
	if quantity <= 0 {
		return s.Cart(), ErrInvalidQuantity
	}
	if unitPrice.IsNegative() {
		return s.Cart(), ErrInvalidPrice
	}
	if item, ok := s.cart.Find(productID); ok && item.Quantity > math.MaxInt-quantity {
		return s.Cart(), ErrInvalidQuantity
	}

	items := make([]Item, 0, len(s.cart.Items)+1)
	found := false
	for _, item := range s.cart.Items {
		if item.ID == productID {
			item.Quantity += quantity
			found = true
		}
		items = append(items, item)
	}
	if !found {
		items = append(items, Item{
			ID:        productID,
			Name:      name,
			Quantity:  quantity,
			UnitPrice: unitPrice,
			Currency:  currency,
		})
	}

	s.setItems(items)
	return s.Cart(), nil
}

// RemoveQuantity decrements a line by amount. A line reaching zero or less is
// dropped. Removing an absent product is a no-op.
func (s *Store) RemoveQuantity(productID string, amount int) (Cart, error) {
	if amount <= 0 {
		return s.Cart(), ErrInvalidQuantity
	}

	items := make([]Item, 0, len(s.cart.Items))
	for _, item := range s.cart.Items {
		if item.ID == productID {
			item.Quantity -= amount
			if item.Quantity <= 0 {
				continue
			}
		}
		items = append(items, item)
	}

	s.setItems(items)
	return s.Cart(), nil
}

// RemoveItem drops a product line regardless of its quantity.
func (s *Store) RemoveItem(productID string) Cart {
	item, ok := s.cart.Find(productID)
	if !ok {
		return s.Cart()
	}
	c, _ := s.RemoveQuantity(productID, item.Quantity)
	return c
}

// SetQuantity moves a line to an absolute quantity by adding or removing the
// difference. quantity <= 0 removes the line. Absent products are ignored
// since there is no name or price to create them from.
func (s *Store) SetQuantity(productID string, quantity int) (Cart, error) {
	if quantity <= 0 {
		return s.RemoveItem(productID), nil
	}
	item, ok := s.cart.Find(productID)
	if !ok {
		return s.Cart(), nil
	}
	diff := quantity - item.Quantity
	switch {
	case diff > 0:
		return s.AddItem(productID, diff, item.Name, item.UnitPrice, item.Currency)
	case diff < 0:
		return s.RemoveQuantity(productID, -diff)
	}
	return s.Cart(), nil
}

// ReplaceCart overwrites the cart with an authoritative snapshot. The snapshot
// is stored as-is, total included.
func (s *Store) ReplaceCart(snapshot Cart) Cart {
	s.cart = snapshot.Clone()
	return s.Cart()
}

// Reset empties the cart for a new session.
func (s *Store) Reset(userID string) Cart {
	s.cart = Cart{UserID: userID, Items: []Item{}, Total: decimal.Zero}
	return s.Cart()
}

// TotalItemCount returns the badge count.
func (s *Store) TotalItemCount() int {
	return s.cart.ItemCount()
}

func (s *Store) setItems(items []Item) {
	s.cart.Items = items
	s.cart.Total = ComputeTotal(items)
}
