package cart

import (
	"math"
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func price(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestAddRemoveScenario(t *testing.T) {
	s := NewStore("u1")

	c, err := s.AddItem("p101", 2, "Ibuprofeno", price("15.99"), "USD")
	require.NoError(t, err)
	require.Len(t, c.Items, 1)
	assert.Equal(t, "p101", c.Items[0].ID)
	assert.Equal(t, 2, c.Items[0].Quantity)
	assert.Equal(t, "31.98", c.Total.StringFixed(2))

	c, err = s.RemoveQuantity("p101", 1)
	require.NoError(t, err)
	require.Len(t, c.Items, 1)
	assert.Equal(t, 1, c.Items[0].Quantity)
	assert.Equal(t, "15.99", c.Total.StringFixed(2))

	c, err = s.RemoveQuantity("p101", 5)
	require.NoError(t, err)
	assert.Empty(t, c.Items)
	assert.Equal(t, "0.00", c.Total.StringFixed(2))
}

func TestAddSameProductMerges(t *testing.T) {
	s := NewStore("u1")
	_, err := s.AddItem("p102", 1, "Vitamina C", price("24.50"), "USD")
	require.NoError(t, err)
	c, err := s.AddItem("p102", 3, "Vitamina C", price("24.50"), "USD")
	require.NoError(t, err)

	require.Len(t, c.Items, 1)
	assert.Equal(t, 4, c.Items[0].Quantity)
	assert.Equal(t, "98.00", c.Total.StringFixed(2))
	assert.Equal(t, 4, s.TotalItemCount())
}

func TestAddKeepsInsertionOrder(t *testing.T) {
	s := NewStore("u1")
	s.AddItem("a", 1, "A", price("1"), "USD")
	s.AddItem("b", 1, "B", price("2"), "USD")
	c, _ := s.AddItem("a", 1, "A", price("1"), "USD")

	require.Len(t, c.Items, 2)
	assert.Equal(t, "a", c.Items[0].ID)
	assert.Equal(t, "b", c.Items[1].ID)
}

func TestAddRejectsInvalidInput(t *testing.T) {
	tests := []struct {
		name     string
		id       string
		quantity int
		price    decimal.Decimal
		want     error
	}{
		{"zero quantity", "p1", 0, price("1"), ErrInvalidQuantity},
		{"negative quantity", "p1", -3, price("1"), ErrInvalidQuantity},
		{"negative price", "p1", 1, price("-0.01"), ErrInvalidPrice},
		{"empty id", "", 1, price("1"), ErrInvalidProduct},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStore("u1")
			s.AddItem("keep", 2, "Keep", price("3.10"), "USD")

			c, err := s.AddItem(tt.id, tt.quantity, "X", tt.price, "USD")
			assert.ErrorIs(t, err, tt.want)
			require.Len(t, c.Items, 1)
			assert.Equal(t, "6.20", c.Total.StringFixed(2))
		})
	}
}

func TestAddRejectsQuantityOverflow(t *testing.T) {
	s := NewStore("u1")
	_, err := s.AddItem("p1", math.MaxInt, "P", price("1"), "USD")
	require.NoError(t, err)

	c, err := s.AddItem("p1", math.MaxInt, "P", price("1"), "USD")
	assert.ErrorIs(t, err, ErrInvalidQuantity)
	require.Len(t, c.Items, 1)
	assert.Equal(t, math.MaxInt, c.Items[0].Quantity)
	assert.True(t, c.Total.IsPositive())

	_, err = s.AddItem("p1", 1, "P", price("1"), "USD")
	assert.ErrorIs(t, err, ErrInvalidQuantity)
	assert.Equal(t, math.MaxInt, s.TotalItemCount())
}

func TestRemoveQuantity(t *testing.T) {
	t.Run("absent product is a no-op", func(t *testing.T) {
		s := NewStore("u1")
		s.AddItem("p1", 1, "P", price("5"), "USD")
		c, err := s.RemoveQuantity("missing", 1)
		require.NoError(t, err)
		assert.Len(t, c.Items, 1)
		assert.Equal(t, "5.00", c.Total.StringFixed(2))
	})

	t.Run("exact quantity removes the line", func(t *testing.T) {
		s := NewStore("u1")
		s.AddItem("p1", 3, "P", price("5"), "USD")
		c, err := s.RemoveQuantity("p1", 3)
		require.NoError(t, err)
		assert.Empty(t, c.Items)
	})

	t.Run("non-positive amount rejected", func(t *testing.T) {
		s := NewStore("u1")
		s.AddItem("p1", 3, "P", price("5"), "USD")
		c, err := s.RemoveQuantity("p1", 0)
		assert.ErrorIs(t, err, ErrInvalidQuantity)
		assert.Equal(t, 3, c.Items[0].Quantity)
	})
}

func TestSetQuantityAndRemoveItem(t *testing.T) {
	s := NewStore("u1")
	s.AddItem("p1", 2, "P", price("1.25"), "USD")
	s.AddItem("p2", 1, "Q", price("10"), "USD")

	c, err := s.SetQuantity("p1", 5)
	require.NoError(t, err)
	assert.Equal(t, 5, c.Items[0].Quantity)
	assert.Equal(t, "16.25", c.Total.StringFixed(2))

	c, err = s.SetQuantity("p1", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, c.Items[0].Quantity)

	c, err = s.SetQuantity("p1", 0)
	require.NoError(t, err)
	require.Len(t, c.Items, 1)
	assert.Equal(t, "p2", c.Items[0].ID)

	c = s.RemoveItem("p2")
	assert.Empty(t, c.Items)
	assert.True(t, c.Total.IsZero())

	c, err = s.SetQuantity("ghost", 4)
	require.NoError(t, err)
	assert.Empty(t, c.Items)
}

func TestReplaceCartEqualsSnapshot(t *testing.T) {
	s := NewStore("u1")
	s.AddItem("p9", 7, "Old", price("1.11"), "USD")

	snapshot := Cart{
		ID:     "123456",
		UserID: "98765",
		Items: []Item{
			{ID: "p101", Name: "Ibuprofeno 400mg", Quantity: 2, UnitPrice: price("12.50"), Currency: "USD"},
		},
		Total: price("25.00"),
	}

	got := s.ReplaceCart(snapshot)
	assert.Equal(t, snapshot, got)
	assert.Equal(t, snapshot, s.Cart())
	assert.Equal(t, 2, s.TotalItemCount())

	// The store keeps its own copy.
	snapshot.Items[0].Quantity = 99
	assert.Equal(t, 2, s.Cart().Items[0].Quantity)
}

func TestCartReturnsCopy(t *testing.T) {
	s := NewStore("u1")
	s.AddItem("p1", 1, "P", price("2"), "USD")
	c := s.Cart()
	c.Items[0].Quantity = 50
	assert.Equal(t, 1, s.Cart().Items[0].Quantity)
}

func TestTotalNeverDrifts(t *testing.T) {
	prices := []string{"0.10", "0.20", "15.99", "24.50", "0.333", "8.99", "1.005"}
	ids := []string{"a", "b", "c", "d"}
	rng := rand.New(rand.NewSource(42))
	s := NewStore("u1")

	for i := 0; i < 2000; i++ {
		id := ids[rng.Intn(len(ids))]
		if rng.Intn(3) == 0 {
			s.RemoveQuantity(id, rng.Intn(4)+1)
		} else {
			p := price(prices[rng.Intn(len(prices))])
			if item, ok := s.Cart().Find(id); ok {
				p = item.UnitPrice
			}
			s.AddItem(id, rng.Intn(5)+1, id, p, "USD")
		}

		c := s.Cart()
		assert.True(t, ComputeTotal(c.Items).Equal(c.Total), "step %d: total %s", i, c.Total)
		for _, item := range c.Items {
			assert.Greater(t, item.Quantity, 0)
		}
	}
}

func TestComputeTotalRoundsAfterSummation(t *testing.T) {
	items := []Item{
		{ID: "a", Quantity: 1, UnitPrice: price("0.004")},
		{ID: "b", Quantity: 1, UnitPrice: price("0.004")},
	}
	// Per-line rounding would give 0.00.
	assert.Equal(t, "0.01", ComputeTotal(items).StringFixed(2))
}
