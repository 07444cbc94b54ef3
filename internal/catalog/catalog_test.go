package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	c := Default()
	require.Equal(t, 5, c.Len())

	ids := make([]string, 0, c.Len())
	for _, p := range c.Products() {
		ids = append(ids, p.ID)
		assert.Equal(t, "USD", p.Currency)
		assert.NotEmpty(t, p.ImageURL)
	}
	assert.Equal(t, []string{"p101", "p102", "p103", "p104", "p105"}, ids)

	p, ok := c.Lookup("p102")
	require.True(t, ok)
	assert.Equal(t, "Vitamina C 1000mg - Frasco x60", p.Name)
	assert.Equal(t, "24.5", p.Price.String())

	_, ok = c.Lookup("p999")
	assert.False(t, ok)
}

func TestProductsIsACopy(t *testing.T) {
	c := Default()
	products := c.Products()
	products[0].Name = "changed"

	p, _ := c.Lookup("p101")
	assert.NotEqual(t, "changed", p.Name)
}

func TestParse(t *testing.T) {
	data := []byte(`
products:
  - id: a1
    name: Jarabe
    price: "4.10"
  - id: a2
    name: Gasas
    price: "0"
    currency: EUR
`)
	c, err := Parse(data, "PYG")
	require.NoError(t, err)
	require.Equal(t, 2, c.Len())

	a1, _ := c.Lookup("a1")
	assert.Equal(t, "PYG", a1.Currency)
	assert.Equal(t, "4.10", a1.Price.StringFixed(2))

	a2, _ := c.Lookup("a2")
	assert.Equal(t, "EUR", a2.Currency)
	assert.True(t, a2.Price.IsZero())
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not yaml", "products: [\n"},
		{"empty", "products: []\n"},
		{"bad price", "products:\n  - {id: a, name: A, price: abc}\n"},
		{"negative price", "products:\n  - {id: a, name: A, price: \"-1\"}\n"},
		{"missing id", "products:\n  - {name: A, price: \"1\"}\n"},
		{"missing name", "products:\n  - {id: a, price: \"1\"}\n"},
		{"duplicate id", "products:\n  - {id: a, name: A, price: \"1\"}\n  - {id: a, name: B, price: \"2\"}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data), "USD")
			assert.Error(t, err)
		})
	}

	_, err := Parse([]byte("products: []\n"), "USD")
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestLoad(t *testing.T) {
	c, err := Load("", "USD")
	require.NoError(t, err)
	assert.Equal(t, Default().Len(), c.Len())

	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte("products:\n  - {id: x, name: X, price: \"2.25\"}\n"), 0o644))
	c, err = Load(path, "USD")
	require.NoError(t, err)
	x, ok := c.Lookup("x")
	require.True(t, ok)
	assert.Equal(t, "2.25", x.Price.String())

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"), "USD")
	assert.ErrorIs(t, err, os.ErrNotExist)
}
