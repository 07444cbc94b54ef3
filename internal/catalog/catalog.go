// Package catalog loads the product catalog served by the storefront backend.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/xiaot623/shopchat/internal/protocol"
)

//go:embed default.yaml
var defaultCatalog []byte

// ErrEmpty is returned for a catalog without products.
var ErrEmpty = errors.New("catalog: no products")

// entry is one product as written in the YAML file. Prices are decimal
// strings so they are never rounded through a float.
type entry struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	ImageURL    string `yaml:"image_url"`
	Price       string `yaml:"price"`
	Currency    string `yaml:"currency"`
	Description string `yaml:"description"`
}

type file struct {
	Products []entry `yaml:"products"`
}

// Catalog is an ordered, read-only product list.
type Catalog struct {
	products []protocol.Product
	index    map[string]int
}

// Default returns the built-in demo catalog.
func Default() *Catalog {
	c, err := Parse(defaultCatalog, "USD")
	if err != nil {
		panic(fmt.Sprintf("catalog: invalid built-in catalog: %v", err))
	}
	return c
}

// Load reads a catalog file. An empty path returns the built-in catalog.
func Load(path, defaultCurrency string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	c, err := Parse(data, defaultCurrency)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Parse decodes a YAML catalog. Products without a currency get
// defaultCurrency.
func Parse(data []byte, defaultCurrency string) (*Catalog, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if len(f.Products) == 0 {
		return nil, ErrEmpty
	}

	c := &Catalog{
		products: make([]protocol.Product, 0, len(f.Products)),
		index:    make(map[string]int, len(f.Products)),
	}
	for i, e := range f.Products {
		price, err := decimal.NewFromString(e.Price)
		if err != nil {
			return nil, fmt.Errorf("product %d (%s): invalid price %q: %w", i, e.ID, e.Price, err)
		}
		currency := e.Currency
		if currency == "" {
			currency = defaultCurrency
		}
		p := protocol.Product{
			ID:          e.ID,
			Name:        e.Name,
			ImageURL:    e.ImageURL,
			Price:       price,
			Currency:    currency,
			Description: e.Description,
		}
		if err := protocol.Validate(p); err != nil {
			return nil, fmt.Errorf("product %d (%s): %w", i, e.ID, err)
		}
		if _, dup := c.index[p.ID]; dup {
			return nil, fmt.Errorf("product %d: duplicate id %s", i, p.ID)
		}
		c.index[p.ID] = len(c.products)
		c.products = append(c.products, p)
	}
	return c, nil
}

// Products returns a copy of the products in file order.
func (c *Catalog) Products() []protocol.Product {
	out := make([]protocol.Product, len(c.products))
	copy(out, c.products)
	return out
}

// Lookup finds a product by id.
func (c *Catalog) Lookup(id string) (protocol.Product, bool) {
	i, ok := c.index[id]
	if !ok {
		return protocol.Product{}, false
	}
	return c.products[i], true
}

// Len returns the number of products.
func (c *Catalog) Len() int {
	return len(c.products)
}
