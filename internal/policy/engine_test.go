package policy

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPolicy(t *testing.T) {
	ctx := context.Background()
	engine, err := NewEngine(ctx, DefaultPolicy)
	require.NoError(t, err)

	tests := []struct {
		name   string
		input  CartInput
		allow  bool
		reason string
	}{
		{
			name:  "within limits",
			input: CartInput{ProductID: "p101", Quantity: 2, LineQuantity: 2, CartItems: 2, CartTotal: 31.98, Currency: "USD"},
			allow: true,
		},
		{
			name:  "line at limit",
			input: CartInput{ProductID: "p101", Quantity: 10, LineQuantity: 10, CartItems: 10, CartTotal: 159.9, Currency: "USD"},
			allow: true,
		},
		{
			name:   "too many units",
			input:  CartInput{ProductID: "p105", Quantity: 5, LineQuantity: 11, CartItems: 11, CartTotal: 98.89, Currency: "USD"},
			reason: "Máximo 10 unidades por producto.",
		},
		{
			name:   "total too high",
			input:  CartInput{ProductID: "p103", Quantity: 1, LineQuantity: 1, CartItems: 40, CartTotal: 1000.01, Currency: "USD"},
			reason: "El total del carrito no puede superar 1000 USD.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := engine.Evaluate(ctx, tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.allow, d.Allow)
			assert.Equal(t, tt.reason, d.Reason)
		})
	}
}

func TestBothViolations(t *testing.T) {
	ctx := context.Background()
	engine, err := NewEngine(ctx, DefaultPolicy)
	require.NoError(t, err)

	d, err := engine.Evaluate(ctx, CartInput{LineQuantity: 50, CartTotal: 5000, Currency: "USD"})
	require.NoError(t, err)
	assert.False(t, d.Allow)
	assert.Contains(t, d.Reason, "Máximo 10 unidades")
	assert.Contains(t, d.Reason, "no puede superar 1000")
}

func TestCustomPolicy(t *testing.T) {
	ctx := context.Background()
	module := `
package shopchat.cart

decision := {"allow": false, "reason": "agotado"} if input.product_id == "p104"
`
	path := filepath.Join(t.TempDir(), "policy.rego")
	require.NoError(t, os.WriteFile(path, []byte(module), 0o644))

	engine, err := Load(ctx, path)
	require.NoError(t, err)

	d, err := engine.Evaluate(ctx, CartInput{ProductID: "p104", Quantity: 1})
	require.NoError(t, err)
	assert.Equal(t, Decision{Allow: false, Reason: "agotado"}, d)

	// No decision for the input: allowed.
	d, err = engine.Evaluate(ctx, CartInput{ProductID: "p101", Quantity: 1})
	require.NoError(t, err)
	assert.True(t, d.Allow)
}

func TestInvalidPolicies(t *testing.T) {
	ctx := context.Background()

	_, err := NewEngine(ctx, "package shopchat.cart\n\ndecision := {")
	assert.Error(t, err)

	_, err = Load(ctx, filepath.Join(t.TempDir(), "missing.rego"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	engine, err := NewEngine(ctx, "package shopchat.cart\n\ndecision := \"allow\"\n")
	require.NoError(t, err)
	_, err = engine.Evaluate(ctx, CartInput{})
	assert.Error(t, err)
}

func TestLoadDefault(t *testing.T) {
	engine, err := Load(context.Background(), "")
	require.NoError(t, err)
	d, err := engine.Evaluate(context.Background(), CartInput{LineQuantity: 1, CartTotal: 1})
	require.NoError(t, err)
	assert.True(t, d.Allow)
}
