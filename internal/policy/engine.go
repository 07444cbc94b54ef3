// Package policy evaluates storefront cart limits written in Rego.
package policy

import (
	"context"
	"fmt"
	"os"

	"github.com/open-policy-agent/opa/v1/rego"
)

// Query is the rule every cart policy must define. It evaluates to an
// object {"allow": bool, "reason": string}.
const Query = "data.shopchat.cart.decision"

// CartInput is the document a policy sees as input when a product is added.
type CartInput struct {
	ProductID    string  `json:"product_id"`
	Quantity     int     `json:"quantity"`      // units requested
	LineQuantity int     `json:"line_quantity"` // units of the product after the add
	CartItems    int     `json:"cart_items"`    // units in the cart after the add
	CartTotal    float64 `json:"cart_total"`    // cart total after the add
	Currency     string  `json:"currency"`
	UserID       string  `json:"user_id"`
}

// Decision is the result of a policy evaluation.
type Decision struct {
	Allow  bool
	Reason string
}

// Engine is a prepared cart policy.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine prepares a policy module.
func NewEngine(ctx context.Context, module string) (*Engine, error) {
	r := rego.New(
		rego.Query(Query),
		rego.Module("cart_policy.rego", module),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}
	return &Engine{query: query}, nil
}

// Load prepares the policy at path, or DefaultPolicy when path is empty.
func Load(ctx context.Context, path string) (*Engine, error) {
	if path == "" {
		return NewEngine(ctx, DefaultPolicy)
	}
	module, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy: %w", err)
	}
	return NewEngine(ctx, string(module))
}

// Evaluate checks an add-to-cart request. A policy without a decision for
// the input allows it.
func (e *Engine) Evaluate(ctx context.Context, input CartInput) (Decision, error) {
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return Decision{}, fmt.Errorf("failed to evaluate policy: %w", err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return Decision{Allow: true}, nil
	}

	obj, ok := results[0].Expressions[0].Value.(map[string]interface{})
	if !ok {
		return Decision{}, fmt.Errorf("policy decision must be an object, got %T", results[0].Expressions[0].Value)
	}
	allow, ok := obj["allow"].(bool)
	if !ok {
		return Decision{}, fmt.Errorf("policy decision has no boolean allow")
	}
	reason, _ := obj["reason"].(string)
	return Decision{Allow: allow, Reason: reason}, nil
}

// DefaultPolicy limits units per product and the cart total.
const DefaultPolicy = `
package shopchat.cart

max_line_quantity := 10

max_cart_total := 1000

violations contains msg if {
	input.line_quantity > max_line_quantity
	msg := sprintf("Máximo %v unidades por producto.", [max_line_quantity])
}

violations contains msg if {
	input.cart_total > max_cart_total
	msg := sprintf("El total del carrito no puede superar %v %v.", [max_cart_total, input.currency])
}

decision := {
	"allow": count(violations) == 0,
	"reason": concat(" ", sort(violations)),
}
`
