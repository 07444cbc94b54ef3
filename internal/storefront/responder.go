package storefront

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/xiaot623/shopchat/internal/cart"
	"github.com/xiaot623/shopchat/internal/catalog"
	"github.com/xiaot623/shopchat/internal/policy"
	"github.com/xiaot623/shopchat/internal/protocol"
)

// Reply texts.
const (
	TextWelcome  = "¡Hola! 👋 Soy tu asistente de Punto Farma. ¿En qué puedo ayudarte hoy?"
	TextProducts = "Estos son algunos de nuestros productos más populares. ¿Te interesa alguno? 💊"
	TextUsage    = "Prueba con: productos, agregar <id> [cantidad], quitar <id> o carrito."
)

// TextPolicyUnavailable is sent when the cart policy cannot be evaluated.
const TextPolicyUnavailable = "No pude verificar tu carrito en este momento. Intenta de nuevo."

// CartPolicy decides whether an add-to-cart request is allowed.
type CartPolicy interface {
	Evaluate(ctx context.Context, input policy.CartInput) (policy.Decision, error)
}

// Responder produces deterministic replies to widget messages and keeps the
// server-side copy of each session cart in step with what it tells the widget.
type Responder struct {
	catalog *catalog.Catalog
	policy  CartPolicy
}

// NewResponder creates a Responder over a product catalog. A nil policy
// allows every add.
func NewResponder(c *catalog.Catalog, p CartPolicy) *Responder {
	return &Responder{catalog: c, policy: p}
}

// Reply handles one user message. Cart commands mutate store; the returned
// messages are sent back to the widget in order. changed reports whether
// store was modified.
//
//	add|agregar <id> [qty]   addToCart function call
//	remove|quitar <id>       cart snapshot without the product
//	cart|carrito             cart snapshot
//	anything else            product carousel
func (r *Responder) Reply(ctx context.Context, store *cart.Store, text string) (replies []protocol.Message, changed bool) {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(text)))
	if len(fields) == 0 {
		return nil, false
	}

	switch fields[0] {
	case "add", "agregar":
		return r.add(ctx, store, fields[1:])
	case "remove", "quitar":
		return r.remove(store, fields[1:])
	case "cart", "carrito":
		return []protocol.Message{protocol.NewCart(store.Cart())}, false
	case "hola", "hello", "hi":
		return []protocol.Message{
			protocol.NewText(TextWelcome),
			protocol.NewText(TextUsage),
		}, false
	default:
		return []protocol.Message{
			protocol.NewText(TextProducts),
			protocol.NewCarousel(r.catalog.Products()),
		}, false
	}
}

func textf(format string, a ...any) []protocol.Message {
	return []protocol.Message{protocol.NewText(fmt.Sprintf(format, a...))}
}

func (r *Responder) add(ctx context.Context, store *cart.Store, args []string) ([]protocol.Message, bool) {
	if len(args) == 0 {
		return []protocol.Message{protocol.NewText(TextUsage)}, false
	}
	p, ok := r.catalog.Lookup(args[0])
	if !ok {
		return textf("No encontré el producto %s.", args[0]), false
	}

	quantity := 1
	if len(args) > 1 {
		n, err := strconv.Atoi(args[1])
		if err != nil || n <= 0 {
			return textf("La cantidad %q no es válida.", args[1]), false
		}
		quantity = n
	}

	if r.policy != nil {
		decision, err := r.policy.Evaluate(ctx, checkInput(store.Cart(), p, quantity))
		if err != nil {
			return []protocol.Message{protocol.NewText(TextPolicyUnavailable)}, false
		}
		if !decision.Allow {
			return textf("No pude agregar %s. %s", p.Name, decision.Reason), false
		}
	}

	if _, err := store.AddItem(p.ID, quantity, p.Name, p.Price, p.Currency); err != nil {
		return textf("No pude agregar %s: %v", p.Name, err), false
	}

	price := p.Price
	fn, err := protocol.NewFunction(protocol.FuncAddToCart, protocol.AddToCartArgs{
		ProductID: p.ID,
		Quantity:  quantity,
		UserID:    store.Cart().UserID,
		Name:      p.Name,
		Price:     &price,
		Currency:  p.Currency,
	})
	if err != nil {
		return []protocol.Message{protocol.NewText(err.Error())}, true
	}
	return []protocol.Message{
		protocol.NewText(fmt.Sprintf("Agregué %d × %s a tu carrito. 🛒", quantity, p.Name)),
		fn,
	}, true
}

// checkInput describes the cart as it would be after adding quantity units
// of p.
func checkInput(c cart.Cart, p protocol.Product, quantity int) policy.CartInput {
	line := quantity
	if item, ok := c.Find(p.ID); ok {
		line += item.Quantity
	}
	total := c.Total.Add(p.Price.Mul(decimal.NewFromInt(int64(quantity))))
	currency := p.Currency
	if currency == "" && len(c.Items) > 0 {
		currency = c.Items[0].Currency
	}
	return policy.CartInput{
		ProductID:    p.ID,
		Quantity:     quantity,
		LineQuantity: line,
		CartItems:    c.ItemCount() + quantity,
		CartTotal:    total.InexactFloat64(),
		Currency:     currency,
		UserID:       c.UserID,
	}
}

func (r *Responder) remove(store *cart.Store, args []string) ([]protocol.Message, bool) {
	if len(args) == 0 {
		return []protocol.Message{protocol.NewText(TextUsage)}, false
	}
	if _, ok := store.Cart().Find(args[0]); !ok {
		return textf("El producto %s no está en tu carrito.", args[0]), false
	}
	snapshot := store.RemoveItem(args[0])
	return []protocol.Message{protocol.NewCart(snapshot)}, true
}
