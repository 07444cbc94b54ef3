package session

import (
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/xiaot623/shopchat/internal/cart"
	"github.com/xiaot623/shopchat/internal/protocol"
)

// Env is the session state a function handler may use. Handlers run with the
// controller lock held and must not call back into the Controller.
type Env struct {
	Cart            *cart.Store
	DefaultCurrency string

	products map[string]protocol.Product
}

// Product looks up a product seen in a carousel during this session.
func (e *Env) Product(id string) (protocol.Product, bool) {
	p, ok := e.products[id]
	return p, ok
}

// FunctionFunc executes a server-directed function call.
type FunctionFunc func(env *Env, call *protocol.FunctionMessage) error

// Functions stores function handlers keyed by function name.
type Functions struct {
	mu       sync.RWMutex
	handlers map[string]FunctionFunc
}

// NewFunctions creates an empty function registry.
func NewFunctions() *Functions {
	return &Functions{
		handlers: make(map[string]FunctionFunc),
	}
}

// DefaultFunctions creates a registry with the built-in handlers. Only
// addToCart is built in; removeFromCart and any other name are ignored.
func DefaultFunctions() *Functions {
	f := NewFunctions()
	f.MustRegister(protocol.FuncAddToCart, AddToCart)
	return f
}

// Register adds a handler for a function name.
func (f *Functions) Register(name string, fn FunctionFunc) error {
	if name == "" {
		return fmt.Errorf("function name is required")
	}
	if fn == nil {
		return fmt.Errorf("handler is required")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.handlers[name]; exists {
		return fmt.Errorf("handler already registered for %s", name)
	}
	f.handlers[name] = fn
	return nil
}

// MustRegister adds a handler or panics.
func (f *Functions) MustRegister(name string, fn FunctionFunc) {
	if err := f.Register(name, fn); err != nil {
		panic(err)
	}
}

// Execute runs the handler for call.Name. handled is false when no handler
// is registered for the name.
func (f *Functions) Execute(env *Env, call *protocol.FunctionMessage) (handled bool, err error) {
	f.mu.RLock()
	fn := f.handlers[call.Name]
	f.mu.RUnlock()
	if fn == nil {
		return false, nil
	}
	return true, fn(env, call)
}

// AddToCart adds the requested product to the session cart. Name, price and
// currency come from the carousel index, then from the call arguments, and
// finally fall back to a placeholder line at zero price.
func AddToCart(env *Env, call *protocol.FunctionMessage) error {
	var args protocol.AddToCartArgs
	if err := protocol.DecodeArgs(call, &args); err != nil {
		return err
	}

	quantity := args.Quantity
	if quantity <= 0 {
		quantity = 1
	}

	name := "Producto " + args.ProductID
	price := decimal.Zero
	currency := env.DefaultCurrency

	if p, ok := env.Product(args.ProductID); ok {
		name = p.Name
		price = p.Price
		if p.Currency != "" {
			currency = p.Currency
		}
	} else {
		if args.Name != "" {
			name = args.Name
		}
		if args.Price != nil {
			price = *args.Price
		}
		if args.Currency != "" {
			currency = args.Currency
		}
	}

	if _, err := env.Cart.AddItem(args.ProductID, quantity, name, price, currency); err != nil {
		return fmt.Errorf("add %s to cart: %w", args.ProductID, err)
	}
	return nil
}
