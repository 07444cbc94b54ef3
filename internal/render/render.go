// Package render prints chat transcript entries and the cart to a terminal.
package render

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/leekchan/accounting"
	"github.com/shopspring/decimal"

	"github.com/xiaot623/shopchat/internal/cart"
	"github.com/xiaot623/shopchat/internal/protocol"
	"github.com/xiaot623/shopchat/internal/session"
	"github.com/xiaot623/shopchat/internal/transcript"
)

// currencySymbols maps ISO codes to display symbols. Unknown codes are
// printed as a prefix.
var currencySymbols = map[string]string{
	"USD": "$",
	"EUR": "€",
	"GBP": "£",
	"PYG": "₲",
	"ARS": "AR$",
	"MXN": "MX$",
}

// zeroDecimalCurrencies are shown without cents.
var zeroDecimalCurrencies = map[string]bool{
	"PYG": true,
	"JPY": true,
}

// Renderer writes a human-readable view of a chat session.
type Renderer struct {
	mu         sync.Mutex
	w          io.Writer
	formatters map[string]*accounting.Accounting
}

// New creates a Renderer writing to w.
func New(w io.Writer) *Renderer {
	return &Renderer{
		w:          w,
		formatters: make(map[string]*accounting.Accounting),
	}
}

// Money formats an amount in the given currency, e.g. "$1,234.50".
func (r *Renderer) Money(amount decimal.Decimal, currency string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.money(amount, currency)
}

func (r *Renderer) money(amount decimal.Decimal, currency string) string {
	currency = strings.ToUpper(currency)
	ac, ok := r.formatters[currency]
	if !ok {
		symbol, known := currencySymbols[currency]
		if !known {
			symbol = currency + " "
		}
		precision := 2
		if zeroDecimalCurrencies[currency] {
			precision = 0
		}
		ac = accounting.DefaultAccounting(symbol, precision)
		if currency == "PYG" {
			ac.SetThousandSeparator(".")
			ac.SetDecimalSeparator(",")
		}
		r.formatters[currency] = ac
	}
	return ac.FormatMoneyDecimal(amount)
}

// Update renders one session update. State changes print a status line;
// cart updates are not printed since the cart is shown on demand.
func (r *Renderer) Update(u session.Update) {
	switch u.Kind {
	case session.UpdateTranscript:
		r.Entry(u.Entry)
	case session.UpdateState:
		r.printf("· %s\n", strings.ToLower(string(u.State)))
	}
}

// Entry renders one transcript entry.
func (r *Renderer) Entry(e transcript.Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prefix := fmt.Sprintf("[%s] %s", e.Timestamp.Format("15:04"), senderLabel(e.Sender))
	switch m := e.Payload.(type) {
	case *protocol.TextMessage:
		fmt.Fprintf(r.w, "%s: %s\n", prefix, m.Message)

	case *protocol.CarouselMessage:
		fmt.Fprintf(r.w, "%s: %d productos\n", prefix, len(m.Products))
		for _, p := range m.Products {
			fmt.Fprintf(r.w, "    • %-6s %s  %s\n", p.ID, p.Name, r.money(p.Price, p.Currency))
		}

	case *protocol.CartMessage:
		fmt.Fprintf(r.w, "%s: carrito actualizado\n", prefix)
		r.writeCart(m.Cart)

	case *protocol.FunctionMessage:
		fmt.Fprintf(r.w, "%s: ⚙ %s %s\n", prefix, m.Name, string(m.Args))
	}
}

// Cart renders the cart with its badge count and total.
func (r *Renderer) Cart(c cart.Cart) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writeCart(c)
}

func (r *Renderer) writeCart(c cart.Cart) {
	if len(c.Items) == 0 {
		fmt.Fprintln(r.w, "    🛒 Carrito vacío")
		return
	}
	fmt.Fprintf(r.w, "    🛒 Carrito (%d)\n", c.ItemCount())
	currency := ""
	for _, item := range c.Items {
		if currency == "" {
			currency = item.Currency
		}
		fmt.Fprintf(r.w, "      %-6s %s × %d  %s\n",
			item.ID, item.Name, item.Quantity, r.money(item.Subtotal(), item.Currency))
	}
	fmt.Fprintf(r.w, "      Total: %s\n", r.money(c.Total, currency))
}

func (r *Renderer) printf(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.w, format, args...)
}

func senderLabel(s transcript.Sender) string {
	if s == transcript.SenderUser {
		return "tú"
	}
	return "bot"
}
