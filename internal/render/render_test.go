package render

import (
	"bytes"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/xiaot623/shopchat/internal/cart"
	"github.com/xiaot623/shopchat/internal/protocol"
	"github.com/xiaot623/shopchat/internal/session"
	"github.com/xiaot623/shopchat/internal/transcript"
)

func TestMoney(t *testing.T) {
	r := New(&bytes.Buffer{})

	tests := []struct {
		amount   string
		currency string
		want     string
	}{
		{"15.99", "USD", "$15.99"},
		{"1234.5", "usd", "$1,234.50"},
		{"0", "USD", "$0.00"},
		{"18.75", "EUR", "€18.75"},
		{"150000", "PYG", "₲150.000"},
		{"9.5", "CHF", "CHF 9.50"},
	}
	for _, tt := range tests {
		t.Run(tt.currency+" "+tt.amount, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Money(decimal.RequireFromString(tt.amount), tt.currency))
		})
	}
}

func at(hour, minute int) time.Time {
	return time.Date(2026, 3, 14, hour, minute, 0, 0, time.Local)
}

func TestEntryText(t *testing.T) {
	var buf bytes.Buffer
	r := New(&buf)

	r.Entry(transcript.Entry{Sender: transcript.SenderUser, Payload: protocol.NewText("hola"), Timestamp: at(9, 5)})
	r.Entry(transcript.Entry{Sender: transcript.SenderBot, Payload: protocol.NewText("¡Hola!"), Timestamp: at(9, 6)})

	assert.Equal(t, "[09:05] tú: hola\n[09:06] bot: ¡Hola!\n", buf.String())
}

func TestEntryCarouselAndFunction(t *testing.T) {
	var buf bytes.Buffer
	r := New(&buf)

	carousel := protocol.NewCarousel([]protocol.Product{
		{ID: "p101", Name: "Ibuprofeno 400mg", Price: decimal.RequireFromString("15.99"), Currency: "USD"},
	})
	r.Entry(transcript.Entry{Sender: transcript.SenderBot, Payload: carousel, Timestamp: at(10, 0)})

	fn, err := protocol.NewFunction(protocol.FuncAddToCart, map[string]any{"product_id": "p101"})
	assert.NoError(t, err)
	r.Entry(transcript.Entry{Sender: transcript.SenderBot, Payload: fn, Timestamp: at(10, 1)})

	out := buf.String()
	assert.Contains(t, out, "[10:00] bot: 1 productos\n")
	assert.Contains(t, out, "p101")
	assert.Contains(t, out, "Ibuprofeno 400mg  $15.99")
	assert.Contains(t, out, `[10:01] bot: ⚙ addToCart {"product_id":"p101"}`)
}

func TestCart(t *testing.T) {
	var buf bytes.Buffer
	r := New(&buf)

	r.Cart(cart.Cart{})
	assert.Equal(t, "    🛒 Carrito vacío\n", buf.String())

	buf.Reset()
	items := []cart.Item{
		{ID: "p101", Name: "Ibuprofeno", Quantity: 2, UnitPrice: decimal.RequireFromString("15.99"), Currency: "USD"},
		{ID: "p105", Name: "Alcohol en Gel", Quantity: 1, UnitPrice: decimal.RequireFromString("8.99"), Currency: "USD"},
	}
	r.Cart(cart.Cart{ID: "c1", UserID: "u1", Items: items, Total: cart.ComputeTotal(items)})

	out := buf.String()
	assert.Contains(t, out, "🛒 Carrito (3)")
	assert.Contains(t, out, "Ibuprofeno × 2  $31.98")
	assert.Contains(t, out, "Total: $40.97")
}

func TestUpdate(t *testing.T) {
	var buf bytes.Buffer
	r := New(&buf)

	r.Update(session.Update{Kind: session.UpdateState, State: session.StateConnected})
	r.Update(session.Update{Kind: session.UpdateCart, Cart: cart.Cart{}})
	r.Update(session.Update{Kind: session.UpdateTranscript, Entry: transcript.Entry{
		Sender: transcript.SenderBot, Payload: protocol.NewText("hi"), Timestamp: at(8, 0),
	}})

	assert.Equal(t, "· connected\n[08:00] bot: hi\n", buf.String())
}
