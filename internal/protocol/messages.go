// Package protocol defines the WebSocket message protocol between the chat
// widget and the storefront backend.
package protocol

import (
	"encoding/json"

	"github.com/shopspring/decimal"

	"github.com/xiaot623/shopchat/internal/cart"
)

// Kind is the value of the "type" discriminator.
type Kind string

// Message types from backend to widget. Widget-to-backend messages are plain
// text without an envelope.
const (
	KindText     Kind = "message"
	KindCarousel Kind = "carousel"
	KindCart     Kind = "cart"
	KindFunction Kind = "function"
)

// Function names understood by the widget.
const (
	FuncAddToCart      = "addToCart"
	FuncRemoveFromCart = "removeFromCart"
)

// Message is one decoded wire message. The set of implementations is closed:
// *TextMessage, *CarouselMessage, *CartMessage and *FunctionMessage.
type Message interface {
	Kind() Kind
	isMessage()
}

// BaseMessage contains the discriminator shared by all messages.
type BaseMessage struct {
	Type Kind `json:"type"`
}

func (BaseMessage) isMessage() {}

// TextMessage is a plain chat message.
type TextMessage struct {
	BaseMessage
	Message string `json:"message"`

	// Fallback is set when the message wraps raw inbound text that could not
	// be decoded. It is never sent on the wire.
	Fallback bool `json:"-"`
}

// Kind implements Message.
func (*TextMessage) Kind() Kind { return KindText }

// Product is a catalog entry shown in a carousel.
type Product struct {
	ID          string          `json:"id" validate:"required"`
	Name        string          `json:"name" validate:"required"`
	ImageURL    string          `json:"image_url"`
	Price       decimal.Decimal `json:"price" validate:"gte=0"`
	Currency    string          `json:"currency"`
	Description string          `json:"description"`
}

// CarouselMessage carries a product list.
type CarouselMessage struct {
	BaseMessage
	Products []Product `json:"products" validate:"required,dive"`
}

// Kind implements Message.
func (*CarouselMessage) Kind() Kind { return KindCarousel }

// CartMessage carries a full authoritative cart snapshot.
type CartMessage struct {
	BaseMessage
	cart.Cart
}

// Kind implements Message.
func (*CartMessage) Kind() Kind { return KindCart }

// FunctionMessage asks the widget to perform a local side effect.
type FunctionMessage struct {
	BaseMessage
	Name string          `json:"name" validate:"required"`
	Args json.RawMessage `json:"args"`
}

// Kind implements Message.
func (*FunctionMessage) Kind() Kind { return KindFunction }

// AddToCartArgs are the arguments of an addToCart call. Name, Price and
// Currency are optional hints.
type AddToCartArgs struct {
	ProductID string           `json:"product_id" validate:"required"`
	Quantity  int              `json:"quantity" validate:"gte=0"`
	UserID    string           `json:"user_id,omitempty"`
	Name      string           `json:"name,omitempty"`
	Price     *decimal.Decimal `json:"price,omitempty"`
	Currency  string           `json:"currency,omitempty"`
}

// NewText creates a text message.
func NewText(text string) *TextMessage {
	return &TextMessage{BaseMessage: BaseMessage{Type: KindText}, Message: text}
}

// NewCarousel creates a carousel message.
func NewCarousel(products []Product) *CarouselMessage {
	return &CarouselMessage{BaseMessage: BaseMessage{Type: KindCarousel}, Products: products}
}

// NewCart creates a cart snapshot message.
func NewCart(c cart.Cart) *CartMessage {
	return &CartMessage{BaseMessage: BaseMessage{Type: KindCart}, Cart: c}
}

// NewFunction creates a function-call message with args marshaled to JSON.
func NewFunction(name string, args any) (*FunctionMessage, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, err
	}
	return &FunctionMessage{BaseMessage: BaseMessage{Type: KindFunction}, Name: name, Args: raw}, nil
}
