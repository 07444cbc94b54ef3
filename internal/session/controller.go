// Package session implements the chat widget session: connection lifecycle,
// inbound message routing, the cart and the transcript of one widget session.
package session

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/xiaot623/shopchat/internal/cart"
	"github.com/xiaot623/shopchat/internal/protocol"
	"github.com/xiaot623/shopchat/internal/transcript"
	"github.com/xiaot623/shopchat/internal/transport"
)

// State is the connection state of a session.
type State string

const (
	StateDisconnected State = "DISCONNECTED"
	StateConnecting   State = "CONNECTING"
	StateConnected    State = "CONNECTED"
)

// UpdateKind tells an observer what changed.
type UpdateKind string

const (
	UpdateTranscript UpdateKind = "transcript"
	UpdateCart       UpdateKind = "cart"
	UpdateState      UpdateKind = "state"
)

// Update is delivered to the observer after each change. Only the field
// matching Kind is set.
type Update struct {
	Kind  UpdateKind
	Entry transcript.Entry
	Cart  cart.Cart
	State State
}

// Options configures a Controller.
type Options struct {
	Address         string
	Dialer          transport.Dialer
	Greeting        string
	ErrorNotice     string
	UserID          string
	DefaultCurrency string

	// Functions handles function-call messages. Nil uses DefaultFunctions.
	Functions *Functions
	// Observer is called outside the controller lock after every change.
	Observer func(Update)
	Logger   *zap.Logger
}

// Controller owns one widget session. All state transitions are serialized
// by mu; inbound events are handled one at a time in delivery order.
type Controller struct {
	opts Options
	log  *zap.Logger

	mu       sync.Mutex
	state    State
	epoch    uint64
	tr       transport.Transport
	cart     *cart.Store
	history  *transcript.Log
	products map[string]protocol.Product
}

// New creates a disconnected session with an empty cart.
func New(opts Options) (*Controller, error) {
	if opts.Dialer == nil {
		return nil, errors.New("session: dialer is required")
	}
	if opts.Functions == nil {
		opts.Functions = DefaultFunctions()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Controller{
		opts:     opts,
		log:      opts.Logger,
		state:    StateDisconnected,
		cart:     cart.NewStore(opts.UserID),
		history:  transcript.New(),
		products: make(map[string]protocol.Product),
	}, nil
}

// Open starts connecting. It is a no-op unless the session is disconnected.
func (c *Controller) Open(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return nil
	}
	c.epoch++
	epoch := c.epoch
	tr := c.opts.Dialer()
	c.tr = tr
	updates := c.setState(StateConnecting, nil)
	c.mu.Unlock()
	c.notify(updates)

	c.log.Info("Opening chat session", zap.String("address", c.opts.Address))
	if err := tr.Connect(ctx, c.opts.Address, &handler{c: c, epoch: epoch}); err != nil {
		c.handleError(epoch, err)
		c.handleClose(epoch)
		tr.Close()
		return fmt.Errorf("connect %s: %w", c.opts.Address, err)
	}
	return nil
}

// Close releases the transport and disconnects. Events still in flight from
// the released transport are discarded.
func (c *Controller) Close() error {
	c.mu.Lock()
	tr := c.tr
	c.tr = nil
	c.epoch++
	var updates []Update
	if c.state != StateDisconnected {
		updates = c.setState(StateDisconnected, updates)
	}
	c.mu.Unlock()
	c.notify(updates)

	if tr == nil {
		return nil
	}
	c.log.Info("Chat session closed")
	return tr.Close()
}

// SendUserMessage records text as a user entry and forwards it to the
// backend. Blank text, or text sent while not connected, is dropped.
func (c *Controller) SendUserMessage(text string) error {
	c.mu.Lock()
	if strings.TrimSpace(text) == "" || c.state != StateConnected {
		c.mu.Unlock()
		return nil
	}

	updates := c.appendEntry(transcript.SenderUser, protocol.NewText(text), nil)
	err := c.tr.Send(protocol.EncodeOutbound(text))
	if err != nil {
		c.log.Warn("Failed to send user message", zap.Error(err))
		updates = c.appendEntry(transcript.SenderBot, protocol.NewText(c.opts.ErrorNotice), updates)
	}
	c.mu.Unlock()
	c.notify(updates)

	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// UpdateQuantity sets a cart line to an absolute quantity; quantity <= 0
// removes it.
func (c *Controller) UpdateQuantity(productID string, quantity int) error {
	c.mu.Lock()
	snapshot, err := c.cart.SetQuantity(productID, quantity)
	c.mu.Unlock()
	if err != nil {
		return err
	}
	c.notify([]Update{{Kind: UpdateCart, Cart: snapshot}})
	return nil
}

// RemoveItem drops a cart line.
func (c *Controller) RemoveItem(productID string) {
	c.mu.Lock()
	snapshot := c.cart.RemoveItem(productID)
	c.mu.Unlock()
	c.notify([]Update{{Kind: UpdateCart, Cart: snapshot}})
}

// State returns the connection state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Cart returns a copy of the session cart.
func (c *Controller) Cart() cart.Cart {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cart.Cart()
}

// CartCount returns the cart badge count.
func (c *Controller) CartCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cart.TotalItemCount()
}

// Entries returns a copy of the transcript.
func (c *Controller) Entries() []transcript.Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.history.Entries()
}

// Transcript returns a lazy read-only view of the transcript. Each iteration
// covers the entries present when it starts and reads them one at a time, so
// the loop body may call back into the Controller.
func (c *Controller) Transcript() iter.Seq[transcript.Entry] {
	return func(yield func(transcript.Entry) bool) {
		c.mu.Lock()
		n := c.history.Len()
		c.mu.Unlock()

		for i := 0; i < n; i++ {
			c.mu.Lock()
			e, ok := c.history.At(i)
			c.mu.Unlock()
			if !ok || !yield(e) {
				return
			}
		}
	}
}

func (c *Controller) handleOpen(epoch uint64) {
	c.mu.Lock()
	if epoch != c.epoch || c.state != StateConnecting {
		c.mu.Unlock()
		return
	}
	updates := c.setState(StateConnected, nil)
	updates = c.appendEntry(transcript.SenderBot, protocol.NewText(c.opts.Greeting), updates)
	c.mu.Unlock()

	c.log.Info("Chat session connected")
	c.notify(updates)
}

func (c *Controller) handleMessage(epoch uint64, raw string) {
	c.mu.Lock()
	if epoch != c.epoch || c.state == StateDisconnected {
		c.mu.Unlock()
		return
	}

	msg := protocol.Parse(raw)
	if text, ok := msg.(*protocol.TextMessage); ok && text.Fallback {
		c.log.Debug("Inbound message is not a protocol message, showing raw text")
	}
	updates := c.appendEntry(transcript.SenderBot, msg, nil)
	updates = c.route(msg, updates)
	c.mu.Unlock()

	c.notify(updates)
}

func (c *Controller) handleError(epoch uint64, err error) {
	c.mu.Lock()
	if epoch != c.epoch {
		c.mu.Unlock()
		return
	}
	c.log.Warn("Chat transport error", zap.Error(err))
	updates := c.appendEntry(transcript.SenderBot, protocol.NewText(c.opts.ErrorNotice), nil)
	c.mu.Unlock()

	c.notify(updates)
}

func (c *Controller) handleClose(epoch uint64) {
	c.mu.Lock()
	if epoch != c.epoch {
		c.mu.Unlock()
		return
	}
	c.epoch++
	c.tr = nil
	var updates []Update
	if c.state != StateDisconnected {
		updates = c.setState(StateDisconnected, updates)
	}
	c.mu.Unlock()

	c.log.Info("Chat transport closed")
	c.notify(updates)
}

// route applies the side effects of an inbound message. Called with mu held.
func (c *Controller) route(msg protocol.Message, updates []Update) []Update {
	switch m := msg.(type) {
	case *protocol.CartMessage:
		snapshot := c.cart.ReplaceCart(m.Cart)
		updates = append(updates, Update{Kind: UpdateCart, Cart: snapshot})

	case *protocol.FunctionMessage:
		env := &Env{Cart: c.cart, DefaultCurrency: c.opts.DefaultCurrency, products: c.products}
		handled, err := c.opts.Functions.Execute(env, m)
		switch {
		case !handled:
			c.log.Debug("Ignoring unknown function", zap.String("name", m.Name))
		case err != nil:
			c.log.Debug("Function call had no effect", zap.String("name", m.Name), zap.Error(err))
		default:
			updates = append(updates, Update{Kind: UpdateCart, Cart: c.cart.Cart()})
		}

	case *protocol.CarouselMessage:
		for _, p := range m.Products {
			c.products[p.ID] = p
		}

	case *protocol.TextMessage:
	}
	return updates
}

func (c *Controller) appendEntry(sender transcript.Sender, payload protocol.Message, updates []Update) []Update {
	entry, err := c.history.Append(transcript.Entry{Sender: sender, Payload: payload})
	if err != nil {
		c.log.Error("Failed to append transcript entry", zap.Error(err))
		return updates
	}
	return append(updates, Update{Kind: UpdateTranscript, Entry: entry})
}

func (c *Controller) setState(s State, updates []Update) []Update {
	c.state = s
	return append(updates, Update{Kind: UpdateState, State: s})
}

func (c *Controller) notify(updates []Update) {
	if c.opts.Observer == nil {
		return
	}
	for _, u := range updates {
		c.opts.Observer(u)
	}
}

// handler binds transport callbacks to the connection epoch they belong to.
type handler struct {
	c     *Controller
	epoch uint64
}

func (h *handler) OnOpen()               { h.c.handleOpen(h.epoch) }
func (h *handler) OnMessage(text string) { h.c.handleMessage(h.epoch, text) }
func (h *handler) OnError(err error)     { h.c.handleError(h.epoch, err) }
func (h *handler) OnClose()              { h.c.handleClose(h.epoch) }
