// Package ws implements transport.Transport over a gorilla WebSocket.
package ws

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/xiaot623/shopchat/internal/transport"
)

// Options configures a WebSocket transport.
type Options struct {
	PingInterval   time.Duration
	WriteTimeout   time.Duration
	ReadTimeout    time.Duration
	MaxMessageSize int64
	SendBuffer     int

	Dialer *websocket.Dialer
	Logger *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.PingInterval <= 0 {
		o.PingInterval = 30 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = 60 * time.Second
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = 65536
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 256
	}
	if o.Dialer == nil {
		o.Dialer = websocket.DefaultDialer
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// Conn is a single-use WebSocket transport.
type Conn struct {
	opts Options
	log  *zap.Logger

	mu            sync.Mutex
	conn          *websocket.Conn
	handler       transport.Handler
	cancel        context.CancelFunc
	started       bool
	closedLocally bool

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New creates an unconnected transport.
func New(opts Options) *Conn {
	opts = opts.withDefaults()
	return &Conn{
		opts: opts,
		log:  opts.Logger,
		send: make(chan []byte, opts.SendBuffer),
		done: make(chan struct{}),
	}
}

// NewDialer returns a transport.Dialer producing WebSocket transports.
func NewDialer(opts Options) transport.Dialer {
	return func() transport.Transport {
		return New(opts)
	}
}

// Connect dials address in the background.
func (c *Conn) Connect(ctx context.Context, address string, h transport.Handler) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return transport.ErrAlreadyConnected
	}
	if c.closedLocally {
		c.mu.Unlock()
		return transport.ErrNotConnected
	}
	dialCtx, cancel := context.WithCancel(ctx)
	c.started = true
	c.handler = h
	c.cancel = cancel
	c.mu.Unlock()

	c.wg.Add(1)
	go c.run(dialCtx, address)
	return nil
}

// Send queues text for the write pump.
func (c *Conn) Send(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil || c.closedLocally {
		return transport.ErrNotConnected
	}
	select {
	case <-c.done:
		return transport.ErrNotConnected
	default:
	}

	select {
	case c.send <- []byte(text):
		return nil
	default:
		return transport.ErrBufferFull
	}
}

// Close stops both pumps and closes the socket. Handler callbacks are not
// invoked for a local close.
func (c *Conn) Close() error {
	c.mu.Lock()
	c.closedLocally = true
	c.mu.Unlock()
	c.shutdown()
	return nil
}

// Wait blocks until the transport goroutines have exited.
func (c *Conn) Wait() {
	c.wg.Wait()
}

func (c *Conn) shutdown() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		cancel := c.cancel
		c.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		close(c.done)
	})
}

func (c *Conn) isClosedLocally() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closedLocally
}

func (c *Conn) run(ctx context.Context, address string) {
	defer c.wg.Done()

	ws, _, err := c.opts.Dialer.DialContext(ctx, address, nil)
	if err != nil {
		c.shutdown()
		if c.isClosedLocally() {
			return
		}
		c.log.Warn("WebSocket dial failed", zap.String("address", address), zap.Error(err))
		c.handler.OnError(fmt.Errorf("dial %s: %w", address, err))
		c.handler.OnClose()
		return
	}

	c.mu.Lock()
	if c.closedLocally {
		c.mu.Unlock()
		ws.Close()
		return
	}
	c.conn = ws
	c.mu.Unlock()

	ws.SetReadLimit(c.opts.MaxMessageSize)

	c.wg.Add(1)
	go c.writePump(ws)

	c.log.Debug("WebSocket connected", zap.String("address", address))
	c.handler.OnOpen()
	c.readPump(ws)
}

// readPump reads messages from the WebSocket connection.
func (c *Conn) readPump(ws *websocket.Conn) {
	ws.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))
		return nil
	})

	var readErr error
	for {
		_, message, err := ws.ReadMessage()
		if err != nil {
			readErr = err
			break
		}
		if c.isClosedLocally() {
			break
		}
		c.handler.OnMessage(string(message))
	}

	c.shutdown()
	if c.isClosedLocally() {
		return
	}
	if !websocket.IsCloseError(readErr, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		c.log.Warn("WebSocket read failed", zap.Error(readErr))
		c.handler.OnError(readErr)
	}
	c.handler.OnClose()
}

// writePump writes queued messages and keeps the connection alive with pings.
func (c *Conn) writePump(ws *websocket.Conn) {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer func() {
		ticker.Stop()
		ws.Close()
		c.wg.Done()
	}()

	for {
		select {
		case message := <-c.send:
			ws.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
			if err := ws.WriteMessage(websocket.TextMessage, message); err != nil {
				c.log.Warn("Failed to write message", zap.Error(err))
				return
			}

		case <-ticker.C:
			ws.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			ws.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
			ws.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
