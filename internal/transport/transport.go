// Package transport defines the bidirectional text channel used by a chat
// session.
package transport

import (
	"context"
	"errors"
)

// Handler receives transport events. Implementations deliver OnMessage calls
// in arrival order and never concurrently with each other.
type Handler interface {
	OnOpen()
	OnMessage(text string)
	OnError(err error)
	OnClose()
}

// Transport is a text channel to the chat backend.
type Transport interface {
	// Connect starts connecting to address and returns without waiting for
	// the connection. Progress is reported through h.
	Connect(ctx context.Context, address string, h Handler) error
	// Send queues text for delivery. It must not block on the network or
	// call the Handler synchronously.
	Send(text string) error
	// Close releases the transport. It is safe to call more than once.
	Close() error
}

// Dialer creates a fresh, unconnected transport.
type Dialer func() Transport

var (
	// ErrNotConnected is returned by Send before the connection is open or
	// after it is closed.
	ErrNotConnected = errors.New("transport: not connected")

	// ErrAlreadyConnected is returned when Connect is called twice.
	ErrAlreadyConnected = errors.New("transport: already connected")

	// ErrBufferFull is returned when the send buffer is full.
	ErrBufferFull = errors.New("transport: send buffer full")
)
