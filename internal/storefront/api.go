package storefront

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/xiaot623/shopchat/internal/cart"
	"github.com/xiaot623/shopchat/internal/protocol"
	"github.com/xiaot623/shopchat/internal/store"
)

// SessionSource looks up server-side session state. *Server implements it.
type SessionSource interface {
	SessionCart(sessionID string) (cart.Cart, bool)
	SessionMessages(ctx context.Context, sessionID string, limit int) ([]store.Message, error)
}

// APIServer is the internal HTTP API used to push messages to widgets.
type APIServer struct {
	echo  *echo.Echo
	hub   *Hub
	sessions SessionSource
	log   *zap.Logger
}

// NewAPIServer creates the internal HTTP API.
func NewAPIServer(h *Hub, sessions SessionSource, logger *zap.Logger) *APIServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &APIServer{
		echo:     newEcho(logger),
		hub:      h,
		sessions: sessions,
		log:      logger,
	}

	s.echo.GET("/health", s.handleHealth)
	s.echo.POST("/internal/send", s.handleInternalSend)
	s.echo.GET("/internal/sessions/:session_id/cart", s.handleSessionCart)
	s.echo.GET("/internal/sessions/:session_id/messages", s.handleSessionMessages)

	return s
}

// Echo returns the underlying echo instance.
func (s *APIServer) Echo() *echo.Echo {
	return s.echo
}

// Start starts the HTTP server.
func (s *APIServer) Start(addr string) error {
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *APIServer) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *APIServer) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":      "healthy",
		"connections": s.hub.ConnectionCount(),
		"sessions":    s.hub.SessionCount(),
	})
}

// SendRequest is the body of POST /internal/send. Message must be a valid
// wire message.
type SendRequest struct {
	SessionID string          `json:"session_id"`
	Message   json.RawMessage `json:"message"`
}

// SendResponse is the response of POST /internal/send.
type SendResponse struct {
	OK        bool `json:"ok"`
	Delivered bool `json:"delivered"`
}

func (s *APIServer) handleInternalSend(c echo.Context) error {
	var req SendRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.SessionID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "session_id is required"})
	}
	if len(req.Message) == 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "message is required"})
	}

	msg, err := protocol.Decode(string(req.Message))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	delivered := s.hub.HasActiveConnections(req.SessionID)
	if err := s.hub.BroadcastMessage(req.SessionID, msg); err != nil {
		s.log.Error("Failed to broadcast message", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to broadcast message"})
	}

	s.log.Info("Message pushed to session",
		zap.String("session_id", req.SessionID),
		zap.String("type", string(msg.Kind())),
		zap.Bool("delivered", delivered))

	return c.JSON(http.StatusOK, SendResponse{OK: true, Delivered: delivered})
}

func (s *APIServer) handleSessionCart(c echo.Context) error {
	snapshot, ok := s.sessions.SessionCart(c.Param("session_id"))
	if !ok {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "session not found"})
	}
	return c.JSON(http.StatusOK, snapshot)
}

// handleSessionMessages returns the logged conversation of a session.
// ?limit= caps the number of messages.
func (s *APIServer) handleSessionMessages(c echo.Context) error {
	limit := 0
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid limit"})
		}
		limit = n
	}

	messages, err := s.sessions.SessionMessages(c.Request().Context(), c.Param("session_id"), limit)
	if errors.Is(err, ErrNoHistory) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "message history disabled"})
	}
	if err != nil {
		s.log.Error("Failed to load messages", zap.String("session_id", c.Param("session_id")), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to load messages"})
	}
	if messages == nil {
		messages = []store.Message{}
	}
	return c.JSON(http.StatusOK, map[string]any{"messages": messages})
}
