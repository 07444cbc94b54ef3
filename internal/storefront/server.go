package storefront

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/xiaot623/shopchat/internal/cart"
	"github.com/xiaot623/shopchat/internal/protocol"
	"github.com/xiaot623/shopchat/internal/store"
)

// ErrNoHistory is returned by SessionMessages when the server has no
// repository.
var ErrNoHistory = errors.New("storefront: message history disabled")

// Repository persists sessions, their carts and their conversation log.
// *store.SQLiteStore implements it.
type Repository interface {
	GetOrCreateSession(ctx context.Context, sessionID, userID string) (*store.Session, error)
	GetCart(ctx context.Context, sessionID string) (*cart.Cart, error)
	SaveCart(ctx context.Context, sessionID string, c cart.Cart) error
	AppendMessage(ctx context.Context, sessionID, sender, content string) (*store.Message, error)
	GetMessages(ctx context.Context, sessionID string, limit int) ([]store.Message, error)
}

// Options configures the WebSocket endpoint.
type Options struct {
	PingInterval   time.Duration
	WriteTimeout   time.Duration
	ReadTimeout    time.Duration
	MaxMessageSize int64
	// DefaultUserID is used when the widget does not pass ?user_id=.
	DefaultUserID string
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
	if o.DefaultUserID == "" {
		o.DefaultUserID = "guest"
	}
	return o
}

// sessionCart is the server-side cart of one session, shared by all of the
// session's connections.
type sessionCart struct {
	mu    sync.Mutex
	store *cart.Store
}

// Server handles widget WebSocket connections.
type Server struct {
	opts      Options
	hub       *Hub
	responder *Responder
	repo      Repository
	upgrader  websocket.Upgrader
	log       *zap.Logger

	mu    sync.Mutex
	carts map[string]*sessionCart
}

// NewServer creates a WebSocket server. repo may be nil, in which case carts
// live only in memory and nothing is logged.
func NewServer(opts Options, h *Hub, r *Responder, repo Repository, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		opts:      opts.withDefaults(),
		hub:       h,
		responder: r,
		repo:      repo,
		log:       logger,
		carts:     make(map[string]*sessionCart),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// The widget is embedded on arbitrary storefront origins.
				return true
			},
		},
	}
}

// Echo returns an echo instance serving the widget endpoint at /ws.
func (s *Server) Echo() *echo.Echo {
	e := newEcho(s.log)
	e.GET("/ws", s.HandleWebSocket)
	return e
}

// HandleWebSocket upgrades the request and starts the connection pumps.
// The session is taken from ?session_id= or generated.
func (s *Server) HandleWebSocket(c echo.Context) error {
	sessionID := c.QueryParam("session_id")
	if sessionID == "" {
		sessionID = "sess_" + uuid.New().String()[:8]
	}
	userID := c.QueryParam("user_id")
	if userID == "" {
		userID = s.opts.DefaultUserID
	}

	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.log.Warn("Failed to upgrade WebSocket", zap.Error(err))
		return err
	}

	sc := s.sessionCart(c.Request().Context(), sessionID, userID)
	conn := s.hub.NewConnection(ws, sessionID)
	s.hub.Register(conn)

	ws.SetReadLimit(s.opts.MaxMessageSize)

	go s.writePump(conn)
	go s.readPump(conn, sc)

	return nil
}

// SessionCart returns a copy of a session's server-side cart.
func (s *Server) SessionCart(sessionID string) (cart.Cart, bool) {
	s.mu.Lock()
	sc, ok := s.carts[sessionID]
	s.mu.Unlock()
	if !ok {
		return cart.Cart{}, false
	}
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.store.Cart(), true
}

// SessionMessages returns the logged conversation of a session, oldest
// first. limit <= 0 returns everything.
func (s *Server) SessionMessages(ctx context.Context, sessionID string, limit int) ([]store.Message, error) {
	if s.repo == nil {
		return nil, ErrNoHistory
	}
	return s.repo.GetMessages(ctx, sessionID, limit)
}

// sessionCart returns the in-memory cart of a session, restoring it from the
// repository on first use.
func (s *Server) sessionCart(ctx context.Context, sessionID, userID string) *sessionCart {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sc, ok := s.carts[sessionID]; ok {
		return sc
	}

	snapshot := cart.Cart{
		ID:     "cart_" + uuid.New().String()[:8],
		UserID: userID,
		Items:  []cart.Item{},
	}
	if s.repo != nil {
		if _, err := s.repo.GetOrCreateSession(ctx, sessionID, userID); err != nil {
			s.log.Warn("Failed to create session", zap.String("session_id", sessionID), zap.Error(err))
		} else if saved, err := s.repo.GetCart(ctx, sessionID); err != nil {
			s.log.Warn("Failed to load cart", zap.String("session_id", sessionID), zap.Error(err))
		} else if saved != nil {
			snapshot = *saved
			s.log.Debug("Restored cart", zap.String("session_id", sessionID), zap.Int("items", saved.ItemCount()))
		}
	}

	cs := cart.NewStore(snapshot.UserID)
	cs.ReplaceCart(snapshot)
	sc := &sessionCart{store: cs}
	s.carts[sessionID] = sc
	return sc
}

func (s *Server) readPump(conn *Connection, sc *sessionCart) {
	defer func() {
		s.hub.Unregister(conn)
		conn.Close()
	}()

	conn.SetReadDeadline(time.Now().Add(s.opts.ReadTimeout))
	conn.Conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(s.opts.ReadTimeout))
		return nil
	})

	for {
		_, message, err := conn.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Warn("WebSocket read error", zap.String("conn_id", conn.ID), zap.Error(err))
			}
			return
		}
		s.handleMessage(conn, sc, string(message))
	}
}

func (s *Server) writePump(conn *Connection) {
	ticker := time.NewTicker(s.opts.PingInterval)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.Send:
			conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				s.log.Warn("Failed to write message", zap.String("conn_id", conn.ID), zap.Error(err))
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-s.hub.Done():
			conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			return
		}
	}
}

// handleMessage answers one widget message. Replies go to the sending
// connection only.
func (s *Server) handleMessage(conn *Connection, sc *sessionCart, text string) {
	ctx := context.Background()
	s.record(ctx, conn.SessionID, store.SenderUser, text)

	sc.mu.Lock()
	replies, changed := s.responder.Reply(ctx, sc.store, text)
	if changed && s.repo != nil {
		if err := s.repo.SaveCart(ctx, conn.SessionID, sc.store.Cart()); err != nil {
			s.log.Warn("Failed to save cart", zap.String("session_id", conn.SessionID), zap.Error(err))
		}
	}
	sc.mu.Unlock()

	s.log.Debug("Widget message", zap.String("session_id", conn.SessionID), zap.Int("replies", len(replies)))
	for _, msg := range replies {
		data, err := protocol.Marshal(msg)
		if err != nil {
			s.log.Error("Failed to marshal reply", zap.Error(err))
			continue
		}
		s.record(ctx, conn.SessionID, store.SenderBot, string(data))
		if err := s.hub.SendToConnection(conn, data); err != nil {
			s.log.Warn("Failed to queue reply", zap.String("conn_id", conn.ID), zap.Error(err))
			return
		}
	}
}

func (s *Server) record(ctx context.Context, sessionID, sender, content string) {
	if s.repo == nil {
		return
	}
	if _, err := s.repo.AppendMessage(ctx, sessionID, sender, content); err != nil {
		s.log.Warn("Failed to log message", zap.String("session_id", sessionID), zap.Error(err))
	}
}

func newEcho(logger *zap.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				fields = append(fields, zap.Error(v.Error))
			}
			logger.Info("Request", fields...)
			return nil
		},
	}))
	e.Use(middleware.Recover())
	return e
}
