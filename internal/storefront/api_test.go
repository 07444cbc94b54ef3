package storefront

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/shopchat/internal/cart"
	"github.com/xiaot623/shopchat/internal/store"
)

type fakeSessions struct {
	carts    map[string]cart.Cart
	messages map[string][]store.Message
}

func (f fakeSessions) SessionCart(sessionID string) (cart.Cart, bool) {
	c, ok := f.carts[sessionID]
	return c, ok
}

func (f fakeSessions) SessionMessages(_ context.Context, sessionID string, limit int) ([]store.Message, error) {
	if f.messages == nil {
		return nil, ErrNoHistory
	}
	msgs := f.messages[sessionID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[:limit]
	}
	return msgs, nil
}

func doRequest(t *testing.T, s *APIServer, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	h := startHub(t, 4)
	h.Register(h.NewConnection(nil, "s1"))
	s := NewAPIServer(h, fakeSessions{}, nil)

	rec := doRequest(t, s, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, float64(1), body["connections"])
	assert.Equal(t, float64(1), body["sessions"])
}

func TestInternalSend(t *testing.T) {
	h := startHub(t, 4)
	conn := h.NewConnection(nil, "s1")
	h.Register(conn)
	s := NewAPIServer(h, fakeSessions{}, nil)

	rec := doRequest(t, s, http.MethodPost, "/internal/send",
		`{"session_id":"s1","message":{"type":"message","message":"Tu pedido está listo"}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp SendResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.OK)
	assert.True(t, resp.Delivered)
	assert.JSONEq(t, `{"type":"message","message":"Tu pedido está listo"}`, string(receive(t, conn.Send)))

	rec = doRequest(t, s, http.MethodPost, "/internal/send",
		`{"session_id":"nobody","message":{"type":"message","message":"x"}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Delivered)
}

func TestInternalSendRejects(t *testing.T) {
	h := startHub(t, 4)
	s := NewAPIServer(h, fakeSessions{}, nil)

	tests := []struct {
		name string
		body string
	}{
		{"invalid body", `{`},
		{"missing session", `{"message":{"type":"message","message":"x"}}`},
		{"missing message", `{"session_id":"s1"}`},
		{"unknown type", `{"session_id":"s1","message":{"type":"video"}}`},
		{"invalid cart", `{"session_id":"s1","message":{"type":"cart","items":[]}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, s, http.MethodPost, "/internal/send", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestSessionCart(t *testing.T) {
	h := startHub(t, 4)
	carts := fakeSessions{carts: map[string]cart.Cart{
		"s1": {
			ID:     "123456",
			UserID: "98765",
			Items: []cart.Item{
				{ID: "p101", Name: "Ibuprofeno 400mg", Quantity: 2, UnitPrice: decimal.RequireFromString("12.50"), Currency: "USD"},
			},
			Total: decimal.RequireFromString("25.00"),
		},
	}}
	s := NewAPIServer(h, carts, nil)

	rec := doRequest(t, s, http.MethodGet, "/internal/sessions/s1/cart", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"cart_id":"123456","user_id":"98765","items":[
		{"id":"p101","name":"Ibuprofeno 400mg","quantity":2,"price":12.5,"currency":"USD"}],"total":25}`,
		rec.Body.String())

	rec = doRequest(t, s, http.MethodGet, "/internal/sessions/s2/cart", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSessionMessages(t *testing.T) {
	h := startHub(t, 4)
	sessions := fakeSessions{messages: map[string][]store.Message{
		"s1": {
			{MessageID: "msg_1", SessionID: "s1", Sender: store.SenderUser, Content: "hola"},
			{MessageID: "msg_2", SessionID: "s1", Sender: store.SenderBot, Content: `{"type":"message","message":"¡Hola!"}`},
		},
	}}
	s := NewAPIServer(h, sessions, nil)

	rec := doRequest(t, s, http.MethodGet, "/internal/sessions/s1/messages", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Messages []store.Message `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Messages, 2)
	assert.Equal(t, store.SenderBot, body.Messages[1].Sender)

	rec = doRequest(t, s, http.MethodGet, "/internal/sessions/s1/messages?limit=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Messages, 1)

	rec = doRequest(t, s, http.MethodGet, "/internal/sessions/s2/messages", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"messages":[]}`, rec.Body.String())

	rec = doRequest(t, s, http.MethodGet, "/internal/sessions/s1/messages?limit=x", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSessionMessagesWithoutHistory(t *testing.T) {
	s := NewAPIServer(startHub(t, 4), fakeSessions{}, nil)
	rec := doRequest(t, s, http.MethodGet, "/internal/sessions/s1/messages", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
