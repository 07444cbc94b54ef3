// Package store persists storefront sessions, their conversation log and
// their carts.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/xiaot623/shopchat/internal/cart"
)

// Message senders recorded in the conversation log.
const (
	SenderUser = "user"
	SenderBot  = "bot"
)

// Session is a storefront chat session.
type Session struct {
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Message is one logged wire message. Content is the raw text as sent or
// received.
type Message struct {
	MessageID string    `json:"message_id"`
	SessionID string    `json:"session_id"`
	Sender    string    `json:"sender"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// SQLiteStore implements the storefront persistence on SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens dsn and applies the schema. Foreign keys are enabled
// on every pooled connection.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", withForeignKeys(dsn))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Every connection to :memory: is a separate database.
	if strings.HasPrefix(dsn, ":memory:") || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// withForeignKeys adds the driver's _foreign_keys option to dsn unless the
// caller already set it.
func withForeignKeys(dsn string) string {
	if strings.Contains(dsn, "_foreign_keys=") || strings.Contains(dsn, "_fk=") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_foreign_keys=on"
}

func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			message_id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			sender TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (session_id) REFERENCES sessions(session_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS carts (
			session_id TEXT PRIMARY KEY,
			cart_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			total TEXT NOT NULL,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (session_id) REFERENCES sessions(session_id)
		)`,
		`CREATE TABLE IF NOT EXISTS cart_items (
			session_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			product_id TEXT NOT NULL,
			name TEXT NOT NULL,
			quantity INTEGER NOT NULL,
			price TEXT NOT NULL,
			currency TEXT NOT NULL,
			PRIMARY KEY (session_id, product_id),
			FOREIGN KEY (session_id) REFERENCES carts(session_id) ON DELETE CASCADE
		)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// GetSession retrieves a session by ID. It returns nil when absent.
func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	var session Session
	err := s.db.QueryRowContext(ctx,
		`SELECT session_id, user_id, created_at FROM sessions WHERE session_id = ?`,
		sessionID).Scan(&session.SessionID, &session.UserID, &session.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// GetOrCreateSession gets an existing session or creates a new one.
func (s *SQLiteStore) GetOrCreateSession(ctx context.Context, sessionID, userID string) (*Session, error) {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session != nil {
		return session, nil
	}

	session = &Session{SessionID: sessionID, UserID: userID, CreatedAt: time.Now()}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (session_id, user_id, created_at) VALUES (?, ?, ?)`,
		session.SessionID, session.UserID, session.CreatedAt)
	if err != nil {
		return nil, err
	}
	return session, nil
}

// AppendMessage logs a message. The session must exist.
func (s *SQLiteStore) AppendMessage(ctx context.Context, sessionID, sender, content string) (*Message, error) {
	msg := &Message{
		MessageID: "msg_" + uuid.New().String(),
		SessionID: sessionID,
		Sender:    sender,
		Content:   content,
		CreatedAt: time.Now(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (message_id, session_id, sender, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		msg.MessageID, msg.SessionID, msg.Sender, msg.Content, msg.CreatedAt)
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// GetMessages returns the conversation log of a session, oldest first.
// limit <= 0 returns every message.
func (s *SQLiteStore) GetMessages(ctx context.Context, sessionID string, limit int) ([]Message, error) {
	query := `SELECT message_id, session_id, sender, content, created_at FROM messages
		WHERE session_id = ? ORDER BY created_at ASC, rowid ASC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var msg Message
		if err := rows.Scan(&msg.MessageID, &msg.SessionID, &msg.Sender, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// SaveCart replaces the stored cart of a session. The session must exist.
func (s *SQLiteStore) SaveCart(ctx context.Context, sessionID string, c cart.Cart) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO carts (session_id, cart_id, user_id, total, updated_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			cart_id = excluded.cart_id,
			user_id = excluded.user_id,
			total = excluded.total,
			updated_at = excluded.updated_at`,
		sessionID, c.ID, c.UserID, c.Total.String(), time.Now())
	if err != nil {
		return fmt.Errorf("save cart: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM cart_items WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("clear cart items: %w", err)
	}
	for i, item := range c.Items {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO cart_items (session_id, position, product_id, name, quantity, price, currency)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			sessionID, i, item.ID, item.Name, item.Quantity, item.UnitPrice.String(), item.Currency)
		if err != nil {
			return fmt.Errorf("save cart item %s: %w", item.ID, err)
		}
	}

	return tx.Commit()
}

// GetCart loads the stored cart of a session. It returns nil when absent.
func (s *SQLiteStore) GetCart(ctx context.Context, sessionID string) (*cart.Cart, error) {
	var c cart.Cart
	var total string
	err := s.db.QueryRowContext(ctx,
		`SELECT cart_id, user_id, total FROM carts WHERE session_id = ?`,
		sessionID).Scan(&c.ID, &c.UserID, &total)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if c.Total, err = decimal.NewFromString(total); err != nil {
		return nil, fmt.Errorf("cart %s: invalid total %q: %w", c.ID, total, err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT product_id, name, quantity, price, currency FROM cart_items
		WHERE session_id = ? ORDER BY position ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	c.Items = []cart.Item{}
	for rows.Next() {
		var item cart.Item
		var price string
		if err := rows.Scan(&item.ID, &item.Name, &item.Quantity, &price, &item.Currency); err != nil {
			return nil, err
		}
		if item.UnitPrice, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("cart item %s: invalid price %q: %w", item.ID, price, err)
		}
		c.Items = append(c.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &c, nil
}
