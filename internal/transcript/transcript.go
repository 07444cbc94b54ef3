// Package transcript provides the append-only chat log of one widget session.
package transcript

import (
	"errors"
	"iter"
	"time"

	"github.com/google/uuid"

	"github.com/xiaot623/shopchat/internal/protocol"
)

// Sender identifies who authored an entry.
type Sender string

const (
	SenderUser Sender = "user"
	SenderBot  Sender = "bot"
)

// ErrDuplicateID is returned when an entry id is already in the log.
var ErrDuplicateID = errors.New("transcript: duplicate entry id")

// Entry is one exchanged chat message.
type Entry struct {
	ID        string
	Sender    Sender
	Payload   protocol.Message
	Timestamp time.Time
}

// Text returns the entry text for text payloads.
func (e Entry) Text() (string, bool) {
	if m, ok := e.Payload.(*protocol.TextMessage); ok {
		return m.Message, true
	}
	return "", false
}

// Log is an ordered, append-only sequence of entries. It is not safe for
// concurrent use.
type Log struct {
	entries []Entry
	ids     map[string]struct{}
	now     func() time.Time
}

// New creates an empty log.
func New() *Log {
	return &Log{
		ids: make(map[string]struct{}),
		now: time.Now,
	}
}

// Append adds an entry to the end of the log. A missing id or timestamp is
// assigned; timestamps never go backwards relative to the previous entry.
func (l *Log) Append(e Entry) (Entry, error) {
	if e.ID == "" {
		e.ID = NewID()
	}
	if _, exists := l.ids[e.ID]; exists {
		return Entry{}, ErrDuplicateID
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = l.now()
	}
	if n := len(l.entries); n > 0 && e.Timestamp.Before(l.entries[n-1].Timestamp) {
		e.Timestamp = l.entries[n-1].Timestamp
	}

	l.ids[e.ID] = struct{}{}
	l.entries = append(l.entries, e)
	return e, nil
}

// All returns a read-only view over the log. Each iteration covers the
// entries present when it starts and can be repeated.
func (l *Log) All() iter.Seq[Entry] {
	return func(yield func(Entry) bool) {
		n := len(l.entries)
		for i := 0; i < n; i++ {
			if !yield(l.entries[i]) {
				return
			}
		}
	}
}

// Entries returns a copy of all entries.
func (l *Log) Entries() []Entry {
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of entries.
func (l *Log) Len() int {
	return len(l.entries)
}

// At returns the entry at index i in append order.
func (l *Log) At(i int) (Entry, bool) {
	if i < 0 || i >= len(l.entries) {
		return Entry{}, false
	}
	return l.entries[i], true
}

// Last returns the most recent entry.
func (l *Log) Last() (Entry, bool) {
	if len(l.entries) == 0 {
		return Entry{}, false
	}
	return l.entries[len(l.entries)-1], true
}

// NewID returns a fresh entry id.
func NewID() string {
	return "msg_" + uuid.New().String()
}
