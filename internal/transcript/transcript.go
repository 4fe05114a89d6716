// ABOUTME: Ordered per-session message log consumed by the display layer
// ABOUTME: The dispatcher appends; rendering is someone else's job

package transcript

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Sender types recorded on transcript entries.
const (
	SenderUser      = "user"
	SenderAssistant = "assistant"
)

// Message is one visible transcript entry. Assistant entries carry the
// provider id and resolved model key so the display layer can route them.
type Message struct {
	ID         string `json:"id"`
	Session    string `json:"session"`
	Text       string `json:"text"`
	SenderType string `json:"sender_type"`
	Model      string `json:"model,omitempty"`
	Provider   string `json:"provider"`
	Date       string `json:"date"`
	TS         int64  `json:"ts"`
}

// Observer is notified synchronously on every append.
type Observer func(Message)

// Log is an in-memory transcript, one ordered message list per named session.
type Log struct {
	mu       sync.Mutex
	sessions map[string][]Message
	order    []string // session names in first-seen order
	observer Observer
	now      func() time.Time
}

// NewLog creates an empty transcript log.
func NewLog() *Log {
	return &Log{
		sessions: make(map[string][]Message),
		now:      time.Now,
	}
}

// SetObserver registers a callback invoked on every append. Pass nil to
// remove it.
func (l *Log) SetObserver(obs Observer) {
	l.mu.Lock()
	l.observer = obs
	l.mu.Unlock()
}

// SetClock overrides the time source. Intended for tests.
func (l *Log) SetClock(now func() time.Time) {
	l.mu.Lock()
	l.now = now
	l.mu.Unlock()
}

// AppendUser records a user turn in the named session and returns the entry.
func (l *Log) AppendUser(session, text string) Message {
	return l.append(Message{
		Session:    session,
		Text:       text,
		SenderType: SenderUser,
		Provider:   "user",
	})
}

// AppendAssistant records a reply (or synthesized error text) tagged with
// its provider and model key.
func (l *Log) AppendAssistant(session, text, provider, modelKey string) Message {
	return l.append(Message{
		Session:    session,
		Text:       text,
		SenderType: SenderAssistant,
		Model:      modelKey,
		Provider:   provider,
	})
}

func (l *Log) append(m Message) Message {
	l.mu.Lock()

	now := l.now()
	m.ID = uuid.NewString()
	m.Date = now.Format("2006/01/02 15:04:05")
	m.TS = now.UnixMilli()

	if _, ok := l.sessions[m.Session]; !ok {
		l.order = append(l.order, m.Session)
	}
	l.sessions[m.Session] = append(l.sessions[m.Session], m)
	obs := l.observer

	l.mu.Unlock()

	if obs != nil {
		obs(m)
	}
	return m
}

// Session returns a copy of the named session's messages in append order.
func (l *Log) Session(name string) []Message {
	l.mu.Lock()
	defer l.mu.Unlock()

	msgs := l.sessions[name]
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out
}

// Sessions returns the session names in first-seen order.
func (l *Log) Sessions() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]string, len(l.order))
	copy(out, l.order)
	return out
}
